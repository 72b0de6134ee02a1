package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coachdesk/coachdesk-api/internal/models"
	appErrors "github.com/coachdesk/coachdesk-api/pkg/errors"
)

type dashboardCounter interface {
	Count(ctx context.Context) (int, error)
}

type dashboardCoachCounter interface {
	CountCoaches(ctx context.Context) (int, error)
}

type dashboardClassLister interface {
	ListPayments(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, models.PaymentSummary, error)
	Recent(ctx context.Context, limit int) ([]models.ClassDetail, error)
}

// DashboardStats is the admin landing page aggregate.
type DashboardStats struct {
	CoachCount   int     `json:"coach_count"`
	StudentCount int     `json:"student_count"`
	ClassCount   int     `json:"class_count"`
	TotalRevenue float64 `json:"total_revenue"`
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL      time.Duration
	RecentClasses int
}

// DashboardService composes the admin dashboard from the other services,
// caching the aggregates in Redis.
type DashboardService struct {
	students dashboardCounter
	coaches  dashboardCoachCounter
	classes  dashboardClassLister
	cache    *CacheService
	logger   *zap.Logger
	cfg      DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(students dashboardCounter, coaches dashboardCoachCounter, classes dashboardClassLister, cache *CacheService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.RecentClasses <= 0 {
		cfg.RecentClasses = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		students: students,
		coaches:  coaches,
		classes:  classes,
		cache:    cache,
		logger:   logger,
		cfg:      cfg,
	}
}

// Stats returns the headline counts and revenue total. The three counts and
// the payment aggregate are gathered concurrently and joined before the
// payload is assembled.
func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	const cacheKey = "dashboard:stats"

	var cached DashboardStats
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	var (
		wg      sync.WaitGroup
		stats   DashboardStats
		summary models.PaymentSummary
		errs    = make(chan error, 3)
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		count, err := s.coaches.CountCoaches(ctx)
		if err != nil {
			errs <- err
			return
		}
		stats.CoachCount = count
	}()
	go func() {
		defer wg.Done()
		count, err := s.students.Count(ctx)
		if err != nil {
			errs <- err
			return
		}
		stats.StudentCount = count
	}()
	go func() {
		defer wg.Done()
		_, sum, err := s.classes.ListPayments(ctx, models.ClassFilter{})
		if err != nil {
			errs <- err
			return
		}
		summary = sum
	}()
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to gather dashboard stats")
	}

	stats.ClassCount = summary.ClassCount
	stats.TotalRevenue = summary.TotalAmount

	if err := s.cache.Set(ctx, cacheKey, stats, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache dashboard stats", zap.Error(err))
	}
	return &stats, nil
}

// RecentClasses returns the latest recorded classes with names resolved.
func (s *DashboardService) RecentClasses(ctx context.Context) ([]models.ClassDetail, error) {
	const cacheKey = "dashboard:recent-classes"

	var cached []models.ClassDetail
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	recent, err := s.classes.Recent(ctx, s.cfg.RecentClasses)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cacheKey, recent, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache recent classes", zap.Error(err))
	}
	return recent, nil
}
