package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
	appErrors "github.com/coachdesk/coachdesk-api/pkg/errors"
)

type classRepo interface {
	FindByID(ctx context.Context, id string) (*models.ClassRecord, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassRecord, error)
	Create(ctx context.Context, record *models.ClassRecord) error
	SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error
	Delete(ctx context.Context, id string) error
}

type classNameReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type classStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type classCacheInvalidator interface {
	InvalidateDashboard(ctx context.Context)
}

// CreateClassRequest represents payload for recording a class.
type CreateClassRequest struct {
	StudentID *string          `json:"student_id"`
	ClassType models.ClassType `json:"class_type" validate:"required,oneof=individual group"`
	ClassDate time.Time        `json:"class_date" validate:"required"`
	Duration  int              `json:"duration" validate:"required,gt=0"`
	ClassFee  float64          `json:"class_fee" validate:"gte=0"`
	Notes     string           `json:"notes"`
}

// ClassService handles class recording and payment tracking for coaches and
// the admin payment view.
type ClassService struct {
	classes   classRepo
	coaches   classNameReader
	students  classStudentReader
	cache     classCacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs a ClassService instance.
func NewClassService(classes classRepo, coaches classNameReader, students classStudentReader, cache classCacheInvalidator, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClassService{
		classes:   classes,
		coaches:   coaches,
		students:  students,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// Create records a class for the given coach. Individual classes must
// reference one of the coach's students; group classes carry no reference.
func (s *ClassService) Create(ctx context.Context, coachID string, req CreateClassRequest) (*models.ClassRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create class payload")
	}

	if req.ClassType == models.ClassIndividual {
		if req.StudentID == nil || *req.StudentID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "individual class requires a student")
		}
		if _, err := s.students.FindByID(ctx, *req.StudentID); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load student")
		}
	} else {
		req.StudentID = nil
	}

	record := &models.ClassRecord{
		CoachID:       coachID,
		StudentID:     req.StudentID,
		ClassType:     req.ClassType,
		ClassDate:     req.ClassDate.UTC(),
		Duration:      req.Duration,
		ClassFee:      req.ClassFee,
		Notes:         req.Notes,
		PaymentStatus: models.PaymentPending,
	}
	if err := s.classes.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to record class")
	}

	if s.cache != nil {
		s.cache.InvalidateDashboard(ctx)
	}
	s.logger.Info("class recorded", zap.String("classId", record.ID), zap.String("coachId", coachID))
	return record, nil
}

// ListByCoach returns a coach's classes, optionally narrowed by type and
// month, newest first. Month filtering happens in memory because the store
// only supports equality predicates.
func (s *ClassService) ListByCoach(ctx context.Context, coachID string, classType models.ClassType, month string) ([]models.ClassDetail, models.ClassStats, error) {
	filter := models.ClassFilter{CoachID: coachID, ClassType: classType, Month: month}
	records, err := s.query(ctx, filter)
	if err != nil {
		return nil, models.ClassStats{}, err
	}

	stats := models.ClassStats{TotalClasses: len(records)}
	for _, record := range records {
		stats.TotalAmount += record.ClassFee
	}

	details := s.resolveNames(ctx, records)
	return details, stats, nil
}

// ListPayments is the admin payment view: date-range, coach and status
// filters with amount totals grouped by payment status.
func (s *ClassService) ListPayments(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, models.PaymentSummary, error) {
	records, err := s.query(ctx, filter)
	if err != nil {
		return nil, models.PaymentSummary{}, err
	}

	summary := models.PaymentSummary{ClassCount: len(records)}
	for _, record := range records {
		summary.TotalAmount += record.ClassFee
		if record.PaymentStatus == models.PaymentCompleted {
			summary.CompletedAmount += record.ClassFee
		} else {
			summary.PendingAmount += record.ClassFee
		}
	}

	details := s.resolveNames(ctx, records)
	return details, summary, nil
}

// Recent returns the latest classes by class date across all coaches.
func (s *ClassService) Recent(ctx context.Context, limit int) ([]models.ClassDetail, error) {
	records, err := s.query(ctx, models.ClassFilter{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return s.resolveNames(ctx, records), nil
}

// SetPaymentStatus flips a class between pending and completed.
func (s *ClassService) SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	if status != models.PaymentPending && status != models.PaymentCompleted {
		return appErrors.Clone(appErrors.ErrValidation, "invalid payment status")
	}
	if err := s.classes.SetPaymentStatus(ctx, id, status); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to update payment status")
	}
	if s.cache != nil {
		s.cache.InvalidateDashboard(ctx)
	}
	return nil
}

// BulkPaymentRequest scopes a bulk payout: one coach's pending classes,
// optionally narrowed to a date range.
type BulkPaymentRequest struct {
	CoachID string     `json:"coach_id" validate:"required"`
	From    *time.Time `json:"from"`
	To      *time.Time `json:"to"`
}

// BulkCompletePayments marks every pending class matching the request as
// completed and returns how many were flipped. Each class updates as its own
// store write; a mid-run failure leaves the earlier flips in place and the
// same request can be retried, already-completed classes no longer match.
func (s *ClassService) BulkCompletePayments(ctx context.Context, req BulkPaymentRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payment payload")
	}

	records, err := s.query(ctx, models.ClassFilter{
		CoachID:       req.CoachID,
		PaymentStatus: models.PaymentPending,
		From:          req.From,
		To:            req.To,
	})
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, record := range records {
		if err := s.classes.SetPaymentStatus(ctx, record.ID, models.PaymentCompleted); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				continue
			}
			return updated, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "bulk payment partially applied; retry is safe")
		}
		updated++
	}

	if updated > 0 && s.cache != nil {
		s.cache.InvalidateDashboard(ctx)
	}
	s.logger.Info("bulk payment processed", zap.String("coachId", req.CoachID), zap.Int("updated", updated))
	return updated, nil
}

// Delete removes a class. Coaches may only delete their own records; the
// admin passes an empty coachID to skip the ownership check.
func (s *ClassService) Delete(ctx context.Context, id, coachID string) error {
	record, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load class")
	}
	if coachID != "" && record.CoachID != coachID {
		return appErrors.Clone(appErrors.ErrForbidden, "class belongs to another coach")
	}

	if err := s.classes.Delete(ctx, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to delete class")
	}
	if s.cache != nil {
		s.cache.InvalidateDashboard(ctx)
	}
	return nil
}

// query runs the equality predicates through the repository, applies the
// month and date-range filters in memory and sorts newest first.
func (s *ClassService) query(ctx context.Context, filter models.ClassFilter) ([]models.ClassRecord, error) {
	records, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list classes")
	}

	filtered := records[:0]
	for _, record := range records {
		if filter.Month != "" && record.ClassDate.Format("2006-01") != filter.Month {
			continue
		}
		if filter.From != nil && record.ClassDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && record.ClassDate.After(*filter.To) {
			continue
		}
		filtered = append(filtered, record)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].ClassDate.After(filtered[j].ClassDate)
	})
	return filtered, nil
}

// resolveNames joins coach and student names onto the records with one
// concurrent lookup per distinct id.
func (s *ClassService) resolveNames(ctx context.Context, records []models.ClassRecord) []models.ClassDetail {
	coachIDs := make(map[string]struct{})
	studentIDs := make(map[string]struct{})
	for _, record := range records {
		coachIDs[record.CoachID] = struct{}{}
		if record.StudentID != nil {
			studentIDs[*record.StudentID] = struct{}{}
		}
	}

	var mu sync.Mutex
	coachNames := make(map[string]string, len(coachIDs))
	studentNames := make(map[string]string, len(studentIDs))

	var wg sync.WaitGroup
	for id := range coachIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			coach, err := s.coaches.FindByID(ctx, id)
			if err != nil {
				if !errors.Is(err, docstore.ErrNotFound) {
					s.logger.Warn("failed to resolve coach name", zap.String("coachId", id), zap.Error(err))
				}
				return
			}
			mu.Lock()
			coachNames[id] = coach.Name
			mu.Unlock()
		}(id)
	}
	for id := range studentIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			student, err := s.students.FindByID(ctx, id)
			if err != nil {
				if !errors.Is(err, docstore.ErrNotFound) {
					s.logger.Warn("failed to resolve student name", zap.String("studentId", id), zap.Error(err))
				}
				return
			}
			mu.Lock()
			studentNames[id] = student.Name
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	details := make([]models.ClassDetail, len(records))
	for i, record := range records {
		details[i] = models.ClassDetail{ClassRecord: record, CoachName: coachNames[record.CoachID]}
		if record.StudentID != nil {
			details[i].StudentName = studentNames[*record.StudentID]
		}
	}
	return details
}
