package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/repository"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
	appErrors "github.com/coachdesk/coachdesk-api/pkg/errors"
	"github.com/coachdesk/coachdesk-api/pkg/export"
	"github.com/coachdesk/coachdesk-api/pkg/jobs"
	"github.com/coachdesk/coachdesk-api/pkg/storage"
)

type reportClassLister interface {
	ListPayments(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, models.PaymentSummary, error)
}

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ReportRequest is the payload for creating a report job.
type ReportRequest struct {
	Type    models.ReportType   `json:"type" validate:"required,oneof=payments classes"`
	CoachID string              `json:"coach_id"`
	Month   string              `json:"month"`
	Status  string              `json:"status" validate:"omitempty,oneof=pending completed"`
	Format  models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// ReportServiceConfig governs result retention.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportService renders payment and class reports asynchronously. Job
// metadata persists in the report_jobs collection, so queued work is
// recoverable after a restart and finished downloads keep resolving; the
// rendered files land on local storage and are served through HMAC-signed
// URLs.
type ReportService struct {
	classes reportClassLister
	repo    reportJobStore
	queue   jobDispatcher
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	files   *storage.LocalStorage
	signer  *storage.SignedURLSigner
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ReportServiceConfig
}

// NewReportService constructs the report service. Registering the returned
// instance's Process as the queue handler closes the dispatch loop.
func NewReportService(classes reportClassLister, repo reportJobStore, files *storage.LocalStorage, signer *storage.SignedURLSigner, metrics *MetricsService, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ReportService{
		classes: classes,
		repo:    repo,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		files:   files,
		signer:  signer,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// SetQueue wires the dispatcher. Called once during startup, after the queue
// has been built around Process.
func (s *ReportService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob persists a report job and enqueues it for processing. Coaches
// are pinned to their own data regardless of the requested coach filter.
func (s *ReportService) CreateJob(ctx context.Context, req ReportRequest, actorID string, role models.UserRole) (*models.ReportJob, error) {
	if role == models.RoleCoach {
		req.CoachID = actorID
	}

	job := &models.ReportJob{
		Type: req.Type,
		Params: models.ReportJobParams{
			CoachID: req.CoachID,
			Month:   req.Month,
			Status:  req.Status,
			Format:  req.Format,
		},
		Status:    models.ReportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to create report job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type), Payload: job.ID}); err != nil {
		s.fail(ctx, job.ID, "failed to enqueue report job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}

	s.logger.Info("report job queued", zap.String("jobId", job.ID), zap.String("type", string(job.Type)))
	return job, nil
}

// GetStatus exposes job metadata, enforcing ownership for coaches.
func (s *ReportService) GetStatus(ctx context.Context, id, actorID string, role models.UserRole) (*models.ReportJob, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == models.RoleCoach && job.CreatedBy != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report job belongs to another user")
	}
	return job, nil
}

// Download resolves a signed token into the rendered file.
func (s *ReportService) Download(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}

	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report is not available")
	}

	file, err := s.files.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "report file missing")
	}

	return &ReportDownload{
		File:      file,
		Filename:  relPath,
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// Process is the queue handler: renders the report and records the outcome.
func (s *ReportService) Process(ctx context.Context, job jobs.Job) error {
	start := time.Now()
	record, err := s.repo.FindByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", job.ID, err)
	}

	processing := models.ReportStatusProcessing
	if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{Status: &processing}); err != nil {
		return fmt.Errorf("mark report job %s processing: %w", job.ID, err)
	}

	if err := s.render(ctx, record); err != nil {
		s.fail(ctx, job.ID, err.Error())
		if s.metrics != nil {
			s.metrics.RecordReportJob(string(models.ReportStatusFailed), time.Since(start))
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordReportJob(string(models.ReportStatusFinished), time.Since(start))
	}
	s.logger.Info("report job finished", zap.String("jobId", job.ID), zap.Duration("took", time.Since(start)))
	return nil
}

// RecoverQueued replays jobs that were queued when the previous process
// stopped. Called once on startup, after the queue is running.
func (s *ReportService) RecoverQueued(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued report jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type), Payload: job.ID}); err != nil {
			s.logger.Warn("failed to requeue report job", zap.String("jobId", job.ID), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		s.logger.Info("requeued report jobs from previous run", zap.Int("count", len(pending)))
	}
}

// StartCleanup boots a goroutine that purges expired report files
// periodically. A non-positive interval disables it.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ReportService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Warn("report cleanup list failed", zap.Error(err))
		return
	}
	for _, job := range expired {
		_, relPath, _, err := s.signer.Parse(*job.ResultURL, true)
		if err != nil {
			s.logger.Warn("report cleanup token parse failed", zap.String("jobId", job.ID), zap.Error(err))
			continue
		}
		if err := s.files.Delete(relPath); err != nil {
			s.logger.Warn("report cleanup delete failed", zap.String("jobId", job.ID), zap.Error(err))
			continue
		}
		// Dropping the token keeps the job out of the next sweep and turns
		// further downloads into not-available errors.
		if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{ClearResultURL: true}); err != nil {
			s.logger.Warn("report cleanup update failed", zap.String("jobId", job.ID), zap.Error(err))
		}
	}
}

func (s *ReportService) render(ctx context.Context, job *models.ReportJob) error {
	filter := models.ClassFilter{
		CoachID:       job.Params.CoachID,
		Month:         job.Params.Month,
		PaymentStatus: models.PaymentStatus(job.Params.Status),
	}
	details, summary, err := s.classes.ListPayments(ctx, filter)
	if err != nil {
		return fmt.Errorf("load report data: %w", err)
	}

	dataset := buildReportDataset(job.Type, details, summary)

	var payload []byte
	ext := "csv"
	switch job.Params.Format {
	case models.ReportFormatPDF:
		ext = "pdf"
		payload, err = s.pdf.Render(dataset, reportTitle(job))
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	filename := fmt.Sprintf("%s-%s.%s", job.Type, job.ID, ext)
	if _, err := s.files.Save(filename, payload); err != nil {
		return fmt.Errorf("store report: %w", err)
	}

	url, _, err := s.signer.Generate(job.ID, filename)
	if err != nil {
		return fmt.Errorf("sign report url: %w", err)
	}

	finished := models.ReportStatusFinished
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:     &finished,
		ResultURL:  &url,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("finish report job %s: %w", job.ID, err)
	}
	return nil
}

func (s *ReportService) load(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load report job")
	}
	return job, nil
}

func (s *ReportService) fail(ctx context.Context, id, message string) {
	failed := models.ReportStatusFailed
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateReportJobParams{
		Status:       &failed,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark report job failed", zap.String("jobId", id), zap.Error(err))
	}
}

func buildReportDataset(reportType models.ReportType, details []models.ClassDetail, summary models.PaymentSummary) export.Dataset {
	if reportType == models.ReportTypeClasses {
		dataset := export.Dataset{
			Headers: []string{"Date", "Coach", "Student", "Type", "Duration", "Fee"},
		}
		for _, detail := range details {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Date":     detail.ClassDate.Format("2006-01-02"),
				"Coach":    detail.CoachName,
				"Student":  detail.StudentName,
				"Type":     string(detail.ClassType),
				"Duration": strconv.Itoa(detail.Duration),
				"Fee":      formatAmount(detail.ClassFee),
			})
		}
		return dataset
	}

	dataset := export.Dataset{
		Headers: []string{"Date", "Coach", "Fee", "Status"},
	}
	for _, detail := range details {
		status := detail.PaymentStatus
		if status == "" {
			status = models.PaymentPending
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":   detail.ClassDate.Format("2006-01-02"),
			"Coach":  detail.CoachName,
			"Fee":    formatAmount(detail.ClassFee),
			"Status": string(status),
		})
	}
	dataset.Rows = append(dataset.Rows, map[string]string{
		"Date":   "TOTAL",
		"Coach":  "",
		"Fee":    formatAmount(summary.TotalAmount),
		"Status": fmt.Sprintf("pending %s / completed %s", formatAmount(summary.PendingAmount), formatAmount(summary.CompletedAmount)),
	})
	return dataset
}

func reportTitle(job *models.ReportJob) string {
	title := "Payments Report"
	if job.Type == models.ReportTypeClasses {
		title = "Classes Report"
	}
	if job.Params.Month != "" {
		title = fmt.Sprintf("%s %s", title, job.Params.Month)
	}
	return title
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
