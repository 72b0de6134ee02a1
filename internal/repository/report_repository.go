package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
)

// ReportRepository persists report job metadata in the report_jobs
// collection, so queued work survives a restart and finished downloads stay
// resolvable.
type ReportRepository struct {
	store docstore.Store
}

// NewReportRepository constructs the repository.
func NewReportRepository(store docstore.Store) *ReportRepository {
	return &ReportRepository{store: store}
}

// Create inserts a job document with generated defaults.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if err := r.store.Set(ctx, docstore.CollectionReportJobs, job.ID, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID returns one job, docstore.ErrNotFound when absent.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionReportJobs, id)
	if err != nil {
		if err == docstore.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find report job: %w", err)
	}
	var job models.ReportJob
	if err := doc.Decode(&job); err != nil {
		return nil, fmt.Errorf("decode report job %s: %w", id, err)
	}
	return &job, nil
}

// UpdateReportJobParams lists the mutable job fields. Nil pointers leave the
// field alone; ClearResultURL removes the stored download token.
type UpdateReportJobParams struct {
	Status         *models.ReportStatus
	ResultURL      *string
	ErrorMessage   *string
	FinishedAt     *time.Time
	ClearResultURL bool
}

// Update patches the provided changes onto the job document.
func (r *ReportRepository) Update(ctx context.Context, id string, params UpdateReportJobParams) error {
	patch := make(map[string]interface{}, 4)
	if params.Status != nil {
		patch["status"] = string(*params.Status)
	}
	if params.ResultURL != nil {
		patch["result_url"] = *params.ResultURL
	}
	if params.ClearResultURL {
		patch["result_url"] = nil
	}
	if params.ErrorMessage != nil {
		patch["error_message"] = *params.ErrorMessage
	}
	if params.FinishedAt != nil {
		patch["finished_at"] = params.FinishedAt.UTC()
	}
	if len(patch) == 0 {
		return nil
	}
	if err := r.store.Update(ctx, docstore.CollectionReportJobs, id, patch); err != nil {
		if err == docstore.ErrNotFound {
			return err
		}
		return fmt.Errorf("update report job %s: %w", id, err)
	}
	return nil
}

// ListQueued fetches queued jobs oldest first, for cold start recovery.
func (r *ReportRepository) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	jobs, err := r.list(ctx, models.ReportStatusQueued)
	if err != nil {
		return nil, fmt.Errorf("list queued report jobs: %w", err)
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// ListFinishedBefore retrieves finished jobs whose result predates cutoff
// and still carries a download token. The time bound is applied in memory;
// the store only ships equality predicates.
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	jobs, err := r.list(ctx, models.ReportStatusFinished)
	if err != nil {
		return nil, fmt.Errorf("list finished report jobs: %w", err)
	}
	expired := make([]models.ReportJob, 0, len(jobs))
	for _, job := range jobs {
		if job.ResultURL == nil || job.FinishedAt == nil || !job.FinishedAt.Before(cutoff) {
			continue
		}
		expired = append(expired, job)
		if len(expired) == limit {
			break
		}
	}
	return expired, nil
}

func (r *ReportRepository) list(ctx context.Context, status models.ReportStatus) ([]models.ReportJob, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionReportJobs, docstore.Eq("status", string(status)))
	if err != nil {
		return nil, err
	}
	jobs := make([]models.ReportJob, 0, len(docs))
	for _, doc := range docs {
		var job models.ReportJob
		if err := doc.Decode(&job); err != nil {
			return nil, fmt.Errorf("decode report job %s: %w", doc.ID, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
