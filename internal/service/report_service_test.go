package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/repository"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
	"github.com/coachdesk/coachdesk-api/pkg/jobs"
	"github.com/coachdesk/coachdesk-api/pkg/storage"
)

type recordingQueue struct {
	enqueued []jobs.Job
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	q.enqueued = append(q.enqueued, job)
	return nil
}

type reportFixture struct {
	svc    *ReportService
	queue  *recordingQueue
	store  *docstore.MemoryStore
	files  *storage.LocalStorage
	signer *storage.SignedURLSigner
}

func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	students := repository.NewStudentRepository(store)
	users := repository.NewUserRepository(store)
	classes := repository.NewClassRepository(store)
	classSvc := NewClassService(classes, users, students, nil, validator.New(), zap.NewNop())

	ctx := context.Background()
	require.NoError(t, users.CreateProfile(ctx, &models.User{ID: "coach-1", Name: "Arif", Role: models.RoleCoach}))
	require.NoError(t, classes.Create(ctx, &models.ClassRecord{
		CoachID:   "coach-1",
		ClassType: models.ClassGroup,
		ClassDate: time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC),
		Duration:  60,
		ClassFee:  250,
	}))

	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)

	svc := NewReportService(classSvc, repository.NewReportRepository(store), files, signer, nil, zap.NewNop(), ReportServiceConfig{})
	queue := &recordingQueue{}
	svc.SetQueue(queue)
	return &reportFixture{svc: svc, queue: queue, store: store, files: files, signer: signer}
}

func TestReportJobLifecycle(t *testing.T) {
	fx := newReportFixture(t)
	ctx := context.Background()

	job, err := fx.svc.CreateJob(ctx, ReportRequest{
		Type:   models.ReportTypePayments,
		Month:  "2026-03",
		Format: models.ReportFormatCSV,
	}, "admin-1", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	require.Len(t, fx.queue.enqueued, 1)

	require.NoError(t, fx.svc.Process(ctx, fx.queue.enqueued[0]))

	finished, err := fx.svc.GetStatus(ctx, job.ID, "admin-1", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, finished.Status)
	require.NotNil(t, finished.ResultURL)
	require.NotNil(t, finished.FinishedAt)

	download, err := fx.svc.Download(ctx, *finished.ResultURL)
	require.NoError(t, err)
	defer download.File.Close()
	payload, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "250.00")
	assert.Contains(t, string(payload), "Arif")
}

func TestReportJobSurvivesRestart(t *testing.T) {
	fx := newReportFixture(t)
	ctx := context.Background()

	job, err := fx.svc.CreateJob(ctx, ReportRequest{
		Type:   models.ReportTypePayments,
		Format: models.ReportFormatCSV,
	}, "admin-1", models.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, fx.svc.Process(ctx, fx.queue.enqueued[0]))

	// A fresh service over the same store stands in for a restarted process.
	classSvc := NewClassService(repository.NewClassRepository(fx.store),
		repository.NewUserRepository(fx.store), repository.NewStudentRepository(fx.store),
		nil, validator.New(), zap.NewNop())
	reborn := NewReportService(classSvc, repository.NewReportRepository(fx.store),
		fx.files, fx.signer, nil, zap.NewNop(), ReportServiceConfig{})

	finished, err := reborn.GetStatus(ctx, job.ID, "admin-1", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, finished.Status)
	require.NotNil(t, finished.ResultURL)

	download, err := reborn.Download(ctx, *finished.ResultURL)
	require.NoError(t, err)
	download.File.Close()
}

func TestReportRecoverQueuedRequeuesPendingJobs(t *testing.T) {
	fx := newReportFixture(t)
	ctx := context.Background()

	first, err := fx.svc.CreateJob(ctx, ReportRequest{
		Type:   models.ReportTypePayments,
		Format: models.ReportFormatCSV,
	}, "admin-1", models.RoleAdmin)
	require.NoError(t, err)
	second, err := fx.svc.CreateJob(ctx, ReportRequest{
		Type:   models.ReportTypeClasses,
		Format: models.ReportFormatCSV,
	}, "admin-1", models.RoleAdmin)
	require.NoError(t, err)

	// The first job completes before the simulated crash, the second stays queued.
	require.NoError(t, fx.svc.Process(ctx, fx.queue.enqueued[0]))

	classSvc := NewClassService(repository.NewClassRepository(fx.store),
		repository.NewUserRepository(fx.store), repository.NewStudentRepository(fx.store),
		nil, validator.New(), zap.NewNop())
	reborn := NewReportService(classSvc, repository.NewReportRepository(fx.store),
		fx.files, fx.signer, nil, zap.NewNop(), ReportServiceConfig{})
	requeued := &recordingQueue{}
	reborn.SetQueue(requeued)

	reborn.RecoverQueued(ctx)
	require.Len(t, requeued.enqueued, 1)
	assert.Equal(t, second.ID, requeued.enqueued[0].ID)
	assert.NotEqual(t, first.ID, requeued.enqueued[0].ID)
}

func TestReportCleanupPurgesExpiredResults(t *testing.T) {
	fx := newReportFixture(t)
	ctx := context.Background()

	job, err := fx.svc.CreateJob(ctx, ReportRequest{
		Type:   models.ReportTypePayments,
		Format: models.ReportFormatCSV,
	}, "admin-1", models.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, fx.svc.Process(ctx, fx.queue.enqueued[0]))

	repo := repository.NewReportRepository(fx.store)
	past := time.Now().Add(-48 * time.Hour).UTC()
	require.NoError(t, repo.Update(ctx, job.ID, repository.UpdateReportJobParams{FinishedAt: &past}))

	finished, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	token := *finished.ResultURL

	fx.svc.cleanupExpired(ctx)

	purged, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, purged.ResultURL)

	_, err = fx.svc.Download(ctx, token)
	require.Error(t, err)

	// A second sweep finds nothing left to purge.
	expired, err := repo.ListFinishedBefore(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestReportCoachPinnedToOwnData(t *testing.T) {
	fx := newReportFixture(t)

	job, err := fx.svc.CreateJob(context.Background(), ReportRequest{
		Type:    models.ReportTypeClasses,
		CoachID: "someone-else",
		Format:  models.ReportFormatCSV,
	}, "coach-1", models.RoleCoach)
	require.NoError(t, err)
	assert.Equal(t, "coach-1", job.Params.CoachID)
}

func TestReportStatusOwnership(t *testing.T) {
	fx := newReportFixture(t)
	ctx := context.Background()

	job, err := fx.svc.CreateJob(ctx, ReportRequest{
		Type:   models.ReportTypePayments,
		Format: models.ReportFormatCSV,
	}, "coach-1", models.RoleCoach)
	require.NoError(t, err)

	_, err = fx.svc.GetStatus(ctx, job.ID, "coach-2", models.RoleCoach)
	require.Error(t, err)

	_, err = fx.svc.GetStatus(ctx, job.ID, "admin-1", models.RoleAdmin)
	require.NoError(t, err)
}

func TestReportUnknownJob(t *testing.T) {
	fx := newReportFixture(t)

	_, err := fx.svc.GetStatus(context.Background(), "missing", "admin-1", models.RoleAdmin)
	require.Error(t, err)
}

func TestReportDownloadRejectsBadToken(t *testing.T) {
	fx := newReportFixture(t)

	_, err := fx.svc.Download(context.Background(), "not-a-valid-token")
	require.Error(t, err)
}
