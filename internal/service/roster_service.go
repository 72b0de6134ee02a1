package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
	appErrors "github.com/coachdesk/coachdesk-api/pkg/errors"
)

type rosterAssignmentRepo interface {
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.Assignment, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Assignment, error)
	ListActiveByCoach(ctx context.Context, coachID string) ([]models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Deactivate(ctx context.Context, id string) error
}

type rosterStudentRepo interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	SetAssignedCoach(ctx context.Context, id string, coachID *string) error
	Delete(ctx context.Context, id string) error
}

type rosterCoachReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// RosterService owns the student-coach assignment ledger. Its one guarantee:
// at most one active assignment exists per student once in-flight operations
// settle. The backing store has no cross-document transactions, so the write
// protocol is compensating rather than preventing: a superseding write first
// deactivates whatever active rows it finds, and every read reconciles stray
// rows it encounters. Partial failures are never rolled back; retrying the
// same call converges because the deactivation pass runs again.
type RosterService struct {
	assignments rosterAssignmentRepo
	students    rosterStudentRepo
	coaches     rosterCoachReader
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewRosterService constructs the service. metrics may be nil.
func NewRosterService(
	assignments rosterAssignmentRepo,
	students rosterStudentRepo,
	coaches rosterCoachReader,
	metrics *MetricsService,
	logger *zap.Logger,
) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{
		assignments: assignments,
		students:    students,
		coaches:     coaches,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Assign binds the student to the coach, superseding any prior active
// assignment. The call resolves only after every deactivation, the insert and
// the student patch have completed. Reference checks fail fast before any
// write; a mid-sequence store failure leaves completed sub-steps in place.
func (s *RosterService) Assign(ctx context.Context, studentID, coachID string) (*models.Assignment, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == docstore.ErrNotFound {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load student")
	}
	coach, err := s.coaches.FindByID(ctx, coachID)
	if err != nil {
		if err == docstore.ErrNotFound {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "coach not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load coach")
	}
	if coach.Role != models.RoleCoach {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a coach")
	}

	active, err := s.assignments.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to read active assignments")
	}
	if len(active) > 1 {
		s.observeDivergence(studentID, len(active)-1)
	}

	// Deactivations race the insert and the cache patch on purpose: the
	// store orders nothing across documents, so sequencing here would buy
	// no guarantee. The join below is what callers rely on.
	errs := make(chan error, len(active)+2)
	var wg sync.WaitGroup
	for _, row := range active {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := s.assignments.Deactivate(ctx, id); err != nil && err != docstore.ErrNotFound {
				errs <- err
			}
		}(row.ID)
	}

	assignment := &models.Assignment{
		StudentID:    studentID,
		CoachID:      coachID,
		AssignedDate: s.now(),
		Status:       models.AssignmentActive,
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		errs <- err
	} else if err := s.students.SetAssignedCoach(ctx, studentID, &coachID); err != nil && err != docstore.ErrNotFound {
		errs <- err
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "assignment partially applied; retry is safe")
	}

	s.metrics.RecordRosterOperation("assign")
	s.logger.Info("student assigned",
		zap.String("student_id", studentID),
		zap.String("coach_id", coachID),
		zap.Int("superseded", len(active)),
	)
	return assignment, nil
}

// Unassign deactivates every active assignment for the student and clears the
// denormalized coach field. Same partial-failure semantics as Assign.
func (s *RosterService) Unassign(ctx context.Context, studentID string) error {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == docstore.ErrNotFound {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load student")
	}

	active, err := s.assignments.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to read active assignments")
	}
	if err := s.deactivateAll(ctx, active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "unassign partially applied; retry is safe")
	}
	if err := s.students.SetAssignedCoach(ctx, studentID, nil); err != nil && err != docstore.ErrNotFound {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to clear assigned coach")
	}

	s.metrics.RecordRosterOperation("unassign")
	s.logger.Info("student unassigned", zap.String("student_id", studentID), zap.Int("deactivated", len(active)))
	return nil
}

// CurrentCoachOf resolves the student's active coach from the ledger. The
// read is self-healing: when it finds more than one active row the latest
// assignedDate wins, the rest are deactivated and the denormalized field is
// resynced. A stale denormalized value with no active row is cleared. Returns
// nil when the student has no coach or no longer exists.
func (s *RosterService) CurrentCoachOf(ctx context.Context, studentID string) (*string, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil && err != docstore.ErrNotFound {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load student")
	}

	active, err := s.assignments.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to read active assignments")
	}

	if student == nil {
		// Student already deleted: finish the cleanup its deletion owed.
		if len(active) > 0 {
			if err := s.deactivateAll(ctx, active); err != nil {
				s.logger.Warn("failed to deactivate assignments of deleted student",
					zap.String("student_id", studentID), zap.Error(err))
			}
		}
		return nil, nil
	}

	switch len(active) {
	case 0:
		if student.AssignedCoachID != nil {
			s.metrics.RecordRosterStaleCache()
			if err := s.students.SetAssignedCoach(ctx, studentID, nil); err != nil && err != docstore.ErrNotFound {
				s.logger.Warn("failed to clear stale assigned coach",
					zap.String("student_id", studentID), zap.Error(err))
			}
		}
		return nil, nil
	case 1:
		winner := active[0]
		s.resyncCache(ctx, student, winner.CoachID)
		return &winner.CoachID, nil
	default:
		winner := latestAssignment(active)
		losers := make([]models.Assignment, 0, len(active)-1)
		for _, row := range active {
			if row.ID != winner.ID {
				losers = append(losers, row)
			}
		}
		s.observeDivergence(studentID, len(losers))
		if err := s.deactivateAll(ctx, losers); err != nil {
			// Healing is opportunistic; the next read tries again.
			s.logger.Warn("failed to deactivate stray assignments",
				zap.String("student_id", studentID), zap.Error(err))
		}
		s.resyncCache(ctx, student, winner.CoachID)
		return &winner.CoachID, nil
	}
}

// DeleteStudent removes the student document and then deactivates any active
// assignment rows. The deactivation pass runs even when the document was
// already gone, so no active assignment can survive pointing at a deleted
// student.
func (s *RosterService) DeleteStudent(ctx context.Context, studentID string) error {
	deleteErr := s.students.Delete(ctx, studentID)
	if deleteErr == docstore.ErrNotFound {
		deleteErr = nil
	}

	active, err := s.assignments.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to read active assignments")
	}
	if err := s.deactivateAll(ctx, active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "student deletion partially applied; retry is safe")
	}
	if deleteErr != nil {
		return appErrors.Wrap(deleteErr, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to delete student")
	}

	s.metrics.RecordRosterOperation("delete_student")
	s.logger.Info("student deleted", zap.String("student_id", studentID), zap.Int("deactivated", len(active)))
	return nil
}

// HistoryOf returns the student's full assignment trail, newest first.
func (s *RosterService) HistoryOf(ctx context.Context, studentID string) ([]models.Assignment, error) {
	history, err := s.assignments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to read assignment history")
	}
	// Newest first; ties keep query order.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// ActiveRosterOf returns the coach's active assignments.
func (s *RosterService) ActiveRosterOf(ctx context.Context, coachID string) ([]models.Assignment, error) {
	roster, err := s.assignments.ListActiveByCoach(ctx, coachID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to read coach roster")
	}
	return roster, nil
}

func (s *RosterService) deactivateAll(ctx context.Context, rows []models.Assignment) error {
	if len(rows) == 0 {
		return nil
	}
	errs := make(chan error, len(rows))
	var wg sync.WaitGroup
	for _, row := range rows {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := s.assignments.Deactivate(ctx, id); err != nil && err != docstore.ErrNotFound {
				errs <- err
			}
		}(row.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		return err
	}
	return nil
}

func (s *RosterService) resyncCache(ctx context.Context, student *models.Student, coachID string) {
	if student.AssignedCoachID != nil && *student.AssignedCoachID == coachID {
		return
	}
	s.metrics.RecordRosterStaleCache()
	if err := s.students.SetAssignedCoach(ctx, student.ID, &coachID); err != nil && err != docstore.ErrNotFound {
		s.logger.Warn("failed to resync assigned coach",
			zap.String("student_id", student.ID), zap.Error(err))
	}
}

func (s *RosterService) observeDivergence(studentID string, strayRows int) {
	s.metrics.RecordRosterDivergence(strayRows)
	s.logger.Warn("multiple active assignments found",
		zap.String("student_id", studentID),
		zap.Int("stray_rows", strayRows),
	)
}

// latestAssignment picks the authoritative row among concurrent survivors:
// latest assignedDate wins, later-created wins a date tie.
func latestAssignment(rows []models.Assignment) models.Assignment {
	winner := rows[0]
	for _, row := range rows[1:] {
		if !row.AssignedDate.Before(winner.AssignedDate) {
			winner = row
		}
	}
	return winner
}
