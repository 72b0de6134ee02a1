package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
)

// AssignmentRepository persists student-coach bindings in the assignments
// collection. The single-active-per-student invariant lives in the roster
// service, not here; this layer is plain collection access.
type AssignmentRepository struct {
	store docstore.Store
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(store docstore.Store) *AssignmentRepository {
	return &AssignmentRepository{store: store}
}

// ListActiveByStudent returns every active assignment for the student. More
// than one result means a prior superseding write was interrupted; callers
// reconcile, they do not error.
func (r *AssignmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.Assignment, error) {
	return r.query(ctx,
		docstore.Eq("studentId", studentID),
		docstore.Eq("status", string(models.AssignmentActive)),
	)
}

// ListByStudent returns the student's full assignment history.
func (r *AssignmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Assignment, error) {
	return r.query(ctx, docstore.Eq("studentId", studentID))
}

// ListActiveByCoach returns the coach's active roster.
func (r *AssignmentRepository) ListActiveByCoach(ctx context.Context, coachID string) ([]models.Assignment, error) {
	return r.query(ctx,
		docstore.Eq("coachId", coachID),
		docstore.Eq("status", string(models.AssignmentActive)),
	)
}

// Create inserts a new assignment and fills in the generated id.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.AssignedDate.IsZero() {
		assignment.AssignedDate = time.Now().UTC()
	}
	if assignment.Status == "" {
		assignment.Status = models.AssignmentActive
	}
	id, err := r.store.Add(ctx, docstore.CollectionAssignments, assignment)
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	assignment.ID = id
	return nil
}

// Deactivate marks one assignment inactive. The transition is terminal.
func (r *AssignmentRepository) Deactivate(ctx context.Context, id string) error {
	patch := map[string]interface{}{"status": string(models.AssignmentInactive)}
	if err := r.store.Update(ctx, docstore.CollectionAssignments, id, patch); err != nil {
		if err == docstore.ErrNotFound {
			return err
		}
		return fmt.Errorf("deactivate assignment %s: %w", id, err)
	}
	return nil
}

func (r *AssignmentRepository) query(ctx context.Context, filters ...docstore.Filter) ([]models.Assignment, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionAssignments, filters...)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	assignments := make([]models.Assignment, 0, len(docs))
	for _, doc := range docs {
		var assignment models.Assignment
		if err := doc.Decode(&assignment); err != nil {
			return nil, fmt.Errorf("decode assignment %s: %w", doc.ID, err)
		}
		assignments = append(assignments, assignment)
	}
	return assignments, nil
}
