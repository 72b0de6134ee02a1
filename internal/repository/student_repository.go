package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
)

// StudentRepository persists students in the students collection.
type StudentRepository struct {
	store docstore.Store
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(store docstore.Store) *StudentRepository {
	return &StudentRepository{store: store}
}

// FindByID returns one student, docstore.ErrNotFound when absent.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionStudents, id)
	if err != nil {
		if err == docstore.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	var student models.Student
	if err := doc.Decode(&student); err != nil {
		return nil, fmt.Errorf("decode student %s: %w", id, err)
	}
	return &student, nil
}

// List returns every student document.
func (r *StudentRepository) List(ctx context.Context) ([]models.Student, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionStudents)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	students := make([]models.Student, 0, len(docs))
	for _, doc := range docs {
		var student models.Student
		if err := doc.Decode(&student); err != nil {
			return nil, fmt.Errorf("decode student %s: %w", doc.ID, err)
		}
		students = append(students, student)
	}
	return students, nil
}

// Create inserts a new student and fills in the generated id.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}
	id, err := r.store.Add(ctx, docstore.CollectionStudents, student)
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	student.ID = id
	return nil
}

// UpdateContact patches the mutable contact fields.
func (r *StudentRepository) UpdateContact(ctx context.Context, id string, patch map[string]interface{}) error {
	if err := r.store.Update(ctx, docstore.CollectionStudents, id, patch); err != nil {
		if err == docstore.ErrNotFound {
			return err
		}
		return fmt.Errorf("update student %s: %w", id, err)
	}
	return nil
}

// SetAssignedCoach syncs the denormalized coach cache field. A nil coachID
// clears the field entirely rather than writing an empty value.
func (r *StudentRepository) SetAssignedCoach(ctx context.Context, id string, coachID *string) error {
	patch := map[string]interface{}{"assignedCoachId": nil}
	if coachID != nil {
		patch["assignedCoachId"] = *coachID
	}
	if err := r.store.Update(ctx, docstore.CollectionStudents, id, patch); err != nil {
		if err == docstore.ErrNotFound {
			return err
		}
		return fmt.Errorf("set assigned coach for student %s: %w", id, err)
	}
	return nil
}

// Delete removes the student document.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, docstore.CollectionStudents, id); err != nil {
		if err == docstore.ErrNotFound {
			return err
		}
		return fmt.Errorf("delete student %s: %w", id, err)
	}
	return nil
}

// Count reports the number of students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	count, err := r.store.Count(ctx, docstore.CollectionStudents)
	if err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}
