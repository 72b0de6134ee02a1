package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
)

// ClassRepository persists recorded classes in the classes collection.
type ClassRepository struct {
	store docstore.Store
}

// NewClassRepository constructs the repository.
func NewClassRepository(store docstore.Store) *ClassRepository {
	return &ClassRepository{store: store}
}

// FindByID returns one class record, docstore.ErrNotFound when absent.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassRecord, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionClasses, id)
	if err != nil {
		if err == docstore.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find class: %w", err)
	}
	var record models.ClassRecord
	if err := doc.Decode(&record); err != nil {
		return nil, fmt.Errorf("decode class %s: %w", id, err)
	}
	return &record, nil
}

// List returns class records matching the store-expressible parts of the
// filter: coach, student, type and payment status are equality predicates;
// month and date-range narrowing happen in the service.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassRecord, error) {
	var predicates []docstore.Filter
	if filter.CoachID != "" {
		predicates = append(predicates, docstore.Eq("coachId", filter.CoachID))
	}
	if filter.StudentID != "" {
		predicates = append(predicates, docstore.Eq("studentId", filter.StudentID))
	}
	if filter.ClassType != "" {
		predicates = append(predicates, docstore.Eq("classType", string(filter.ClassType)))
	}
	if filter.PaymentStatus != "" {
		predicates = append(predicates, docstore.Eq("paymentStatus", string(filter.PaymentStatus)))
	}

	docs, err := r.store.Query(ctx, docstore.CollectionClasses, predicates...)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	records := make([]models.ClassRecord, 0, len(docs))
	for _, doc := range docs {
		var record models.ClassRecord
		if err := doc.Decode(&record); err != nil {
			return nil, fmt.Errorf("decode class %s: %w", doc.ID, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Create inserts a new class record and fills in the generated id.
func (r *ClassRepository) Create(ctx context.Context, record *models.ClassRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.PaymentStatus == "" {
		record.PaymentStatus = models.PaymentPending
	}
	id, err := r.store.Add(ctx, docstore.CollectionClasses, record)
	if err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	record.ID = id
	return nil
}

// SetPaymentStatus flips the payment state of one class record. Marking a
// class completed stamps paymentDate; reverting to pending clears it again.
func (r *ClassRepository) SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	patch := map[string]interface{}{"paymentStatus": string(status)}
	if status == models.PaymentCompleted {
		patch["paymentDate"] = time.Now().UTC()
	} else {
		patch["paymentDate"] = nil
	}
	if err := r.store.Update(ctx, docstore.CollectionClasses, id, patch); err != nil {
		if err == docstore.ErrNotFound {
			return err
		}
		return fmt.Errorf("set payment status for class %s: %w", id, err)
	}
	return nil
}

// Delete removes the class record.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, docstore.CollectionClasses, id); err != nil {
		if err == docstore.ErrNotFound {
			return err
		}
		return fmt.Errorf("delete class %s: %w", id, err)
	}
	return nil
}

// Count reports the total number of class records.
func (r *ClassRepository) Count(ctx context.Context) (int, error) {
	count, err := r.store.Count(ctx, docstore.CollectionClasses)
	if err != nil {
		return 0, fmt.Errorf("count classes: %w", err)
	}
	return count, nil
}
