package service

import (
	"context"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
	appErrors "github.com/coachdesk/coachdesk-api/pkg/errors"
)

type studentRepo interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	List(ctx context.Context) ([]models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	UpdateContact(ctx context.Context, id string, patch map[string]interface{}) error
}

type studentCoachReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type studentRoster interface {
	Assign(ctx context.Context, studentID, coachID string) (*models.Assignment, error)
	CurrentCoachOf(ctx context.Context, studentID string) (*string, error)
	DeleteStudent(ctx context.Context, studentID string) error
}

// CreateStudentRequest represents payload for enrolling a student.
type CreateStudentRequest struct {
	Name            string  `json:"name" validate:"required"`
	Email           string  `json:"email" validate:"omitempty,email"`
	Phone           string  `json:"phone"`
	ParentName      string  `json:"parent_name"`
	ParentPhone     string  `json:"parent_phone"`
	AssignedCoachID *string `json:"assigned_coach_id"`
}

// UpdateStudentRequest represents payload for updating student contact fields.
type UpdateStudentRequest struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone"`
	ParentName  string `json:"parent_name"`
	ParentPhone string `json:"parent_phone"`
}

// StudentService handles student management. Assignment changes are never
// made here; they delegate to the roster service, the single writer of the
// assignments collection and the denormalized coach field.
type StudentService struct {
	students  studentRepo
	coaches   studentCoachReader
	roster    studentRoster
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService instance.
func NewStudentService(students studentRepo, coaches studentCoachReader, roster studentRoster, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{
		students:  students,
		coaches:   coaches,
		roster:    roster,
		validator: validate,
		logger:    logger,
	}
}

// Create enrolls a student. When an initial coach is requested the enrollment
// and the assignment are two separate writes; a failed assignment leaves a
// valid unassigned student rather than rolling the enrollment back.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create student payload")
	}

	student := &models.Student{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		ParentName:  req.ParentName,
		ParentPhone: req.ParentPhone,
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to create student")
	}

	if req.AssignedCoachID != nil && *req.AssignedCoachID != "" {
		if _, err := s.roster.Assign(ctx, student.ID, *req.AssignedCoachID); err != nil {
			return nil, err
		}
		student.AssignedCoachID = req.AssignedCoachID
	}

	s.logger.Info("student enrolled", zap.String("studentId", student.ID))
	return student, nil
}

// List returns all students with coach names resolved. The coach lookups are
// issued concurrently and the full set is joined before returning.
func (s *StudentService) List(ctx context.Context) ([]models.StudentDetail, error) {
	students, err := s.students.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list students")
	}

	details := make([]models.StudentDetail, len(students))
	var wg sync.WaitGroup
	for i := range students {
		details[i] = models.StudentDetail{Student: students[i]}
		coachID := students[i].AssignedCoachID
		if coachID == nil || *coachID == "" {
			continue
		}
		wg.Add(1)
		go func(i int, coachID string) {
			defer wg.Done()
			coach, err := s.coaches.FindByID(ctx, coachID)
			if err != nil {
				// Unresolvable coach renders as unassigned; the ledger read
				// path heals the stale cache on the next single-student
				// lookup.
				if !errors.Is(err, docstore.ErrNotFound) {
					s.logger.Warn("failed to resolve coach name",
						zap.String("coachId", coachID), zap.Error(err))
				}
				return
			}
			details[i].CoachName = &coach.Name
		}(i, *coachID)
	}
	wg.Wait()

	return details, nil
}

// Get returns a single student. The assigned coach is resolved through the
// ledger so the read verifies and heals the denormalized field.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load student")
	}

	coachID, err := s.roster.CurrentCoachOf(ctx, id)
	if err != nil {
		return nil, err
	}
	student.AssignedCoachID = coachID

	detail := &models.StudentDetail{Student: *student}
	if coachID != nil {
		if coach, cerr := s.coaches.FindByID(ctx, *coachID); cerr == nil {
			detail.CoachName = &coach.Name
		} else if !errors.Is(cerr, docstore.ErrNotFound) {
			s.logger.Warn("failed to resolve coach name", zap.String("coachId", *coachID), zap.Error(cerr))
		}
	}
	return detail, nil
}

// Update changes contact fields only. AssignedCoachID is owned by the roster
// service and cannot be patched here.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update student payload")
	}

	patch := map[string]interface{}{
		"name":        req.Name,
		"email":       req.Email,
		"phone":       req.Phone,
		"parentName":  req.ParentName,
		"parentPhone": req.ParentPhone,
	}
	if err := s.students.UpdateContact(ctx, id, patch); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to update student")
	}

	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to reload student")
	}
	return student, nil
}

// Delete removes a student and the assignment rows referencing them.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.students.FindByID(ctx, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load student")
	}
	return s.roster.DeleteStudent(ctx, id)
}
