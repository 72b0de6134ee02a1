package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
	appErrors "github.com/coachdesk/coachdesk-api/pkg/errors"
)

type coachCredentialRepo interface {
	FindByEmail(ctx context.Context, email string) (*models.Credential, error)
	Create(ctx context.Context, cred *models.Credential) error
	Delete(ctx context.Context, id string) error
}

type coachProfileRepo interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListCoaches(ctx context.Context) ([]models.User, error)
	CreateProfile(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

type coachAssignmentReader interface {
	ListActiveByCoach(ctx context.Context, coachID string) ([]models.Assignment, error)
}

// CreateCoachRequest represents payload for provisioning a coach.
type CreateCoachRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" validate:"required,min=8"`
}

// CoachService provisions and manages coach accounts. A coach is two
// documents written in sequence: a credential, then a profile sharing the
// credential's id. The store offers no transaction across the pair, so the
// second write is guarded by a compensating delete of the first.
type CoachService struct {
	credentials coachCredentialRepo
	profiles    coachProfileRepo
	assignments coachAssignmentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCoachService constructs a CoachService instance.
func NewCoachService(credentials coachCredentialRepo, profiles coachProfileRepo, assignments coachAssignmentReader, validate *validator.Validate, logger *zap.Logger) *CoachService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CoachService{
		credentials: credentials,
		profiles:    profiles,
		assignments: assignments,
		validator:   validate,
		logger:      logger,
	}
}

// Create provisions a coach account. Provisioning is idempotent keyed by
// email: a credential left behind by an interrupted earlier attempt (one with
// no profile document) is adopted and completed rather than rejected.
func (s *CoachService) Create(ctx context.Context, req CreateCoachRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create coach payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	cred, err := s.credentials.FindByEmail(ctx, email)
	switch {
	case err == nil:
		// Email already registered. Only an orphaned credential may be
		// adopted; a credential with a live profile is a genuine conflict.
		if _, perr := s.profiles.FindByID(ctx, cred.ID); perr == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		} else if !errors.Is(perr, docstore.ErrNotFound) {
			return nil, appErrors.Wrap(perr, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to check existing profile")
		}
		s.logger.Warn("adopting orphaned credential from interrupted provisioning",
			zap.String("credentialId", cred.ID), zap.String("email", email))
	case errors.Is(err, docstore.ErrNotFound):
		passwordHash, herr := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if herr != nil {
			return nil, appErrors.Wrap(herr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		cred = &models.Credential{Email: email, PasswordHash: string(passwordHash)}
		if cerr := s.credentials.Create(ctx, cred); cerr != nil {
			return nil, appErrors.Wrap(cerr, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to create credential")
		}
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to check email uniqueness")
	}

	coach := &models.User{
		ID:    cred.ID,
		Name:  req.Name,
		Email: email,
		Phone: req.Phone,
		Role:  models.RoleCoach,
	}

	if err := s.profiles.CreateProfile(ctx, coach); err != nil {
		// Compensate: remove the credential so the pair never ends up half
		// provisioned. If the compensation itself fails the credential stays
		// orphaned and the next attempt for this email adopts it.
		if derr := s.credentials.Delete(ctx, cred.ID); derr != nil && !errors.Is(derr, docstore.ErrNotFound) {
			s.logger.Error("failed to compensate credential after profile write failure",
				zap.String("credentialId", cred.ID), zap.Error(derr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to create coach profile")
	}

	s.logger.Info("coach provisioned", zap.String("coachId", coach.ID), zap.String("email", email))
	return coach, nil
}

// List returns every coach profile.
func (s *CoachService) List(ctx context.Context) ([]models.User, error) {
	coaches, err := s.profiles.ListCoaches(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list coaches")
	}
	return coaches, nil
}

// Get returns a coach by ID.
func (s *CoachService) Get(ctx context.Context, id string) (*models.User, error) {
	coach, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "coach not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load coach")
	}
	if coach.Role != models.RoleCoach {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "coach not found")
	}
	return coach, nil
}

// Delete removes a coach's profile and credential. The assignment ledger is
// left untouched; reassigning or unassigning an affected student supersedes
// the dangling active rows through the usual write protocol.
func (s *CoachService) Delete(ctx context.Context, id string) error {
	coach, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	// Removal is unconditional: active assignments keep their history and
	// the students keep pointing at the removed coach until reassigned or
	// unassigned. The roster size is only logged.
	if active, err := s.assignments.ListActiveByCoach(ctx, coach.ID); err == nil && len(active) > 0 {
		s.logger.Warn("removing coach with active roster",
			zap.String("coachId", coach.ID), zap.Int("students", len(active)))
	}

	if err := s.profiles.Delete(ctx, coach.ID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to delete coach profile")
	}
	if err := s.credentials.Delete(ctx, coach.ID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		// Profile is already gone; the stray credential is orphaned and will
		// be adopted if the email is provisioned again.
		s.logger.Error("failed to delete credential for removed coach",
			zap.String("coachId", coach.ID), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to delete coach credential")
	}

	s.logger.Info("coach removed", zap.String("coachId", coach.ID))
	return nil
}
