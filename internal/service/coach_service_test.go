package service

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
)

type stubCredentialRepo struct {
	byEmail   map[string]*models.Credential
	createErr error
	deleted   []string
	nextID    string
}

func (s *stubCredentialRepo) FindByEmail(ctx context.Context, email string) (*models.Credential, error) {
	if cred, ok := s.byEmail[email]; ok {
		cp := *cred
		return &cp, nil
	}
	return nil, docstore.ErrNotFound
}

func (s *stubCredentialRepo) Create(ctx context.Context, cred *models.Credential) error {
	if s.createErr != nil {
		return s.createErr
	}
	if s.byEmail == nil {
		s.byEmail = make(map[string]*models.Credential)
	}
	cred.ID = s.nextID
	if cred.ID == "" {
		cred.ID = "cred-1"
	}
	cp := *cred
	s.byEmail[cred.Email] = &cp
	return nil
}

func (s *stubCredentialRepo) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	for email, cred := range s.byEmail {
		if cred.ID == id {
			delete(s.byEmail, email)
			return nil
		}
	}
	return docstore.ErrNotFound
}

type stubProfileRepo struct {
	byID      map[string]*models.User
	createErr error
	deleted   []string
}

func (s *stubProfileRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.byID[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, docstore.ErrNotFound
}

func (s *stubProfileRepo) ListCoaches(ctx context.Context) ([]models.User, error) {
	var coaches []models.User
	for _, user := range s.byID {
		if user.Role == models.RoleCoach {
			coaches = append(coaches, *user)
		}
	}
	return coaches, nil
}

func (s *stubProfileRepo) CreateProfile(ctx context.Context, user *models.User) error {
	if s.createErr != nil {
		return s.createErr
	}
	if s.byID == nil {
		s.byID = make(map[string]*models.User)
	}
	cp := *user
	s.byID[user.ID] = &cp
	return nil
}

func (s *stubProfileRepo) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	if _, ok := s.byID[id]; !ok {
		return docstore.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

type stubAssignmentReader struct {
	active map[string][]models.Assignment
}

func (s *stubAssignmentReader) ListActiveByCoach(ctx context.Context, coachID string) ([]models.Assignment, error) {
	return s.active[coachID], nil
}

func newCoachService(creds *stubCredentialRepo, profiles *stubProfileRepo, assignments *stubAssignmentReader) *CoachService {
	if assignments == nil {
		assignments = &stubAssignmentReader{}
	}
	return NewCoachService(creds, profiles, assignments, validator.New(), zap.NewNop())
}

func TestCoachCreate(t *testing.T) {
	creds := &stubCredentialRepo{}
	profiles := &stubProfileRepo{}
	svc := newCoachService(creds, profiles, nil)

	coach, err := svc.Create(context.Background(), CreateCoachRequest{
		Name:     "Arif",
		Email:    "Arif@Example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleCoach, coach.Role)
	assert.Equal(t, "arif@example.com", coach.Email)

	cred := creds.byEmail["arif@example.com"]
	require.NotNil(t, cred)
	assert.Equal(t, cred.ID, coach.ID)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte("hunter2hunter2")))
}

func TestCoachCreateCompensatesOnProfileFailure(t *testing.T) {
	creds := &stubCredentialRepo{}
	profiles := &stubProfileRepo{createErr: errors.New("store down")}
	svc := newCoachService(creds, profiles, nil)

	_, err := svc.Create(context.Background(), CreateCoachRequest{
		Name:     "Arif",
		Email:    "arif@example.com",
		Password: "hunter2hunter2",
	})
	require.Error(t, err)

	// The credential was rolled back, leaving no half-provisioned account.
	assert.Empty(t, creds.byEmail)
	assert.Len(t, creds.deleted, 1)
}

func TestCoachCreateAdoptsOrphanedCredential(t *testing.T) {
	creds := &stubCredentialRepo{byEmail: map[string]*models.Credential{
		"arif@example.com": {ID: "cred-orphan", Email: "arif@example.com", PasswordHash: "old-hash"},
	}}
	profiles := &stubProfileRepo{}
	svc := newCoachService(creds, profiles, nil)

	coach, err := svc.Create(context.Background(), CreateCoachRequest{
		Name:     "Arif",
		Email:    "arif@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	assert.Equal(t, "cred-orphan", coach.ID)
	require.NotNil(t, profiles.byID["cred-orphan"])
}

func TestCoachCreateConflictsOnProvisionedEmail(t *testing.T) {
	creds := &stubCredentialRepo{byEmail: map[string]*models.Credential{
		"arif@example.com": {ID: "cred-1", Email: "arif@example.com"},
	}}
	profiles := &stubProfileRepo{byID: map[string]*models.User{
		"cred-1": {ID: "cred-1", Name: "Arif", Role: models.RoleCoach},
	}}
	svc := newCoachService(creds, profiles, nil)

	_, err := svc.Create(context.Background(), CreateCoachRequest{
		Name:     "Arif Again",
		Email:    "arif@example.com",
		Password: "hunter2hunter2",
	})
	require.Error(t, err)
}

func TestCoachDelete(t *testing.T) {
	creds := &stubCredentialRepo{byEmail: map[string]*models.Credential{
		"arif@example.com": {ID: "cred-1", Email: "arif@example.com"},
	}}
	profiles := &stubProfileRepo{byID: map[string]*models.User{
		"cred-1": {ID: "cred-1", Name: "Arif", Role: models.RoleCoach},
	}}
	svc := newCoachService(creds, profiles, nil)

	require.NoError(t, svc.Delete(context.Background(), "cred-1"))
	assert.Empty(t, profiles.byID)
	assert.Empty(t, creds.byEmail)
}

func TestCoachDeleteKeepsActiveAssignments(t *testing.T) {
	creds := &stubCredentialRepo{byEmail: map[string]*models.Credential{
		"arif@example.com": {ID: "cred-1", Email: "arif@example.com"},
	}}
	profiles := &stubProfileRepo{byID: map[string]*models.User{
		"cred-1": {ID: "cred-1", Name: "Arif", Role: models.RoleCoach},
	}}
	assignments := &stubAssignmentReader{active: map[string][]models.Assignment{
		"cred-1": {{ID: "a1", StudentID: "s1", CoachID: "cred-1", Status: models.AssignmentActive}},
	}}
	svc := newCoachService(creds, profiles, assignments)

	// An active roster never blocks removal; the ledger rows stay behind.
	require.NoError(t, svc.Delete(context.Background(), "cred-1"))
	assert.Empty(t, profiles.byID)
	assert.Empty(t, creds.byEmail)
	assert.Len(t, assignments.active["cred-1"], 1)
}
