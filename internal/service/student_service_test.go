package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/repository"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
)

type studentFixture struct {
	store    *docstore.MemoryStore
	students *repository.StudentRepository
	users    *repository.UserRepository
	roster   *RosterService
	svc      *StudentService
}

func newStudentFixture(t *testing.T) *studentFixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	students := repository.NewStudentRepository(store)
	users := repository.NewUserRepository(store)
	assignments := repository.NewAssignmentRepository(store)
	roster := NewRosterService(assignments, students, users, nil, zap.NewNop())
	return &studentFixture{
		store:    store,
		students: students,
		users:    users,
		roster:   roster,
		svc:      NewStudentService(students, users, roster, validator.New(), zap.NewNop()),
	}
}

func (f *studentFixture) seedCoach(t *testing.T, id, name string) {
	t.Helper()
	require.NoError(t, f.users.CreateProfile(context.Background(), &models.User{
		ID: id, Name: name, Role: models.RoleCoach,
	}))
}

func TestStudentCreate(t *testing.T) {
	f := newStudentFixture(t)

	student, err := f.svc.Create(context.Background(), CreateStudentRequest{
		Name:       "Mina",
		ParentName: "Sari",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.Nil(t, student.AssignedCoachID)
}

func TestStudentCreateWithInitialCoach(t *testing.T) {
	f := newStudentFixture(t)
	f.seedCoach(t, "coach-1", "Arif")
	coachID := "coach-1"

	student, err := f.svc.Create(context.Background(), CreateStudentRequest{
		Name:            "Mina",
		AssignedCoachID: &coachID,
	})
	require.NoError(t, err)

	// The assignment went through the ledger, not a direct field write.
	history, err := f.roster.HistoryOf(context.Background(), student.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "coach-1", history[0].CoachID)
}

func TestStudentCreateWithUnknownCoach(t *testing.T) {
	f := newStudentFixture(t)
	coachID := "missing"

	_, err := f.svc.Create(context.Background(), CreateStudentRequest{
		Name:            "Mina",
		AssignedCoachID: &coachID,
	})
	require.Error(t, err)
}

func TestStudentListResolvesCoachNames(t *testing.T) {
	f := newStudentFixture(t)
	f.seedCoach(t, "coach-1", "Arif")
	coachID := "coach-1"

	_, err := f.svc.Create(context.Background(), CreateStudentRequest{Name: "Mina", AssignedCoachID: &coachID})
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), CreateStudentRequest{Name: "Rani"})
	require.NoError(t, err)

	list, err := f.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	byName := make(map[string]models.StudentDetail)
	for _, detail := range list {
		byName[detail.Name] = detail
	}
	require.NotNil(t, byName["Mina"].CoachName)
	assert.Equal(t, "Arif", *byName["Mina"].CoachName)
	assert.Nil(t, byName["Rani"].CoachName)
}

func TestStudentGetHealsThroughLedger(t *testing.T) {
	f := newStudentFixture(t)
	f.seedCoach(t, "coach-1", "Arif")

	student, err := f.svc.Create(context.Background(), CreateStudentRequest{Name: "Mina"})
	require.NoError(t, err)

	// Poison the denormalized field; the single-student read must clear it.
	ghost := "coach-gone"
	require.NoError(t, f.students.SetAssignedCoach(context.Background(), student.ID, &ghost))

	detail, err := f.svc.Get(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.AssignedCoachID)
	assert.Nil(t, detail.CoachName)
}

func TestStudentUpdateContactOnly(t *testing.T) {
	f := newStudentFixture(t)
	f.seedCoach(t, "coach-1", "Arif")
	coachID := "coach-1"

	student, err := f.svc.Create(context.Background(), CreateStudentRequest{Name: "Mina", AssignedCoachID: &coachID})
	require.NoError(t, err)

	updated, err := f.svc.Update(context.Background(), student.ID, UpdateStudentRequest{
		Name:  "Mina Putri",
		Phone: "0812",
	})
	require.NoError(t, err)
	assert.Equal(t, "Mina Putri", updated.Name)
	// The assignment cache survives a contact update untouched.
	require.NotNil(t, updated.AssignedCoachID)
	assert.Equal(t, "coach-1", *updated.AssignedCoachID)
}

func TestStudentDeleteGoesThroughLedger(t *testing.T) {
	f := newStudentFixture(t)
	f.seedCoach(t, "coach-1", "Arif")
	coachID := "coach-1"

	student, err := f.svc.Create(context.Background(), CreateStudentRequest{Name: "Mina", AssignedCoachID: &coachID})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), student.ID))

	roster, err := f.roster.ActiveRosterOf(context.Background(), "coach-1")
	require.NoError(t, err)
	assert.Empty(t, roster)

	require.Error(t, f.svc.Delete(context.Background(), student.ID))
}
