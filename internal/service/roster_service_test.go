package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/repository"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
)

type rosterFixture struct {
	store       *docstore.MemoryStore
	assignments *repository.AssignmentRepository
	students    *repository.StudentRepository
	users       *repository.UserRepository
	svc         *RosterService
}

func newRosterFixture(t *testing.T) *rosterFixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	f := &rosterFixture{
		store:       store,
		assignments: repository.NewAssignmentRepository(store),
		students:    repository.NewStudentRepository(store),
		users:       repository.NewUserRepository(store),
	}
	f.svc = NewRosterService(f.assignments, f.students, f.users, nil, zap.NewNop())
	return f
}

func (f *rosterFixture) seedStudent(t *testing.T, name string) *models.Student {
	t.Helper()
	student := &models.Student{Name: name}
	require.NoError(t, f.students.Create(context.Background(), student))
	return student
}

func (f *rosterFixture) seedCoach(t *testing.T, name string) *models.User {
	t.Helper()
	coach := &models.User{ID: "coach-" + name, Name: name, Role: models.RoleCoach}
	require.NoError(t, f.users.CreateProfile(context.Background(), coach))
	return coach
}

func (f *rosterFixture) activeAssignments(t *testing.T, studentID string) []models.Assignment {
	t.Helper()
	active, err := f.assignments.ListActiveByStudent(context.Background(), studentID)
	require.NoError(t, err)
	return active
}

func TestRosterAssign(t *testing.T) {
	f := newRosterFixture(t)
	student := f.seedStudent(t, "Mina")
	coach := f.seedCoach(t, "Arif")

	assignment, err := f.svc.Assign(context.Background(), student.ID, coach.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentActive, assignment.Status)
	assert.Equal(t, coach.ID, assignment.CoachID)

	active := f.activeAssignments(t, student.ID)
	require.Len(t, active, 1)

	reloaded, err := f.students.FindByID(context.Background(), student.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.AssignedCoachID)
	assert.Equal(t, coach.ID, *reloaded.AssignedCoachID)
}

func TestRosterAssignSupersedesPrior(t *testing.T) {
	f := newRosterFixture(t)
	student := f.seedStudent(t, "Mina")
	first := f.seedCoach(t, "Arif")
	second := f.seedCoach(t, "Budi")

	_, err := f.svc.Assign(context.Background(), student.ID, first.ID)
	require.NoError(t, err)
	_, err = f.svc.Assign(context.Background(), student.ID, second.ID)
	require.NoError(t, err)

	active := f.activeAssignments(t, student.ID)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].CoachID)

	history, err := f.svc.HistoryOf(context.Background(), student.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].CoachID)
	assert.Equal(t, models.AssignmentInactive, history[1].Status)

	reloaded, err := f.students.FindByID(context.Background(), student.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.AssignedCoachID)
	assert.Equal(t, second.ID, *reloaded.AssignedCoachID)
}

func TestRosterAssignRetrySameCoach(t *testing.T) {
	f := newRosterFixture(t)
	student := f.seedStudent(t, "Mina")
	coach := f.seedCoach(t, "Arif")

	_, err := f.svc.Assign(context.Background(), student.ID, coach.ID)
	require.NoError(t, err)

	// Retrying after a presumed partial failure converges: the first row is
	// superseded and exactly one active row survives, pointing at the same
	// coach.
	_, err = f.svc.Assign(context.Background(), student.ID, coach.ID)
	require.NoError(t, err)

	active := f.activeAssignments(t, student.ID)
	require.Len(t, active, 1)
	assert.Equal(t, coach.ID, active[0].CoachID)

	reloaded, err := f.students.FindByID(context.Background(), student.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.AssignedCoachID)
	assert.Equal(t, coach.ID, *reloaded.AssignedCoachID)
}

func TestRosterAssignFailsFastOnUnknownReferences(t *testing.T) {
	f := newRosterFixture(t)
	student := f.seedStudent(t, "Mina")
	coach := f.seedCoach(t, "Arif")

	_, err := f.svc.Assign(context.Background(), "missing", coach.ID)
	require.Error(t, err)
	_, err = f.svc.Assign(context.Background(), student.ID, "missing")
	require.Error(t, err)

	// Nothing was written.
	assert.Empty(t, f.activeAssignments(t, student.ID))
	reloaded, err := f.students.FindByID(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.AssignedCoachID)
}

func TestRosterAssignRejectsNonCoach(t *testing.T) {
	f := newRosterFixture(t)
	student := f.seedStudent(t, "Mina")
	admin := &models.User{ID: "admin-1", Name: "Ops", Role: models.RoleAdmin}
	require.NoError(t, f.users.CreateProfile(context.Background(), admin))

	_, err := f.svc.Assign(context.Background(), student.ID, admin.ID)
	require.Error(t, err)
	assert.Empty(t, f.activeAssignments(t, student.ID))
}

func TestRosterUnassign(t *testing.T) {
	f := newRosterFixture(t)
	student := f.seedStudent(t, "Mina")
	coach := f.seedCoach(t, "Arif")

	_, err := f.svc.Assign(context.Background(), student.ID, coach.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Unassign(context.Background(), student.ID))

	assert.Empty(t, f.activeAssignments(t, student.ID))
	reloaded, err := f.students.FindByID(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.AssignedCoachID)

	// Unassigning again is a no-op, not an error.
	require.NoError(t, f.svc.Unassign(context.Background(), student.ID))
}

func TestRosterCurrentCoachOf(t *testing.T) {
	f := newRosterFixture(t)
	student := f.seedStudent(t, "Mina")
	coach := f.seedCoach(t, "Arif")

	coachID, err := f.svc.CurrentCoachOf(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Nil(t, coachID)

	_, err = f.svc.Assign(context.Background(), student.ID, coach.ID)
	require.NoError(t, err)

	coachID, err = f.svc.CurrentCoachOf(context.Background(), student.ID)
	require.NoError(t, err)
	require.NotNil(t, coachID)
	assert.Equal(t, coach.ID, *coachID)
}

func TestRosterReadHealsDuplicateActives(t *testing.T) {
	f := newRosterFixture(t)
	student := f.seedStudent(t, "Mina")
	older := f.seedCoach(t, "Arif")
	newer := f.seedCoach(t, "Budi")

	// Two active rows, as left behind by an interrupted superseding write.
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, f.assignments.Create(context.Background(), &models.Assignment{
		StudentID: student.ID, CoachID: older.ID, AssignedDate: base,
	}))
	require.NoError(t, f.assignments.Create(context.Background(), &models.Assignment{
		StudentID: student.ID, CoachID: newer.ID, AssignedDate: base.Add(time.Hour),
	}))

	coachID, err := f.svc.CurrentCoachOf(context.Background(), student.ID)
	require.NoError(t, err)
	require.NotNil(t, coachID)
	assert.Equal(t, newer.ID, *coachID)

	// The stray row was deactivated and the cache resynced.
	active := f.activeAssignments(t, student.ID)
	require.Len(t, active, 1)
	assert.Equal(t, newer.ID, active[0].CoachID)

	reloaded, err := f.students.FindByID(context.Background(), student.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.AssignedCoachID)
	assert.Equal(t, newer.ID, *reloaded.AssignedCoachID)
}

func TestRosterReadHealsDateTieByLaterRow(t *testing.T) {
	f := newRosterFixture(t)
	student := f.seedStudent(t, "Mina")
	first := f.seedCoach(t, "Arif")
	second := f.seedCoach(t, "Budi")

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, f.assignments.Create(context.Background(), &models.Assignment{
		StudentID: student.ID, CoachID: first.ID, AssignedDate: ts,
	}))
	require.NoError(t, f.assignments.Create(context.Background(), &models.Assignment{
		StudentID: student.ID, CoachID: second.ID, AssignedDate: ts,
	}))

	coachID, err := f.svc.CurrentCoachOf(context.Background(), student.ID)
	require.NoError(t, err)
	require.NotNil(t, coachID)
	assert.Equal(t, second.ID, *coachID)
}

func TestRosterReadClearsStaleCache(t *testing.T) {
	f := newRosterFixture(t)
	student := f.seedStudent(t, "Mina")
	ghost := "coach-gone"
	require.NoError(t, f.students.SetAssignedCoach(context.Background(), student.ID, &ghost))

	coachID, err := f.svc.CurrentCoachOf(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Nil(t, coachID)

	reloaded, err := f.students.FindByID(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.AssignedCoachID)
}

func TestRosterReadCleansUpAfterDeletedStudent(t *testing.T) {
	f := newRosterFixture(t)
	coach := f.seedCoach(t, "Arif")
	require.NoError(t, f.assignments.Create(context.Background(), &models.Assignment{
		StudentID: "deleted-student", CoachID: coach.ID,
	}))

	coachID, err := f.svc.CurrentCoachOf(context.Background(), "deleted-student")
	require.NoError(t, err)
	assert.Nil(t, coachID)

	assert.Empty(t, f.activeAssignments(t, "deleted-student"))
}

func TestRosterDeleteStudent(t *testing.T) {
	f := newRosterFixture(t)
	student := f.seedStudent(t, "Mina")
	coach := f.seedCoach(t, "Arif")

	_, err := f.svc.Assign(context.Background(), student.ID, coach.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteStudent(context.Background(), student.ID))

	_, err = f.students.FindByID(context.Background(), student.ID)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Empty(t, f.activeAssignments(t, student.ID))

	// Retrying after a partial failure must converge, not error.
	require.NoError(t, f.svc.DeleteStudent(context.Background(), student.ID))
}

func TestRosterHistoryNewestFirst(t *testing.T) {
	f := newRosterFixture(t)
	student := f.seedStudent(t, "Mina")
	first := f.seedCoach(t, "Arif")
	second := f.seedCoach(t, "Budi")
	third := f.seedCoach(t, "Citra")

	for _, coach := range []*models.User{first, second, third} {
		_, err := f.svc.Assign(context.Background(), student.ID, coach.ID)
		require.NoError(t, err)
	}

	history, err := f.svc.HistoryOf(context.Background(), student.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, third.ID, history[0].CoachID)
	assert.Equal(t, first.ID, history[2].CoachID)
	assert.Equal(t, models.AssignmentActive, history[0].Status)
	assert.Equal(t, models.AssignmentInactive, history[1].Status)
}

func TestRosterActiveRosterOf(t *testing.T) {
	f := newRosterFixture(t)
	coach := f.seedCoach(t, "Arif")
	a := f.seedStudent(t, "Mina")
	b := f.seedStudent(t, "Rani")

	for _, student := range []*models.Student{a, b} {
		_, err := f.svc.Assign(context.Background(), student.ID, coach.ID)
		require.NoError(t, err)
	}

	roster, err := f.svc.ActiveRosterOf(context.Background(), coach.ID)
	require.NoError(t, err)
	assert.Len(t, roster, 2)
}
