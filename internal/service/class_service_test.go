package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/repository"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
)

type classFixture struct {
	classes  *repository.ClassRepository
	students *repository.StudentRepository
	users    *repository.UserRepository
	svc      *ClassService
}

func newClassFixture(t *testing.T) *classFixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	f := &classFixture{
		classes:  repository.NewClassRepository(store),
		students: repository.NewStudentRepository(store),
		users:    repository.NewUserRepository(store),
	}
	require.NoError(t, f.users.CreateProfile(context.Background(), &models.User{
		ID: "coach-1", Name: "Arif", Role: models.RoleCoach,
	}))
	f.svc = NewClassService(f.classes, f.users, f.students, nil, validator.New(), zap.NewNop())
	return f
}

func (f *classFixture) seedStudent(t *testing.T, name string) *models.Student {
	t.Helper()
	student := &models.Student{Name: name}
	require.NoError(t, f.students.Create(context.Background(), student))
	return student
}

func TestClassCreateIndividual(t *testing.T) {
	f := newClassFixture(t)
	student := f.seedStudent(t, "Mina")

	record, err := f.svc.Create(context.Background(), "coach-1", CreateClassRequest{
		StudentID: &student.ID,
		ClassType: models.ClassIndividual,
		ClassDate: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
		Duration:  60,
		ClassFee:  150,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, record.PaymentStatus)
	require.NotNil(t, record.StudentID)
}

func TestClassCreateIndividualRequiresStudent(t *testing.T) {
	f := newClassFixture(t)

	_, err := f.svc.Create(context.Background(), "coach-1", CreateClassRequest{
		ClassType: models.ClassIndividual,
		ClassDate: time.Now().UTC(),
		Duration:  60,
	})
	require.Error(t, err)
}

func TestClassCreateGroupDropsStudentReference(t *testing.T) {
	f := newClassFixture(t)
	student := f.seedStudent(t, "Mina")

	record, err := f.svc.Create(context.Background(), "coach-1", CreateClassRequest{
		StudentID: &student.ID,
		ClassType: models.ClassGroup,
		ClassDate: time.Now().UTC(),
		Duration:  90,
		ClassFee:  300,
	})
	require.NoError(t, err)
	assert.Nil(t, record.StudentID)
}

func TestClassListByCoachMonthFilter(t *testing.T) {
	f := newClassFixture(t)
	student := f.seedStudent(t, "Mina")

	for _, date := range []time.Time{
		time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 24, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	} {
		_, err := f.svc.Create(context.Background(), "coach-1", CreateClassRequest{
			StudentID: &student.ID,
			ClassType: models.ClassIndividual,
			ClassDate: date,
			Duration:  60,
			ClassFee:  100,
		})
		require.NoError(t, err)
	}

	details, stats, err := f.svc.ListByCoach(context.Background(), "coach-1", "", "2026-03")
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, 2, stats.TotalClasses)
	assert.InDelta(t, 200, stats.TotalAmount, 0.001)
	// Newest first.
	assert.True(t, details[0].ClassDate.After(details[1].ClassDate))
	assert.Equal(t, "Arif", details[0].CoachName)
	assert.Equal(t, "Mina", details[0].StudentName)
}

func TestClassPaymentsSummary(t *testing.T) {
	f := newClassFixture(t)
	student := f.seedStudent(t, "Mina")

	var ids []string
	for i := 0; i < 3; i++ {
		record, err := f.svc.Create(context.Background(), "coach-1", CreateClassRequest{
			StudentID: &student.ID,
			ClassType: models.ClassIndividual,
			ClassDate: time.Date(2026, 3, 10+i, 9, 0, 0, 0, time.UTC),
			Duration:  60,
			ClassFee:  100,
		})
		require.NoError(t, err)
		ids = append(ids, record.ID)
	}
	require.NoError(t, f.svc.SetPaymentStatus(context.Background(), ids[0], models.PaymentCompleted))

	_, summary, err := f.svc.ListPayments(context.Background(), models.ClassFilter{CoachID: "coach-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ClassCount)
	assert.InDelta(t, 100, summary.CompletedAmount, 0.001)
	assert.InDelta(t, 200, summary.PendingAmount, 0.001)
	assert.InDelta(t, 300, summary.TotalAmount, 0.001)
}

func TestClassPaymentDateTracksStatus(t *testing.T) {
	f := newClassFixture(t)
	student := f.seedStudent(t, "Mina")

	record, err := f.svc.Create(context.Background(), "coach-1", CreateClassRequest{
		StudentID: &student.ID,
		ClassType: models.ClassIndividual,
		ClassDate: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Duration:  60,
		ClassFee:  100,
	})
	require.NoError(t, err)
	assert.Nil(t, record.PaymentDate)

	require.NoError(t, f.svc.SetPaymentStatus(context.Background(), record.ID, models.PaymentCompleted))
	paid, err := f.classes.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	require.NotNil(t, paid.PaymentDate)
	assert.WithinDuration(t, time.Now().UTC(), *paid.PaymentDate, time.Minute)

	// Reverting to pending clears the stamp again.
	require.NoError(t, f.svc.SetPaymentStatus(context.Background(), record.ID, models.PaymentPending))
	reverted, err := f.classes.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Nil(t, reverted.PaymentDate)
}

func TestClassBulkCompletePayments(t *testing.T) {
	f := newClassFixture(t)
	student := f.seedStudent(t, "Mina")
	require.NoError(t, f.users.CreateProfile(context.Background(), &models.User{
		ID: "coach-2", Name: "Dewi", Role: models.RoleCoach,
	}))

	var inRange []string
	for i := 0; i < 2; i++ {
		record, err := f.svc.Create(context.Background(), "coach-1", CreateClassRequest{
			StudentID: &student.ID,
			ClassType: models.ClassIndividual,
			ClassDate: time.Date(2026, 3, 10+i, 9, 0, 0, 0, time.UTC),
			Duration:  60,
			ClassFee:  100,
		})
		require.NoError(t, err)
		inRange = append(inRange, record.ID)
	}
	outOfRange, err := f.svc.Create(context.Background(), "coach-1", CreateClassRequest{
		StudentID: &student.ID,
		ClassType: models.ClassIndividual,
		ClassDate: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		Duration:  60,
		ClassFee:  100,
	})
	require.NoError(t, err)
	otherCoach, err := f.svc.Create(context.Background(), "coach-2", CreateClassRequest{
		StudentID: &student.ID,
		ClassType: models.ClassIndividual,
		ClassDate: time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC),
		Duration:  60,
		ClassFee:  100,
	})
	require.NoError(t, err)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)
	updated, err := f.svc.BulkCompletePayments(context.Background(), BulkPaymentRequest{
		CoachID: "coach-1",
		From:    &from,
		To:      &to,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	for _, id := range inRange {
		paid, err := f.classes.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentCompleted, paid.PaymentStatus)
		assert.NotNil(t, paid.PaymentDate)
	}
	for _, id := range []string{outOfRange.ID, otherCoach.ID} {
		untouched, err := f.classes.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, untouched.PaymentStatus)
		assert.Nil(t, untouched.PaymentDate)
	}

	// Retrying the same window finds nothing pending.
	updated, err = f.svc.BulkCompletePayments(context.Background(), BulkPaymentRequest{
		CoachID: "coach-1",
		From:    &from,
		To:      &to,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestClassMissingPaymentStatusCountsAsPending(t *testing.T) {
	f := newClassFixture(t)

	// Old documents were written before payment tracking existed.
	require.NoError(t, f.classes.Create(context.Background(), &models.ClassRecord{
		CoachID:       "coach-1",
		ClassType:     models.ClassGroup,
		ClassDate:     time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		Duration:      60,
		ClassFee:      100,
		PaymentStatus: "",
	}))

	_, summary, err := f.svc.ListPayments(context.Background(), models.ClassFilter{})
	require.NoError(t, err)
	assert.InDelta(t, 100, summary.PendingAmount, 0.001)
}

func TestClassDeleteOwnership(t *testing.T) {
	f := newClassFixture(t)
	student := f.seedStudent(t, "Mina")

	record, err := f.svc.Create(context.Background(), "coach-1", CreateClassRequest{
		StudentID: &student.ID,
		ClassType: models.ClassIndividual,
		ClassDate: time.Now().UTC(),
		Duration:  60,
	})
	require.NoError(t, err)

	require.Error(t, f.svc.Delete(context.Background(), record.ID, "coach-2"))
	require.NoError(t, f.svc.Delete(context.Background(), record.ID, "coach-1"))
	require.Error(t, f.svc.Delete(context.Background(), record.ID, "coach-1"))
}
