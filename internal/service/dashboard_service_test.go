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

func newDashboardFixture(t *testing.T) *DashboardService {
	t.Helper()
	store := docstore.NewMemoryStore()
	students := repository.NewStudentRepository(store)
	users := repository.NewUserRepository(store)
	classes := repository.NewClassRepository(store)
	classSvc := NewClassService(classes, users, students, nil, validator.New(), zap.NewNop())

	ctx := context.Background()
	require.NoError(t, users.CreateProfile(ctx, &models.User{ID: "coach-1", Name: "Arif", Role: models.RoleCoach}))
	require.NoError(t, users.CreateProfile(ctx, &models.User{ID: "admin-1", Name: "Ops", Role: models.RoleAdmin}))
	for _, name := range []string{"Mina", "Rani"} {
		require.NoError(t, students.Create(ctx, &models.Student{Name: name}))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, classes.Create(ctx, &models.ClassRecord{
			CoachID:   "coach-1",
			ClassType: models.ClassGroup,
			ClassDate: time.Date(2026, 4, 1+i, 9, 0, 0, 0, time.UTC),
			Duration:  60,
			ClassFee:  100,
		}))
	}

	cache := NewCacheService(nil, nil, time.Minute, zap.NewNop(), false)
	return NewDashboardService(students, users, classSvc, cache, zap.NewNop(), DashboardServiceConfig{
		RecentClasses: 2,
	})
}

func TestDashboardStats(t *testing.T) {
	svc := newDashboardFixture(t)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CoachCount)
	assert.Equal(t, 2, stats.StudentCount)
	assert.Equal(t, 3, stats.ClassCount)
	assert.InDelta(t, 300, stats.TotalRevenue, 0.001)
}

func TestDashboardRecentClasses(t *testing.T) {
	svc := newDashboardFixture(t)

	recent, err := svc.RecentClasses(context.Background())
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].ClassDate.After(recent[1].ClassDate))
	assert.Equal(t, "Arif", recent[0].CoachName)
}
