package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-access-api/internal/models"
	"github.com/noah-isme/gema-access-api/internal/repository"
)

func TestMonthBounds(t *testing.T) {
	from, to := MonthBounds(time.December, 2025)
	require.Equal(t, time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), to)

	from, to = MonthBounds(time.February, 2028)
	require.Equal(t, time.Date(2028, time.February, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2028, time.March, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestQuotaCounterCountsCalendarMonth(t *testing.T) {
	db := setupServiceDB(t)
	student := seedStudent(t, db, "2001")
	plan := seedPlan(t, db, "Basic", 10)
	enrollment := seedEnrollment(t, db, models.Enrollment{
		StudentID: student.ID, PlanID: plan.ID, Active: true,
		StartDate: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC),
	})
	other := seedEnrollment(t, db, models.Enrollment{
		StudentID: student.ID, PlanID: plan.ID, Active: false,
		StartDate: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC),
	})

	times := []time.Time{
		time.Date(2026, time.February, 28, 23, 59, 59, 0, time.UTC),
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 20, 8, 30, 0, 0, time.UTC),
		time.Date(2026, time.March, 31, 23, 59, 59, 999999000, time.UTC),
		time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, at := range times {
		require.NoError(t, db.Create(&models.AccessEvent{StudentID: student.ID, EnrollmentID: enrollment.ID, AccessTime: at}).Error)
	}
	require.NoError(t, db.Create(&models.AccessEvent{
		StudentID: student.ID, EnrollmentID: other.ID, AccessTime: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
	}).Error)

	counter := NewQuotaCounter(repository.NewAccessEventRepository(db))

	march, err := counter.Count(context.Background(), enrollment.ID, time.March, 2026)
	require.NoError(t, err)
	require.Equal(t, int64(3), march)

	february, err := counter.Count(context.Background(), enrollment.ID, time.February, 2026)
	require.NoError(t, err)
	require.Equal(t, int64(1), february)

	empty, err := counter.Count(context.Background(), enrollment.ID, time.March, 2025)
	require.NoError(t, err)
	require.Zero(t, empty)
}

type brokenEventRepo struct {
	repository.AccessEventRepository
}

func (brokenEventRepo) CountForPeriod(context.Context, uint, time.Time, time.Time) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestQuotaCounterWrapsStorageErrors(t *testing.T) {
	counter := NewQuotaCounter(brokenEventRepo{})

	_, err := counter.Count(context.Background(), 1, time.March, 2026)
	require.Error(t, err)
	require.True(t, IsStorageError(err))

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	require.Equal(t, "count access events", storageErr.Op)
}
