package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-access-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func seedStudentAndPlan(t *testing.T, db *gorm.DB, document string, monthlyEntries int) (models.Student, models.Plan) {
	t.Helper()
	student := models.Student{Name: "Student " + document, Document: document}
	require.NoError(t, db.Create(&student).Error)

	plan := models.Plan{Name: "Basic", MonthlyEntries: monthlyEntries}
	require.NoError(t, db.Create(&plan).Error)

	return student, plan
}

func seedEnrollment(t *testing.T, db *gorm.DB, enrollment models.Enrollment) models.Enrollment {
	t.Helper()
	active := enrollment.Active
	require.NoError(t, db.Create(&enrollment).Error)
	if !active {
		// gorm skips zero values when a column has a default.
		require.NoError(t, db.Model(&enrollment).Update("active", false).Error)
		enrollment.Active = false
	}
	return enrollment
}
