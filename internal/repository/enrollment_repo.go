package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-access-api/internal/models"
)

// EnrollmentRepository reads enrollments and applies the narrow set of writes
// the entitlement engine is allowed to perform.
type EnrollmentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Enrollment, error)
	// ListEffectivelyActive returns enrollments flagged active whose range
	// contains now, most recently created first.
	ListEffectivelyActive(ctx context.Context, studentID uint, now time.Time) ([]models.Enrollment, error)
	// ListFlaggedActive returns every enrollment flagged active regardless of dates.
	ListFlaggedActive(ctx context.Context, studentID uint) ([]models.Enrollment, error)
	// SetActive updates only the active flag and modification time and
	// returns the stored record.
	SetActive(ctx context.Context, id uint, active bool, now time.Time) (models.Enrollment, error)
	// LockForUpdate re-reads the enrollment holding a row lock for the
	// lifetime of the surrounding transaction.
	LockForUpdate(ctx context.Context, id uint) (models.Enrollment, error)
	ListByPlan(ctx context.Context, planID uint) ([]models.Enrollment, error)
	CountEffectivelyActiveByPlan(ctx context.Context, planID uint, now time.Time) (int64, error)
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository constructs an enrollment repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) GetByID(ctx context.Context, id uint) (models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := conn(ctx, r.db).Preload("Plan").First(&enrollment, id).Error; err != nil {
		return models.Enrollment{}, err
	}

	return enrollment, nil
}

func (r *enrollmentRepository) ListEffectivelyActive(ctx context.Context, studentID uint, now time.Time) ([]models.Enrollment, error) {
	now = now.UTC()

	var enrollments []models.Enrollment
	err := conn(ctx, r.db).
		Preload("Plan").
		Where("student_id = ?", studentID).
		Where("active = ?", true).
		Where("start_date <= ? AND end_date >= ?", now, now).
		Order("created_at DESC").
		Order("id DESC").
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}

	return enrollments, nil
}

func (r *enrollmentRepository) ListFlaggedActive(ctx context.Context, studentID uint) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := conn(ctx, r.db).
		Preload("Plan").
		Where("student_id = ?", studentID).
		Where("active = ?", true).
		Order("id ASC").
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}

	return enrollments, nil
}

func (r *enrollmentRepository) SetActive(ctx context.Context, id uint, active bool, now time.Time) (models.Enrollment, error) {
	update := conn(ctx, r.db).
		Model(&models.Enrollment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"active":     active,
			"updated_at": now.UTC(),
		})
	if update.Error != nil {
		return models.Enrollment{}, update.Error
	}
	if update.RowsAffected == 0 {
		return models.Enrollment{}, gorm.ErrRecordNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *enrollmentRepository) LockForUpdate(ctx context.Context, id uint) (models.Enrollment, error) {
	var enrollment models.Enrollment
	err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Plan").
		First(&enrollment, id).Error
	if err != nil {
		return models.Enrollment{}, err
	}

	return enrollment, nil
}

func (r *enrollmentRepository) ListByPlan(ctx context.Context, planID uint) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := conn(ctx, r.db).
		Preload("Plan").
		Preload("Student").
		Where("plan_id = ?", planID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}

	return enrollments, nil
}

func (r *enrollmentRepository) CountEffectivelyActiveByPlan(ctx context.Context, planID uint, now time.Time) (int64, error) {
	now = now.UTC()

	var total int64
	err := conn(ctx, r.db).
		Model(&models.Enrollment{}).
		Where("plan_id = ?", planID).
		Where("active = ?", true).
		Where("start_date <= ? AND end_date >= ?", now, now).
		Count(&total).Error
	if err != nil {
		return 0, err
	}

	return total, nil
}
