package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-access-api/internal/models"
)

// AccessEventRepository persists the append-only access log.
type AccessEventRepository interface {
	Create(ctx context.Context, event *models.AccessEvent) error
	// CountForPeriod counts events charged to the enrollment with access time
	// in [from, to).
	CountForPeriod(ctx context.Context, enrollmentID uint, from, to time.Time) (int64, error)
	ListByStudent(ctx context.Context, studentID uint) ([]models.AccessEvent, error)
	CountByPlan(ctx context.Context, planID uint) (int64, error)
}

type accessEventRepository struct {
	db *gorm.DB
}

// NewAccessEventRepository constructs the access event repository.
func NewAccessEventRepository(db *gorm.DB) AccessEventRepository {
	return &accessEventRepository{db: db}
}

func (r *accessEventRepository) Create(ctx context.Context, event *models.AccessEvent) error {
	event.AccessTime = event.AccessTime.UTC()
	return conn(ctx, r.db).Create(event).Error
}

func (r *accessEventRepository) CountForPeriod(ctx context.Context, enrollmentID uint, from, to time.Time) (int64, error) {
	var total int64
	err := conn(ctx, r.db).
		Model(&models.AccessEvent{}).
		Where("student_plan_id = ?", enrollmentID).
		Where("access_time >= ? AND access_time < ?", from.UTC(), to.UTC()).
		Count(&total).Error
	if err != nil {
		return 0, err
	}

	return total, nil
}

func (r *accessEventRepository) ListByStudent(ctx context.Context, studentID uint) ([]models.AccessEvent, error) {
	var events []models.AccessEvent
	err := conn(ctx, r.db).
		Where("student_id = ?", studentID).
		Order("access_time DESC").
		Order("id DESC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}

	return events, nil
}

func (r *accessEventRepository) CountByPlan(ctx context.Context, planID uint) (int64, error) {
	var total int64
	err := conn(ctx, r.db).
		Model(&models.AccessEvent{}).
		Joins("JOIN student_plans ON student_plans.id = access_logs.student_plan_id").
		Where("student_plans.plan_id = ?", planID).
		Count(&total).Error
	if err != nil {
		return 0, err
	}

	return total, nil
}
