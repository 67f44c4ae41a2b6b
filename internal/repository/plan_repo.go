package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-access-api/internal/models"
)

// PlanRepository provides read access to quota plans.
type PlanRepository interface {
	GetByID(ctx context.Context, id uint) (models.Plan, error)
}

type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository constructs a plan repository.
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) GetByID(ctx context.Context, id uint) (models.Plan, error) {
	var plan models.Plan
	if err := conn(ctx, r.db).First(&plan, id).Error; err != nil {
		return models.Plan{}, err
	}

	return plan, nil
}
