package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-access-api/internal/models"
)

// StudentRepository provides access to student records.
type StudentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Student, error)
	GetByDocument(ctx context.Context, document string) (models.Student, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := conn(ctx, r.db).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) GetByDocument(ctx context.Context, document string) (models.Student, error) {
	var student models.Student
	err := conn(ctx, r.db).
		Where("document = ?", strings.TrimSpace(document)).
		First(&student).Error
	if err != nil {
		return models.Student{}, err
	}

	return student, nil
}
