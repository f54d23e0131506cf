package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/unicore-dev/unicore-api/internal/models"
)

// UserRepository is the identity store consumed by the review services.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (models.User, error)
	ListByRoleAndDepartment(ctx context.Context, role, department string) ([]models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a repository backed by GORM.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *userRepository) ListByRoleAndDepartment(ctx context.Context, role, department string) ([]models.User, error) {
	var users []models.User
	query := r.db.WithContext(ctx).Where("role = ?", role)
	if department != "" {
		query = query.Where("department = ?", department)
	}
	if err := query.Order("name ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
