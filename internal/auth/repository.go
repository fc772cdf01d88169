// internal/auth/repository.go
package auth

import (
	"context"
	"errors"
	"log"

	"gorm.io/gorm"

	"quizz/internal/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	result := r.db.WithContext(ctx).Where("username = ?", username).First(&user)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			log.Printf("Error finding user %s: %v", username, result.Error)
		}
		return nil, result.Error
	}
	return &user, nil
}

func (r *Repository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", username).
		Count(&count).Error
	return count > 0, err
}

// CreateUser inserts user. Losing a race with another registration for the
// same name returns ErrUserExists.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrUserExists
	}
	if taken, terr := r.UsernameTaken(ctx, user.Username); terr == nil && taken {
		return ErrUserExists
	}
	log.Printf("Error creating user %s: %v", user.Username, err)
	return err
}
