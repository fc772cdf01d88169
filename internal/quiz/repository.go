// internal/quiz/repository.go
package quiz

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

func (r *Repository) CreateQuiz(ctx context.Context, quiz *models.QuizRecord) error {
	err := r.db.WithContext(ctx).Create(quiz).Error
	if err != nil {
		log.Printf("Error creating quiz: %v", err)
		return err
	}
	log.Printf("Created quiz with ID: %d", quiz.ID)
	return nil
}

// CodeExists also sees deleted quizzes, whose codes stay reserved.
func (r *Repository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Unscoped().Model(&models.QuizRecord{}).
		Where("quiz_code = ?", code).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) GetQuizByCode(ctx context.Context, code string) (*models.QuizRecord, error) {
	var quiz models.QuizRecord
	err := r.db.WithContext(ctx).Where("quiz_code = ?", code).First(&quiz).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Error getting quiz by code %s: %v", code, err)
		}
		return nil, err
	}
	return &quiz, nil
}

func (r *Repository) GetQuizzesByCreator(ctx context.Context, userID uint) ([]models.QuizRecord, error) {
	var quizzes []models.QuizRecord
	err := r.db.WithContext(ctx).
		Where("creator_id = ?", userID).
		Order("created_at asc, id asc").
		Find(&quizzes).Error
	if err != nil {
		log.Printf("Error getting quizzes for creator %d: %v", userID, err)
		return nil, err
	}
	return quizzes, nil
}

// SaveState overwrites the stored snapshot of a quiz.
func (r *Repository) SaveState(ctx context.Context, code string, state string) error {
	result := r.db.WithContext(ctx).Model(&models.QuizRecord{}).
		Where("quiz_code = ?", code).
		Update("state", state)
	if result.Error != nil {
		log.Printf("Error saving state of quiz %s: %v", code, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) DeleteQuiz(ctx context.Context, code string) error {
	result := r.db.WithContext(ctx).
		Where("quiz_code = ?", code).
		Delete(&models.QuizRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	log.Printf("Deleted quiz %s", code)
	return nil
}
