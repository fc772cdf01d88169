// internal/models/quiz.go
package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
	Username  string         `json:"username" gorm:"uniqueIndex;not null"`
	Email     string         `json:"email"`
	Password  string         `json:"-" gorm:"not null"`
}

// QuizRecord is a hosted quiz. State holds the engine snapshot as JSON and is
// the only place questions, cursor and scores are persisted.
type QuizRecord struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
	Title       string         `json:"title" gorm:"not null"`
	Description string         `json:"description"`
	CreatorID   uint           `json:"creator_id" gorm:"index"`
	QuizCode    string         `json:"quiz_code" gorm:"uniqueIndex;size:16"`
	State       string         `json:"state" gorm:"type:text"`
}

func (QuizRecord) TableName() string {
	return "quizzes"
}
