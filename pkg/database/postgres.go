// pkg/database/postgres.go
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"quizz/internal/models"
)

type Config struct {
	// Driver is "postgres" or "sqlite". Path is only read by sqlite.
	Driver   string
	Path     string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.Host,
		c.User,
		c.Password,
		c.DBName,
		c.Port,
	)
}

func NewPostgresDB(config *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(config.DSN()), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Open connects to the database selected by config.Driver.
func Open(config *Config) (*gorm.DB, error) {
	switch config.Driver {
	case "", "postgres":
		return NewPostgresDB(config)
	case "sqlite":
		return NewSQLiteDB(config.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", config.Driver)
	}
}

// Migrate creates or updates the tables the server needs.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.QuizRecord{},
	)
}
