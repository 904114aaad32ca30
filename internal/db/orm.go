package db

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var ORM *gorm.DB

// InitORM opens the cycle history store via GORM. A "sqlite:<path>" DSN
// selects the embedded driver for local runs; anything else is Postgres.
func InitORM(dsn string) (*gorm.DB, error) {
	var (
		database *gorm.DB
		err      error
	)

	if path, ok := strings.CutPrefix(dsn, "sqlite:"); ok {
		database, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	} else {
		database, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to cycle store: %w", err)
	}

	ORM = database
	log.Println("Connected to cycle store via GORM")
	return database, nil
}
