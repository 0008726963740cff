package devserver

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the devserver SQLite database via gorm and migrates the
// schema.
func InitDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open devserver db: %w", err)
	}
	if err := db.AutoMigrate(
		&User{}, &StairReport{}, &EvidenceImage{},
		&Route{}, &Station{}, &Stop{}, &Stair{},
	); err != nil {
		return nil, fmt.Errorf("migrate devserver db: %w", err)
	}
	return db, nil
}

// Seed fills an empty database with a demo surveyor account and a small
// catalog, so a fresh checkout is immediately usable end to end.
func Seed(db *gorm.DB) error {
	var users int64
	if err := db.Model(&User{}).Count(&users).Error; err != nil {
		return err
	}
	if users == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte("stairs123"), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if err := db.Create(&User{Login: "surveyor", PasswordHash: string(hash)}).Error; err != nil {
			return err
		}
	}

	var routes int64
	if err := db.Model(&Route{}).Count(&routes).Error; err != nil {
		return err
	}
	if routes > 0 {
		return nil
	}

	seed := []any{
		&Route{ID: 1, ShortName: "1", RouteColor: "EE352E"},
		&Route{ID: 2, ShortName: "4", RouteColor: "00933C"},
		&Station{ID: 101, Name: "Union Square", Routes: "[1,2]"},
		&Station{ID: 102, Name: "Grand Central", Routes: "[2]"},
		&Stop{ID: 1001, StationID: 101},
		&Stop{ID: 1002, StationID: 102},
		&Stair{ID: 5001, StationID: 101, Number: 1},
		&Stair{ID: 5002, StationID: 101, Number: 2},
		&Stair{ID: 5003, StationID: 101, Number: 3},
		&Stair{ID: 5004, StationID: 102, Number: 1},
		&Stair{ID: 5005, StationID: 102, Number: 2},
	}
	for _, row := range seed {
		if err := db.Create(row).Error; err != nil {
			return err
		}
	}
	return nil
}
