// Package storetest opens throwaway gorm databases for package tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-chat-service/internal/model"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open returns a migrated sqlite database in t.TempDir. A single connection
// keeps sqlite from reporting SQLITE_BUSY under concurrent tests.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickets.db")
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&model.User{}, &model.Ticket{}, &model.Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// SeedUser inserts a user with the given role and returns it.
func SeedUser(t testing.TB, db *gorm.DB, role model.UserRole, first string) *model.User {
	t.Helper()
	u := &model.User{
		ID:        uuid.New(),
		FirstName: first,
		LastName:  "Test",
		Email:     first + "-" + uuid.NewString()[:8] + "@example.com",
		Role:      role,
	}
	if err := db.WithContext(context.Background()).Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}
