// Package testutil provides an in-memory database for package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lawfirm-server/internal/models"
)

// NewDB opens a private in-memory sqlite database with every table migrated.
// The pool holds a single connection so concurrent transactions serialize.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
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

	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a user with the given role.
func CreateUser(t testing.TB, db *gorm.DB, email string, role models.Role) models.User {
	t.Helper()
	u := models.User{Email: email, FirstName: "Test", LastName: string(role), Role: role, PhoneNumber: "+911234567890"}
	if err := u.SetPassword("password123"); err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// CreateSlot inserts one free slot.
func CreateSlot(t testing.TB, db *gorm.DB, date, label string) models.Slot {
	t.Helper()
	day, err := models.ParseDate(date)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	s := models.Slot{Date: day, TimeLabel: label}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("create slot: %v", err)
	}
	return s
}

func CreateAppointmentType(t testing.TB, db *gorm.DB, title string, price int64) models.AppointmentType {
	t.Helper()
	at := models.AppointmentType{Title: title, Price: price}
	if err := db.Create(&at).Error; err != nil {
		t.Fatalf("create appointment type: %v", err)
	}
	return at
}

func CreateService(t testing.TB, db *gorm.DB, title string, price int64) models.Service {
	t.Helper()
	svc := models.Service{Title: title, Price: price}
	if err := db.Create(&svc).Error; err != nil {
		t.Fatalf("create service: %v", err)
	}
	return svc
}
