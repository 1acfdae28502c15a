package reliability

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"reliaudit/internal/errs"
	"reliaudit/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "reliaudit/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "reliaudit/internal/infrastructure/persistence/sqlite/uow"
)

const (
	entityA = "6f1c2b9e-1a7d-4b44-8c2e-6b8f0c7d5e11"
	entityB = "7a2d3c0f-2b8e-4c55-9d3f-7c9a1d8e6f22"
	actorID = "0b7c8d9e-3f4a-4b5c-8d6e-9f0a1b2c3d4e"
)

type testClock struct {
	now time.Time
	seq int
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func (c *testClock) nextID() string {
	c.seq++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", c.seq)
}

func setupServiceWithDB(t *testing.T) (*Service, *testClock, *gorm.DB) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "reliability.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&model.ReliabilityField{}, &model.ReliabilityLog{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	clock := &testClock{now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
	svc := NewService(
		sqliterepo.NewReliabilityFieldRepository(db),
		sqliterepo.NewAuditLogRepository(db),
		sqliteuow.NewUnitOfWork(db),
		Options{},
	)
	svc.now = clock.Now
	svc.newID = clock.nextID
	return svc, clock, db
}

func setupService(t *testing.T) (*Service, *testClock) {
	t.Helper()
	svc, clock, _ := setupServiceWithDB(t)
	return svc, clock
}

func ptr[T any](v T) *T { return &v }

func expectValidation(t *testing.T, err error, field string) {
	t.Helper()

	var ve *errs.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error on %s, got %v", field, err)
	}
	if ve.Field != field {
		t.Fatalf("validation field = %q, want %q (%v)", ve.Field, field, err)
	}
}

func countLogs(t *testing.T, db *gorm.DB) int64 {
	t.Helper()

	var n int64
	if err := db.Model(&model.ReliabilityLog{}).Count(&n).Error; err != nil {
		t.Fatalf("count logs: %v", err)
	}
	return n
}
