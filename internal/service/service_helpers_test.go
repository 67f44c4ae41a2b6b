package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-access-api/internal/dto"
	"github.com/noah-isme/gema-access-api/internal/models"
	"github.com/noah-isme/gema-access-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:service_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// fixedClock is a mutable clock shared between a test and the services under test.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(now time.Time) *fixedClock {
	return &fixedClock{now: now}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type stubActivityRecorder struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (s *stubActivityRecorder) Record(_ context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return dto.ActivityResponse{Action: entry.Action, EntityType: entry.EntityType, EntityID: entry.EntityID}, nil
}

func (s *stubActivityRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type stubAccessPublisher struct {
	mu     sync.Mutex
	events []AccessGrantedEvent
	err    error
}

func (s *stubAccessPublisher) PublishGranted(_ context.Context, event AccessGrantedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

// failingEventRepo inserts through the real repository and then reports a
// failure so the surrounding transaction must roll the insert back.
type failingEventRepo struct {
	repository.AccessEventRepository
}

func (f failingEventRepo) Create(ctx context.Context, event *models.AccessEvent) error {
	if err := f.AccessEventRepository.Create(ctx, event); err != nil {
		return err
	}
	return fmt.Errorf("disk full")
}

type failingSetActiveRepo struct {
	repository.EnrollmentRepository
	calls int
}

func (f *failingSetActiveRepo) SetActive(context.Context, uint, bool, time.Time) (models.Enrollment, error) {
	f.calls++
	return models.Enrollment{}, fmt.Errorf("connection reset")
}

type engineFixture struct {
	db        *gorm.DB
	clock     *fixedClock
	engine    EntitlementService
	activity  *stubActivityRecorder
	publisher *stubAccessPublisher
}

type engineOption func(*EntitlementDependencies)

func withCache(client *redis.Client) engineOption {
	return func(deps *EntitlementDependencies) {
		deps.Cache = client
	}
}

func newEngineFixture(t *testing.T, now time.Time, opts ...engineOption) engineFixture {
	t.Helper()
	return newEngineFixtureWithDB(t, setupServiceDB(t), now, opts...)
}

func newEngineFixtureWithDB(t *testing.T, db *gorm.DB, now time.Time, opts ...engineOption) engineFixture {
	t.Helper()
	clock := newFixedClock(now)
	activity := &stubActivityRecorder{}
	publisher := &stubAccessPublisher{}

	enrollments := repository.NewEnrollmentRepository(db)
	events := repository.NewAccessEventRepository(db)
	deps := EntitlementDependencies{
		Students:    repository.NewStudentRepository(db),
		Enrollments: enrollments,
		Events:      events,
		Transactor:  repository.NewTransactor(db),
		Resolver:    NewEnrollmentResolver(enrollments, activity, testLogger()),
		Counter:     NewQuotaCounter(events),
		Publisher:   publisher,
		Now:         clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return engineFixture{
		db:        db,
		clock:     clock,
		engine:    NewEntitlementService(deps, testLogger()),
		activity:  activity,
		publisher: publisher,
	}
}

func seedStudent(t *testing.T, db *gorm.DB, document string) models.Student {
	t.Helper()
	student := models.Student{Name: "Student " + document, Document: document}
	require.NoError(t, db.Create(&student).Error)
	return student
}

func seedPlan(t *testing.T, db *gorm.DB, name string, monthlyEntries int) models.Plan {
	t.Helper()
	plan := models.Plan{Name: name, MonthlyEntries: monthlyEntries}
	require.NoError(t, db.Create(&plan).Error)
	return plan
}

func seedEnrollment(t *testing.T, db *gorm.DB, enrollment models.Enrollment) models.Enrollment {
	t.Helper()
	active := enrollment.Active
	require.NoError(t, db.Create(&enrollment).Error)
	if !active {
		require.NoError(t, db.Model(&enrollment).Update("active", false).Error)
		enrollment.Active = false
	}
	return enrollment
}

func countAccessEvents(t *testing.T, db *gorm.DB, studentID uint) int64 {
	t.Helper()
	var total int64
	require.NoError(t, db.Model(&models.AccessEvent{}).Where("student_id = ?", studentID).Count(&total).Error)
	return total
}
