package service

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-access-api/internal/models"
	"github.com/noah-isme/gema-access-api/internal/observability"
	"github.com/noah-isme/gema-access-api/internal/repository"
)

// Outcome is the result of an access evaluation.
type Outcome string

// Outcomes returned by EvaluateAndCharge.
const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
)

// DenyReason explains a denied decision. Values are stable and safe to show.
type DenyReason string

// Deny reasons.
const (
	DenyReasonNone               DenyReason = ""
	DenyReasonNoActiveEnrollment DenyReason = "no_active_enrollment"
	DenyReasonQuotaExhausted     DenyReason = "quota_exhausted"
)

// Decision is the engine's answer for a single access attempt.
type Decision struct {
	Outcome    Outcome
	Reason     DenyReason
	Student    models.Student
	Enrollment *models.Enrollment
	// Remaining is the quota left in the current month after this decision.
	Remaining int
	// Event is the charged access, set only when Outcome is OutcomeAllowed.
	Event *models.AccessEvent
}

// Allowed reports whether access was granted.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllowed
}

// EntitlementStatus is a read-only snapshot of a student's entitlement.
type EntitlementStatus struct {
	StudentID  uint
	Enrollment *models.Enrollment
	Month      time.Month
	Year       int
	Used       int64
	Remaining  int
}

// EntitlementService decides access and charges the monthly quota.
type EntitlementService interface {
	EvaluateAndCharge(ctx context.Context, studentID uint, notes string) (Decision, error)
	EvaluateAndChargeByDocument(ctx context.Context, document, notes string) (Decision, error)
	ResolveAuthoritativeEnrollment(ctx context.Context, studentID uint) (*models.Enrollment, error)
	CountChargedEvents(ctx context.Context, enrollmentID uint, month time.Month, year int) (int64, error)
	Status(ctx context.Context, studentID uint) (EntitlementStatus, error)
}

// EntitlementDependencies groups the collaborators of the entitlement service.
type EntitlementDependencies struct {
	Students    repository.StudentRepository
	Enrollments repository.EnrollmentRepository
	Events      repository.AccessEventRepository
	Transactor  repository.Transactor
	Resolver    EnrollmentResolver
	Counter     QuotaCounter
	Publisher   AccessPublisher
	Cache       *redis.Client
	Now         func() time.Time
}

type entitlementService struct {
	students    repository.StudentRepository
	enrollments repository.EnrollmentRepository
	events      repository.AccessEventRepository
	tx          repository.Transactor
	resolver    EnrollmentResolver
	counter     QuotaCounter
	publisher   AccessPublisher
	cache       *redis.Client
	locks       *keyedMutex
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewEntitlementService constructs the decision engine.
func NewEntitlementService(deps EntitlementDependencies, logger zerolog.Logger) EntitlementService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = noopAccessPublisher{}
	}

	return &entitlementService{
		students:    deps.Students,
		enrollments: deps.Enrollments,
		events:      deps.Events,
		tx:          deps.Transactor,
		resolver:    deps.Resolver,
		counter:     deps.Counter,
		publisher:   publisher,
		cache:       deps.Cache,
		locks:       newKeyedMutex(),
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "entitlement_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-access-api/internal/service/entitlement"),
		now:         now,
	}
}

func (s *entitlementService) EvaluateAndChargeByDocument(ctx context.Context, document, notes string) (Decision, error) {
	document = strings.TrimSpace(document)
	if document == "" {
		return Decision{}, ErrStudentNotFound
	}

	student, err := s.students.GetByDocument(ctx, document)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Decision{}, ErrStudentNotFound
		}
		return Decision{}, storageError("get student by document", err)
	}

	return s.evaluate(ctx, student, notes)
}

func (s *entitlementService) EvaluateAndCharge(ctx context.Context, studentID uint, notes string) (Decision, error) {
	student, err := s.getStudent(ctx, studentID)
	if err != nil {
		return Decision{}, err
	}

	return s.evaluate(ctx, student, notes)
}

func (s *entitlementService) evaluate(ctx context.Context, student models.Student, notes string) (Decision, error) {
	// One clock reading per call so resolution, counting and charging agree on the period.
	now := s.now().UTC()
	started := time.Now()

	ctx, span := s.tracer.Start(ctx, "entitlement.evaluate_and_charge", trace.WithAttributes(
		attribute.Int64("student.id", int64(student.ID)),
	))
	defer span.End()

	decision, err := s.decide(ctx, student, notes, now)
	observability.EntitlementLatency().Observe(time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluate failed")
		s.logger.Error().Err(err).Uint("student_id", student.ID).Msg("access evaluation failed")
		return Decision{}, err
	}

	span.SetAttributes(
		attribute.String("decision.outcome", string(decision.Outcome)),
		attribute.String("decision.reason", string(decision.Reason)),
		attribute.Int("decision.remaining", decision.Remaining),
	)
	observability.EntitlementDecisions().WithLabelValues(string(decision.Outcome), string(decision.Reason)).Inc()

	event := s.logger.Info()
	if !decision.Allowed() {
		event = s.logger.Debug()
	}
	event.Uint("student_id", student.ID).
		Str("outcome", string(decision.Outcome)).
		Str("reason", string(decision.Reason)).
		Int("remaining", decision.Remaining).
		Msg("access evaluated")

	if decision.Allowed() {
		s.afterCharge(ctx, decision)
	}

	return decision, nil
}

// resolveAttempts bounds how often decide re-resolves after the locked
// enrollment turned out to be no longer effectively active.
const resolveAttempts = 2

func (s *entitlementService) decide(ctx context.Context, student models.Student, notes string, now time.Time) (Decision, error) {
	for attempt := 1; ; attempt++ {
		enrollment, err := s.resolver.Resolve(ctx, student.ID, now)
		if err != nil {
			return Decision{}, err
		}
		if enrollment == nil {
			return denied(student, nil, DenyReasonNoActiveEnrollment), nil
		}

		decision, stale, err := s.charge(ctx, student, enrollment.ID, notes, now)
		if err != nil {
			return Decision{}, err
		}
		if !stale {
			return decision, nil
		}
		if attempt >= resolveAttempts {
			return denied(student, nil, DenyReasonNoActiveEnrollment), nil
		}
		s.logger.Debug().
			Uint("student_id", student.ID).
			Uint("enrollment_id", enrollment.ID).
			Msg("enrollment changed before lock, resolving again")
	}
}

// charge holds the enrollment guard and row lock while it counts and inserts.
// stale is true when the locked row is no longer effectively active.
func (s *entitlementService) charge(ctx context.Context, student models.Student, enrollmentID uint, notes string, now time.Time) (decision Decision, stale bool, err error) {
	unlock, err := s.locks.Lock(ctx, enrollmentID)
	if err != nil {
		return Decision{}, false, storageError("acquire enrollment lock", err)
	}
	defer unlock()

	err = s.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		locked, err := s.enrollments.LockForUpdate(txCtx, enrollmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				stale = true
				return nil
			}
			return err
		}
		// An admin edit may have landed between resolution and the lock.
		if !locked.IsEffectivelyActive(now) {
			stale = true
			return nil
		}

		used, err := s.counter.Count(txCtx, locked.ID, now.Month(), now.Year())
		if err != nil {
			return err
		}

		limit := int64(locked.Plan.MonthlyEntries)
		if used >= limit {
			decision = denied(student, &locked, DenyReasonQuotaExhausted)
			return nil
		}

		event := models.AccessEvent{
			StudentID:    student.ID,
			EnrollmentID: locked.ID,
			AccessTime:   now,
			Notes:        s.sanitizeNotes(notes),
		}
		if err := s.events.Create(txCtx, &event); err != nil {
			return err
		}

		decision = Decision{
			Outcome:    OutcomeAllowed,
			Student:    student,
			Enrollment: &locked,
			Remaining:  int(limit - used - 1),
			Event:      &event,
		}
		return nil
	})
	if err != nil {
		return Decision{}, false, storageError("charge access", err)
	}

	return decision, stale, nil
}

func (s *entitlementService) ResolveAuthoritativeEnrollment(ctx context.Context, studentID uint) (*models.Enrollment, error) {
	if _, err := s.getStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, studentID, s.now().UTC())
}

func (s *entitlementService) CountChargedEvents(ctx context.Context, enrollmentID uint, month time.Month, year int) (int64, error) {
	return s.counter.Count(ctx, enrollmentID, month, year)
}

func (s *entitlementService) Status(ctx context.Context, studentID uint) (EntitlementStatus, error) {
	if _, err := s.getStudent(ctx, studentID); err != nil {
		return EntitlementStatus{}, err
	}

	now := s.now().UTC()
	status := EntitlementStatus{StudentID: studentID, Month: now.Month(), Year: now.Year()}

	enrollment, err := s.resolver.Resolve(ctx, studentID, now)
	if err != nil {
		return EntitlementStatus{}, err
	}
	if enrollment == nil {
		return status, nil
	}

	used, err := s.counter.Count(ctx, enrollment.ID, now.Month(), now.Year())
	if err != nil {
		return EntitlementStatus{}, err
	}

	status.Enrollment = enrollment
	status.Used = used
	status.Remaining = remainingQuota(enrollment.Plan.MonthlyEntries, used)
	return status, nil
}

func (s *entitlementService) getStudent(ctx context.Context, studentID uint) (models.Student, error) {
	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Student{}, ErrStudentNotFound
		}
		return models.Student{}, storageError("get student", err)
	}
	return student, nil
}

// afterCharge runs post-commit side effects. Failures are logged only.
func (s *entitlementService) afterCharge(ctx context.Context, decision Decision) {
	if s.cache != nil {
		if err := s.cache.Del(ctx, StudentReportCacheKey(decision.Student.ID, decision.Event.AccessTime)).Err(); err != nil {
			s.logger.Warn().Err(err).Uint("student_id", decision.Student.ID).Msg("failed to invalidate student report cache")
		}
	}

	err := s.publisher.PublishGranted(ctx, AccessGrantedEvent{
		StudentID:    decision.Student.ID,
		EnrollmentID: decision.Enrollment.ID,
		PlanID:       decision.Enrollment.PlanID,
		AccessID:     decision.Event.ID,
		AccessTime:   decision.Event.AccessTime,
		Remaining:    decision.Remaining,
	})
	if err != nil {
		s.logger.Warn().Err(err).Uint("student_id", decision.Student.ID).Msg("failed to publish access granted event")
	}
}

// sanitizeNotes strips markup and stores the remaining text unescaped.
func (s *entitlementService) sanitizeNotes(notes string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(strings.TrimSpace(notes))))
}

func denied(student models.Student, enrollment *models.Enrollment, reason DenyReason) Decision {
	return Decision{
		Outcome:    OutcomeDenied,
		Reason:     reason,
		Student:    student,
		Enrollment: enrollment,
		Remaining:  0,
	}
}

func remainingQuota(monthlyEntries int, used int64) int {
	remaining := int64(monthlyEntries) - used
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}
