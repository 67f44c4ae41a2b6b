package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-access-api/internal/dto"
	"github.com/noah-isme/gema-access-api/internal/repository"
)

// StudentReportCacheKey is the Redis key holding a student's cached report
// for the calendar month containing now.
func StudentReportCacheKey(studentID uint, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("report:student:%d:%04d-%02d", studentID, now.Year(), int(now.Month()))
}

// ReportService builds read-only usage reports.
type ReportService interface {
	StudentReport(ctx context.Context, studentID uint) (dto.StudentReportResponse, error)
	PlanReport(ctx context.Context, planID uint) (dto.PlanReportResponse, error)
}

// ReportDependencies groups the collaborators of the report service.
type ReportDependencies struct {
	Students    repository.StudentRepository
	Plans       repository.PlanRepository
	Enrollments repository.EnrollmentRepository
	Events      repository.AccessEventRepository
	Resolver    EnrollmentResolver
	Counter     QuotaCounter
	Cache       *redis.Client
	CacheTTL    time.Duration
	Now         func() time.Time
}

type reportService struct {
	students    repository.StudentRepository
	plans       repository.PlanRepository
	enrollments repository.EnrollmentRepository
	events      repository.AccessEventRepository
	resolver    EnrollmentResolver
	counter     QuotaCounter
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewReportService constructs the report service.
func NewReportService(deps ReportDependencies, logger zerolog.Logger) ReportService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &reportService{
		students:    deps.Students,
		plans:       deps.Plans,
		enrollments: deps.Enrollments,
		events:      deps.Events,
		resolver:    deps.Resolver,
		counter:     deps.Counter,
		cache:       deps.Cache,
		cacheTTL:    deps.CacheTTL,
		logger:      logger.With().Str("component", "report_service").Logger(),
		now:         now,
	}
}

func (s *reportService) StudentReport(ctx context.Context, studentID uint) (dto.StudentReportResponse, error) {
	now := s.now().UTC()
	cacheKey := StudentReportCacheKey(studentID, now)
	tracer := otel.Tracer("github.com/noah-isme/gema-access-api/internal/service/report")
	ctx, span := tracer.Start(ctx, "report.student")
	span.SetAttributes(attribute.String("report.cache_key", cacheKey))
	defer span.End()

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var response dto.StudentReportResponse
			unmarshalErr := json.Unmarshal([]byte(cached), &response)
			if unmarshalErr == nil && !currentEnrollmentLapsed(response, now) {
				response.CacheHit = true
				span.SetAttributes(attribute.Bool("report.cache_hit", true))
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read student report cache")
			span.RecordError(err)
		}
	}

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StudentReportResponse{}, ErrStudentNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "get_student_failed")
		return dto.StudentReportResponse{}, storageError("get student", err)
	}

	enrollment, err := s.resolver.Resolve(ctx, studentID, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve_enrollment_failed")
		return dto.StudentReportResponse{}, err
	}

	events, err := s.events.ListByStudent(ctx, studentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list_access_events_failed")
		return dto.StudentReportResponse{}, storageError("list access events", err)
	}

	remaining := 0
	if enrollment != nil {
		used, err := s.counter.Count(ctx, enrollment.ID, now.Month(), now.Year())
		if err != nil {
			span.RecordError(err)
			return dto.StudentReportResponse{}, err
		}
		remaining = remainingQuota(enrollment.Plan.MonthlyEntries, used)
	}

	logs := make([]dto.AccessEventResponse, 0, len(events))
	for _, event := range events {
		logs = append(logs, dto.NewAccessEventResponse(event))
	}

	report := dto.StudentReportResponse{
		Student:           dto.NewStudentResponse(student),
		CurrentEnrollment: dto.NewEnrollmentResponse(enrollment),
		TotalAccesses:     len(events),
		RemainingAccesses: remaining,
		AccessLogs:        logs,
		GeneratedAt:       now,
	}
	span.SetAttributes(attribute.Int("report.total_accesses", report.TotalAccesses))

	if s.cache != nil {
		payload, err := json.Marshal(report)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store student report cache")
				span.RecordError(err)
			}
		}
	}

	return report, nil
}

// currentEnrollmentLapsed reports whether a cached report names an enrollment
// whose end date has since passed.
func currentEnrollmentLapsed(report dto.StudentReportResponse, now time.Time) bool {
	return report.CurrentEnrollment != nil && now.After(report.CurrentEnrollment.EndDate)
}

func (s *reportService) PlanReport(ctx context.Context, planID uint) (dto.PlanReportResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-access-api/internal/service/report")
	ctx, span := tracer.Start(ctx, "report.plan")
	span.SetAttributes(attribute.Int64("plan.id", int64(planID)))
	defer span.End()

	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.PlanReportResponse{}, ErrPlanNotFound
		}
		span.RecordError(err)
		return dto.PlanReportResponse{}, storageError("get plan", err)
	}

	now := s.now().UTC()
	active, err := s.enrollments.CountEffectivelyActiveByPlan(ctx, planID, now)
	if err != nil {
		span.RecordError(err)
		return dto.PlanReportResponse{}, storageError("count active enrollments", err)
	}

	total, err := s.events.CountByPlan(ctx, planID)
	if err != nil {
		span.RecordError(err)
		return dto.PlanReportResponse{}, storageError("count plan accesses", err)
	}

	enrollments, err := s.enrollments.ListByPlan(ctx, planID)
	if err != nil {
		span.RecordError(err)
		return dto.PlanReportResponse{}, storageError("list plan enrollments", err)
	}

	usage := make([]dto.PlanEnrollmentUsage, 0, len(enrollments))
	for i := range enrollments {
		enrollment := enrollments[i]
		monthly, err := s.counter.Count(ctx, enrollment.ID, now.Month(), now.Year())
		if err != nil {
			span.RecordError(err)
			return dto.PlanReportResponse{}, err
		}

		entry := dto.PlanEnrollmentUsage{
			Enrollment:      *dto.NewEnrollmentResponse(&enrollment),
			MonthlyAccesses: monthly,
		}
		if enrollment.Student != nil {
			student := dto.NewStudentResponse(*enrollment.Student)
			entry.Student = &student
		}
		usage = append(usage, entry)
	}

	return dto.PlanReportResponse{
		Plan:           dto.NewPlanResponse(plan),
		ActiveStudents: active,
		TotalAccesses:  total,
		Enrollments:    usage,
		GeneratedAt:    now,
	}, nil
}
