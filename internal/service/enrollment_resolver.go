package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-access-api/internal/models"
	"github.com/noah-isme/gema-access-api/internal/observability"
	"github.com/noah-isme/gema-access-api/internal/repository"
)

// EnrollmentResolver picks the single authoritative enrollment of a student.
type EnrollmentResolver interface {
	// Resolve returns nil when the student has no effectively active
	// enrollment at now. As a side effect it clears the active flag of
	// enrollments found flagged but already lapsed.
	Resolve(ctx context.Context, studentID uint, now time.Time) (*models.Enrollment, error)
}

type enrollmentResolver struct {
	enrollments repository.EnrollmentRepository
	activity    ActivityRecorder
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewEnrollmentResolver constructs a resolver. activity may be nil.
func NewEnrollmentResolver(enrollments repository.EnrollmentRepository, activity ActivityRecorder, logger zerolog.Logger) EnrollmentResolver {
	return &enrollmentResolver{
		enrollments: enrollments,
		activity:    activity,
		logger:      logger.With().Str("component", "enrollment_resolver").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-access-api/internal/service/enrollment_resolver"),
	}
}

func (r *enrollmentResolver) Resolve(ctx context.Context, studentID uint, now time.Time) (*models.Enrollment, error) {
	ctx, span := r.tracer.Start(ctx, "enrollments.resolve", trace.WithAttributes(
		attribute.Int64("student.id", int64(studentID)),
	))
	defer span.End()

	// Ordered newest first: when several overlap, the most recently created wins.
	candidates, err := r.enrollments.ListEffectivelyActive(ctx, studentID, now)
	if err != nil {
		span.RecordError(err)
		return nil, storageError("list effectively active enrollments", err)
	}
	if len(candidates) > 0 {
		chosen := candidates[0]
		if len(candidates) > 1 {
			r.logger.Warn().
				Uint("student_id", studentID).
				Uint("enrollment_id", chosen.ID).
				Int("overlapping", len(candidates)).
				Msg("student has overlapping active enrollments")
		}
		span.SetAttributes(attribute.Int64("enrollment.id", int64(chosen.ID)))
		return &chosen, nil
	}

	flagged, err := r.enrollments.ListFlaggedActive(ctx, studentID)
	if err != nil {
		span.RecordError(err)
		return nil, storageError("list flagged enrollments", err)
	}

	for _, enrollment := range flagged {
		// Not-yet-started enrollments keep their flag.
		if !enrollment.IsLapsed(now) {
			continue
		}
		r.heal(ctx, enrollment, now)
	}

	return nil, nil
}

func (r *enrollmentResolver) heal(ctx context.Context, enrollment models.Enrollment, now time.Time) {
	logger := r.logger.With().
		Uint("student_id", enrollment.StudentID).
		Uint("enrollment_id", enrollment.ID).
		Time("end_date", enrollment.EndDate).
		Logger()

	if _, err := r.enrollments.SetActive(ctx, enrollment.ID, false, now); err != nil {
		observability.EnrollmentHealFailures().Inc()
		logger.Warn().Err(err).Msg("failed to deactivate lapsed enrollment")
		return
	}

	observability.EnrollmentsHealed().Inc()
	logger.Info().Msg("deactivated lapsed enrollment")

	if r.activity == nil {
		return
	}

	id := enrollment.ID
	_, err := r.activity.Record(ctx, ActivityEntry{
		ActorRole:  ActivityRoleSystem,
		Action:     ActivityEnrollmentHealed,
		EntityType: ActivityEntityEnrollment,
		EntityID:   &id,
		Metadata: map[string]interface{}{
			"student_id": enrollment.StudentID,
			"plan_id":    enrollment.PlanID,
			"end_date":   enrollment.EndDate.UTC().Format(time.RFC3339),
			"healed_at":  now.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to record heal activity")
	}
}
