package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// AccessGrantedEvent is broadcast after an access charge commits.
type AccessGrantedEvent struct {
	EventID      string    `json:"event_id"`
	Source       string    `json:"source"`
	StudentID    uint      `json:"student_id"`
	EnrollmentID uint      `json:"enrollment_id"`
	PlanID       uint      `json:"plan_id"`
	AccessID     uint      `json:"access_id"`
	AccessTime   time.Time `json:"access_time"`
	Remaining    int       `json:"remaining"`
}

// AccessPublisher fans committed access charges out to downstream consumers.
type AccessPublisher interface {
	PublishGranted(ctx context.Context, event AccessGrantedEvent) error
}

type natsAccessPublisher struct {
	conn    *nats.Conn
	subject string
	nodeID  string
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewAccessPublisher returns a NATS publisher, or a no-op publisher when
// conn is nil or subject is blank. Publishing stops for a cool-down period
// after repeated broker failures.
func NewAccessPublisher(conn *nats.Conn, subject string, logger zerolog.Logger) AccessPublisher {
	subject = strings.TrimSpace(subject)
	if conn == nil || subject == "" {
		return noopAccessPublisher{}
	}

	log := logger.With().Str("component", "access_publisher").Logger()
	return &natsAccessPublisher{
		conn:    conn,
		subject: subject,
		nodeID:  uuid.NewString(),
		breaker: newPublishBreaker(subject, log),
	}
}

func newPublishBreaker(name string, logger zerolog.Logger) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("subject", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("publish circuit breaker state changed")
		},
	})
}

func (p *natsAccessPublisher) PublishGranted(ctx context.Context, event AccessGrantedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	event.Source = p.nodeID

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.conn.Publish(p.subject, payload)
	})
	return err
}

type noopAccessPublisher struct{}

func (noopAccessPublisher) PublishGranted(context.Context, AccessGrantedEvent) error {
	return nil
}
