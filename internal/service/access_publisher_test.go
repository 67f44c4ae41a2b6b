package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
)

func TestNewAccessPublisherWithoutConnectionIsNoop(t *testing.T) {
	publisher := NewAccessPublisher(nil, "access.granted", testLogger())
	require.IsType(t, noopAccessPublisher{}, publisher)
	require.NoError(t, publisher.PublishGranted(context.Background(), AccessGrantedEvent{StudentID: 1}))
}

func TestPublishBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	breaker := newPublishBreaker("access.granted", testLogger())
	failure := errors.New("nats: no servers available for connection")

	for i := 0; i < 5; i++ {
		_, err := breaker.Execute(func() (struct{}, error) { return struct{}{}, failure })
		require.ErrorIs(t, err, failure)
	}

	calls := 0
	_, err := breaker.Execute(func() (struct{}, error) {
		calls++
		return struct{}{}, nil
	})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Zero(t, calls)
}
