package service

import (
	"context"
	"time"

	"github.com/noah-isme/gema-access-api/internal/repository"
)

// QuotaCounter counts access events charged to an enrollment in a calendar month.
type QuotaCounter interface {
	Count(ctx context.Context, enrollmentID uint, month time.Month, year int) (int64, error)
}

type quotaCounter struct {
	events repository.AccessEventRepository
}

// NewQuotaCounter constructs a quota counter backed by the access event store.
func NewQuotaCounter(events repository.AccessEventRepository) QuotaCounter {
	return &quotaCounter{events: events}
}

func (c *quotaCounter) Count(ctx context.Context, enrollmentID uint, month time.Month, year int) (int64, error) {
	from, to := MonthBounds(month, year)
	total, err := c.events.CountForPeriod(ctx, enrollmentID, from, to)
	if err != nil {
		return 0, storageError("count access events", err)
	}
	return total, nil
}

// MonthBounds returns the half-open UTC interval [from, to) covering the
// calendar month.
func MonthBounds(month time.Month, year int) (time.Time, time.Time) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}
