package holiday

import (
	"context"
	"time"
)

type Holiday struct {
	Date time.Time
	Name string
}

// Calendar is the read-only company holiday calendar.
type Calendar interface {
	ListHolidays(ctx context.Context, companyID string, from, to time.Time) ([]Holiday, error)
}
