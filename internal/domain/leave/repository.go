package leave

import (
	"context"
	"time"
)

// Feed reads approved leave produced by the leave module.
type Feed interface {
	// ListApprovedDays expands approved leave requests overlapping [from, to] into single days.
	ListApprovedDays(ctx context.Context, companyID string, employeeIDs []string, from, to time.Time) ([]Day, error)
}
