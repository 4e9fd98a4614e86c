package attendance

import (
	"context"
	"time"
)

// Feed reads finalized attendance classifications produced by the attendance module.
// All methods include companyID parameter to prevent cross-company data access attacks.
type Feed interface {
	// ListClassifiedDays returns the classified days between from and to (inclusive).
	// Records still waiting for approval are not returned.
	ListClassifiedDays(ctx context.Context, companyID string, employeeIDs []string, from, to time.Time) ([]Day, error)
}
