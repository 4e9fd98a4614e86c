package payroll

import (
	"context"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
)

// LineFilter narrows a month's lines.
type LineFilter struct {
	Scope     employee.Scope
	Status    *LineStatus
	ForUpdate bool
	Page      int // zero disables pagination
	Limit     int
}

// PaymentDetails are recorded on every line transitioned to paid.
type PaymentDetails struct {
	PaidBy           string
	PaidAt           time.Time
	PaymentMethod    string
	PaymentReference *string
	Notes            *string
}

// LineRepository defines data access methods for payroll lines.
// All methods include companyID parameter to prevent cross-company data access attacks.
type LineRepository interface {
	// List returns the month's lines ordered by employee code, plus the total matching the filter.
	List(ctx context.Context, companyID string, period Period, filter LineFilter) ([]Line, int64, error)
	GetByIDs(ctx context.Context, companyID string, period Period, ids []string, forUpdate bool) ([]Line, error)
	// Create returns ErrLineAlreadyExists when a line for (employee, period) exists.
	Create(ctx context.Context, line Line) (Line, error)
	// UpdateComputation rewrites a recomputable line; it returns ErrLineNotFound
	// when the line is missing or no longer recomputable.
	UpdateComputation(ctx context.Context, line Line) error
	MarkApproved(ctx context.Context, companyID string, ids []string, approvedBy string, at time.Time) (int64, error)
	MarkPaid(ctx context.Context, companyID string, period Period, details PaymentDetails) (int64, error)
	// Summarize counts lines per status and sums money over the scoped lines of the month.
	Summarize(ctx context.Context, companyID string, period Period, scope employee.Scope) (Summary, error)
}

// LockRepository is the append-only month lock ledger.
type LockRepository interface {
	// AcquireMonth blocks until the caller's transaction holds the month's
	// mutation lock. The lock is released when that transaction ends.
	AcquireMonth(ctx context.Context, companyID string, period Period) error
	// GetLatest returns ErrLockNotFound when the month was never locked.
	GetLatest(ctx context.Context, companyID string, period Period) (MonthLock, error)
	// Create returns ErrConflict when an active lock already exists.
	Create(ctx context.Context, lock MonthLock) (MonthLock, error)
	// Release returns ErrMonthNotLocked when there is no active lock.
	Release(ctx context.Context, companyID string, period Period, unlockedBy, reason string, at time.Time) (MonthLock, error)
	ListByPeriod(ctx context.Context, companyID string, period Period) ([]MonthLock, error)
}
