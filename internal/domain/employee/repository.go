package employee

import "context"

// Directory is the read-only employee lookup consumed by payroll.
// All methods include companyID parameter to prevent cross-company data access attacks.
type Directory interface {
	GetByID(ctx context.Context, id string, companyID string) (Employee, error)
	// ListActiveInScope returns active employees matching scope, ordered by employee code.
	ListActiveInScope(ctx context.Context, companyID string, scope Scope) ([]Employee, error)
}
