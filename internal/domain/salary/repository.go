package salary

import "context"

// SalaryRepository defines data access methods for salary structures.
// All methods include companyID parameter to prevent cross-company data access attacks.
type SalaryRepository interface {
	// GetCurrent returns ErrSalaryStructureNotFound when the employee has none.
	GetCurrent(ctx context.Context, companyID, employeeID string, forUpdate bool) (Structure, error)
	ListCurrent(ctx context.Context, companyID string, employeeIDs []string) (map[string]Structure, error)
	Upsert(ctx context.Context, s Structure) (Structure, error)

	// History
	AppendHistory(ctx context.Context, h History) error
	ListHistory(ctx context.Context, companyID, employeeID string) ([]History, error)
}
