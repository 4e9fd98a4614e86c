package salary

import (
	"context"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
)

type SalaryService interface {
	Upsert(ctx context.Context, actor user.Actor, req UpsertSalaryStructureRequest) (SalaryStructureResponse, error)
	Get(ctx context.Context, actor user.Actor, employeeID string) (SalaryStructureResponse, error)
	GetHistory(ctx context.Context, actor user.Actor, employeeID string) (SalaryHistoryListResponse, error)

	// CurrentFor is used by payroll; the caller has already been authorized.
	CurrentFor(ctx context.Context, companyID, employeeID string) (Structure, error)
	CurrentForEmployees(ctx context.Context, companyID string, employeeIDs []string) (map[string]Structure, error)
}
