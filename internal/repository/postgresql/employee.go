package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type employeeDirectory struct {
	db *database.DB
}

func NewEmployeeDirectory(db *database.DB) employee.Directory {
	return &employeeDirectory{db: db}
}

const employeeColumns = `
	id, company_id, branch_id, department_id, employee_code, full_name, employment_status
`

func scanEmployee(row pgx.Row) (employee.Employee, error) {
	var e employee.Employee
	err := row.Scan(&e.ID, &e.CompanyID, &e.BranchID, &e.DepartmentID, &e.EmployeeCode, &e.FullName, &e.EmploymentStatus)
	return e, err
}

// GetByID implements employee.Directory.
func (r *employeeDirectory) GetByID(ctx context.Context, id string, companyID string) (employee.Employee, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE id::text = $1 AND company_id = $2 AND deleted_at IS NULL
	`

	e, err := scanEmployee(q.QueryRow(ctx, query, id, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return employee.Employee{}, employee.ErrEmployeeNotFound
		}
		return employee.Employee{}, fmt.Errorf("failed to get employee: %w", err)
	}
	return e, nil
}

// ListActiveInScope implements employee.Directory.
func (r *employeeDirectory) ListActiveInScope(ctx context.Context, companyID string, scope employee.Scope) ([]employee.Employee, error) {
	q := GetQuerier(ctx, r.db)

	where := " WHERE e.company_id = $1 AND e.employment_status = 'active' AND e.deleted_at IS NULL"
	args := []interface{}{companyID}
	where, args = scopeClause(where, args, scope, "e", "id")
	query := `
		SELECT e.id, e.company_id, e.branch_id, e.department_id, e.employee_code, e.full_name, e.employment_status
		FROM employees e` + where + `
		ORDER BY e.employee_code
	`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	employees := make([]employee.Employee, 0)
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}
