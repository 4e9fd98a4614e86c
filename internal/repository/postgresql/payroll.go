package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type payrollLineRepository struct {
	db *database.DB
}

func NewPayrollLineRepository(db *database.DB) payroll.LineRepository {
	return &payrollLineRepository{db: db}
}

const lineColumns = `
	pl.id, pl.company_id, pl.employee_id, pl.period_year, pl.period_month, pl.branch_id, pl.department_id,
	pl.working_days, pl.attendance_lop_days, pl.unpaid_leave_days, pl.paid_leave_days, pl.lop_days, pl.payable_days,
	pl.basic, pl.housing_allowance, pl.special_allowance, pl.bonus, pl.other_allowance,
	pl.pf_deduction, pl.tax_deduction, pl.other_deduction, pl.structure_effective_from,
	pl.basic_earned, pl.housing_earned, pl.special_earned, pl.bonus_earned, pl.other_earned,
	pl.gross_salary, pl.total_deductions, pl.net_salary,
	pl.status, pl.error_message, pl.warnings,
	pl.generated_by, pl.generated_at, pl.approved_by, pl.approved_at, pl.paid_by, pl.paid_at,
	pl.payment_method, pl.payment_reference, pl.notes, pl.created_at, pl.updated_at,
	e.full_name, e.employee_code
`

const lineFrom = `
	FROM payroll_lines pl
	LEFT JOIN employees e ON pl.employee_id = e.id
`

func scanLine(row pgx.Row) (payroll.Line, error) {
	var l payroll.Line
	var warnings []byte
	err := row.Scan(
		&l.ID, &l.CompanyID, &l.EmployeeID, &l.Period.Year, &l.Period.Month, &l.BranchID, &l.DepartmentID,
		&l.WorkingDays, &l.AttendanceLOPDays, &l.UnpaidLeaveDays, &l.PaidLeaveDays, &l.LOPDays, &l.PayableDays,
		&l.Structure.Basic, &l.Structure.HousingAllowance, &l.Structure.SpecialAllowance, &l.Structure.Bonus, &l.Structure.OtherAllowance,
		&l.Structure.PFDeduction, &l.Structure.TaxDeduction, &l.Structure.OtherDeduction, &l.StructureEffectiveFrom,
		&l.BasicEarned, &l.HousingEarned, &l.SpecialEarned, &l.BonusEarned, &l.OtherEarned,
		&l.GrossSalary, &l.TotalDeductions, &l.NetSalary,
		&l.Status, &l.ErrorMessage, &warnings,
		&l.GeneratedBy, &l.GeneratedAt, &l.ApprovedBy, &l.ApprovedAt, &l.PaidBy, &l.PaidAt,
		&l.PaymentMethod, &l.PaymentReference, &l.Notes, &l.CreatedAt, &l.UpdatedAt,
		&l.EmployeeName, &l.EmployeeCode,
	)
	if err != nil {
		return payroll.Line{}, err
	}
	if len(warnings) > 0 {
		_ = json.Unmarshal(warnings, &l.Warnings)
	}
	return l, nil
}

// scopeClause appends the scope predicates. idColumn is the employee id column of alias.
func scopeClause(where string, args []interface{}, scope employee.Scope, alias, idColumn string) (string, []interface{}) {
	if scope.BranchID != nil {
		args = append(args, *scope.BranchID)
		where += fmt.Sprintf(" AND %s.branch_id = $%d", alias, len(args))
	}
	if scope.DepartmentID != nil {
		args = append(args, *scope.DepartmentID)
		where += fmt.Sprintf(" AND %s.department_id = $%d", alias, len(args))
	}
	if len(scope.EmployeeIDs) > 0 {
		args = append(args, scope.EmployeeIDs)
		where += fmt.Sprintf(" AND %s.%s = ANY($%d)", alias, idColumn, len(args))
	}
	return where, args
}

func (r *payrollLineRepository) List(ctx context.Context, companyID string, period payroll.Period, filter payroll.LineFilter) ([]payroll.Line, int64, error) {
	q := GetQuerier(ctx, r.db)

	where := " WHERE pl.company_id = $1 AND pl.period_year = $2 AND pl.period_month = $3"
	args := []interface{}{companyID, period.Year, period.Month}
	where, args = scopeClause(where, args, filter.Scope, "pl", "employee_id")
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += fmt.Sprintf(" AND pl.status = $%d", len(args))
	}

	var total int64
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM payroll_lines pl"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payroll lines: %w", err)
	}

	query := "SELECT " + lineColumns + lineFrom + where + " ORDER BY e.employee_code, pl.employee_id"
	if filter.Page > 0 && filter.Limit > 0 {
		offset := (filter.Page - 1) * filter.Limit
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset)
	}
	if filter.ForUpdate {
		query += " FOR UPDATE OF pl"
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payroll lines: %w", err)
	}
	defer rows.Close()

	lines := make([]payroll.Line, 0)
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan payroll line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate payroll lines: %w", err)
	}

	return lines, total, nil
}

func (r *payrollLineRepository) GetByIDs(ctx context.Context, companyID string, period payroll.Period, ids []string, forUpdate bool) ([]payroll.Line, error) {
	if len(ids) == 0 {
		return []payroll.Line{}, nil
	}
	q := GetQuerier(ctx, r.db)

	// Ids that are not valid UUIDs can never match; compare as text to avoid a cast error.
	query := "SELECT " + lineColumns + lineFrom + `
		WHERE pl.company_id = $1 AND pl.period_year = $2 AND pl.period_month = $3
		  AND pl.id::text = ANY($4)
		ORDER BY pl.id`
	if forUpdate {
		query += " FOR UPDATE OF pl"
	}

	rows, err := q.Query(ctx, query, companyID, period.Year, period.Month, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get payroll lines: %w", err)
	}
	defer rows.Close()

	lines := make([]payroll.Line, 0, len(ids))
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payroll line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func marshalWarnings(warnings []string) []byte {
	if warnings == nil {
		warnings = []string{}
	}
	b, _ := json.Marshal(warnings)
	return b
}

// Create inserts a new line. ON CONFLICT keeps the surrounding transaction
// usable when a concurrent generate inserted the same (employee, period).
func (r *payrollLineRepository) Create(ctx context.Context, line payroll.Line) (payroll.Line, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO payroll_lines (
			id, company_id, employee_id, period_year, period_month, branch_id, department_id,
			working_days, attendance_lop_days, unpaid_leave_days, paid_leave_days, lop_days, payable_days,
			basic, housing_allowance, special_allowance, bonus, other_allowance,
			pf_deduction, tax_deduction, other_deduction, structure_effective_from,
			basic_earned, housing_earned, special_earned, bonus_earned, other_earned,
			gross_salary, total_deductions, net_salary,
			status, error_message, warnings, generated_by, generated_at, notes
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21, $22,
			$23, $24, $25, $26, $27,
			$28, $29, $30,
			$31, $32, $33, $34, $35, $36
		)
		ON CONFLICT (employee_id, period_year, period_month) DO NOTHING
		RETURNING created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		line.ID, line.CompanyID, line.EmployeeID, line.Period.Year, line.Period.Month, line.BranchID, line.DepartmentID,
		line.WorkingDays, line.AttendanceLOPDays, line.UnpaidLeaveDays, line.PaidLeaveDays, line.LOPDays, line.PayableDays,
		line.Structure.Basic, line.Structure.HousingAllowance, line.Structure.SpecialAllowance, line.Structure.Bonus, line.Structure.OtherAllowance,
		line.Structure.PFDeduction, line.Structure.TaxDeduction, line.Structure.OtherDeduction, line.StructureEffectiveFrom,
		line.BasicEarned, line.HousingEarned, line.SpecialEarned, line.BonusEarned, line.OtherEarned,
		line.GrossSalary, line.TotalDeductions, line.NetSalary,
		line.Status, line.ErrorMessage, marshalWarnings(line.Warnings), line.GeneratedBy, line.GeneratedAt, line.Notes,
	).Scan(&line.CreatedAt, &line.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.Line{}, payroll.ErrLineAlreadyExists
		}
		return payroll.Line{}, fmt.Errorf("failed to create payroll line: %w", err)
	}

	return line, nil
}

func (r *payrollLineRepository) UpdateComputation(ctx context.Context, line payroll.Line) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE payroll_lines SET
			branch_id = $3, department_id = $4,
			working_days = $5, attendance_lop_days = $6, unpaid_leave_days = $7, paid_leave_days = $8,
			lop_days = $9, payable_days = $10,
			basic = $11, housing_allowance = $12, special_allowance = $13, bonus = $14, other_allowance = $15,
			pf_deduction = $16, tax_deduction = $17, other_deduction = $18, structure_effective_from = $19,
			basic_earned = $20, housing_earned = $21, special_earned = $22, bonus_earned = $23, other_earned = $24,
			gross_salary = $25, total_deductions = $26, net_salary = $27,
			status = $28, error_message = $29, warnings = $30,
			generated_by = $31, generated_at = $32, notes = $33,
			updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND status IN ('draft', 'generated', 'failed')
	`

	cmd, err := q.Exec(ctx, query,
		line.ID, line.CompanyID, line.BranchID, line.DepartmentID,
		line.WorkingDays, line.AttendanceLOPDays, line.UnpaidLeaveDays, line.PaidLeaveDays,
		line.LOPDays, line.PayableDays,
		line.Structure.Basic, line.Structure.HousingAllowance, line.Structure.SpecialAllowance, line.Structure.Bonus, line.Structure.OtherAllowance,
		line.Structure.PFDeduction, line.Structure.TaxDeduction, line.Structure.OtherDeduction, line.StructureEffectiveFrom,
		line.BasicEarned, line.HousingEarned, line.SpecialEarned, line.BonusEarned, line.OtherEarned,
		line.GrossSalary, line.TotalDeductions, line.NetSalary,
		line.Status, line.ErrorMessage, marshalWarnings(line.Warnings),
		line.GeneratedBy, line.GeneratedAt, line.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to update payroll line: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return payroll.ErrLineNotFound
	}
	return nil
}

func (r *payrollLineRepository) MarkApproved(ctx context.Context, companyID string, ids []string, approvedBy string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE payroll_lines
		SET status = 'approved', approved_by = $3, approved_at = $4, updated_at = NOW()
		WHERE company_id = $1 AND id::text = ANY($2) AND status IN ('generated', 'failed')
	`

	cmd, err := q.Exec(ctx, query, companyID, ids, approvedBy, at)
	if err != nil {
		return 0, fmt.Errorf("failed to approve payroll lines: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *payrollLineRepository) MarkPaid(ctx context.Context, companyID string, period payroll.Period, details payroll.PaymentDetails) (int64, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE payroll_lines
		SET status = 'paid', paid_by = $4, paid_at = $5,
			payment_method = $6, payment_reference = $7,
			notes = COALESCE($8, notes),
			updated_at = NOW()
		WHERE company_id = $1 AND period_year = $2 AND period_month = $3 AND status = 'approved'
	`

	cmd, err := q.Exec(ctx, query,
		companyID, period.Year, period.Month,
		details.PaidBy, details.PaidAt, details.PaymentMethod, details.PaymentReference, details.Notes,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark payroll lines paid: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *payrollLineRepository) Summarize(ctx context.Context, companyID string, period payroll.Period, scope employee.Scope) (payroll.Summary, error) {
	q := GetQuerier(ctx, r.db)

	where := " WHERE pl.company_id = $1 AND pl.period_year = $2 AND pl.period_month = $3"
	args := []interface{}{companyID, period.Year, period.Month}
	where, args = scopeClause(where, args, scope, "pl", "employee_id")

	query := `
		SELECT pl.status, COUNT(*),
			COALESCE(SUM(pl.gross_salary), 0),
			COALESCE(SUM(pl.total_deductions), 0),
			COALESCE(SUM(pl.net_salary), 0)
		FROM payroll_lines pl` + where + `
		GROUP BY pl.status
	`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return payroll.Summary{}, fmt.Errorf("failed to summarize payroll lines: %w", err)
	}
	defer rows.Close()

	s := payroll.Summary{
		Counts:          map[payroll.LineStatus]int{},
		GrossSalary:     decimal.Zero,
		TotalDeductions: decimal.Zero,
		NetSalary:       decimal.Zero,
	}
	for rows.Next() {
		var status payroll.LineStatus
		var count int
		var gross, deductions, net decimal.Decimal
		if err := rows.Scan(&status, &count, &gross, &deductions, &net); err != nil {
			return payroll.Summary{}, fmt.Errorf("failed to scan payroll summary: %w", err)
		}
		s.Counts[status] = count
		s.GrossSalary = s.GrossSalary.Add(gross)
		s.TotalDeductions = s.TotalDeductions.Add(deductions)
		s.NetSalary = s.NetSalary.Add(net)
	}
	if err := rows.Err(); err != nil {
		return payroll.Summary{}, fmt.Errorf("failed to iterate payroll summary: %w", err)
	}

	return s, nil
}
