package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/salary"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type salaryRepository struct {
	db *database.DB
}

func NewSalaryRepository(db *database.DB) salary.SalaryRepository {
	return &salaryRepository{db: db}
}

const structureColumns = `
	id, company_id, employee_id,
	basic, housing_allowance, special_allowance, bonus, other_allowance,
	pf_deduction, tax_deduction, other_deduction,
	effective_from, notes, updated_by, created_at, updated_at
`

func scanStructure(row pgx.Row) (salary.Structure, error) {
	var s salary.Structure
	err := row.Scan(
		&s.ID, &s.CompanyID, &s.EmployeeID,
		&s.Components.Basic, &s.Components.HousingAllowance, &s.Components.SpecialAllowance, &s.Components.Bonus, &s.Components.OtherAllowance,
		&s.Components.PFDeduction, &s.Components.TaxDeduction, &s.Components.OtherDeduction,
		&s.EffectiveFrom, &s.Notes, &s.UpdatedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

func (r *salaryRepository) GetCurrent(ctx context.Context, companyID, employeeID string, forUpdate bool) (salary.Structure, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + structureColumns + `
		FROM salary_structures
		WHERE company_id = $1 AND employee_id = $2
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	s, err := scanStructure(q.QueryRow(ctx, query, companyID, employeeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return salary.Structure{}, salary.ErrSalaryStructureNotFound
		}
		return salary.Structure{}, fmt.Errorf("failed to get salary structure: %w", err)
	}
	return s, nil
}

func (r *salaryRepository) ListCurrent(ctx context.Context, companyID string, employeeIDs []string) (map[string]salary.Structure, error) {
	out := make(map[string]salary.Structure, len(employeeIDs))
	if len(employeeIDs) == 0 {
		return out, nil
	}
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + structureColumns + `
		FROM salary_structures
		WHERE company_id = $1 AND employee_id = ANY($2)
	`

	rows, err := q.Query(ctx, query, companyID, employeeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list salary structures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanStructure(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan salary structure: %w", err)
		}
		out[s.EmployeeID] = s
	}
	return out, rows.Err()
}

func (r *salaryRepository) Upsert(ctx context.Context, s salary.Structure) (salary.Structure, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO salary_structures (
			id, company_id, employee_id,
			basic, housing_allowance, special_allowance, bonus, other_allowance,
			pf_deduction, tax_deduction, other_deduction,
			effective_from, notes, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (employee_id) DO UPDATE SET
			basic = EXCLUDED.basic,
			housing_allowance = EXCLUDED.housing_allowance,
			special_allowance = EXCLUDED.special_allowance,
			bonus = EXCLUDED.bonus,
			other_allowance = EXCLUDED.other_allowance,
			pf_deduction = EXCLUDED.pf_deduction,
			tax_deduction = EXCLUDED.tax_deduction,
			other_deduction = EXCLUDED.other_deduction,
			effective_from = EXCLUDED.effective_from,
			notes = EXCLUDED.notes,
			updated_by = EXCLUDED.updated_by,
			updated_at = NOW()
		WHERE salary_structures.company_id = EXCLUDED.company_id
		RETURNING ` + structureColumns

	c := s.Components
	saved, err := scanStructure(q.QueryRow(ctx, query,
		s.ID, s.CompanyID, s.EmployeeID,
		c.Basic, c.HousingAllowance, c.SpecialAllowance, c.Bonus, c.OtherAllowance,
		c.PFDeduction, c.TaxDeduction, c.OtherDeduction,
		s.EffectiveFrom, s.Notes, s.UpdatedBy,
	))
	if err != nil {
		// The WHERE on the conflict branch filters out rows of another company.
		if errors.Is(err, pgx.ErrNoRows) {
			return salary.Structure{}, salary.ErrEmployeeNotFound
		}
		return salary.Structure{}, fmt.Errorf("failed to upsert salary structure: %w", err)
	}
	return saved, nil
}

func (r *salaryRepository) AppendHistory(ctx context.Context, h salary.History) error {
	q := GetQuerier(ctx, r.db)

	var oldValues []byte
	if h.OldValues != nil {
		oldValues, _ = json.Marshal(h.OldValues)
	}
	newValues, err := json.Marshal(h.NewValues)
	if err != nil {
		return fmt.Errorf("failed to encode salary history: %w", err)
	}
	changes := h.Changes
	if changes == nil {
		changes = []salary.FieldChange{}
	}
	changesJSON, _ := json.Marshal(changes)

	query := `
		INSERT INTO salary_structure_histories (id, company_id, employee_id, old_values, new_values, changes, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if _, err := q.Exec(ctx, query,
		h.ID, h.CompanyID, h.EmployeeID, oldValues, newValues, changesJSON, h.ChangedBy, h.ChangedAt,
	); err != nil {
		return fmt.Errorf("failed to append salary history: %w", err)
	}
	return nil
}

func (r *salaryRepository) ListHistory(ctx context.Context, companyID, employeeID string) ([]salary.History, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, company_id, employee_id, old_values, new_values, changes, changed_by, changed_at
		FROM salary_structure_histories
		WHERE company_id = $1 AND employee_id = $2
		ORDER BY changed_at DESC, id DESC
	`

	rows, err := q.Query(ctx, query, companyID, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list salary history: %w", err)
	}
	defer rows.Close()

	histories := make([]salary.History, 0)
	for rows.Next() {
		var h salary.History
		var oldValues, newValues, changes []byte
		if err := rows.Scan(&h.ID, &h.CompanyID, &h.EmployeeID, &oldValues, &newValues, &changes, &h.ChangedBy, &h.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan salary history: %w", err)
		}
		if len(oldValues) > 0 {
			var prev salary.Snapshot
			if err := json.Unmarshal(oldValues, &prev); err == nil {
				h.OldValues = &prev
			}
		}
		_ = json.Unmarshal(newValues, &h.NewValues)
		_ = json.Unmarshal(changes, &h.Changes)
		histories = append(histories, h)
	}
	return histories, rows.Err()
}
