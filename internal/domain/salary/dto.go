package salary

import (
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/validator"
)

type UpsertSalaryStructureRequest struct {
	EmployeeID    string     `json:"-"`
	Components    Components `json:"components"`
	EffectiveFrom string     `json:"effective_from"`
	Notes         *string    `json:"notes,omitempty"`
}

func (r *UpsertSalaryStructureRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs.Add("employee_id", "employee_id is required")
	} else if !validator.IsValidUUID(r.EmployeeID) {
		errs.Add("employee_id", "employee_id must be a valid UUID")
	}

	if validator.IsEmpty(r.EffectiveFrom) {
		errs.Add("effective_from", "effective_from is required")
	} else if _, ok := validator.IsValidDate(r.EffectiveFrom); !ok {
		errs.Add("effective_from", "effective_from must be in YYYY-MM-DD format")
	}

	for _, f := range r.Components.fields() {
		switch {
		case !validator.IsNonNegative(f.amount):
			errs.Add(f.field, f.field+" must be non-negative")
		case !validator.HasMaxDecimals(f.amount, 2):
			errs.Add(f.field, f.field+" must have at most 2 decimal places")
		case f.amount.GreaterThanOrEqual(MaxAmount):
			errs.Add(f.field, f.field+" must be less than "+MaxAmount.String())
		}
	}

	if r.Notes != nil && len(*r.Notes) > 500 {
		errs.Add("notes", "notes must not exceed 500 characters")
	}

	return errs.Err()
}

type SalaryStructureResponse struct {
	ID            string     `json:"id"`
	EmployeeID    string     `json:"employee_id"`
	Components    Components `json:"components"`
	EffectiveFrom string     `json:"effective_from"`
	Notes         *string    `json:"notes,omitempty"`
	UpdatedBy     string     `json:"updated_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func NewSalaryStructureResponse(s Structure) SalaryStructureResponse {
	return SalaryStructureResponse{
		ID:            s.ID,
		EmployeeID:    s.EmployeeID,
		Components:    s.Components,
		EffectiveFrom: s.EffectiveFrom.Format("2006-01-02"),
		Notes:         s.Notes,
		UpdatedBy:     s.UpdatedBy,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

type SalaryHistoryResponse struct {
	ID        string        `json:"id"`
	OldValues *Snapshot     `json:"old_values"`
	NewValues Snapshot      `json:"new_values"`
	Changes   []FieldChange `json:"changes"`
	ChangedBy string        `json:"changed_by"`
	ChangedAt time.Time     `json:"changed_at"`
}

type SalaryHistoryListResponse struct {
	EmployeeID string                  `json:"employee_id"`
	Entries    []SalaryHistoryResponse `json:"entries"`
}
