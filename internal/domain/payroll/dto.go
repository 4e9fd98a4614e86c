package payroll

import (
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/audit"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

func validateScope(errs *validator.ValidationErrors, scope employee.Scope) {
	if scope.BranchID != nil && !validator.IsValidUUID(*scope.BranchID) {
		errs.Add("branch_id", "branch_id must be a valid UUID")
	}
	if scope.DepartmentID != nil && !validator.IsValidUUID(*scope.DepartmentID) {
		errs.Add("department_id", "department_id must be a valid UUID")
	}
	for _, id := range scope.EmployeeIDs {
		if !validator.IsValidUUID(id) {
			errs.Add("employee_ids", "employee_ids must contain valid UUIDs")
			break
		}
	}
}

func validatePeriod(errs *validator.ValidationErrors, p Period) {
	if err := p.Validate(); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			*errs = append(*errs, verrs...)
		}
	}
}

// ========== PREVIEW DTOs ==========

type PreviewRequest struct {
	Period Period         `json:"-"`
	Scope  employee.Scope `json:"scope"`
}

func (r *PreviewRequest) Validate() error {
	var errs validator.ValidationErrors
	validatePeriod(&errs, r.Period)
	validateScope(&errs, r.Scope)
	return errs.Err()
}

type PreviewRow struct {
	EmployeeID        string          `json:"employee_id"`
	EmployeeCode      string          `json:"employee_code"`
	EmployeeName      string          `json:"employee_name"`
	WorkingDays       decimal.Decimal `json:"working_days"`
	AttendanceLOPDays decimal.Decimal `json:"attendance_lop_days"`
	UnpaidLeaveDays   decimal.Decimal `json:"unpaid_leave_days"`
	PaidLeaveDays     decimal.Decimal `json:"paid_leave_days"`
	LOPDays           decimal.Decimal `json:"lop_days"`
	PayableDays       decimal.Decimal `json:"payable_days"`
	GrossSalary       decimal.Decimal `json:"gross_salary"`
	TotalDeductions   decimal.Decimal `json:"total_deductions"`
	NetSalary         decimal.Decimal `json:"net_salary"`
	Warnings          []string        `json:"warnings,omitempty"`
	Error             *string         `json:"error,omitempty"`
	ExistingStatus    *LineStatus     `json:"existing_status,omitempty"`
}

type PreviewTotals struct {
	Employees           int             `json:"employees"`
	PayableEmployees    int             `json:"payable_employees"`
	EmployeesWithErrors int             `json:"employees_with_errors"`
	GrossSalary         decimal.Decimal `json:"gross_salary"`
	TotalDeductions     decimal.Decimal `json:"total_deductions"`
	NetSalary           decimal.Decimal `json:"net_salary"`
}

type PreviewResponse struct {
	Period        string        `json:"period"`
	Locked        bool          `json:"locked"`
	MonthComplete bool          `json:"month_complete"`
	Warnings      []string      `json:"warnings"`
	Rows          []PreviewRow  `json:"rows"`
	Totals        PreviewTotals `json:"totals"`
}

const WarningMonthOpen = "month is still open"

// ========== GENERATE DTOs ==========

type GenerateRequest struct {
	Period Period         `json:"-"`
	Scope  employee.Scope `json:"scope"`
	Notes  *string        `json:"notes,omitempty"`
}

func (r *GenerateRequest) Validate() error {
	var errs validator.ValidationErrors
	validatePeriod(&errs, r.Period)
	validateScope(&errs, r.Scope)
	if r.Notes != nil && len(*r.Notes) > 1000 {
		errs.Add("notes", "notes must not exceed 1000 characters")
	}
	return errs.Err()
}

type GenerateResponse struct {
	Period          string       `json:"period"`
	Created         int          `json:"created"`
	Updated         int          `json:"updated"`
	SkippedApproved int          `json:"skipped_approved"`
	Failed          int          `json:"failed"`
	HeaderStatus    HeaderStatus `json:"header_status"`
}

// ========== APPROVE DTOs ==========

type ApproveRequest struct {
	Period  Period         `json:"-"`
	Scope   employee.Scope `json:"scope"`
	LineIDs []string       `json:"line_ids"`
}

func (r *ApproveRequest) Validate() error {
	var errs validator.ValidationErrors
	validatePeriod(&errs, r.Period)
	validateScope(&errs, r.Scope)
	if len(r.LineIDs) == 0 {
		errs.Add("line_ids", "at least one line id is required")
	}
	for _, id := range r.LineIDs {
		if validator.IsEmpty(id) {
			errs.Add("line_ids", "line_ids must not contain empty values")
			break
		}
	}
	return errs.Err()
}

type ApproveOutcome string

const (
	ApproveOutcomeApproved      ApproveOutcome = "approved"
	ApproveOutcomeSkipped       ApproveOutcome = "skipped"
	ApproveOutcomeNotFound      ApproveOutcome = "not_found"
	ApproveOutcomeInvalidStatus ApproveOutcome = "invalid_status"
)

type ApproveResult struct {
	LineID  string         `json:"line_id"`
	Outcome ApproveOutcome `json:"outcome"`
	Status  *LineStatus    `json:"status,omitempty"`
}

type ApproveResponse struct {
	Period   string          `json:"period"`
	Approved int             `json:"approved"`
	Results  []ApproveResult `json:"results"`
}

// ========== PAY DTOs ==========

type PayRequest struct {
	Period           Period         `json:"-"`
	Scope            employee.Scope `json:"scope"`
	PaymentMethod    string         `json:"payment_method"`
	PaymentReference *string        `json:"payment_reference,omitempty"`
	Notes            *string        `json:"notes,omitempty"`
	ConfirmLock      bool           `json:"confirm_lock"`
}

func (r *PayRequest) Validate() error {
	var errs validator.ValidationErrors
	validatePeriod(&errs, r.Period)
	validateScope(&errs, r.Scope)
	if validator.IsEmpty(r.PaymentMethod) {
		errs.Add("payment_method", "payment_method is required")
	} else if len(r.PaymentMethod) > 100 {
		errs.Add("payment_method", "payment_method must not exceed 100 characters")
	}
	if r.PaymentReference != nil && len(*r.PaymentReference) > 255 {
		errs.Add("payment_reference", "payment_reference must not exceed 255 characters")
	}
	if !r.ConfirmLock {
		errs.Add("confirm_lock", "confirm_lock must be true to pay and lock the month")
	}
	return errs.Err()
}

type MonthLockResponse struct {
	ID           string         `json:"id"`
	Period       string         `json:"period"`
	LockedBy     string         `json:"locked_by"`
	LockedAt     time.Time      `json:"locked_at"`
	UnlockedBy   *string        `json:"unlocked_by,omitempty"`
	UnlockedAt   *time.Time     `json:"unlocked_at,omitempty"`
	UnlockReason *string        `json:"unlock_reason,omitempty"`
	Active       bool           `json:"active"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func NewMonthLockResponse(m MonthLock) MonthLockResponse {
	return MonthLockResponse{
		ID:           m.ID,
		Period:       m.Period.String(),
		LockedBy:     m.LockedBy,
		LockedAt:     m.LockedAt,
		UnlockedBy:   m.UnlockedBy,
		UnlockedAt:   m.UnlockedAt,
		UnlockReason: m.UnlockReason,
		Active:       m.IsActive(),
		Metadata:     m.Metadata,
	}
}

type PayResponse struct {
	Period      string            `json:"period"`
	PaidCount   int               `json:"paid_count"`
	AlreadyPaid int               `json:"already_paid"`
	TotalNet    decimal.Decimal   `json:"total_net"`
	Lock        MonthLockResponse `json:"lock"`
}

// ========== UNLOCK DTOs ==========

type UnlockRequest struct {
	Period Period `json:"-"`
	Reason string `json:"reason"`
}

func (r *UnlockRequest) Validate() error {
	var errs validator.ValidationErrors
	validatePeriod(&errs, r.Period)
	if validator.IsEmpty(r.Reason) {
		errs.Add("reason", "reason is required")
	} else if len(r.Reason) > 1000 {
		errs.Add("reason", "reason must not exceed 1000 characters")
	}
	return errs.Err()
}

type UnlockResponse struct {
	Period string            `json:"period"`
	Lock   MonthLockResponse `json:"lock"`
}

// ========== OVERVIEW DTOs ==========

type OverviewRequest struct {
	Period Period         `json:"-"`
	Scope  employee.Scope `json:"scope"`
	Status *LineStatus    `json:"status,omitempty"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

func (r *OverviewRequest) Validate() error {
	var errs validator.ValidationErrors
	validatePeriod(&errs, r.Period)
	validateScope(&errs, r.Scope)
	if r.Status != nil && !r.Status.IsValid() {
		errs.Add("status", "status must be one of draft, generated, approved, paid, failed")
	}
	if r.Page < 0 {
		errs.Add("page", "page must be positive")
	}
	if r.Limit < 0 || r.Limit > 500 {
		errs.Add("limit", "limit must be between 1 and 500")
	}
	return errs.Err()
}

// Normalize applies pagination defaults.
func (r *OverviewRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit < 1 {
		r.Limit = 50
	}
}

type LineResponse struct {
	ID                     string          `json:"id"`
	EmployeeID             string          `json:"employee_id"`
	EmployeeName           *string         `json:"employee_name,omitempty"`
	EmployeeCode           *string         `json:"employee_code,omitempty"`
	Period                 string          `json:"period"`
	WorkingDays            decimal.Decimal `json:"working_days"`
	AttendanceLOPDays      decimal.Decimal `json:"attendance_lop_days"`
	UnpaidLeaveDays        decimal.Decimal `json:"unpaid_leave_days"`
	PaidLeaveDays          decimal.Decimal `json:"paid_leave_days"`
	LOPDays                decimal.Decimal `json:"lop_days"`
	PayableDays            decimal.Decimal `json:"payable_days"`
	Basic                  decimal.Decimal `json:"basic"`
	HousingAllowance       decimal.Decimal `json:"housing_allowance"`
	SpecialAllowance       decimal.Decimal `json:"special_allowance"`
	Bonus                  decimal.Decimal `json:"bonus"`
	OtherAllowance         decimal.Decimal `json:"other_allowance"`
	StructureEffectiveFrom *string         `json:"structure_effective_from,omitempty"`
	BasicEarned            decimal.Decimal `json:"basic_earned"`
	HousingEarned          decimal.Decimal `json:"housing_earned"`
	SpecialEarned          decimal.Decimal `json:"special_earned"`
	BonusEarned            decimal.Decimal `json:"bonus_earned"`
	OtherEarned            decimal.Decimal `json:"other_earned"`
	GrossSalary            decimal.Decimal `json:"gross_salary"`
	PFDeduction            decimal.Decimal `json:"pf_deduction"`
	TaxDeduction           decimal.Decimal `json:"tax_deduction"`
	OtherDeduction         decimal.Decimal `json:"other_deduction"`
	TotalDeductions        decimal.Decimal `json:"total_deductions"`
	NetSalary              decimal.Decimal `json:"net_salary"`
	Status                 LineStatus      `json:"status"`
	ErrorMessage           *string         `json:"error_message,omitempty"`
	Warnings               []string        `json:"warnings,omitempty"`
	GeneratedBy            *string         `json:"generated_by,omitempty"`
	GeneratedAt            *time.Time      `json:"generated_at,omitempty"`
	ApprovedBy             *string         `json:"approved_by,omitempty"`
	ApprovedAt             *time.Time      `json:"approved_at,omitempty"`
	PaidBy                 *string         `json:"paid_by,omitempty"`
	PaidAt                 *time.Time      `json:"paid_at,omitempty"`
	PaymentMethod          *string         `json:"payment_method,omitempty"`
	PaymentReference       *string         `json:"payment_reference,omitempty"`
	Notes                  *string         `json:"notes,omitempty"`
}

func NewLineResponse(l Line) LineResponse {
	resp := LineResponse{
		ID:                l.ID,
		EmployeeID:        l.EmployeeID,
		EmployeeName:      l.EmployeeName,
		EmployeeCode:      l.EmployeeCode,
		Period:            l.Period.String(),
		WorkingDays:       l.WorkingDays,
		AttendanceLOPDays: l.AttendanceLOPDays,
		UnpaidLeaveDays:   l.UnpaidLeaveDays,
		PaidLeaveDays:     l.PaidLeaveDays,
		LOPDays:           l.LOPDays,
		PayableDays:       l.PayableDays,
		Basic:             l.Structure.Basic,
		HousingAllowance:  l.Structure.HousingAllowance,
		SpecialAllowance:  l.Structure.SpecialAllowance,
		Bonus:             l.Structure.Bonus,
		OtherAllowance:    l.Structure.OtherAllowance,
		BasicEarned:       l.BasicEarned,
		HousingEarned:     l.HousingEarned,
		SpecialEarned:     l.SpecialEarned,
		BonusEarned:       l.BonusEarned,
		OtherEarned:       l.OtherEarned,
		GrossSalary:       l.GrossSalary,
		PFDeduction:       l.Structure.PFDeduction,
		TaxDeduction:      l.Structure.TaxDeduction,
		OtherDeduction:    l.Structure.OtherDeduction,
		TotalDeductions:   l.TotalDeductions,
		NetSalary:         l.NetSalary,
		Status:            l.Status,
		ErrorMessage:      l.ErrorMessage,
		Warnings:          l.Warnings,
		GeneratedBy:       l.GeneratedBy,
		GeneratedAt:       l.GeneratedAt,
		ApprovedBy:        l.ApprovedBy,
		ApprovedAt:        l.ApprovedAt,
		PaidBy:            l.PaidBy,
		PaidAt:            l.PaidAt,
		PaymentMethod:     l.PaymentMethod,
		PaymentReference:  l.PaymentReference,
		Notes:             l.Notes,
	}
	if l.StructureEffectiveFrom != nil {
		s := l.StructureEffectiveFrom.Format("2006-01-02")
		resp.StructureEffectiveFrom = &s
	}
	return resp
}

type StatusCounts struct {
	Draft     int `json:"draft"`
	Generated int `json:"generated"`
	Approved  int `json:"approved"`
	Paid      int `json:"paid"`
	Failed    int `json:"failed"`
}

type HeaderResponse struct {
	Period          string             `json:"period"`
	Status          HeaderStatus       `json:"status"`
	Locked          bool               `json:"locked"`
	ActiveLock      *MonthLockResponse `json:"active_lock,omitempty"`
	TotalLines      int                `json:"total_lines"`
	Counts          StatusCounts       `json:"counts"`
	GrossSalary     decimal.Decimal    `json:"gross_salary"`
	TotalDeductions decimal.Decimal    `json:"total_deductions"`
	NetSalary       decimal.Decimal    `json:"net_salary"`
}

type OverviewResponse struct {
	Header     HeaderResponse `json:"header"`
	Lines      []LineResponse `json:"lines"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

// ========== HISTORY DTOs ==========

type MonthHistoryResponse struct {
	Period string              `json:"period"`
	Locks  []MonthLockResponse `json:"locks"`
	Events []audit.Entry       `json:"events"`
}
