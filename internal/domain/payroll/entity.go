package payroll

import (
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/salary"
	"github.com/shopspring/decimal"
)

// LineStatus enum
type LineStatus string

const (
	LineStatusDraft     LineStatus = "draft"
	LineStatusGenerated LineStatus = "generated"
	LineStatusApproved  LineStatus = "approved"
	LineStatusPaid      LineStatus = "paid"
	LineStatusFailed    LineStatus = "failed"
)

func (s LineStatus) IsValid() bool {
	switch s {
	case LineStatusDraft, LineStatusGenerated, LineStatusApproved, LineStatusPaid, LineStatusFailed:
		return true
	}
	return false
}

// IsRecomputable reports whether generate may overwrite the line.
func (s LineStatus) IsRecomputable() bool {
	return s == LineStatusDraft || s == LineStatusGenerated || s == LineStatusFailed
}

func (s LineStatus) IsApprovable() bool {
	return s == LineStatusGenerated || s == LineStatusFailed
}

const WarningNetNegative = "net_negative"

// DayAggregate is the attendance and leave summary of one employee for one month.
type DayAggregate struct {
	WorkingDays       decimal.Decimal
	AttendanceLOPDays decimal.Decimal
	UnpaidLeaveDays   decimal.Decimal
	PaidLeaveDays     decimal.Decimal
	MonthComplete     bool
}

// Computation is the calculator output for one employee.
type Computation struct {
	WorkingDays       decimal.Decimal
	AttendanceLOPDays decimal.Decimal
	UnpaidLeaveDays   decimal.Decimal
	PaidLeaveDays     decimal.Decimal
	LOPDays           decimal.Decimal
	PayableDays       decimal.Decimal

	Structure              salary.Components
	StructureEffectiveFrom time.Time

	BasicEarned     decimal.Decimal
	HousingEarned   decimal.Decimal
	SpecialEarned   decimal.Decimal
	BonusEarned     decimal.Decimal
	OtherEarned     decimal.Decimal
	GrossSalary     decimal.Decimal
	TotalDeductions decimal.Decimal
	NetSalary       decimal.Decimal

	Warnings []string
}

// Line is the payroll result of one employee for one month.
type Line struct {
	ID           string
	CompanyID    string
	EmployeeID   string
	Period       Period
	BranchID     *string
	DepartmentID *string

	WorkingDays       decimal.Decimal
	AttendanceLOPDays decimal.Decimal
	UnpaidLeaveDays   decimal.Decimal
	PaidLeaveDays     decimal.Decimal
	LOPDays           decimal.Decimal
	PayableDays       decimal.Decimal

	// Structure values copied at calculation time
	Structure              salary.Components
	StructureEffectiveFrom *time.Time

	BasicEarned     decimal.Decimal
	HousingEarned   decimal.Decimal
	SpecialEarned   decimal.Decimal
	BonusEarned     decimal.Decimal
	OtherEarned     decimal.Decimal
	GrossSalary     decimal.Decimal
	TotalDeductions decimal.Decimal
	NetSalary       decimal.Decimal

	Status       LineStatus
	ErrorMessage *string
	Warnings     []string

	GeneratedBy      *string
	GeneratedAt      *time.Time
	ApprovedBy       *string
	ApprovedAt       *time.Time
	PaidBy           *string
	PaidAt           *time.Time
	PaymentMethod    *string
	PaymentReference *string
	Notes            *string
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Joined fields
	EmployeeName *string
	EmployeeCode *string
}

// ApplyComputation overwrites the computed values of the line and marks it generated.
func (l *Line) ApplyComputation(c Computation) {
	l.WorkingDays = c.WorkingDays
	l.AttendanceLOPDays = c.AttendanceLOPDays
	l.UnpaidLeaveDays = c.UnpaidLeaveDays
	l.PaidLeaveDays = c.PaidLeaveDays
	l.LOPDays = c.LOPDays
	l.PayableDays = c.PayableDays
	l.Structure = c.Structure
	effective := c.StructureEffectiveFrom
	l.StructureEffectiveFrom = &effective
	l.BasicEarned = c.BasicEarned
	l.HousingEarned = c.HousingEarned
	l.SpecialEarned = c.SpecialEarned
	l.BonusEarned = c.BonusEarned
	l.OtherEarned = c.OtherEarned
	l.GrossSalary = c.GrossSalary
	l.TotalDeductions = c.TotalDeductions
	l.NetSalary = c.NetSalary
	l.Warnings = c.Warnings
	l.Status = LineStatusGenerated
	l.ErrorMessage = nil
}

// ApplyFailure clears computed money and records why the line could not be computed.
// Day counts from the aggregate are kept so the failure can be diagnosed.
func (l *Line) ApplyFailure(agg DayAggregate, cause error) {
	zero := decimal.Zero
	l.WorkingDays = agg.WorkingDays
	l.AttendanceLOPDays = agg.AttendanceLOPDays
	l.UnpaidLeaveDays = agg.UnpaidLeaveDays
	l.PaidLeaveDays = agg.PaidLeaveDays
	l.LOPDays = agg.AttendanceLOPDays.Add(agg.UnpaidLeaveDays)
	l.PayableDays = zero
	l.Structure = salary.Components{}
	l.StructureEffectiveFrom = nil
	l.BasicEarned = zero
	l.HousingEarned = zero
	l.SpecialEarned = zero
	l.BonusEarned = zero
	l.OtherEarned = zero
	l.GrossSalary = zero
	l.TotalDeductions = zero
	l.NetSalary = zero
	l.Warnings = nil
	msg := cause.Error()
	l.ErrorMessage = &msg
	l.Status = LineStatusFailed
}

// MonthLock is one row of the month lock ledger. The month is locked while
// the latest row has no UnlockedAt.
type MonthLock struct {
	ID           string
	CompanyID    string
	Period       Period
	LockedBy     string
	LockedAt     time.Time
	UnlockedBy   *string
	UnlockedAt   *time.Time
	UnlockReason *string
	Metadata     map[string]any
}

func (m MonthLock) IsActive() bool {
	return m.UnlockedAt == nil
}
