package payroll

import (
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/salary"
	"github.com/shopspring/decimal"
)

// Calculator turns a salary structure and a day aggregate into line values.
// It holds no state and performs no I/O.
type Calculator struct {
}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute returns payroll.ErrMissingStructure when structure is nil and
// payroll.ErrStructureNotEffective when the structure starts after the month.
func (c *Calculator) Compute(period payroll.Period, structure *salary.Structure, agg payroll.DayAggregate) (payroll.Computation, error) {
	if structure == nil {
		return payroll.Computation{}, payroll.ErrMissingStructure
	}
	if structure.EffectiveFrom.After(period.End()) {
		return payroll.Computation{}, payroll.ErrStructureNotEffective
	}

	working := nonNegative(agg.WorkingDays)
	lop := agg.AttendanceLOPDays.Add(agg.UnpaidLeaveDays)
	payable := nonNegative(working.Sub(lop))

	comp := structure.Components
	out := payroll.Computation{
		WorkingDays:            working,
		AttendanceLOPDays:      agg.AttendanceLOPDays,
		UnpaidLeaveDays:        agg.UnpaidLeaveDays,
		PaidLeaveDays:          agg.PaidLeaveDays,
		LOPDays:                lop,
		PayableDays:            payable,
		Structure:              comp,
		StructureEffectiveFrom: structure.EffectiveFrom,
		Warnings:               []string{},
	}

	// Scale by payable/working without rounding the factor itself.
	scale := func(amount decimal.Decimal) decimal.Decimal {
		if working.IsZero() {
			return decimal.Zero
		}
		return amount.Mul(payable).Div(working)
	}

	out.BasicEarned = scale(comp.Basic)
	out.HousingEarned = scale(comp.HousingAllowance)
	out.SpecialEarned = scale(comp.SpecialAllowance)
	out.OtherEarned = scale(comp.OtherAllowance)
	out.BonusEarned = decimal.Zero
	if payable.IsPositive() {
		out.BonusEarned = comp.Bonus
	}

	gross := out.BasicEarned.
		Add(out.HousingEarned).
		Add(out.SpecialEarned).
		Add(out.BonusEarned).
		Add(out.OtherEarned)
	deductions := comp.TotalDeductions()

	net := gross.Sub(deductions)
	if net.IsNegative() {
		net = decimal.Zero
		out.Warnings = append(out.Warnings, payroll.WarningNetNegative)
	}

	out.GrossSalary = gross.Round(2)
	out.TotalDeductions = deductions.Round(2)
	out.NetSalary = net.Round(2)

	return out, nil
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
