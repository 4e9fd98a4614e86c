package salary

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxAmount is the exclusive upper bound of a NUMERIC(15,2) amount column.
var MaxAmount = decimal.New(1, 13)

// Components are the eight monthly amounts of a salary structure.
type Components struct {
	Basic            decimal.Decimal `json:"basic"`
	HousingAllowance decimal.Decimal `json:"housing_allowance"`
	SpecialAllowance decimal.Decimal `json:"special_allowance"`
	Bonus            decimal.Decimal `json:"bonus"`
	OtherAllowance   decimal.Decimal `json:"other_allowance"`
	PFDeduction      decimal.Decimal `json:"pf_deduction"`
	TaxDeduction     decimal.Decimal `json:"tax_deduction"`
	OtherDeduction   decimal.Decimal `json:"other_deduction"`
}

type namedAmount struct {
	field  string
	amount decimal.Decimal
}

func (c Components) fields() []namedAmount {
	return []namedAmount{
		{"basic", c.Basic},
		{"housing_allowance", c.HousingAllowance},
		{"special_allowance", c.SpecialAllowance},
		{"bonus", c.Bonus},
		{"other_allowance", c.OtherAllowance},
		{"pf_deduction", c.PFDeduction},
		{"tax_deduction", c.TaxDeduction},
		{"other_deduction", c.OtherDeduction},
	}
}

// TotalDeductions is the sum of the fixed monthly deductions.
func (c Components) TotalDeductions() decimal.Decimal {
	return c.PFDeduction.Add(c.TaxDeduction).Add(c.OtherDeduction)
}

// Structure is the current salary structure of one employee.
type Structure struct {
	ID            string
	CompanyID     string
	EmployeeID    string
	Components    Components
	EffectiveFrom time.Time
	Notes         *string
	UpdatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Snapshot is the value form of a structure stored in history rows.
type Snapshot struct {
	Components
	EffectiveFrom string  `json:"effective_from"`
	Notes         *string `json:"notes,omitempty"`
}

func (s Structure) Snapshot() Snapshot {
	return Snapshot{
		Components:    s.Components,
		EffectiveFrom: s.EffectiveFrom.Format("2006-01-02"),
		Notes:         s.Notes,
	}
}

// FieldChange is one changed field of a structure edit.
type FieldChange struct {
	Field string  `json:"field"`
	Old   *string `json:"old"`
	New   *string `json:"new"`
}

// Diff lists the fields that differ between prev and next. A nil prev is the
// first write and reports every field as new.
func Diff(prev *Snapshot, next Snapshot) []FieldChange {
	changes := make([]FieldChange, 0)

	nextFields := next.Components.fields()
	for i, nf := range nextFields {
		newVal := nf.amount.StringFixed(2)
		if prev == nil {
			changes = append(changes, FieldChange{Field: nf.field, New: &newVal})
			continue
		}
		pf := prev.Components.fields()[i]
		if !pf.amount.Equal(nf.amount) {
			oldVal := pf.amount.StringFixed(2)
			changes = append(changes, FieldChange{Field: nf.field, Old: &oldVal, New: &newVal})
		}
	}

	if prev == nil || prev.EffectiveFrom != next.EffectiveFrom {
		newVal := next.EffectiveFrom
		var oldVal *string
		if prev != nil {
			v := prev.EffectiveFrom
			oldVal = &v
		}
		changes = append(changes, FieldChange{Field: "effective_from", Old: oldVal, New: &newVal})
	}

	if !sameNotes(prevNotes(prev), next.Notes) {
		changes = append(changes, FieldChange{Field: "notes", Old: prevNotes(prev), New: next.Notes})
	}

	return changes
}

func prevNotes(s *Snapshot) *string {
	if s == nil {
		return nil
	}
	return s.Notes
}

func sameNotes(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// History is one append-only record of a structure change.
type History struct {
	ID         string
	CompanyID  string
	EmployeeID string
	OldValues  *Snapshot
	NewValues  Snapshot
	Changes    []FieldChange
	ChangedBy  string
	ChangedAt  time.Time
}
