package payroll

import "github.com/shopspring/decimal"

// HeaderStatus is the month-level status, always derived from the lines.
type HeaderStatus string

const (
	HeaderStatusDraft     HeaderStatus = "draft"
	HeaderStatusGenerated HeaderStatus = "generated"
	HeaderStatusApproved  HeaderStatus = "approved"
	HeaderStatusPaid      HeaderStatus = "paid"
)

// DeriveHeaderStatus computes the month status from its line statuses:
// paid when every line is paid, approved when every line is approved or paid,
// generated when any line exists, draft otherwise.
func DeriveHeaderStatus(statuses []LineStatus) HeaderStatus {
	if len(statuses) == 0 {
		return HeaderStatusDraft
	}

	allPaid := true
	allApprovedOrPaid := true
	for _, s := range statuses {
		if s != LineStatusPaid {
			allPaid = false
		}
		if s != LineStatusPaid && s != LineStatusApproved {
			allApprovedOrPaid = false
		}
	}

	switch {
	case allPaid:
		return HeaderStatusPaid
	case allApprovedOrPaid:
		return HeaderStatusApproved
	default:
		return HeaderStatusGenerated
	}
}

// Summary is the aggregate of a month's lines.
type Summary struct {
	Counts          map[LineStatus]int
	GrossSalary     decimal.Decimal
	TotalDeductions decimal.Decimal
	NetSalary       decimal.Decimal
}

func (s Summary) TotalLines() int {
	total := 0
	for _, n := range s.Counts {
		total += n
	}
	return total
}

// HeaderStatus derives the header from the statuses present; the derivation
// only depends on which statuses occur, not how often.
func (s Summary) HeaderStatus() HeaderStatus {
	present := make([]LineStatus, 0, len(s.Counts))
	for status, n := range s.Counts {
		if n > 0 {
			present = append(present, status)
		}
	}
	return DeriveHeaderStatus(present)
}
