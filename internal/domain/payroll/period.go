package payroll

import (
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/validator"
)

// Period is one calendar payroll month.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, validator.ValidationErrors{{Field: "period", Message: "period must be in YYYY-MM format"}}
	}
	return Period{Year: t.Year(), Month: int(t.Month())}, nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func (p Period) Validate() error {
	var errs validator.ValidationErrors
	if p.Month < 1 || p.Month > 12 {
		errs.Add("period_month", "month must be between 1 and 12")
	}
	if p.Year < 2000 || p.Year > 2100 {
		errs.Add("period_year", "year must be between 2000 and 2100")
	}
	return errs.Err()
}

// Start is the first day of the month in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End is the last day of the month in UTC.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

func (p Period) Days() int {
	return p.End().Day()
}

// Contains reports whether the calendar date of t falls inside the month.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && int(t.Month()) == p.Month
}
