package payroll

import (
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/holiday"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/leave"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

var (
	fullDay = decimal.NewFromInt(1)
	halfDay = decimal.New(5, -1)
)

// AggregatorInput is the raw upstream data for one month. Records of other
// employees or outside the month are ignored.
type AggregatorInput struct {
	Attendance []attendance.Day
	Leave      []leave.Day
	Holidays   []holiday.Holiday
	// Today decides whether the month has finished.
	Today time.Time
}

// Aggregator derives working and loss-of-pay days from attendance and leave.
type Aggregator struct {
	weekend map[time.Weekday]bool
}

func NewAggregator(weekendDays []time.Weekday) *Aggregator {
	weekend := make(map[time.Weekday]bool, len(weekendDays))
	for _, d := range weekendDays {
		weekend[d] = true
	}
	return &Aggregator{weekend: weekend}
}

type leaveWeight struct {
	paid   decimal.Decimal
	unpaid decimal.Decimal
}

func (a *Aggregator) Aggregate(period payroll.Period, employeeID string, in AggregatorInput) payroll.DayAggregate {
	nonWorking := a.nonWorkingDays(period, in.Holidays)
	working := period.Days() - len(nonWorking)

	isWorkingDate := func(t time.Time) bool {
		if !period.Contains(t) {
			return false
		}
		_, off := nonWorking[dateKey(t)]
		return !off
	}

	leaveByDate := make(map[string]*leaveWeight)
	for _, d := range in.Leave {
		if d.EmployeeID != employeeID || !isWorkingDate(d.Date) {
			continue
		}
		key := dateKey(d.Date)
		w, ok := leaveByDate[key]
		if !ok {
			w = &leaveWeight{paid: decimal.Zero, unpaid: decimal.Zero}
			leaveByDate[key] = w
		}
		weight := fullDay
		if d.IsHalfDay() {
			weight = halfDay
		}
		if d.IsPaid {
			w.paid = w.paid.Add(weight)
		} else {
			w.unpaid = w.unpaid.Add(weight)
		}
	}

	paidLeave := decimal.Zero
	unpaidLeave := decimal.Zero
	leaveTotal := make(map[string]decimal.Decimal, len(leaveByDate))
	for key, w := range leaveByDate {
		unpaid := decimal.Min(w.unpaid, fullDay)
		paid := decimal.Min(w.paid, fullDay.Sub(unpaid))
		unpaidLeave = unpaidLeave.Add(unpaid)
		paidLeave = paidLeave.Add(paid)
		leaveTotal[key] = unpaid.Add(paid)
	}

	// One attendance weight per date; the heaviest record wins.
	attendanceByDate := make(map[string]decimal.Decimal)
	for _, d := range in.Attendance {
		if d.EmployeeID != employeeID || !d.Classification.IsLossOfPay() || !isWorkingDate(d.Date) {
			continue
		}
		weight := fullDay
		if d.IsHalfDay {
			weight = halfDay
		}
		key := dateKey(d.Date)
		if prev, ok := attendanceByDate[key]; !ok || weight.GreaterThan(prev) {
			attendanceByDate[key] = weight
		}
	}

	attendanceLOP := decimal.Zero
	for key, weight := range attendanceByDate {
		// Leave on the same date takes precedence over the attendance record.
		remaining := fullDay
		if lt, ok := leaveTotal[key]; ok {
			remaining = fullDay.Sub(lt)
		}
		if remaining.IsPositive() {
			attendanceLOP = attendanceLOP.Add(decimal.Min(weight, remaining))
		}
	}

	return payroll.DayAggregate{
		WorkingDays:       decimal.NewFromInt(int64(working)),
		AttendanceLOPDays: attendanceLOP,
		UnpaidLeaveDays:   unpaidLeave,
		PaidLeaveDays:     paidLeave,
		MonthComplete:     !in.Today.IsZero() && dateOnly(in.Today).After(period.End()),
	}
}

func (a *Aggregator) nonWorkingDays(period payroll.Period, holidays []holiday.Holiday) map[string]struct{} {
	off := make(map[string]struct{})
	for d := period.Start(); !d.After(period.End()); d = d.AddDate(0, 0, 1) {
		if a.weekend[d.Weekday()] {
			off[dateKey(d)] = struct{}{}
		}
	}
	for _, h := range holidays {
		if period.Contains(h.Date) {
			off[dateKey(h.Date)] = struct{}{}
		}
	}
	return off
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
