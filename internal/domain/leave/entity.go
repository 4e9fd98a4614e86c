package leave

import "time"

// LeaveDurationEnum maps to leave_duration_enum in DB
type LeaveDurationEnum string

const (
	LeaveDurationFullDay          LeaveDurationEnum = "full_day"
	LeaveDurationHalfDayMorning   LeaveDurationEnum = "half_day_morning"
	LeaveDurationHalfDayAfternoon LeaveDurationEnum = "half_day_afternoon"
)

func (d LeaveDurationEnum) IsHalfDay() bool {
	return d == LeaveDurationHalfDayMorning || d == LeaveDurationHalfDayAfternoon
}

// Day is one approved leave day, already expanded from the leave request range.
type Day struct {
	EmployeeID    string
	Date          time.Time
	LeaveTypeID   string
	LeaveTypeName string
	IsPaid        bool
	DurationType  LeaveDurationEnum
}

func (d Day) IsHalfDay() bool {
	return d.DurationType.IsHalfDay()
}
