package attendance

import (
	"time"
)

// Classification is the finalized payroll meaning of one attendance day.
type Classification string

const (
	ClassificationPresent            Classification = "present"
	ClassificationAbsent             Classification = "absent"              // unexcused absence
	ClassificationCorrectionRejected Classification = "correction_rejected" // rejected attendance correction
	ClassificationOnLeave            Classification = "on_leave"
)

// IsLossOfPay reports whether the day reduces payable days.
func (c Classification) IsLossOfPay() bool {
	return c == ClassificationAbsent || c == ClassificationCorrectionRejected
}

// Day is one approved attendance fact for an employee.
type Day struct {
	EmployeeID     string
	Date           time.Time
	Classification Classification
	IsHalfDay      bool
}
