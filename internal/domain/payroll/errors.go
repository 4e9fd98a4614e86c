package payroll

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMonthLocked        = errors.New("payroll month is locked")
	ErrMonthNotLocked     = errors.New("payroll month is not locked")
	ErrPreconditionFailed = errors.New("payroll precondition failed")
	ErrConflict           = errors.New("payroll month was modified concurrently")
	ErrForbidden          = errors.New("insufficient permissions for payroll operation")

	ErrMissingStructure      = errors.New("missing structure")
	ErrStructureNotEffective = errors.New("structure not yet effective")

	ErrLineNotFound      = errors.New("payroll line not found")
	ErrLineAlreadyExists = errors.New("payroll line already exists for this period")
	ErrLockNotFound      = errors.New("payroll month lock not found")
)

// BlockingLine is a line that prevents a month from being paid.
type BlockingLine struct {
	LineID     string     `json:"line_id"`
	EmployeeID string     `json:"employee_id"`
	Status     LineStatus `json:"status"`
}

// PreconditionError carries the lines that block a transition.
type PreconditionError struct {
	Reason string
	Lines  []BlockingLine
}

func (e *PreconditionError) Error() string {
	if len(e.Lines) == 0 {
		return e.Reason
	}
	ids := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		ids = append(ids, fmt.Sprintf("%s(%s)", l.LineID, l.Status))
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(ids, ", "))
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPreconditionFailed
}
