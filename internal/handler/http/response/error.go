package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/salary"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	var precondition *payroll.PreconditionError
	if errors.As(err, &precondition) {
		details := make(map[string]string, len(precondition.Lines))
		for _, l := range precondition.Lines {
			details[l.LineID] = string(l.Status)
		}
		PreconditionFailed(w, precondition.Reason, details)
		return
	}

	switch {
	// Payroll domain errors
	case errors.Is(err, payroll.ErrMonthLocked):
		Locked(w, "Payroll month is locked")
	case errors.Is(err, payroll.ErrMonthNotLocked):
		Conflict(w, "Payroll month is not locked")
	case errors.Is(err, payroll.ErrConflict):
		Conflict(w, "Payroll month is being modified by another request")
	case errors.Is(err, payroll.ErrLineNotFound):
		NotFound(w, "Payroll line not found")
	case errors.Is(err, payroll.ErrPreconditionFailed):
		PreconditionFailed(w, err.Error(), nil)

	// Salary domain errors
	case errors.Is(err, salary.ErrSalaryStructureNotFound):
		NotFound(w, "Salary structure not found")
	case errors.Is(err, salary.ErrEmployeeNotFound), errors.Is(err, employee.ErrEmployeeNotFound):
		NotFound(w, "Employee not found")

	// Access errors
	case errors.Is(err, payroll.ErrForbidden), errors.Is(err, salary.ErrForbidden), errors.Is(err, user.ErrInsufficientPermissions):
		Forbidden(w, "You do not have permission to perform this action")
	case errors.Is(err, user.ErrUnauthenticated), errors.Is(err, user.ErrInvalidToken):
		Unauthorized(w, "Authentication required")
	case errors.Is(err, user.ErrNoCompany):
		Forbidden(w, "Complete company onboarding first")

	// Default
	default:
		slog.Error("Unhandled error", "error", err)
		InternalServerError(w, "An unexpected error occurred")
	}
}
