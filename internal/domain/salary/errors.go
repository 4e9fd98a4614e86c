package salary

import "errors"

var (
	ErrSalaryStructureNotFound = errors.New("salary structure not found")
	ErrEmployeeNotFound        = errors.New("employee not found")
	ErrForbidden               = errors.New("insufficient permissions for salary structures")
)
