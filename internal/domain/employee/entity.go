package employee

type EmploymentStatus string

const (
	EmploymentStatusActive     EmploymentStatus = "active"
	EmploymentStatusResigned   EmploymentStatus = "resigned"
	EmploymentStatusTerminated EmploymentStatus = "terminated"
)

// Employee is the directory view the payroll core needs. The directory itself
// is owned by the employee module.
type Employee struct {
	ID               string
	CompanyID        string
	BranchID         *string
	DepartmentID     *string
	EmployeeCode     string
	FullName         string
	EmploymentStatus EmploymentStatus
}

// Scope narrows a batch operation to a branch, a department or an explicit set
// of employees. An empty scope selects every active employee of the company.
type Scope struct {
	BranchID     *string  `json:"branch_id,omitempty"`
	DepartmentID *string  `json:"department_id,omitempty"`
	EmployeeIDs  []string `json:"employee_ids,omitempty"`
}

// Contains reports whether an employee with the given placement falls inside the scope.
func (s Scope) Contains(employeeID string, branchID, departmentID *string) bool {
	if s.BranchID != nil && (branchID == nil || *branchID != *s.BranchID) {
		return false
	}
	if s.DepartmentID != nil && (departmentID == nil || *departmentID != *s.DepartmentID) {
		return false
	}
	if len(s.EmployeeIDs) > 0 {
		for _, id := range s.EmployeeIDs {
			if id == employeeID {
				return true
			}
		}
		return false
	}
	return true
}

func (s Scope) IsEmpty() bool {
	return s.BranchID == nil && s.DepartmentID == nil && len(s.EmployeeIDs) == 0
}
