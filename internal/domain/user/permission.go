package user

type Permission string

const (
	// Payroll workflow
	PermissionPayrollView     Permission = "payroll.view"
	PermissionPayrollGenerate Permission = "payroll.generate"
	PermissionPayrollApprove  Permission = "payroll.approve"
	PermissionPayrollMarkPaid Permission = "payroll.mark_paid"
	PermissionPayrollUnlock   Permission = "payroll.unlock"

	// Salary structures
	PermissionSalaryView   Permission = "salary.view"
	PermissionSalaryManage Permission = "salary.manage"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[Role][]Permission{
	RoleOwner: {
		// Owner has all permissions, including the month unlock escape hatch
		PermissionPayrollView,
		PermissionPayrollGenerate,
		PermissionPayrollApprove,
		PermissionPayrollMarkPaid,
		PermissionPayrollUnlock,
		PermissionSalaryView,
		PermissionSalaryManage,
	},
	RoleManager: {
		PermissionPayrollView,
		PermissionPayrollGenerate,
		PermissionPayrollApprove,
		PermissionSalaryView,
		PermissionSalaryManage,
	},
	RoleEmployee: {},
	RolePending: {
		// Pending role has no permissions
	},
}

// HasPermission checks if a role has a specific permission
func HasPermission(role Role, permission Permission) bool {
	permissions, exists := RolePermissions[role]
	if !exists {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}

	return false
}

// Capabilities is the resolved permission set handed to the payroll core.
type Capabilities struct {
	CanView         bool `json:"can_view"`
	CanGenerate     bool `json:"can_generate"`
	CanApprove      bool `json:"can_approve"`
	CanMarkPaid     bool `json:"can_mark_paid"`
	CanUnlock       bool `json:"can_unlock"`
	CanViewSalary   bool `json:"can_view_salary"`
	CanManageSalary bool `json:"can_manage_salary"`
}

func CapabilitiesFor(role Role) Capabilities {
	return Capabilities{
		CanView:         HasPermission(role, PermissionPayrollView),
		CanGenerate:     HasPermission(role, PermissionPayrollGenerate),
		CanApprove:      HasPermission(role, PermissionPayrollApprove),
		CanMarkPaid:     HasPermission(role, PermissionPayrollMarkPaid),
		CanUnlock:       HasPermission(role, PermissionPayrollUnlock),
		CanViewSalary:   HasPermission(role, PermissionSalaryView),
		CanManageSalary: HasPermission(role, PermissionSalaryManage),
	}
}
