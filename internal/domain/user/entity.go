package user

type Role string

const (
	RoleOwner    Role = "owner"    // Company owner - full access
	RoleManager  Role = "manager"  // HR / payroll administrator
	RoleEmployee Role = "employee" // Regular employee
	RolePending  Role = "pending"  // Still in onboarding
)

// Actor is the authenticated caller of a payroll operation. Capabilities are
// resolved once per request and travel with the actor.
type Actor struct {
	UserID       string
	CompanyID    string
	Role         Role
	Capabilities Capabilities
}

// NewActor builds an actor with capabilities derived from its role.
func NewActor(userID, companyID string, role Role) Actor {
	return Actor{
		UserID:       userID,
		CompanyID:    companyID,
		Role:         role,
		Capabilities: CapabilitiesFor(role),
	}
}

// IsOwner checks if actor is company owner
func (a Actor) IsOwner() bool {
	return a.Role == RoleOwner
}
