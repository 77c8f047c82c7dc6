package rbac

type Role string

const (
	RoleMember      Role = "MEMBER"
	RoleOfficeAdmin Role = "OFFICE_ADMIN"
	RoleAdminMC     Role = "ADMIN_MC"
)

// CanManage reports whether a caller may update or delete an entity owned by
// ownerOfficeID. ADMIN_MC manages everything; everyone else only their office.
func CanManage(role Role, callerOfficeID, ownerOfficeID string) bool {
	if role == RoleAdminMC {
		return true
	}
	return callerOfficeID != "" && callerOfficeID == ownerOfficeID
}

// CanCreateFor reports whether a caller may create an entity under officeID.
func CanCreateFor(role Role, callerOfficeID, officeID string) bool {
	if role == RoleAdminMC {
		return true
	}
	return callerOfficeID != "" && callerOfficeID == officeID
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleOfficeAdmin, RoleAdminMC:
		return Role(role)
	default:
		return RoleMember
	}
}
