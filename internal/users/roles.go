package users

// Role capabilities consulted by every handler and service. Keeping the
// rules in one table avoids scattering string comparisons across routes.

func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleClient, RoleDealer, RoleTowCompany, RoleDriver:
		return true
	}
	return false
}

// RequiresApproval reports whether accounts of this role start unapproved
// and need an admin sign-off before they can log in.
func RequiresApproval(r Role) bool {
	return r == RoleDriver || r == RoleTowCompany
}

// CanCreateRequest reports whether the role may submit tow requests.
func CanCreateRequest(r Role) bool {
	return r == RoleClient || r == RoleDealer
}

// CanAcceptRequest reports whether the role may take a pending request
// directly, outside the negotiation flow.
func CanAcceptRequest(r Role) bool {
	return r == RoleDriver || r == RoleTowCompany
}

// CanViewAllRequests reports whether the role sees every request in listings.
func CanViewAllRequests(r Role) bool {
	return r == RoleTowCompany || r == RoleAdmin
}

// IsRequester reports whether the role acts as the client side of a
// negotiation (owners of requests).
func IsRequester(r Role) bool {
	return r == RoleClient || r == RoleDealer
}
