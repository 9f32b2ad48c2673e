package auth

// PrincipalIdentity adapts a Principal into the Identity interface.
type PrincipalIdentity struct {
	principal *Principal
}

// NewIdentityFromPrincipal returns an Identity adapter for the provided principal.
func NewIdentityFromPrincipal(p *Principal) Identity {
	if p == nil {
		return nil
	}
	return PrincipalIdentity{principal: p}
}

// ID returns the principal's ID as a string.
func (u PrincipalIdentity) ID() string {
	if u.principal == nil {
		return ""
	}
	return u.principal.ID.String()
}

// Username returns the principal's username.
func (u PrincipalIdentity) Username() string {
	if u.principal == nil {
		return ""
	}
	return u.principal.Username
}

// Email returns the principal's email address.
func (u PrincipalIdentity) Email() string {
	if u.principal == nil {
		return ""
	}
	return u.principal.Email
}

// Role returns the principal's role as a string.
func (u PrincipalIdentity) Role() string {
	if u.principal == nil {
		return ""
	}
	return string(u.principal.Role)
}

// Enabled reports whether the principal verified its email.
func (u PrincipalIdentity) Enabled() bool {
	return u.principal != nil && u.principal.Enabled
}
