package domain

// Identity is the signed-in user as reported by the auth provider.
type Identity struct {
	UID   string
	Email string
}

// Session pairs the current identity with its bearer token. Token is empty
// when no token is available.
type Session struct {
	Identity *Identity
	Token    string
}

func (s Session) Authenticated() bool {
	return s.Identity != nil
}

// Email returns the signed-in email or "" when signed out.
func (s Session) Email() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.Email
}
