// model/principal.go
package model

// Principal types recognized by the gateway. User data is owned by the
// identity provider; this is a request-scoped view only.
const (
	PrincipalTypeEndUser = "end_user"
	PrincipalTypeAdmin   = "admin"
)

type Principal struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Email      string            `json:"email,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Claims holds the verified bearer-token claims the gateway cares about.
type Claims struct {
	Subject   string `json:"sub"`
	Email     string `json:"email,omitempty"`
	UserType  string `json:"user_type"`
	Issuer    string `json:"iss"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat"`
}

// Principal builds the transient principal view from verified claims.
func (c *Claims) Principal() Principal {
	pType := c.UserType
	if pType == "" {
		pType = PrincipalTypeEndUser
	}
	return Principal{
		ID:    c.Subject,
		Type:  pType,
		Email: c.Email,
		Attributes: map[string]string{
			"user_type": pType,
			"email":     c.Email,
		},
	}
}
