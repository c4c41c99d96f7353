// Package auth holds the bearer credential issued by the external auth
// collaborator. This client never issues or refreshes sessions itself; it
// only carries the token and decides whether a realtime connection may be
// attempted at all.
package auth

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Credentials struct {
	token string
	now   func() time.Time
}

func NewCredentials(token string) *Credentials {
	return &Credentials{
		token: token,
		now:   time.Now,
	}
}

func (c *Credentials) Token() string {
	return c.token
}

// Authorize attaches the bearer credential to an outgoing REST request.
func (c *Credentials) Authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// CanConnect reports whether a realtime session may be established.
// An absent token always refuses (no anonymous realtime session). When the
// token is a JWT its exp claim is checked client-side; opaque tokens are
// passed through and left for the backend to judge.
func (c *Credentials) CanConnect() bool {
	if c.token == "" {
		return false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return c.now().Before(exp.Time)
}
