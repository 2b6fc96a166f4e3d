// Package auth validates the bearer session tokens presented at the
// websocket handshake.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gistjackdaniel/filmWithAi-sub002/domain"
)

type claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 session tokens issued by the main backend.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify resolves a bearer token to the user identity embedded in it.
// Returns domain.ErrMissingToken for an empty token and
// domain.ErrInvalidToken when signature, expiry, or subject checks fail.
func (v *Verifier) Verify(token string) (domain.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return domain.Identity{}, domain.ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return domain.Identity{}, domain.ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || strings.TrimSpace(c.Subject) == "" {
		return domain.Identity{}, domain.ErrInvalidToken
	}

	label := strings.TrimSpace(c.Email)
	if label == "" {
		label = strings.TrimSpace(c.Name)
	}
	return domain.Identity{UserID: c.Subject, UserLabel: label}, nil
}

// Sign issues a token for the given identity. Used by tests and local
// tooling; production tokens come from the main backend with the same
// secret.
func (v *Verifier) Sign(id domain.Identity, ttl time.Duration) (string, error) {
	c := claims{
		Email: id.UserLabel,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.UserID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

// TokenFromRequest extracts the bearer token from the handshake request:
// the `token` query parameter or an `Authorization: Bearer` header, in
// that order. Both positions are accepted for client compatibility.
func TokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
