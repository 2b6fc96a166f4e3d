package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gistjackdaniel/filmWithAi-sub002/domain"
)

const testSecret = "test-secret"

func TestVerifier_Verify(t *testing.T) {
	v := NewVerifier(testSecret)

	valid, err := v.Sign(domain.Identity{UserID: "u1", UserLabel: "u1@example.com"}, time.Hour)
	require.NoError(t, err)

	expired, err := v.Sign(domain.Identity{UserID: "u1", UserLabel: "u1@example.com"}, -time.Minute)
	require.NoError(t, err)

	otherSecret, err := NewVerifier("other-secret").Sign(domain.Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
		want    domain.Identity
	}{
		{name: "valid token", token: valid, want: domain.Identity{UserID: "u1", UserLabel: "u1@example.com"}},
		{name: "missing token", token: "", wantErr: domain.ErrMissingToken},
		{name: "garbage token", token: "not.a.jwt", wantErr: domain.ErrInvalidToken},
		{name: "expired token", token: expired, wantErr: domain.ErrInvalidToken},
		{name: "wrong secret", token: otherSecret, wantErr: domain.ErrInvalidToken},
		{name: "missing subject", token: noSubject, wantErr: domain.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.Verify(tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestVerifier_RejectsNonHMAC(t *testing.T) {
	// alg=none style tokens must not pass.
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "u1",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewVerifier(testSecret).Verify(token)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{name: "query parameter", target: "/ws?token=abc", want: "abc"},
		{name: "bearer header", target: "/ws", header: "Bearer xyz", want: "xyz"},
		{name: "query wins over header", target: "/ws?token=abc", header: "Bearer xyz", want: "abc"},
		{name: "no token", target: "/ws", want: ""},
		{name: "non-bearer header ignored", target: "/ws", header: "Basic dXNlcg==", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, TokenFromRequest(r))
		})
	}
}
