package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_Issue(t *testing.T) {
	secret := "test-secret"
	expiry := 24 * time.Hour
	j := NewJWT(secret)

	token, err := j.Issue("user-123", "u@example.com", []string{"organizer", "participant"}, expiry)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Parse and verify claims
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	claims, ok := parsed.Claims.(*jwtClaims)
	require.True(t, ok)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "u@example.com", claims.Email)
	assert.Equal(t, []string{"organizer", "participant"}, claims.Roles)
}

func TestJWT_Verify(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewJWT("test-secret")
	issuer.now = func() time.Time { return issuedAt }

	valid, err := issuer.Issue("user-1", "u@example.com", []string{"participant"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		secret  string
		token   string
		at      time.Time
		wantErr bool
	}{
		{name: "valid", secret: "test-secret", token: valid, at: issuedAt.Add(time.Minute)},
		{name: "expired", secret: "test-secret", token: valid, at: issuedAt.Add(2 * time.Hour), wantErr: true},
		{name: "wrong secret", secret: "other", token: valid, at: issuedAt, wantErr: true},
		{name: "garbage", secret: "test-secret", token: "not-a-jwt", at: issuedAt, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewJWT(tt.secret)
			v.now = func() time.Time { return tt.at }

			id, err := v.Verify(tt.token)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidToken)
				assert.Nil(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-1", id.UserID)
			assert.Equal(t, "u@example.com", id.Email)
			assert.True(t, id.HasRole("participant"))
			assert.False(t, id.HasRole("organizer"))
		})
	}
}

func TestJWT_VerifyRejectsOtherAlgorithms(t *testing.T) {
	claims := jwtClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = NewJWT("test-secret").Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
