package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
)

func TestIssueAndAuthenticate(t *testing.T) {
	svc := NewService("s3cret", time.Hour, zerolog.Nop())
	actor := engagement.Actor{Role: engagement.RoleSupplier, ID: "supplier-1"}

	token, exp, err := svc.Issue(actor)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	got, err := svc.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestAuthenticate_Rejects(t *testing.T) {
	svc := NewService("s3cret", time.Hour, zerolog.Nop())
	token, _, err := svc.Issue(engagement.Actor{Role: engagement.RoleBuyer, ID: "buyer-1"})
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		_, err := svc.Authenticate("")
		assert.True(t, errors.Is(err, ErrMissingToken))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewService("other", time.Hour, zerolog.Nop())
		_, err := other.Authenticate(token)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("expired", func(t *testing.T) {
		later := NewService("s3cret", time.Hour, zerolog.Nop())
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Authenticate(token)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("unknown role", func(t *testing.T) {
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			Role: "landlord",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				Subject:   "x",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}).SignedString([]byte("s3cret"))
		require.NoError(t, err)
		_, err = svc.Authenticate(forged)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("no expiry", func(t *testing.T) {
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			Role:             "admin",
			RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "ops"},
		}).SignedString([]byte("s3cret"))
		require.NoError(t, err)
		_, err = svc.Authenticate(forged)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})
}

func TestIssue_Validation(t *testing.T) {
	svc := NewService("s3cret", 0, zerolog.Nop())
	_, _, err := svc.Issue(engagement.Actor{Role: "guest", ID: "g"})
	assert.Error(t, err)
	_, _, err = svc.Issue(engagement.Actor{Role: engagement.RoleAdmin, ID: " "})
	assert.Error(t, err)

	unset := NewService("", time.Hour, zerolog.Nop())
	_, _, err = unset.Issue(engagement.System())
	assert.True(t, errors.Is(err, ErrNoSecret))
	_, err = unset.Authenticate("abc")
	assert.True(t, errors.Is(err, ErrNoSecret))
}
