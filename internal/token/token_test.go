package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer("secret_key_test")

	tok, err := issuer.Issue(42, "ana@x.com", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := issuer.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "ana@x.com", claims.Username)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.Expiry, time.Minute)
}

func TestVerifyExpired(t *testing.T) {
	issuer := NewIssuer("secret_key_test")

	tok, err := issuer.Issue(42, "ana@x.com", -time.Minute)
	require.NoError(t, err)

	_, err = issuer.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewIssuer("secret_key_test")
	other := NewIssuer("rotated_secret")

	tok, err := issuer.Issue(42, "ana@x.com", time.Hour)
	require.NoError(t, err)

	_, err = other.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyGarbage(t *testing.T) {
	issuer := NewIssuer("secret_key_test")

	_, err := issuer.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
