package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idvault/authserver/internal/events"
	"github.com/idvault/authserver/types"
)

func TestSignup(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	session, err := f.auth.Signup(ctx, "Ana", "Lee", "ana@x.com", "secret1")
	require.NoError(t, err)
	assert.NotZero(t, session.ID)
	assert.Equal(t, "ana@x.com", session.Username)
	require.NotEmpty(t, session.AccessToken)

	claims, err := f.tokens.Verify(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.ID, claims.UserID)
	assert.Equal(t, "ana@x.com", claims.Username)

	assert.Contains(t, f.publisher.topics(), events.TopicUserCreated)
}

func TestSignupDuplicateUsername(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	_, err := f.auth.Signup(ctx, "Ana", "Lee", "ana@x.com", "secret1")
	require.NoError(t, err)

	_, err = f.auth.Signup(ctx, "Other", "Person", "ana@x.com", "different")
	assert.ErrorIs(t, err, ErrDuplicateUser)

	// The losing signup must leave no partial state behind.
	user, err := f.repo.GetByUsername(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Ana", user.FirstName)
}

func TestValidateUser(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	_, err := f.auth.Signup(ctx, "Ana", "Lee", "ana@x.com", "secret1")
	require.NoError(t, err)

	user, err := f.auth.ValidateUser(ctx, "ana@x.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "ana@x.com", user.Username)

	user, err = f.auth.ValidateUser(ctx, "ana@x.com", "wrong")
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = f.auth.ValidateUser(ctx, "nobody@x.com", "secret1")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestValidateUserOAuthOnlyAccount(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	session, err := f.auth.Federate(ctx, &types.ExternalIdentity{
		Email:     "oauth@x.com",
		FirstName: "Naomie",
		LastName:  "Liu",
	})
	require.NoError(t, err)
	require.NotNil(t, session)

	// A federated account with no local password must never validate,
	// whatever the password.
	user, err := f.auth.ValidateUser(ctx, "oauth@x.com", "")
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = f.auth.ValidateUser(ctx, "oauth@x.com", "anything")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestFederateCreatesPasswordlessUser(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	session, err := f.auth.Federate(ctx, &types.ExternalIdentity{
		Email:     "naomie.liu@gmail.com",
		FirstName: "Naomie",
		LastName:  "Liu",
	})
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "naomie.liu@gmail.com", session.Username)

	user, err := f.repo.GetByUsername(ctx, "naomie.liu@gmail.com")
	require.NoError(t, err)
	assert.False(t, user.HasPassword())
	assert.Equal(t, "Naomie", user.FirstName)

	topics := f.publisher.topics()
	assert.Contains(t, topics, events.TopicUserCreated)
	assert.Contains(t, topics, events.TopicUserFederated)
}

func TestFederateReusesExistingAccount(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	local, err := f.auth.Signup(ctx, "Ana", "Lee", "ana@x.com", "secret1")
	require.NoError(t, err)

	session, err := f.auth.Federate(ctx, &types.ExternalIdentity{
		Email:     "ana@x.com",
		FirstName: "Ana",
		LastName:  "Lee",
	})
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, local.ID, session.ID)

	// The local password survives the federated login.
	user, err := f.auth.ValidateUser(ctx, "ana@x.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, user)
}

func TestFederateNilIdentity(t *testing.T) {
	f := newAuthFixture()

	session, err := f.auth.Federate(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, session)

	session, err = f.auth.Federate(context.Background(), &types.ExternalIdentity{})
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSignInIssuesSession(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	_, err := f.auth.Signup(ctx, "Ana", "Lee", "ana@x.com", "secret1")
	require.NoError(t, err)

	user, err := f.repo.GetByUsername(ctx, "ana@x.com")
	require.NoError(t, err)

	session, err := f.auth.SignIn(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.ID)
	assert.Equal(t, user.Username, session.Username)
	assert.NotEmpty(t, session.AccessToken)
}
