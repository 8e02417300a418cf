package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
	"github.com/platinummonkey/httpusers/pkg/permissions"
	"github.com/platinummonkey/httpusers/pkg/storage/memory"
	"github.com/platinummonkey/httpusers/pkg/users"
)

func newDirectory(t *testing.T, policy users.Policy) *users.Service {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store := memory.NewStore()
	catalog := permissions.NewCatalog(store)
	require.NoError(t, catalog.Seed(context.Background()))

	return users.NewService(users.Options{
		Repo:    users.NewRepository(store),
		Catalog: catalog,
		Hasher:  &users.Argon2Hasher{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32},
		Policy:  func() users.Policy { return policy },
		Logger:  logger,
	})
}

func createUser(t *testing.T, svc *users.Service, username, password string) *users.User {
	t.Helper()
	u, err := svc.Create(context.Background(), users.CreateRequest{
		Username: username,
		Password: &password,
		Email:    "foo@bar.com",
	})
	require.NoError(t, err)
	return u
}

func assertAPIError(t *testing.T, err error, code apierrors.Code, message string) {
	t.Helper()
	require.Error(t, err)
	apiErr := apierrors.FromError(err)
	assert.Equal(t, code, apiErr.Code)
	assert.Equal(t, message, apiErr.Message)
}

func TestAuthenticate_Password(t *testing.T) {
	svc := newDirectory(t, users.DefaultPolicy())
	createUser(t, svc, "charlie", "1234")
	s := NewStrategy(svc)

	au, err := s.Authenticate(context.Background(), BasicHeader("charlie", "1234"), nil)
	require.NoError(t, err)
	assert.Equal(t, "charlie", au.Username())
	assert.Equal(t, users.MethodPassword, au.AuthMethod.Method)
	assert.True(t, au.PasswordAuth())

	_, err = s.Authenticate(context.Background(), BasicHeader("charlie", "12345"), nil)
	assertAPIError(t, err, apierrors.CodeNotAuthorized, "Authorization failed with the provided credentials")
}

func TestAuthenticate_UsernameIsCaseInsensitive(t *testing.T) {
	svc := newDirectory(t, users.DefaultPolicy())
	createUser(t, svc, "charlie", "1234")

	au, err := NewStrategy(svc).Authenticate(context.Background(), BasicHeader("CHARLIE", "1234"), nil)
	require.NoError(t, err)
	assert.Equal(t, "charlie", au.Username())
}

func TestAuthenticate_APIToken(t *testing.T) {
	ctx := context.Background()
	svc := newDirectory(t, users.DefaultPolicy())
	createUser(t, svc, "charlie", "1234")
	tok, err := svc.SetAPIToken(ctx, "charlie", "ci")
	require.NoError(t, err)

	au, err := NewStrategy(svc).Authenticate(ctx, BasicHeader("charlie", tok.Token), nil)
	require.NoError(t, err)
	assert.Equal(t, users.AuthMethod{Method: users.MethodToken, ID: "ci"}, au.AuthMethod)
	assert.False(t, au.PasswordAuth())

	view := au.Restricted()
	assert.Equal(t, []string{"ci"}, view.APITokens)
}

func TestAuthenticate_StoredTokenWithoutPrefix(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	store := memory.NewStore()
	repo := users.NewRepository(store)
	svc := users.NewService(users.Options{
		Repo:   repo,
		Hasher: &users.Argon2Hasher{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32},
		Logger: logger,
	})
	createUser(t, svc, "charlie", "1234")

	u, err := repo.Get(ctx, "charlie")
	require.NoError(t, err)
	u.APITokens = map[string]string{"seeded": "abc123"}
	require.NoError(t, repo.Update(ctx, u))

	au, err := NewStrategy(svc).Authenticate(ctx, BasicHeader("charlie", "abc123"), nil)
	require.NoError(t, err)
	assert.Equal(t, users.AuthMethod{Method: users.MethodToken, ID: "seeded"}, au.AuthMethod)
}

func TestAuthenticate_Errors(t *testing.T) {
	svc := newDirectory(t, users.DefaultPolicy())
	createUser(t, svc, "charlie", "1234")
	s := NewStrategy(svc)

	tests := []struct {
		name    string
		header  string
		code    apierrors.Code
		message string
	}{
		{"missing header", "", apierrors.CodeNotAuthorized, "Authorization header is required"},
		{"wrong scheme", "Bearer abc", apierrors.CodeForbidden, "Authorization scheme must be `Basic`"},
		{"lowercase scheme", "basic " + BasicHeader("charlie", "1234")[6:], apierrors.CodeForbidden, "Authorization scheme must be `Basic`"},
		{"bad base64", "Basic !!!", apierrors.CodeForbidden, "Both username and password are required"},
		{"no colon", "Basic Y2hhcmxpZQ==", apierrors.CodeForbidden, "Both username and password are required"},
		{"unknown user", BasicHeader("nobody", "x"), apierrors.CodeForbidden, "nobody not found"},
		{"empty password", BasicHeader("charlie", ""), apierrors.CodeNotAuthorized, "Authorization failed with the provided credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Authenticate(context.Background(), tt.header, nil)
			assertAPIError(t, err, tt.code, tt.message)
		})
	}
}

func TestAuthenticate_InactiveWhenActivationRequired(t *testing.T) {
	svc := newDirectory(t, users.Policy{RequireActivation: true})
	createUser(t, svc, "charlie", "1234")

	// checked before credentials
	_, err := NewStrategy(svc).Authenticate(context.Background(), BasicHeader("charlie", "wrong"), nil)
	assertAPIError(t, err, apierrors.CodeNotAuthorized, "User charlie is not yet active")
}

func TestAuthenticate_PendingAllowedWithoutActivation(t *testing.T) {
	svc := newDirectory(t, users.DefaultPolicy())
	u := createUser(t, svc, "charlie", "1234")
	require.Equal(t, users.StatusPending, u.Status)

	_, err := NewStrategy(svc).Authenticate(context.Background(), BasicHeader("charlie", "1234"), nil)
	assert.NoError(t, err)
}

func TestAuthenticate_ReusesCurrentUser(t *testing.T) {
	svc := newDirectory(t, users.DefaultPolicy())
	u := createUser(t, svc, "charlie", "1234")
	current := &AuthenticatedUser{User: u, AuthMethod: users.AuthMethod{Method: users.MethodPassword}}

	au, err := NewStrategy(svc).Authenticate(context.Background(), BasicHeader("charlie", "ignored"), current)
	require.NoError(t, err)
	assert.Same(t, current, au)
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	svc := newDirectory(t, users.DefaultPolicy())
	u := createUser(t, svc, "charlie", "1234")
	au := &AuthenticatedUser{User: u}

	assertAPIError(t, Authorize(svc, nil, permissions.ModifyUsers, permissions.NoValue),
		apierrors.CodeForbidden, "You are not logged in")
	assertAPIError(t, Authorize(svc, au, permissions.ModifyUsers, permissions.NoValue),
		apierrors.CodeForbidden, "Missing permissions: modify users")

	grants, err := svc.Allow(ctx, "charlie", permissions.ModifyUsers, permissions.NoValue)
	require.NoError(t, err)
	u.Permissions = grants
	assert.NoError(t, Authorize(svc, au, permissions.ModifyUsers, permissions.NoValue))
}

func TestLogAttempt(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	r := httptest.NewRequest("GET", "/auth", nil)
	r.Header.Set("Authorization", BasicHeader("charlie", "secret"))
	r.Header.Set("X-Forwarded-For", "10.0.0.1")

	LogAttempt(logger, r, nil, apierrors.NotAuthorized(credentialsFailed))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, ActionAuthFailure, entry.Message)
	assert.Equal(t, "charlie", entry.Data["username"])
	assert.Equal(t, "10.0.0.1", entry.Data["ip"])
	assert.Equal(t, ResultFailure, entry.Data["result"])
	for _, v := range entry.Data {
		assert.NotEqual(t, "secret", v)
	}

	LogAttempt(logger, r, &AuthenticatedUser{User: &users.User{Username: "charlie"}, AuthMethod: users.AuthMethod{Method: users.MethodPassword}}, nil)
	assert.Equal(t, ActionAuthSuccess, hook.LastEntry().Message)
	assert.Equal(t, users.MethodPassword, hook.LastEntry().Data["method"])
}

func TestResult(t *testing.T) {
	assert.Equal(t, ResultSuccess, Result(nil))
	assert.Equal(t, ResultDenied, Result(apierrors.Forbidden("x")))
	assert.Equal(t, ResultFailure, Result(apierrors.NotAuthorized("x")))
}
