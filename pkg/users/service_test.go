package users

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
	"github.com/platinummonkey/httpusers/pkg/events"
	"github.com/platinummonkey/httpusers/pkg/mailer"
	"github.com/platinummonkey/httpusers/pkg/orgs"
	"github.com/platinummonkey/httpusers/pkg/permissions"
	"github.com/platinummonkey/httpusers/pkg/storage/memory"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	msgs []mailer.Message
	err  error
}

func (m *recordingMailer) record(kind string, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, kind)
	m.msgs = append(m.msgs, msg)
	return m.err
}

func (m *recordingMailer) SendPending(_ context.Context, msg mailer.Message) error {
	return m.record(mailer.KindPending, msg)
}

func (m *recordingMailer) SendConfirm(_ context.Context, msg mailer.Message) error {
	return m.record(mailer.KindConfirm, msg)
}

func (m *recordingMailer) SendForgot(_ context.Context, msg mailer.Message) error {
	return m.record(mailer.KindForgot, msg)
}

type fixture struct {
	svc     *Service
	orgs    *orgs.Service
	mail    *recordingMailer
	events  *events.Recorder
	catalog *permissions.Catalog
	policy  Policy
}

func fastHasher() *Argon2Hasher {
	return &Argon2Hasher{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32}
}

func setup(t *testing.T, policy Policy) *fixture {
	t.Helper()
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	store := memory.NewStore()
	repo := NewRepository(store)
	rec := &events.Recorder{}

	catalog := permissions.NewCatalog(store)
	require.NoError(t, catalog.Seed(ctx))

	f := &fixture{
		orgs:    orgs.NewService(store, repo, rec, logger),
		mail:    &recordingMailer{},
		events:  rec,
		catalog: catalog,
		policy:  policy,
	}
	f.svc = NewService(Options{
		Repo:        repo,
		Attachments: memory.NewAttachments(),
		Orgs:        f.orgs,
		Catalog:     catalog,
		Hasher:      fastHasher(),
		Mailer:      f.mail,
		Events:      rec,
		Policy:      func() Policy { return f.policy },
		Logger:      logger,
	})
	return f
}

func strPtr(s string) *string { return &s }

func (f *fixture) create(t *testing.T, username, password string) *User {
	t.Helper()
	u, err := f.svc.Create(context.Background(), CreateRequest{
		Username: username,
		Password: strPtr(password),
		Email:    username + "@bar.com",
	})
	require.NoError(t, err)
	return u
}

func TestService_CreateStatusByPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		status Status
		mail   []string
	}{
		{"activation required", Policy{RequireActivation: true, RequireConfirmation: true}, StatusNew, []string{mailer.KindPending}},
		{"confirmation required", DefaultPolicy(), StatusPending, []string{mailer.KindConfirm}},
		{"no confirmation", Policy{}, StatusActive, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.policy)
			u, err := f.svc.Create(context.Background(), CreateRequest{
				Username: "Charlie",
				Password: strPtr("1234"),
				Email:    "foo@bar.com",
			})
			require.NoError(t, err)

			assert.Equal(t, "charlie", u.Username)
			assert.Equal(t, "charlie", u.ID)
			assert.Equal(t, tt.status, u.Status)
			assert.NotEmpty(t, u.InviteCode)
			assert.Equal(t, tt.mail, f.mail.sent)
			assert.Contains(t, f.events.Actions(), "user.create")
		})
	}
}

func TestService_CreatePasswordHashed(t *testing.T) {
	f := setup(t, DefaultPolicy())
	u := f.create(t, "charlie", "1234")

	assert.NotEqual(t, "1234", u.Password)
	assert.NotEmpty(t, u.PasswordSalt)
	assert.True(t, CheckPassword(f.svc.Hasher(), u, "1234"))
	assert.False(t, CheckPassword(f.svc.Hasher(), u, "12345"))

	stored, err := f.svc.Get(context.Background(), "CHARLIE")
	require.NoError(t, err)
	assert.Equal(t, u.Password, stored.Password)
	assert.Equal(t, u.PasswordSalt, stored.PasswordSalt)
}

func TestService_CreateValidation(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateRequest
		code apierrors.Code
	}{
		{"missing email", CreateRequest{Username: "charlie"}, apierrors.CodeValidation},
		{"bad email", CreateRequest{Username: "charlie", Email: "not-an-email"}, apierrors.CodeValidation},
		{"bad username", CreateRequest{Username: "char lie", Email: "foo@bar.com"}, apierrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.req)
			assert.True(t, apierrors.Is(err, tt.code), "got %v", err)
		})
	}

	f.create(t, "charlie", "1234")
	_, err := f.svc.Create(ctx, CreateRequest{Username: "charlie", Email: "foo@bar.com"})
	assert.True(t, apierrors.Is(err, apierrors.CodeConflict))

	_, err = f.orgs.Create(ctx, "charlie", "nodejitsu", nil)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, CreateRequest{Username: "nodejitsu", Email: "foo@bar.com"})
	assert.True(t, apierrors.Is(err, apierrors.CodeConflict), "organization names are taken too")
}

func TestService_MailFailureDoesNotFailCreate(t *testing.T) {
	f := setup(t, DefaultPolicy())
	f.mail.err = errors.New("smtp down")

	u := f.create(t, "charlie", "1234")
	assert.Equal(t, StatusPending, u.Status)

	var mailEvent *events.Event
	for _, evt := range f.events.Events() {
		if evt.Action == events.ActionMail {
			evt := evt
			mailEvent = &evt
		}
	}
	require.NotNil(t, mailEvent)
	assert.Equal(t, "smtp down", mailEvent.Data["error"])
}

func TestService_Available(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ctx := context.Background()

	available, err := f.svc.Available(ctx, "charlie")
	require.NoError(t, err)
	assert.True(t, available)

	f.create(t, "charlie", "1234")
	available, err = f.svc.Available(ctx, "charlie")
	require.NoError(t, err)
	assert.False(t, available)

	require.NoError(t, f.svc.Destroy(ctx, "charlie"))
	available, err = f.svc.Available(ctx, "charlie")
	require.NoError(t, err)
	assert.True(t, available)
}

func TestService_EmailTakenAndSearch(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ctx := context.Background()
	f.create(t, "charlie", "1234")
	f.create(t, "charles", "1234")
	f.create(t, "marak", "1234")

	taken, err := f.svc.EmailTaken(ctx, "CHARLIE@bar.com")
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = f.svc.EmailTaken(ctx, "nobody@bar.com")
	require.NoError(t, err)
	assert.False(t, taken)

	found, err := f.svc.Search(ctx, "Char")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "charles", found[0].Username)
	assert.Equal(t, "charlie", found[1].Username)

	found, err = f.svc.Search(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestService_Update(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ctx := context.Background()
	u := f.create(t, "charlie", "1234")
	salt := u.PasswordSalt

	updated, err := f.svc.Update(ctx, "charlie", Patch{
		Email:    strPtr("new@bar.com"),
		Password: strPtr("5678"),
		Profile:  map[string]any{"name": "Charlie"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new@bar.com", updated.Email)
	assert.Equal(t, salt, updated.PasswordSalt, "salt is reused")
	assert.True(t, CheckPassword(f.svc.Hasher(), updated, "5678"))

	active := StatusActive
	_, err = f.svc.Update(ctx, "charlie", Patch{Status: &active})
	require.NoError(t, err)

	pending := StatusPending
	_, err = f.svc.Update(ctx, "charlie", Patch{Status: &pending})
	assert.True(t, apierrors.Is(err, apierrors.CodeValidation), "status cannot regress")

	_, err = f.svc.Update(ctx, "ghost", Patch{})
	assert.True(t, apierrors.IsNotFound(err))
}

func TestService_Hooks(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ctx := context.Background()

	var after []string
	f.svc.Hooks.Create.
		Before("default profile", func(_ context.Context, u *User) (*User, error) {
			u.Profile = map[string]any{"plan": "free"}
			return u, nil
		}).
		After("record", func(_ context.Context, u *User) (*User, error) {
			after = append(after, u.Username)
			return u, nil
		})
	f.svc.Hooks.Destroy.Before("protect admin", func(_ context.Context, u *User) (*User, error) {
		if u.Username == "admin" {
			return nil, apierrors.Forbidden("admin cannot be deleted")
		}
		return u, nil
	})

	u := f.create(t, "charlie", "1234")
	assert.Equal(t, "free", u.Profile["plan"])
	assert.Equal(t, []string{"charlie"}, after)

	f.create(t, "admin", "1234")
	err := f.svc.Destroy(ctx, "admin")
	assert.True(t, apierrors.Is(err, apierrors.CodeForbidden))
	_, err = f.svc.Get(ctx, "admin")
	assert.NoError(t, err)
}

func TestService_EventsPublishedFromAfterHooks(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ctx := context.Background()

	assert.Equal(t, 1, f.svc.Hooks.Create.Len())
	assert.Equal(t, 1, f.svc.Hooks.Update.Len())
	assert.Equal(t, 1, f.svc.Hooks.Destroy.Len())

	f.svc.Hooks.Update.After("audit", func(_ context.Context, u *User) (*User, error) {
		return u, errors.New("audit sink down")
	})

	f.create(t, "charlie", "1234")
	email := "charlie@example.com"
	_, err := f.svc.Update(ctx, "charlie", Patch{Email: &email})
	require.NoError(t, err, "after hook failures do not fail the write")
	require.NoError(t, f.svc.Destroy(ctx, "charlie"))

	count := map[string]int{}
	for _, action := range f.events.Actions() {
		count[action]++
	}
	assert.Equal(t, 1, count["user.create"])
	assert.Equal(t, 1, count["user.update"])
	assert.Equal(t, 1, count["user.destroy"])
}

func TestService_DestroyCascade(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ctx := context.Background()
	f.create(t, "charlie", "1234")
	f.create(t, "marak", "1234")

	_, err := f.orgs.Create(ctx, "charlie", "solo", nil)
	require.NoError(t, err)
	_, err = f.orgs.Create(ctx, "charlie", "shared", nil)
	require.NoError(t, err)
	_, err = f.orgs.AddOwner(ctx, "shared", "marak")
	require.NoError(t, err)
	_, err = f.orgs.Create(ctx, "marak", "other", nil)
	require.NoError(t, err)
	_, err = f.orgs.AddMember(ctx, "other", "charlie")
	require.NoError(t, err)
	_, err = f.svc.AddKey(ctx, "charlie", "", "ssh-rsa AAAAB3NzaC1yc2EAAAADAQABAAABAQ charlie")
	require.NoError(t, err)

	require.NoError(t, f.svc.Destroy(ctx, "charlie"))

	_, err = f.orgs.Get(ctx, "solo")
	assert.True(t, apierrors.IsNotFound(err), "sole-owned organization is destroyed")

	shared, err := f.orgs.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, []string{"marak"}, shared.Owners)
	assert.Equal(t, []string{"marak"}, shared.Members)

	other, err := f.orgs.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, []string{"marak"}, other.Members)

	_, err = f.svc.Get(ctx, "charlie")
	assert.True(t, apierrors.IsNotFound(err))
	_, err = f.svc.GetKey(ctx, "charlie", "")
	assert.True(t, apierrors.IsNotFound(err))

	assert.Contains(t, f.events.Actions(), "user.destroy")
	assert.Contains(t, f.events.Actions(), "organization.destroy")
}

type failingOrgs struct {
	*orgs.Service
	failOn string
}

func (f failingOrgs) RemoveMember(ctx context.Context, name, username string) (*orgs.Organization, error) {
	if name == f.failOn {
		return nil, apierrors.Conflict("concurrent change")
	}
	return f.Service.RemoveMember(ctx, name, username)
}

func TestService_DestroyCascadeAbortsOnFirstFailure(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ctx := context.Background()
	f.create(t, "charlie", "1234")
	f.create(t, "marak", "1234")

	_, err := f.orgs.Create(ctx, "charlie", "alpha", nil)
	require.NoError(t, err)
	_, err = f.orgs.Create(ctx, "marak", "beta", nil)
	require.NoError(t, err)
	_, err = f.orgs.AddMember(ctx, "beta", "charlie")
	require.NoError(t, err)

	f.svc.orgs = failingOrgs{Service: f.orgs, failOn: "beta"}
	err = f.svc.Destroy(ctx, "charlie")
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.CodeConflict))

	_, err = f.orgs.Get(ctx, "alpha")
	assert.True(t, apierrors.IsNotFound(err), "earlier steps stay committed")
	_, err = f.svc.Get(ctx, "charlie")
	assert.NoError(t, err, "user survives an aborted cascade")
}

func TestService_CountByStatus(t *testing.T) {
	f := setup(t, DefaultPolicy())
	f.create(t, "charlie", "1234")
	f.create(t, "marak", "1234")
	active := StatusActive
	_, err := f.svc.Update(context.Background(), "marak", Patch{Status: &active})
	require.NoError(t, err)

	counts, err := f.svc.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[Status]int{StatusNew: 0, StatusPending: 1, StatusActive: 1}, counts)
}

func TestRestricted(t *testing.T) {
	u := &User{
		Username:         "charlie",
		Password:         "digest",
		PasswordSalt:     "salt",
		APITokens:        map[string]string{"b": "tok-b", "a": "tok-a"},
		ThirdPartyTokens: []ThirdPartyToken{{ID: "gh", Token: "secret", App: "*"}},
	}

	full := Restricted(u, AuthMethod{Method: MethodPassword})
	assert.Equal(t, map[string]string{"a": "tok-a", "b": "tok-b"}, full.APITokens)
	assert.Equal(t, u.ThirdPartyTokens, full.ThirdPartyTokens)

	names := Restricted(u, AuthMethod{Method: MethodToken, ID: "a"})
	assert.Equal(t, []string{"a", "b"}, names.APITokens)
	assert.Equal(t, []string{"gh"}, names.ThirdPartyTokens)

	empty := Restricted(&User{Username: "marak"}, AuthMethod{Method: MethodPassword})
	assert.Equal(t, map[string]string{}, empty.APITokens)
}
