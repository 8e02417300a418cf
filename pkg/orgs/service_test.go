package orgs

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
	"github.com/platinummonkey/httpusers/pkg/contextkeys"
	"github.com/platinummonkey/httpusers/pkg/events"
	"github.com/platinummonkey/httpusers/pkg/storage/memory"
)

type fakeUsers map[string]bool

func (f fakeUsers) Exists(_ context.Context, username string) (bool, error) {
	return f[username], nil
}

func setupService(t *testing.T, users ...string) (*Service, *events.Recorder) {
	t.Helper()
	dir := fakeUsers{}
	for _, u := range users {
		dir[u] = true
	}
	logger, _ := test.NewNullLogger()
	rec := &events.Recorder{}
	return NewService(memory.NewStore(), dir, rec, logger), rec
}

func TestService_OwnerInvariant(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, "charlie", "marak")

	org, err := svc.Create(ctx, "charlie", "nodejitsu", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"charlie"}, org.Owners)
	assert.Equal(t, []string{"charlie"}, org.Members)

	org, err = svc.AddMember(ctx, "nodejitsu", "marak")
	require.NoError(t, err)
	assert.Len(t, org.Members, 2)

	_, err = svc.RemoveOwner(ctx, "nodejitsu", "charlie")
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.CodeConflict))
	assert.Contains(t, err.Error(), "cannot remove the only owner")

	org, err = svc.Get(ctx, "nodejitsu")
	require.NoError(t, err)
	assert.Equal(t, []string{"charlie"}, org.Owners)
}

func TestService_RemoveMemberDropsOwnership(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, "charlie", "marak")

	_, err := svc.Create(ctx, "charlie", "nodejitsu", nil)
	require.NoError(t, err)
	_, err = svc.AddOwner(ctx, "nodejitsu", "marak")
	require.NoError(t, err)

	org, err := svc.RemoveMember(ctx, "nodejitsu", "charlie")
	require.NoError(t, err)
	assert.Equal(t, []string{"marak"}, org.Owners)
	assert.Equal(t, []string{"marak"}, org.Members)

	_, err = svc.RemoveMember(ctx, "nodejitsu", "marak")
	assert.True(t, apierrors.Is(err, apierrors.CodeConflict), "last owner cannot leave")
}

func TestService_MemberErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, "charlie", "marak")
	_, err := svc.Create(ctx, "charlie", "nodejitsu", nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		op   func() error
		code apierrors.Code
	}{
		{"add existing member", func() error { _, err := svc.AddMember(ctx, "nodejitsu", "charlie"); return err }, apierrors.CodeConflict},
		{"add unknown user", func() error { _, err := svc.AddMember(ctx, "nodejitsu", "ghost"); return err }, apierrors.CodeNotFound},
		{"remove non-member", func() error { _, err := svc.RemoveMember(ctx, "nodejitsu", "marak"); return err }, apierrors.CodeNotFound},
		{"add existing owner", func() error { _, err := svc.AddOwner(ctx, "nodejitsu", "charlie"); return err }, apierrors.CodeConflict},
		{"add unknown owner", func() error { _, err := svc.AddOwner(ctx, "nodejitsu", "ghost"); return err }, apierrors.CodeNotFound},
		{"remove non-owner", func() error { _, err := svc.RemoveOwner(ctx, "nodejitsu", "marak"); return err }, apierrors.CodeNotFound},
		{"unknown organization", func() error { _, err := svc.AddMember(ctx, "nope", "marak"); return err }, apierrors.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			require.Error(t, err)
			assert.True(t, apierrors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestService_AddOwnerAddsMember(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, "charlie", "marak")
	_, err := svc.Create(ctx, "charlie", "nodejitsu", nil)
	require.NoError(t, err)

	org, err := svc.AddOwner(ctx, "nodejitsu", "marak")
	require.NoError(t, err)
	assert.True(t, org.IsOwner("marak"))
	assert.True(t, org.IsMember("marak"))

	org, err = svc.RemoveOwner(ctx, "nodejitsu", "marak")
	require.NoError(t, err)
	assert.False(t, org.IsOwner("marak"))
	assert.True(t, org.IsMember("marak"))
}

func TestService_Available(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, "charlie")

	available, err := svc.Available(ctx, "charlie")
	require.NoError(t, err)
	assert.False(t, available, "usernames share the namespace")

	available, err = svc.Available(ctx, "Nodejitsu")
	require.NoError(t, err)
	assert.True(t, available)

	_, err = svc.Create(ctx, "charlie", "nodejitsu", nil)
	require.NoError(t, err)
	available, err = svc.Available(ctx, "nodejitsu")
	require.NoError(t, err)
	assert.False(t, available)

	_, err = svc.Create(ctx, "charlie", "nodejitsu", nil)
	assert.True(t, apierrors.Is(err, apierrors.CodeConflict))
	_, err = svc.Create(ctx, "charlie", "charlie", nil)
	assert.True(t, apierrors.Is(err, apierrors.CodeConflict))

	require.NoError(t, svc.Destroy(ctx, "nodejitsu"))
	available, err = svc.Available(ctx, "nodejitsu")
	require.NoError(t, err)
	assert.True(t, available)
}

func TestService_CreateValidation(t *testing.T) {
	svc, _ := setupService(t, "charlie")

	_, err := svc.Create(context.Background(), "charlie", "bad name!", nil)
	assert.True(t, apierrors.Is(err, apierrors.CodeValidation))

	_, err = svc.Create(context.Background(), "", "acme", nil)
	assert.True(t, apierrors.Is(err, apierrors.CodeValidation))
}

func TestService_Views(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, "charlie", "marak")
	_, err := svc.Create(ctx, "charlie", "alpha", nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "marak", "beta", nil)
	require.NoError(t, err)
	_, err = svc.AddMember(ctx, "beta", "charlie")
	require.NoError(t, err)

	member, err := svc.ByMember(ctx, "charlie")
	require.NoError(t, err)
	require.Len(t, member, 2)
	assert.Equal(t, "alpha", member[0].Name)
	assert.Equal(t, "beta", member[1].Name)

	owned, err := svc.ByOwner(ctx, "charlie")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "alpha", owned[0].Name)

	members, err := svc.Members(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, []string{"marak", "charlie"}, members)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestService_UpdateProfileAndEvents(t *testing.T) {
	ctx := contextkeys.WithUserID(context.Background(), "charlie")
	svc, rec := setupService(t, "charlie")
	_, err := svc.Create(ctx, "charlie", "alpha", nil)
	require.NoError(t, err)

	org, err := svc.Update(ctx, "alpha", map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", org.Profile["url"])
	assert.False(t, org.CreatedAt.IsZero())

	require.NoError(t, svc.Destroy(ctx, "alpha"))
	assert.True(t, apierrors.IsNotFound(svc.Destroy(ctx, "alpha")))

	assert.Equal(t, []string{"organization.create", "organization.update", "organization.destroy"}, rec.Actions())
	assert.Equal(t, "charlie", rec.Events()[1].Actor)
}

func TestOrganization_SoleOwner(t *testing.T) {
	org := &Organization{Name: "a", Owners: []string{"charlie"}, Members: []string{"charlie", "marak"}}
	assert.True(t, org.SoleOwner("charlie"))
	assert.False(t, org.SoleOwner("marak"))

	require.NoError(t, org.addOwner("marak"))
	assert.False(t, org.SoleOwner("charlie"))
}
