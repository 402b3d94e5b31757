package reconcile

import (
	"context"
	"io"
	"testing"

	"github.com/orgwarden/orgwarden/pkg/config"
	"github.com/orgwarden/orgwarden/pkg/gateway"
	"github.com/orgwarden/orgwarden/pkg/permission"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func newTestReconciler(fake *fakeGateway, cfg *config.Config, opts Options) *Reconciler {
	return New(quietLogger(), fake, cfg, config.Consolidate(cfg), opts)
}

// inSyncFixture builds a gateway and configuration that already agree,
// so a run should decide nothing.
func inSyncFixture() (*fakeGateway, *config.Config) {
	fake := newFakeGateway()
	fake.addUser("carol")
	fake.addUser("alice")
	fake.addUser("bob")

	fake.admins = []gateway.User{fake.users["carol"]}
	fake.members = []gateway.User{fake.users["alice"], fake.users["bob"]}

	docs := fake.addTeam("docs", 0)
	fake.setDirectMembers(docs.Slug, gateway.RoleMember, "alice")
	fake.setDirectMembers(docs.Slug, gateway.RoleMaintainer, "bob")

	fake.repos = []gateway.RepoTeams{
		{
			Repo:  gateway.Repo{Name: "handbook"},
			Teams: map[string]permission.Permission{docs.Slug: permission.Push},
		},
	}
	fake.defaultPerm = permission.Pull

	cfg := &config.Config{
		Org: config.OrgConfig{
			OrgName:   "acme",
			OrgOwners: []string{"carol"},
		},
		Teams: map[string]*config.TeamConfig{
			"docs": {
				Member:     []string{"alice"},
				Maintainer: []string{"bob"},
				Repos:      map[string]string{"handbook": "push"},
			},
		},
	}

	return fake, cfg
}

func TestRun_InSyncStateProducesNoChanges(t *testing.T) {
	fake, cfg := inSyncFixture()
	r := newTestReconciler(fake, cfg, Options{})

	led, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, led.Empty(), "in-sync state must yield an empty ledger")
	assert.Empty(t, fake.calls, "in-sync state must issue no mutating calls")
}

func TestRun_MembershipScenario(t *testing.T) {
	// Team "docs" configured with member alice; remotely alice is a
	// maintainer and bob a member. Expected: alice updated to member,
	// bob removed.
	fake := newFakeGateway()
	fake.addUser("alice")
	fake.addUser("bob")

	docs := fake.addTeam("docs", 0)
	fake.setDirectMembers(docs.Slug, gateway.RoleMaintainer, "alice")
	fake.setDirectMembers(docs.Slug, gateway.RoleMember, "bob")

	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		Teams: map[string]*config.TeamConfig{
			"docs": {Member: []string{"alice"}},
		},
	}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	tc := led.Teams["docs"]
	require.NotNil(t, tc)
	assert.Equal(t, []string{"alice"}, tc.ChangedRoles)
	assert.Equal(t, []string{"bob"}, tc.RemovedMembers)
	assert.Contains(t, fake.calls, "membership:docs:alice:member")
	assert.Contains(t, fake.calls, "remove-membership:docs:bob")
}

func TestRun_DryRunWritesSameLedgerWithoutCalls(t *testing.T) {
	fake := newFakeGateway()
	fake.addUser("alice")
	fake.addUser("bob")

	docs := fake.addTeam("docs", 0)
	fake.setDirectMembers(docs.Slug, gateway.RoleMaintainer, "alice")
	fake.setDirectMembers(docs.Slug, gateway.RoleMember, "bob")

	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		Teams: map[string]*config.TeamConfig{
			"docs": {Member: []string{"alice"}},
		},
	}

	r := newTestReconciler(fake, cfg, Options{Dry: true})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	tc := led.Teams["docs"]
	require.NotNil(t, tc)
	assert.Equal(t, []string{"alice"}, tc.ChangedRoles)
	assert.Equal(t, []string{"bob"}, tc.RemovedMembers)
	assert.Empty(t, fake.calls, "dry-run must not issue mutating calls")
}

func TestRun_OwnerProtection(t *testing.T) {
	newFixture := func() (*fakeGateway, *config.Config) {
		fake := newFakeGateway()
		fake.authLogin = "warden-bot"
		fake.addUser("carol")
		fake.addUser("warden-bot")
		fake.admins = []gateway.User{fake.users["carol"], fake.users["warden-bot"]}

		cfg := &config.Config{
			Org: config.OrgConfig{OrgName: "acme", OrgOwners: []string{"carol"}},
		}

		return fake, cfg
	}

	t.Run("without force the authenticated user is kept", func(t *testing.T) {
		fake, cfg := newFixture()
		r := newTestReconciler(fake, cfg, Options{})

		led, err := r.Run(context.Background())
		require.NoError(t, err)

		assert.Empty(t, led.DemotedOwners)
		assert.NotContains(t, fake.calls, "demote:warden-bot")
	})

	t.Run("with force exactly one demotion call", func(t *testing.T) {
		fake, cfg := newFixture()
		r := newTestReconciler(fake, cfg, Options{Force: true})

		led, err := r.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []string{"warden-bot"}, led.DemotedOwners)
		assert.Equal(t, []string{"demote:warden-bot"}, fake.calls)
	})
}

func TestRun_EmptyOwnerListTakesNoAction(t *testing.T) {
	fake := newFakeGateway()
	fake.addUser("carol")
	fake.admins = []gateway.User{fake.users["carol"]}

	cfg := &config.Config{Org: config.OrgConfig{OrgName: "acme"}}

	r := newTestReconciler(fake, cfg, Options{Force: true})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, led.AddedOwners)
	assert.Empty(t, led.DemotedOwners)
	assert.Empty(t, fake.calls)
}

func TestRun_CreatesMissingTeamsParentsFirst(t *testing.T) {
	fake := newFakeGateway()

	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		Teams: map[string]*config.TeamConfig{
			"root": {},
			"child": {
				TeamSettings: config.TeamSettings{Parent: strp("root")},
			},
		},
	}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, fake.calls, 2)
	assert.Equal(t, "create-team:root:parent=0:privacy=closed", fake.calls[0])

	// The child is created after the root and references its id.
	rootTeam, err := fake.GetTeamBySlug(context.Background(), "root")
	require.NoError(t, err)
	assert.Contains(t, fake.calls[1], "create-team:child:parent=")
	assert.Contains(t, fake.calls[1], "privacy=closed")
	assert.NotZero(t, rootTeam.ID)

	assert.True(t, led.Teams["root"].Created)
	assert.True(t, led.Teams["child"].Created)
}

func TestRun_SettingsDriftTriggersSingleEdit(t *testing.T) {
	fake := newFakeGateway()
	docs := fake.addTeam("docs", 0)

	// Remote state drifts on description; the configured privacy
	// matches the remote value so only one field may change.
	for i := range fake.teams {
		if fake.teams[i].ID == docs.ID {
			fake.teams[i].Description = "stale"
		}
	}

	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		Teams: map[string]*config.TeamConfig{
			"docs": {
				TeamSettings: config.TeamSettings{
					Description: strp("documentation crew"),
					Privacy:     strp("closed"),
				},
			},
		},
	}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"description"}, led.Teams["docs"].ChangedSettings)
	assert.Equal(t, []string{"edit-team:docs"}, fake.calls)
}

func TestRun_RolePrecedenceMaintainerWins(t *testing.T) {
	fake := newFakeGateway()
	fake.addUser("alice")

	docs := fake.addTeam("docs", 0)
	fake.setDirectMembers(docs.Slug, gateway.RoleMember, "alice")

	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		Teams: map[string]*config.TeamConfig{
			"docs": {
				Member:     []string{"alice"},
				Maintainer: []string{"alice"},
			},
		},
	}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"alice"}, led.Teams["docs"].ChangedRoles)
	assert.Contains(t, fake.calls, "membership:docs:alice:maintainer")
}

func TestRun_OwnerForcePromotedToMaintainer(t *testing.T) {
	fake := newFakeGateway()
	fake.addUser("carol")
	fake.admins = []gateway.User{fake.users["carol"]}

	docs := fake.addTeam("docs", 0)
	fake.setDirectMembers(docs.Slug, gateway.RoleMember, "carol")

	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme", OrgOwners: []string{"carol"}},
		Teams: map[string]*config.TeamConfig{
			"docs": {Member: []string{"carol"}},
		},
	}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"carol"}, led.Teams["docs"].ChangedRoles)
	assert.Contains(t, fake.calls, "membership:docs:carol:maintainer")
}

func TestRun_PendingInvitationNotReinvited(t *testing.T) {
	fake := newFakeGateway()
	fake.addUser("frank")
	fake.invitations = []string{"Frank"}

	fake.addTeam("docs", 0)

	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		Teams: map[string]*config.TeamConfig{
			"docs": {Member: []string{"frank"}},
		},
	}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"frank"}, led.Teams["docs"].PendingMembers)
	assert.Empty(t, led.Teams["docs"].AddedMembers)
	assert.Empty(t, fake.calls)
}

func TestRun_UnresolvableLoginIsSkipped(t *testing.T) {
	fake := newFakeGateway()
	fake.addUser("alice")

	fake.addTeam("docs", 0)

	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		Teams: map[string]*config.TeamConfig{
			"docs": {Member: []string{"ghost", "alice"}},
		},
	}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	// The bad login is skipped; the good one is still added.
	assert.Equal(t, []string{"alice"}, led.Teams["docs"].AddedMembers)
	assert.Equal(t, []string{"membership:docs:alice:member"}, fake.calls)
}

func TestRun_UnconfiguredTeamSweep(t *testing.T) {
	t.Run("default leaves unconfigured teams alone", func(t *testing.T) {
		fake := newFakeGateway()
		fake.addTeam("legacy", 0)

		cfg := &config.Config{Org: config.OrgConfig{OrgName: "acme"}}

		r := newTestReconciler(fake, cfg, Options{})
		led, err := r.Run(context.Background())
		require.NoError(t, err)

		require.NotNil(t, led.Teams["legacy"])
		assert.True(t, led.Teams["legacy"].Unconfigured)
		assert.False(t, led.Teams["legacy"].Deleted)
		assert.Empty(t, fake.calls)
	})

	t.Run("deletion is explicit opt-in", func(t *testing.T) {
		fake := newFakeGateway()
		fake.addTeam("legacy", 0)

		cfg := &config.Config{
			Org: config.OrgConfig{OrgName: "acme"},
			App: config.AppConfig{DeleteUnconfiguredTeams: true},
		}

		r := newTestReconciler(fake, cfg, Options{})
		led, err := r.Run(context.Background())
		require.NoError(t, err)

		assert.True(t, led.Teams["legacy"].Deleted)
		assert.Contains(t, fake.calls, "delete-team:legacy")
	})
}

func TestRun_MemberWithoutTeam(t *testing.T) {
	fake := newFakeGateway()
	fake.addUser("drifter")
	fake.members = []gateway.User{fake.users["drifter"]}

	cfg := &config.Config{Org: config.OrgConfig{OrgName: "acme"}}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"drifter"}, led.MembersWithoutTeam)
	assert.Empty(t, led.RemovedMembers)
	assert.Empty(t, fake.calls)

	// With the removal policy enabled the member is removed.
	fake2 := newFakeGateway()
	fake2.addUser("drifter")
	fake2.members = []gateway.User{fake2.users["drifter"]}

	cfg2 := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		App: config.AppConfig{RemoveMembersWithoutTeam: true},
	}

	r2 := newTestReconciler(fake2, cfg2, Options{})
	led2, err := r2.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"drifter"}, led2.RemovedMembers)
	assert.Contains(t, fake2.calls, "remove-from-org:drifter")
}

func TestRun_FreshlyAddedMemberNotFlaggedWithoutTeam(t *testing.T) {
	fake := newFakeGateway()
	fake.addUser("newbie")
	fake.members = []gateway.User{fake.users["newbie"]}
	fake.addTeam("docs", 0)

	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		App: config.AppConfig{RemoveMembersWithoutTeam: true},
		Teams: map[string]*config.TeamConfig{
			"docs": {Member: []string{"newbie"}},
		},
	}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, led.MembersWithoutTeam)
	assert.NotContains(t, fake.calls, "remove-from-org:newbie")
}

func TestEffectiveTeamRepos_Inheritance(t *testing.T) {
	// C under B under A, each granting repo R a distinct permission:
	// the effective permission is the highest of all three, regardless
	// of declaration order.
	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		Teams: map[string]*config.TeamConfig{
			"a": {Repos: map[string]string{"r": "pull"}},
			"b": {
				TeamSettings: config.TeamSettings{Parent: strp("a")},
				Repos:        map[string]string{"r": "admin"},
			},
			"c": {
				TeamSettings: config.TeamSettings{Parent: strp("b")},
				Repos:        map[string]string{"r": "triage"},
			},
		},
	}

	r := newTestReconciler(newFakeGateway(), cfg, Options{})
	effective := r.effectiveTeamRepos()

	assert.Equal(t, permission.Admin, effective["c"]["r"])
	assert.Equal(t, permission.Admin, effective["b"]["r"])
	assert.Equal(t, permission.Pull, effective["a"]["r"])
}

func TestRun_RepoPermissionScenario(t *testing.T) {
	// Repo "infra": configured team "platform" at push remotely (no
	// diff), unconfigured team "legacy" at admin remotely. The legacy
	// grant is recorded but untouched, and its admin permission is
	// propagated as implied for legacy's members on infra.
	fake := newFakeGateway()
	fake.addUser("pat")
	fake.addUser("mallory")

	platform := fake.addTeam("platform", 0)
	legacy := fake.addTeam("legacy", 0)
	fake.setDirectMembers(platform.Slug, gateway.RoleMember, "pat")
	fake.setDirectMembers(legacy.Slug, gateway.RoleMember, "mallory")

	fake.repos = []gateway.RepoTeams{
		{
			Repo: gateway.Repo{Name: "infra"},
			Teams: map[string]permission.Permission{
				platform.Slug: permission.Push,
				legacy.Slug:   permission.Admin,
			},
		},
	}
	fake.collaborators["infra"] = map[string]permission.Permission{
		"mallory": permission.Admin,
	}
	fake.defaultPerm = permission.Pull

	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		Teams: map[string]*config.TeamConfig{
			"platform": {
				Member: []string{"pat"},
				Repos:  map[string]string{"infra": "push"},
			},
		},
	}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	// The legacy grant is recorded but no mutation touches it.
	require.NotNil(t, led.Repos["infra"])
	assert.Equal(t, []string{"legacy: admin"}, led.Repos["infra"].UnconfiguredTeamGrants)
	assert.Empty(t, led.Repos["infra"].ChangedTeamPermissions)
	assert.Empty(t, led.Repos["infra"].RemovedTeams)

	// Mallory's admin access matches what legacy implies: accepted.
	assert.Empty(t, led.Repos["infra"].RemovedCollaborators)
	assert.Empty(t, fake.calls)
}

func TestRun_StrayConfiguredGrantRemoved(t *testing.T) {
	fake := newFakeGateway()
	platform := fake.addTeam("platform", 0)

	fake.repos = []gateway.RepoTeams{
		{
			Repo:  gateway.Repo{Name: "scratch"},
			Teams: map[string]permission.Permission{platform.Slug: permission.Push},
		},
	}

	// Platform is configured but declares no grant on "scratch".
	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		Teams: map[string]*config.TeamConfig{
			"platform": {},
		},
	}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"platform"}, led.Repos["scratch"].RemovedTeams)
	assert.Contains(t, fake.calls, "remove-repo-team:scratch:platform")
}

func TestRun_CollaboratorOneWaySync(t *testing.T) {
	fake := newFakeGateway()
	fake.addUser("dave")
	fake.addUser("erin")

	platform := fake.addTeam("platform", 0)
	fake.setDirectMembers(platform.Slug, gateway.RoleMember, "dave")

	fake.repos = []gateway.RepoTeams{
		{
			Repo:  gateway.Repo{Name: "infra"},
			Teams: map[string]permission.Permission{platform.Slug: permission.Push},
		},
	}
	fake.collaborators["infra"] = map[string]permission.Permission{
		"dave": permission.Admin, // above the configured push
		"erin": permission.Pull,  // at the org default
	}
	fake.defaultPerm = permission.Pull

	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		Teams: map[string]*config.TeamConfig{
			"platform": {
				Member: []string{"dave"},
				Repos:  map[string]string{"infra": "push"},
			},
		},
	}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"dave"}, led.Repos["infra"].RemovedCollaborators)
	assert.Equal(t, []string{"remove-collaborator:infra:dave"}, fake.calls)
}

func TestRun_OwnersExcludedFromCollaboratorSync(t *testing.T) {
	fake := newFakeGateway()
	fake.addUser("carol")
	fake.admins = []gateway.User{fake.users["carol"]}

	fake.repos = []gateway.RepoTeams{
		{Repo: gateway.Repo{Name: "infra"}, Teams: map[string]permission.Permission{}},
	}
	fake.collaborators["infra"] = map[string]permission.Permission{
		"carol": permission.Admin,
	}
	fake.defaultPerm = permission.Pull

	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme", OrgOwners: []string{"carol"}},
	}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Nil(t, led.Repos["infra"])
	assert.Empty(t, fake.calls)
}

func TestOrderedTeamNames(t *testing.T) {
	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		Teams: map[string]*config.TeamConfig{
			"leaf": {TeamSettings: config.TeamSettings{Parent: strp("mid")}},
			"mid":  {TeamSettings: config.TeamSettings{Parent: strp("top")}},
			"top":  {},
			"solo": {},
		},
	}

	r := newTestReconciler(newFakeGateway(), cfg, Options{})
	ordered := r.orderedTeamNames()

	pos := make(map[string]int, len(ordered))
	for i, name := range ordered {
		pos[name] = i
	}

	assert.Less(t, pos["top"], pos["mid"])
	assert.Less(t, pos["mid"], pos["leaf"])
	assert.Len(t, ordered, 4)
}

func TestRun_OrgDefaultIsFloorUnderTeamGrants(t *testing.T) {
	// Platform grants only pull on "infra" while the org default is
	// push. Dave holding push is covered by the default floor; frank
	// holding admin exceeds both the floor and the grant.
	fake := newFakeGateway()
	fake.addUser("dave")

	platform := fake.addTeam("platform", 0)
	fake.setDirectMembers(platform.Slug, gateway.RoleMember, "dave")

	fake.repos = []gateway.RepoTeams{
		{
			Repo:  gateway.Repo{Name: "infra"},
			Teams: map[string]permission.Permission{platform.Slug: permission.Pull},
		},
	}
	fake.collaborators["infra"] = map[string]permission.Permission{
		"dave":  permission.Push,
		"frank": permission.Admin,
	}
	fake.defaultPerm = permission.Push

	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		Teams: map[string]*config.TeamConfig{
			"platform": {
				Member: []string{"dave"},
				Repos:  map[string]string{"infra": "pull"},
			},
		},
	}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, led.Repos["infra"])
	assert.Equal(t, []string{"frank"}, led.Repos["infra"].RemovedCollaborators)
	assert.Equal(t, []string{"remove-collaborator:infra:frank"}, fake.calls)
}

func TestRun_SkippedTeamCreationSkipsItsRepoGrants(t *testing.T) {
	// Team "child" names a parent that neither exists remotely nor is
	// declared, so its creation is skipped. Its repository grants must
	// then be skipped too instead of being applied against a team the
	// remote does not know.
	fake := newFakeGateway()
	fake.repos = []gateway.RepoTeams{
		{Repo: gateway.Repo{Name: "infra"}, Teams: map[string]permission.Permission{}},
	}

	cfg := &config.Config{
		Org: config.OrgConfig{OrgName: "acme"},
		Teams: map[string]*config.TeamConfig{
			"child": {
				TeamSettings: config.TeamSettings{Parent: strp("ghost")},
				Repos:        map[string]string{"infra": "push"},
			},
		},
	}

	r := newTestReconciler(fake, cfg, Options{})
	led, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Nil(t, led.Repos["infra"])
	assert.Empty(t, fake.calls)
}
