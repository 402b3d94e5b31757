package reconcile

import (
	"context"
	"fmt"

	"github.com/orgwarden/orgwarden/pkg/gateway"
	"github.com/orgwarden/orgwarden/pkg/permission"
)

// fakeGateway is an in-memory Gateway that records every mutating call.
type fakeGateway struct {
	authLogin     string
	admins        []gateway.User
	members       []gateway.User
	invitations   []string
	teams         []gateway.Team
	directMembers map[string]map[string][]gateway.User // slug -> role -> users
	repos         []gateway.RepoTeams
	collaborators map[string]map[string]permission.Permission
	defaultPerm   permission.Permission
	users         map[string]gateway.User

	nextTeamID int64
	calls      []string
}

var _ gateway.Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		authLogin:     "warden-bot",
		directMembers: make(map[string]map[string][]gateway.User),
		collaborators: make(map[string]map[string]permission.Permission),
		defaultPerm:   permission.None,
		users:         make(map[string]gateway.User),
		nextTeamID:    1000,
	}
}

func (f *fakeGateway) addUser(login string) gateway.User {
	u := gateway.User{Login: login, ID: int64(len(f.users) + 1)}
	f.users[login] = u

	return u
}

func (f *fakeGateway) addTeam(name string, parentID int64) gateway.Team {
	f.nextTeamID++
	t := gateway.Team{
		ID:       f.nextTeamID,
		Name:     name,
		Slug:     gateway.Slugify(name),
		ParentID: parentID,
		Privacy:  "closed",
	}
	f.teams = append(f.teams, t)

	return t
}

func (f *fakeGateway) setDirectMembers(slug, role string, logins ...string) {
	if f.directMembers[slug] == nil {
		f.directMembers[slug] = make(map[string][]gateway.User)
	}

	users := make([]gateway.User, 0, len(logins))
	for _, login := range logins {
		users = append(users, f.users[login])
	}

	f.directMembers[slug][role] = users
}

func (f *fakeGateway) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeGateway) AuthenticatedLogin(context.Context) (string, error) {
	return f.authLogin, nil
}

func (f *fakeGateway) ListOrgAdmins(context.Context) ([]gateway.User, error) {
	return f.admins, nil
}

func (f *fakeGateway) ListOrgMembers(context.Context) ([]gateway.User, error) {
	return f.members, nil
}

func (f *fakeGateway) ListPendingInvitations(context.Context) ([]string, error) {
	return f.invitations, nil
}

func (f *fakeGateway) PromoteToOwner(_ context.Context, login string) error {
	f.record("promote:%s", login)

	return nil
}

func (f *fakeGateway) DemoteToMember(_ context.Context, login string) error {
	f.record("demote:%s", login)

	return nil
}

func (f *fakeGateway) RemoveFromOrg(_ context.Context, login string) error {
	f.record("remove-from-org:%s", login)

	return nil
}

func (f *fakeGateway) ListTeams(context.Context) ([]gateway.Team, error) {
	out := make([]gateway.Team, len(f.teams))
	copy(out, f.teams)

	return out, nil
}

func (f *fakeGateway) CreateTeam(
	_ context.Context, name string, parentID int64, privacy string,
) error {
	f.record("create-team:%s:parent=%d:privacy=%s", name, parentID, privacy)
	f.addTeam(name, parentID)

	return nil
}

func (f *fakeGateway) EditTeam(_ context.Context, team gateway.Team, edit gateway.TeamEdit) error {
	f.record("edit-team:%s", team.Name)

	for i := range f.teams {
		if f.teams[i].ID != team.ID {
			continue
		}

		if edit.Description != nil {
			f.teams[i].Description = *edit.Description
		}

		if edit.Privacy != nil {
			f.teams[i].Privacy = *edit.Privacy
		}

		if edit.NotificationSetting != nil {
			f.teams[i].NotificationSetting = *edit.NotificationSetting
		}

		if edit.ParentID != nil {
			f.teams[i].ParentID = *edit.ParentID
		}
	}

	return nil
}

func (f *fakeGateway) DeleteTeam(_ context.Context, team gateway.Team) error {
	f.record("delete-team:%s", team.Name)

	return nil
}

func (f *fakeGateway) GetTeamBySlug(_ context.Context, slug string) (gateway.Team, error) {
	for _, t := range f.teams {
		if t.Slug == slug {
			return t, nil
		}
	}

	return gateway.Team{}, gateway.ErrNotFound
}

func (f *fakeGateway) ListDirectTeamMembers(
	_ context.Context, team gateway.Team, role string,
) ([]gateway.User, error) {
	return f.directMembers[team.Slug][role], nil
}

func (f *fakeGateway) AddOrUpdateMembership(
	_ context.Context, team gateway.Team, login, role string,
) error {
	f.record("membership:%s:%s:%s", team.Slug, login, role)

	return nil
}

func (f *fakeGateway) RemoveMembership(_ context.Context, team gateway.Team, login string) error {
	f.record("remove-membership:%s:%s", team.Slug, login)

	return nil
}

func (f *fakeGateway) ListReposWithTeamPermissions(
	_ context.Context, includeArchived bool,
) ([]gateway.RepoTeams, error) {
	if includeArchived {
		return f.repos, nil
	}

	out := make([]gateway.RepoTeams, 0, len(f.repos))

	for _, rt := range f.repos {
		if !rt.Repo.Archived {
			out = append(out, rt)
		}
	}

	return out, nil
}

func (f *fakeGateway) SetTeamRepoPermission(
	_ context.Context, team gateway.Team, repo string, perm permission.Permission,
) error {
	f.record("set-repo-perm:%s:%s:%s", repo, team.Slug, perm)

	return nil
}

func (f *fakeGateway) RemoveTeamFromRepo(_ context.Context, team gateway.Team, repo string) error {
	f.record("remove-repo-team:%s:%s", repo, team.Slug)

	return nil
}

func (f *fakeGateway) ListRepoCollaboratorPermissions(
	_ context.Context, repo string,
) (map[string]permission.Permission, error) {
	return f.collaborators[repo], nil
}

func (f *fakeGateway) RemoveCollaborator(_ context.Context, repo, login string) error {
	f.record("remove-collaborator:%s:%s", repo, login)

	return nil
}

func (f *fakeGateway) ResolveUserByLogin(_ context.Context, login string) (gateway.User, error) {
	if u, ok := f.users[login]; ok {
		return u, nil
	}

	return gateway.User{}, gateway.ErrNotFound
}

func (f *fakeGateway) GetDefaultRepoPermission(context.Context) (permission.Permission, error) {
	return f.defaultPerm, nil
}

func (f *fakeGateway) RateLimit(context.Context) (int, int, error) {
	return 5000, 5000, nil
}
