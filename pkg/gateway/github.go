package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v69/github"
	"github.com/orgwarden/orgwarden/pkg/permission"
	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const pageSize = 100

// Client is the credentialed GitHub implementation of Gateway. Single
// entity and mutating calls go through the REST API; bulk membership
// and collaborator queries go through cursor-paginated GraphQL.
type Client struct {
	log   logrus.FieldLogger
	org   string
	orgID int64
	rest  *github.Client
	gql   *githubv4.Client
}

// Ensure interface compliance.
var _ Gateway = (*Client)(nil)

// NewClient builds a gateway for the given organization, authenticated
// with the given token. It resolves the organization eagerly so that an
// authentication failure or unknown organization fails the run up
// front.
func NewClient(
	ctx context.Context, log logrus.FieldLogger, org, token string,
) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)

	c := &Client{
		log:  log.WithField("component", "gateway"),
		org:  org,
		rest: github.NewClient(httpClient),
		gql:  githubv4.NewClient(httpClient),
	}

	remote, _, err := c.rest.Organizations.Get(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("resolving organization %q: %w", org, err)
	}

	c.orgID = remote.GetID()

	return c, nil
}

// AuthenticatedLogin returns the login the token belongs to.
func (c *Client) AuthenticatedLogin(ctx context.Context) (string, error) {
	user, _, err := c.rest.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("resolving authenticated user: %w", err)
	}

	return user.GetLogin(), nil
}

func (c *Client) listMembersByRole(ctx context.Context, role string) ([]User, error) {
	opts := &github.ListMembersOptions{
		Role:        role,
		ListOptions: github.ListOptions{PerPage: pageSize},
	}

	var users []User

	for {
		page, resp, err := c.rest.Organizations.ListMembers(ctx, c.org, opts)
		if err != nil {
			return nil, fmt.Errorf("listing org members (role %s): %w", role, err)
		}

		for _, m := range page {
			users = append(users, User{Login: m.GetLogin(), ID: m.GetID()})
		}

		if resp.NextPage == 0 {
			break
		}

		opts.Page = resp.NextPage
	}

	return users, nil
}

// ListOrgAdmins returns all organization owners.
func (c *Client) ListOrgAdmins(ctx context.Context) ([]User, error) {
	return c.listMembersByRole(ctx, "admin")
}

// ListOrgMembers returns all non-owner organization members.
func (c *Client) ListOrgMembers(ctx context.Context) ([]User, error) {
	return c.listMembersByRole(ctx, "member")
}

// ListPendingInvitations returns the logins of outstanding org invites.
func (c *Client) ListPendingInvitations(ctx context.Context) ([]string, error) {
	opts := &github.ListOptions{PerPage: pageSize}

	var logins []string

	for {
		page, resp, err := c.rest.Organizations.ListPendingOrgInvitations(ctx, c.org, opts)
		if err != nil {
			return nil, fmt.Errorf("listing pending invitations: %w", err)
		}

		for _, inv := range page {
			if inv.GetLogin() != "" {
				logins = append(logins, inv.GetLogin())
			}
		}

		if resp.NextPage == 0 {
			break
		}

		opts.Page = resp.NextPage
	}

	return logins, nil
}

// PromoteToOwner makes the user an organization owner.
func (c *Client) PromoteToOwner(ctx context.Context, login string) error {
	_, _, err := c.rest.Organizations.EditOrgMembership(
		ctx, login, c.org, &github.Membership{Role: github.Ptr("admin")},
	)
	if err != nil {
		return fmt.Errorf("promoting %s to owner: %w", login, err)
	}

	return nil
}

// DemoteToMember makes the user a regular organization member.
func (c *Client) DemoteToMember(ctx context.Context, login string) error {
	_, _, err := c.rest.Organizations.EditOrgMembership(
		ctx, login, c.org, &github.Membership{Role: github.Ptr("member")},
	)
	if err != nil {
		return fmt.Errorf("demoting %s to member: %w", login, err)
	}

	return nil
}

// RemoveFromOrg removes the user from the organization entirely.
func (c *Client) RemoveFromOrg(ctx context.Context, login string) error {
	if _, err := c.rest.Organizations.RemoveOrgMembership(ctx, login, c.org); err != nil {
		return fmt.Errorf("removing %s from organization: %w", login, err)
	}

	return nil
}

func convertTeam(t *github.Team) Team {
	team := Team{
		ID:                  t.GetID(),
		Name:                t.GetName(),
		Slug:                t.GetSlug(),
		Privacy:             t.GetPrivacy(),
		Description:         t.GetDescription(),
		NotificationSetting: t.GetNotificationSetting(),
	}

	if parent := t.GetParent(); parent != nil {
		team.ParentID = parent.GetID()
	}

	return team
}

// ListTeams returns all teams of the organization.
func (c *Client) ListTeams(ctx context.Context) ([]Team, error) {
	opts := &github.ListOptions{PerPage: pageSize}

	var teams []Team

	for {
		page, resp, err := c.rest.Teams.ListTeams(ctx, c.org, opts)
		if err != nil {
			return nil, fmt.Errorf("listing teams: %w", err)
		}

		for _, t := range page {
			teams = append(teams, convertTeam(t))
		}

		if resp.NextPage == 0 {
			break
		}

		opts.Page = resp.NextPage
	}

	return teams, nil
}

// CreateTeam creates a team, optionally under a parent.
func (c *Client) CreateTeam(
	ctx context.Context, name string, parentID int64, privacy string,
) error {
	newTeam := github.NewTeam{Name: name}
	if parentID != 0 {
		newTeam.ParentTeamID = github.Ptr(parentID)
	}

	if privacy != "" {
		newTeam.Privacy = github.Ptr(privacy)
	}

	if _, _, err := c.rest.Teams.CreateTeam(ctx, c.org, newTeam); err != nil {
		return fmt.Errorf("creating team %s: %w", name, err)
	}

	return nil
}

// EditTeam applies a bulk settings change to an existing team.
func (c *Client) EditTeam(ctx context.Context, team Team, edit TeamEdit) error {
	upd := github.NewTeam{Name: team.Name}

	if edit.Description != nil {
		upd.Description = edit.Description
	}

	if edit.Privacy != nil {
		upd.Privacy = edit.Privacy
	}

	if edit.NotificationSetting != nil {
		upd.NotificationSetting = edit.NotificationSetting
	}

	removeParent := false

	if edit.ParentID != nil {
		if *edit.ParentID == 0 {
			removeParent = true
		} else {
			upd.ParentTeamID = edit.ParentID
		}
	}

	_, _, err := c.rest.Teams.EditTeamByID(ctx, c.orgID, team.ID, upd, removeParent)
	if err != nil {
		return fmt.Errorf("editing team %s: %w", team.Name, err)
	}

	return nil
}

// DeleteTeam removes the team from the organization.
func (c *Client) DeleteTeam(ctx context.Context, team Team) error {
	if _, err := c.rest.Teams.DeleteTeamBySlug(ctx, c.org, team.Slug); err != nil {
		return fmt.Errorf("deleting team %s: %w", team.Name, err)
	}

	return nil
}

// GetTeamBySlug resolves a team by its slug.
func (c *Client) GetTeamBySlug(ctx context.Context, slug string) (Team, error) {
	team, resp, err := c.rest.Teams.GetTeamBySlug(ctx, c.org, slug)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return Team{}, ErrNotFound
		}

		return Team{}, fmt.Errorf("resolving team by slug %s: %w", slug, err)
	}

	return convertTeam(team), nil
}

// AddOrUpdateMembership adds the user to the team with the given role,
// or updates their role if already a member.
func (c *Client) AddOrUpdateMembership(
	ctx context.Context, team Team, login, role string,
) error {
	_, _, err := c.rest.Teams.AddTeamMembershipBySlug(
		ctx, c.org, team.Slug, login,
		&github.TeamAddTeamMembershipOptions{Role: role},
	)
	if err != nil {
		return fmt.Errorf("adding %s to team %s as %s: %w", login, team.Name, role, err)
	}

	return nil
}

// RemoveMembership removes the user's direct membership in the team.
func (c *Client) RemoveMembership(ctx context.Context, team Team, login string) error {
	_, err := c.rest.Teams.RemoveTeamMembershipBySlug(ctx, c.org, team.Slug, login)
	if err != nil {
		return fmt.Errorf("removing %s from team %s: %w", login, team.Name, err)
	}

	return nil
}

// ListReposWithTeamPermissions returns all repositories together with
// their current team permission grants.
func (c *Client) ListReposWithTeamPermissions(
	ctx context.Context, includeArchived bool,
) ([]RepoTeams, error) {
	opts := &github.RepositoryListByOrgOptions{
		Type:        "all",
		ListOptions: github.ListOptions{PerPage: pageSize},
	}

	var repos []RepoTeams

	for {
		page, resp, err := c.rest.Repositories.ListByOrg(ctx, c.org, opts)
		if err != nil {
			return nil, fmt.Errorf("listing repositories: %w", err)
		}

		for _, repo := range page {
			if repo.GetArchived() && !includeArchived {
				continue
			}

			teams, err := c.listRepoTeams(ctx, repo.GetName())
			if err != nil {
				return nil, err
			}

			repos = append(repos, RepoTeams{
				Repo: Repo{
					Name:     repo.GetName(),
					Archived: repo.GetArchived(),
				},
				Teams: teams,
			})
		}

		if resp.NextPage == 0 {
			break
		}

		opts.Page = resp.NextPage
	}

	return repos, nil
}

func (c *Client) listRepoTeams(
	ctx context.Context, repo string,
) (map[string]permission.Permission, error) {
	opts := &github.ListOptions{PerPage: pageSize}
	teams := make(map[string]permission.Permission)

	for {
		page, resp, err := c.rest.Repositories.ListTeams(ctx, c.org, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing teams of repository %s: %w", repo, err)
		}

		for _, t := range page {
			teams[t.GetSlug()] = permission.Normalize(t.GetPermission())
		}

		if resp.NextPage == 0 {
			break
		}

		opts.Page = resp.NextPage
	}

	return teams, nil
}

// SetTeamRepoPermission grants or updates a team's repository access.
func (c *Client) SetTeamRepoPermission(
	ctx context.Context, team Team, repo string, perm permission.Permission,
) error {
	_, err := c.rest.Teams.AddTeamRepoBySlug(
		ctx, c.org, team.Slug, c.org, repo,
		&github.TeamAddTeamRepoOptions{Permission: string(perm)},
	)
	if err != nil {
		return fmt.Errorf(
			"setting %s permission for team %s on %s: %w", perm, team.Name, repo, err,
		)
	}

	return nil
}

// RemoveTeamFromRepo strips the team's access to the repository.
func (c *Client) RemoveTeamFromRepo(ctx context.Context, team Team, repo string) error {
	_, err := c.rest.Teams.RemoveTeamRepoBySlug(ctx, c.org, team.Slug, c.org, repo)
	if err != nil {
		return fmt.Errorf("removing team %s from %s: %w", team.Name, repo, err)
	}

	return nil
}

// RemoveCollaborator removes an individual collaborator from the repo.
func (c *Client) RemoveCollaborator(ctx context.Context, repo, login string) error {
	_, err := c.rest.Repositories.RemoveCollaborator(ctx, c.org, repo, login)
	if err != nil {
		return fmt.Errorf("removing collaborator %s from %s: %w", login, repo, err)
	}

	return nil
}

// ResolveUserByLogin resolves a configured login to a remote identity.
func (c *Client) ResolveUserByLogin(ctx context.Context, login string) (User, error) {
	user, resp, err := c.rest.Users.Get(ctx, login)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return User{}, ErrNotFound
		}

		return User{}, fmt.Errorf("resolving user %s: %w", login, err)
	}

	return User{Login: user.GetLogin(), ID: user.GetID()}, nil
}

// GetDefaultRepoPermission returns the permission every org member
// implicitly holds on every repository.
func (c *Client) GetDefaultRepoPermission(ctx context.Context) (permission.Permission, error) {
	org, _, err := c.rest.Organizations.Get(ctx, c.org)
	if err != nil {
		return permission.None, fmt.Errorf("reading org default permission: %w", err)
	}

	return permission.Normalize(org.GetDefaultRepoPermission()), nil
}

// RateLimit returns the remaining core API quota.
func (c *Client) RateLimit(ctx context.Context) (int, int, error) {
	limits, _, err := c.rest.RateLimit.Get(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("reading rate limit: %w", err)
	}

	core := limits.GetCore()

	return core.Remaining, core.Limit, nil
}
