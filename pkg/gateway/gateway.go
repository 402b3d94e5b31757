// Package gateway abstracts the remote service. The reconcilers depend
// only on the Gateway interface; the credentialed GitHub implementation
// lives in this package but is irrelevant to their behavior. The two
// remote permission vocabularies (lower-case REST, upper-case GraphQL)
// are normalized to the canonical permission enumeration here, never
// inside reconcilers.
package gateway

import (
	"context"
	"errors"

	"github.com/gosimple/slug"
	"github.com/orgwarden/orgwarden/pkg/permission"
)

// ErrNotFound is returned when a remote entity does not exist.
var ErrNotFound = errors.New("not found")

// Membership roles within a team.
const (
	RoleMember     = "member"
	RoleMaintainer = "maintainer"
)

// User is a remote account identity.
type User struct {
	Login string
	ID    int64
}

// Team is a remote team. ParentID is zero for root teams.
type Team struct {
	ID                  int64
	Name                string
	Slug                string
	ParentID            int64
	Privacy             string
	Description         string
	NotificationSetting string
}

// Repo is a remote repository.
type Repo struct {
	Name     string
	Archived bool
}

// RepoTeams is a repository together with its current team permission
// grants, keyed by team slug.
type RepoTeams struct {
	Repo  Repo
	Teams map[string]permission.Permission
}

// TeamEdit describes a bulk team settings change. Nil fields are left
// untouched.
type TeamEdit struct {
	Description         *string
	Privacy             *string
	NotificationSetting *string
	ParentID            *int64
}

// Empty reports whether the edit would change nothing.
func (e TeamEdit) Empty() bool {
	return e.Description == nil && e.Privacy == nil &&
		e.NotificationSetting == nil && e.ParentID == nil
}

// Gateway is the remote state boundary consumed by the reconcilers.
type Gateway interface {
	// AuthenticatedLogin returns the login of the identity this
	// gateway is authenticated as.
	AuthenticatedLogin(ctx context.Context) (string, error)

	ListOrgAdmins(ctx context.Context) ([]User, error)
	ListOrgMembers(ctx context.Context) ([]User, error)
	ListPendingInvitations(ctx context.Context) ([]string, error)
	PromoteToOwner(ctx context.Context, login string) error
	DemoteToMember(ctx context.Context, login string) error
	RemoveFromOrg(ctx context.Context, login string) error

	ListTeams(ctx context.Context) ([]Team, error)
	CreateTeam(ctx context.Context, name string, parentID int64, privacy string) error
	EditTeam(ctx context.Context, team Team, edit TeamEdit) error
	DeleteTeam(ctx context.Context, team Team) error
	GetTeamBySlug(ctx context.Context, slug string) (Team, error)

	// ListDirectTeamMembers returns only strictly direct members of
	// the team with the given role, never members inherited from
	// descendant teams.
	ListDirectTeamMembers(ctx context.Context, team Team, role string) ([]User, error)
	AddOrUpdateMembership(ctx context.Context, team Team, login, role string) error
	RemoveMembership(ctx context.Context, team Team, login string) error

	ListReposWithTeamPermissions(ctx context.Context, includeArchived bool) ([]RepoTeams, error)
	SetTeamRepoPermission(ctx context.Context, team Team, repo string, perm permission.Permission) error
	RemoveTeamFromRepo(ctx context.Context, team Team, repo string) error

	// ListRepoCollaboratorPermissions merges the paginated collaborator
	// stream into one login-to-permission map for the repository.
	ListRepoCollaboratorPermissions(ctx context.Context, repo string) (map[string]permission.Permission, error)
	RemoveCollaborator(ctx context.Context, repo, login string) error

	ResolveUserByLogin(ctx context.Context, login string) (User, error)
	GetDefaultRepoPermission(ctx context.Context) (permission.Permission, error)

	// RateLimit returns the remaining and total API quota.
	RateLimit(ctx context.Context) (remaining, limit int, err error)
}

// Slugify derives the remote slug for a human-entered team name.
func Slugify(name string) string {
	return slug.Make(name)
}
