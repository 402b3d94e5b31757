// Package ledger records every reconciliation decision made during a
// run. Entries are append-only and keyed by team or repository name;
// they are written identically in dry-run mode so the final report is a
// faithful preview of what a real run would do.
package ledger

import "fmt"

// TeamChanges holds the decisions recorded for a single team.
type TeamChanges struct {
	Created         bool     `json:"created"`
	Deleted         bool     `json:"deleted"`
	Unconfigured    bool     `json:"unconfigured"`
	ChangedSettings []string `json:"changed_settings,omitempty"`
	AddedMembers    []string `json:"added_members,omitempty"`
	ChangedRoles    []string `json:"changed_roles,omitempty"`
	RemovedMembers  []string `json:"removed_members,omitempty"`
	PendingMembers  []string `json:"pending_members,omitempty"`
}

// RepoChanges holds the decisions recorded for a single repository.
type RepoChanges struct {
	ChangedTeamPermissions []string `json:"changed_team_permissions,omitempty"`
	RemovedTeams           []string `json:"removed_teams,omitempty"`
	UnconfiguredTeamGrants []string `json:"unconfigured_team_grants,omitempty"`
	RemovedCollaborators   []string `json:"removed_collaborators,omitempty"`
}

// Ledger accumulates all decisions of one reconciliation run.
type Ledger struct {
	AddedOwners        []string                `json:"added_owners,omitempty"`
	DemotedOwners      []string                `json:"demoted_owners,omitempty"`
	Teams              map[string]*TeamChanges `json:"teams,omitempty"`
	Repos              map[string]*RepoChanges `json:"repos,omitempty"`
	MembersWithoutTeam []string                `json:"members_without_team,omitempty"`
	RemovedMembers     []string                `json:"removed_members,omitempty"`
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		Teams: make(map[string]*TeamChanges),
		Repos: make(map[string]*RepoChanges),
	}
}

func (l *Ledger) team(name string) *TeamChanges {
	tc, ok := l.Teams[name]
	if !ok {
		tc = &TeamChanges{}
		l.Teams[name] = tc
	}

	return tc
}

func (l *Ledger) repo(name string) *RepoChanges {
	rc, ok := l.Repos[name]
	if !ok {
		rc = &RepoChanges{}
		l.Repos[name] = rc
	}

	return rc
}

// AddOwner records a user promoted to organization owner.
func (l *Ledger) AddOwner(login string) {
	l.AddedOwners = append(l.AddedOwners, login)
}

// DemoteOwner records a user demoted from owner to member.
func (l *Ledger) DemoteOwner(login string) {
	l.DemotedOwners = append(l.DemotedOwners, login)
}

// CreateTeam records a newly created team.
func (l *Ledger) CreateTeam(team string) {
	l.team(team).Created = true
}

// EditTeamSettings records the settings fields changed on a team.
func (l *Ledger) EditTeamSettings(team string, fields ...string) {
	tc := l.team(team)
	tc.ChangedSettings = append(tc.ChangedSettings, fields...)
}

// UnconfiguredTeam records a remote team that has no local
// configuration, and whether it was deleted.
func (l *Ledger) UnconfiguredTeam(team string, deleted bool) {
	tc := l.team(team)
	tc.Unconfigured = true
	tc.Deleted = deleted
}

// AddTeamMember records a user added to a team.
func (l *Ledger) AddTeamMember(team, login string) {
	tc := l.team(team)
	tc.AddedMembers = append(tc.AddedMembers, login)
}

// ChangeTeamMemberRole records a user whose role changed within a team.
func (l *Ledger) ChangeTeamMemberRole(team, login string) {
	tc := l.team(team)
	tc.ChangedRoles = append(tc.ChangedRoles, login)
}

// PendingTeamMember records a user who would have been added but
// already has an outstanding invitation.
func (l *Ledger) PendingTeamMember(team, login string) {
	tc := l.team(team)
	tc.PendingMembers = append(tc.PendingMembers, login)
}

// RemoveTeamMember records a user removed from a team.
func (l *Ledger) RemoveTeamMember(team, login string) {
	tc := l.team(team)
	tc.RemovedMembers = append(tc.RemovedMembers, login)
}

// MemberWithoutTeam records an organization member who belongs to no
// team, and whether they were removed from the organization.
func (l *Ledger) MemberWithoutTeam(login string, removed bool) {
	l.MembersWithoutTeam = append(l.MembersWithoutTeam, login)
	if removed {
		l.RemovedMembers = append(l.RemovedMembers, login)
	}
}

// ChangeRepoTeamPermission records a team permission change on a repo.
func (l *Ledger) ChangeRepoTeamPermission(repo, team, perm string) {
	rc := l.repo(repo)
	rc.ChangedTeamPermissions = append(
		rc.ChangedTeamPermissions, fmt.Sprintf("%s: %s", team, perm),
	)
}

// RemoveTeamFromRepo records a team stripped of its repo access.
func (l *Ledger) RemoveTeamFromRepo(repo, team string) {
	rc := l.repo(repo)
	rc.RemovedTeams = append(rc.RemovedTeams, team)
}

// UnconfiguredTeamGrant records a repo grant held by a team without
// local configuration. The grant is left untouched.
func (l *Ledger) UnconfiguredTeamGrant(repo, team, perm string) {
	rc := l.repo(repo)
	rc.UnconfiguredTeamGrants = append(
		rc.UnconfiguredTeamGrants, fmt.Sprintf("%s: %s", team, perm),
	)
}

// RemoveCollaborator records an individual collaborator flagged for
// removal from a repo.
func (l *Ledger) RemoveCollaborator(repo, login string) {
	rc := l.repo(repo)
	rc.RemovedCollaborators = append(rc.RemovedCollaborators, login)
}

// Empty reports whether the ledger contains no mutating decisions.
// Log-only entries (unconfigured teams and grants that were left
// untouched, members without team who were not removed) do not count.
func (l *Ledger) Empty() bool {
	if len(l.AddedOwners) > 0 || len(l.DemotedOwners) > 0 || len(l.RemovedMembers) > 0 {
		return false
	}

	for _, tc := range l.Teams {
		if tc.Created || tc.Deleted ||
			len(tc.ChangedSettings) > 0 ||
			len(tc.AddedMembers) > 0 ||
			len(tc.ChangedRoles) > 0 ||
			len(tc.RemovedMembers) > 0 {
			return false
		}
	}

	for _, rc := range l.Repos {
		if len(rc.ChangedTeamPermissions) > 0 ||
			len(rc.RemovedTeams) > 0 ||
			len(rc.RemovedCollaborators) > 0 {
			return false
		}
	}

	return true
}
