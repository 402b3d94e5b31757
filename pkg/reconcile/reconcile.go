// Package reconcile implements the reconciliation engine: it diffs the
// consolidated desired configuration against the live remote state and
// applies the minimal set of changes, in a fixed stage order, recording
// every decision in the change ledger. In dry-run mode every stage
// computes the full diff and writes the identical ledger without
// issuing mutating calls.
package reconcile

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/orgwarden/orgwarden/pkg/config"
	"github.com/orgwarden/orgwarden/pkg/gateway"
	"github.com/orgwarden/orgwarden/pkg/ledger"
	"github.com/orgwarden/orgwarden/pkg/permission"
	"github.com/sirupsen/logrus"
)

// Options are the externally supplied behavioral flags.
type Options struct {
	// Dry computes and records all changes without applying them.
	Dry bool
	// Force enables actions that could lock the run out of its own
	// elevated access, such as demoting the authenticated user.
	Force bool
	// IgnoreArchived excludes archived repositories from repository
	// permission and collaborator reconciliation.
	IgnoreArchived bool
}

// Reconciler is the unit-of-work for one run. It carries the desired
// configuration, the remote state gathered so far and the change
// ledger between stages. All state is rebuilt from the gateway on
// every run; nothing is persisted.
type Reconciler struct {
	log    logrus.FieldLogger
	gw     gateway.Gateway
	cfg    *config.Config
	teams  map[string]*config.ResolvedTeam
	opts   Options
	ledger *ledger.Ledger

	// Side information gathered by earlier stages for later ones.
	authLogin    string
	owners       []gateway.User
	members      []gateway.User
	invitations  map[string]struct{}
	currentTeams []gateway.Team
	teamsBySlug  map[string]gateway.Team
	// teamMembers holds the direct members of every remote team,
	// keyed by team slug, then by lower-cased login.
	teamMembers  map[string]map[string]memberInfo
	addedThisRun map[string]struct{}
	currentRepos []gateway.RepoTeams
	// implied records, per repo and lower-cased login, the permission
	// a user holds through a team that has no local configuration.
	implied map[string]map[string]permission.Permission
}

type memberInfo struct {
	login string
	role  string
}

// New creates a reconciler over the given gateway and consolidated
// configuration.
func New(
	log logrus.FieldLogger,
	gw gateway.Gateway,
	cfg *config.Config,
	teams map[string]*config.ResolvedTeam,
	opts Options,
) *Reconciler {
	return &Reconciler{
		log:          log.WithField("component", "reconcile"),
		gw:           gw,
		cfg:          cfg,
		teams:        teams,
		opts:         opts,
		ledger:       ledger.New(),
		invitations:  make(map[string]struct{}),
		teamsBySlug:  make(map[string]gateway.Team),
		teamMembers:  make(map[string]map[string]memberInfo),
		addedThisRun: make(map[string]struct{}),
		implied:      make(map[string]map[string]permission.Permission),
	}
}

// Run executes all reconciliation stages in their fixed order. Later
// stages depend on side information gathered by earlier ones, so the
// order is a correctness requirement. A returned error is fatal for
// the whole run and the ledger must not be reported.
func (r *Reconciler) Run(ctx context.Context) (*ledger.Ledger, error) {
	login, err := r.gw.AuthenticatedLogin(ctx)
	if err != nil {
		return nil, err
	}

	r.authLogin = login

	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"owners", r.syncOwners},
		{"teams", r.createMissingTeams},
		{"team settings", r.syncTeamSettings},
		{"team members", r.syncTeamMembers},
		{"unconfigured teams", r.sweepUnconfiguredTeams},
		{"members without team", r.sweepMembersWithoutTeam},
		{"repository team permissions", r.syncRepoPermissions},
		{"repository collaborators", r.syncCollaborators},
	}

	for _, stage := range stages {
		r.log.WithField("stage", stage.name).Info("Reconciling")

		if err := stage.fn(ctx); err != nil {
			return nil, err
		}
	}

	return r.ledger, nil
}

// Ledger exposes the accumulated change record.
func (r *Reconciler) Ledger() *ledger.Ledger {
	return r.ledger
}

// refreshTeams re-fetches the full remote team listing. Remote team
// ids only become known after creation, so this runs again after the
// creation stage.
func (r *Reconciler) refreshTeams(ctx context.Context) error {
	teams, err := r.gw.ListTeams(ctx)
	if err != nil {
		return err
	}

	r.currentTeams = teams
	r.teamsBySlug = make(map[string]gateway.Team, len(teams))

	for _, t := range teams {
		r.teamsBySlug[t.Slug] = t
	}

	return nil
}

// teamByName finds a remote team by its configured name.
func (r *Reconciler) teamByName(name string) (gateway.Team, bool) {
	for _, t := range r.currentTeams {
		if t.Name == name {
			return t, true
		}
	}

	return gateway.Team{}, false
}

// resolveUser resolves a configured login to a remote identity. A
// login that does not exist remotely is logged and reported as nil;
// one bad login must never abort a whole diff.
func (r *Reconciler) resolveUser(ctx context.Context, login, where string) (*gateway.User, error) {
	user, err := r.gw.ResolveUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			r.log.WithField("user", login).WithField("context", where).
				Error("Configured user does not exist remotely, skipping")

			return nil, nil
		}

		return nil, err
	}

	return &user, nil
}

func lower(s string) string {
	return strings.ToLower(s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
