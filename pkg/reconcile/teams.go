package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/orgwarden/orgwarden/pkg/gateway"
)

// createMissingTeams creates every declared team that is absent
// remotely, parents before children. Newly created teams are forced to
// closed privacy: the remote service disallows secret visibility for
// child teams, and closed root teams are the deliberate default. The
// team list is re-fetched afterwards because remote ids only become
// known post-creation.
func (r *Reconciler) createMissingTeams(ctx context.Context) error {
	if err := r.refreshTeams(ctx); err != nil {
		return err
	}

	existing := make(map[string]struct{}, len(r.currentTeams))
	for _, t := range r.currentTeams {
		existing[t.Name] = struct{}{}
	}

	created := false

	for _, name := range r.orderedTeamNames() {
		if _, ok := existing[name]; ok {
			r.log.WithField("team", name).Debug("Team already exists")

			continue
		}

		rt := r.teams[name]

		var parentID int64

		if parent := rt.Settings.Parent; parent != nil && *parent != "" {
			remote, err := r.gw.GetTeamBySlug(ctx, gateway.Slugify(*parent))

			switch {
			case err == nil:
				parentID = remote.ID
			case errors.Is(err, gateway.ErrNotFound):
				if _, configured := r.teams[*parent]; configured && r.opts.Dry {
					// The parent would have been created earlier in
					// this run; without dry-run it would be visible.
					r.log.WithField("team", name).WithField("parent", *parent).
						Debug("Parent team not created yet in dry-run")
				} else {
					r.log.WithField("team", name).WithField("parent", *parent).
						Error("Parent team does not exist remotely, skipping team creation")

					continue
				}
			default:
				return err
			}
		}

		r.log.WithField("team", name).WithField("parent_id", parentID).
			Info("Creating team")
		r.ledger.CreateTeam(name)

		created = true

		if !r.opts.Dry {
			if err := r.gw.CreateTeam(ctx, name, parentID, "closed"); err != nil {
				return err
			}
		}
	}

	if created {
		return r.refreshTeams(ctx)
	}

	return nil
}

// orderedTeamNames returns the declared team names with every parent
// before its children. Teams whose parent is undeclared or part of a
// reference cycle sort last, alphabetically.
func (r *Reconciler) orderedTeamNames() []string {
	emitted := make(map[string]struct{}, len(r.teams))
	ordered := make([]string, 0, len(r.teams))

	remaining := sortedKeys(r.teams)

	for len(remaining) > 0 {
		progress := false
		next := remaining[:0]

		for _, name := range remaining {
			parent := r.teams[name].Settings.Parent

			ready := parent == nil || *parent == ""
			if !ready {
				if _, declared := r.teams[*parent]; !declared {
					ready = true
				} else if _, done := emitted[*parent]; done {
					ready = true
				}
			}

			if ready {
				emitted[name] = struct{}{}
				ordered = append(ordered, name)
				progress = true
			} else {
				next = append(next, name)
			}
		}

		remaining = next

		if !progress {
			// Parent reference cycle; append the rest as-is.
			ordered = append(ordered, remaining...)

			break
		}
	}

	return ordered
}

// syncTeamSettings compares, for every remote team with a declared
// configuration, only the fields the consolidated config actually sets
// against the current team. All drifted fields go into one bulk edit
// call; a rejected edit is fatal for the run because a partially
// edited team is ambiguous state.
func (r *Reconciler) syncTeamSettings(ctx context.Context) error {
	for _, team := range r.currentTeams {
		rt, ok := r.teams[team.Name]
		if !ok {
			continue
		}

		var (
			edit    gateway.TeamEdit
			changed []string
		)

		if rt.Settings.Description != nil && *rt.Settings.Description != team.Description {
			edit.Description = rt.Settings.Description
			changed = append(changed, "description")
		}

		if rt.Settings.Privacy != nil && *rt.Settings.Privacy != team.Privacy {
			edit.Privacy = rt.Settings.Privacy
			changed = append(changed, "privacy")
		}

		if rt.Settings.NotificationSetting != nil &&
			*rt.Settings.NotificationSetting != team.NotificationSetting {
			edit.NotificationSetting = rt.Settings.NotificationSetting
			changed = append(changed, "notification_setting")
		}

		// The desired parent is a team name; the current parent is a
		// remote id. Normalize to the id for comparison.
		if rt.Settings.Parent != nil {
			wantID, err := r.parentID(*rt.Settings.Parent)
			if err != nil {
				r.log.WithField("team", team.Name).WithError(err).
					Error("Cannot resolve configured parent, leaving parent untouched")
			} else if wantID != team.ParentID {
				edit.ParentID = &wantID
				changed = append(changed, "parent")
			}
		}

		if edit.Empty() {
			r.log.WithField("team", team.Name).Debug("Team settings in sync")

			continue
		}

		r.log.WithField("team", team.Name).WithField("fields", changed).
			Info("Updating team settings")
		r.ledger.EditTeamSettings(team.Name, changed...)

		if !r.opts.Dry {
			if err := r.gw.EditTeam(ctx, team, edit); err != nil {
				// A partial team edit leaves ambiguous state; stop.
				return err
			}
		}
	}

	return nil
}

// parentID resolves a configured parent team name to its remote id.
// An empty name means "no parent" (id zero).
func (r *Reconciler) parentID(parent string) (int64, error) {
	if parent == "" {
		return 0, nil
	}

	if team, ok := r.teamsBySlug[gateway.Slugify(parent)]; ok {
		return team.ID, nil
	}

	return 0, fmt.Errorf("parent team %q not found remotely", parent)
}
