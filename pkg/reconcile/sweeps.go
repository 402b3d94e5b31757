package reconcile

import (
	"context"
)

// sweepUnconfiguredTeams flags every remote team with no local
// declaration. Deletion is an explicit opt-in policy; the default is a
// warning and no action.
func (r *Reconciler) sweepUnconfiguredTeams(ctx context.Context) error {
	for _, team := range r.currentTeams {
		if _, ok := r.teams[team.Name]; ok {
			continue
		}

		if !r.cfg.App.DeleteUnconfiguredTeams {
			r.log.WithField("team", team.Name).
				Warn("Team is not configured locally, taking no action")
			r.ledger.UnconfiguredTeam(team.Name, false)

			continue
		}

		r.log.WithField("team", team.Name).
			Warn("Deleting team that is not configured locally")
		r.ledger.UnconfiguredTeam(team.Name, true)

		if !r.opts.Dry {
			if err := r.gw.DeleteTeam(ctx, team); err != nil {
				return err
			}
		}
	}

	return nil
}

// sweepMembersWithoutTeam flags every organization member (owners
// included) who holds no direct team membership and was not freshly
// added during this run. Removal from the organization is opt-in.
func (r *Reconciler) sweepMembersWithoutTeam(ctx context.Context) error {
	inTeam := make(map[string]struct{})

	for _, members := range r.teamMembers {
		for key := range members {
			inTeam[key] = struct{}{}
		}
	}

	all := make([]string, 0, len(r.owners)+len(r.members))
	for _, u := range r.owners {
		all = append(all, u.Login)
	}

	for _, u := range r.members {
		all = append(all, u.Login)
	}

	for _, login := range all {
		key := lower(login)

		if _, ok := inTeam[key]; ok {
			continue
		}

		if _, added := r.addedThisRun[key]; added {
			continue
		}

		if !r.cfg.App.RemoveMembersWithoutTeam {
			r.log.WithField("user", login).
				Warn("Organization member is not part of any team")
			r.ledger.MemberWithoutTeam(login, false)

			continue
		}

		r.log.WithField("user", login).
			Warn("Removing organization member who is not part of any team")
		r.ledger.MemberWithoutTeam(login, true)

		if !r.opts.Dry {
			if err := r.gw.RemoveFromOrg(ctx, login); err != nil {
				return err
			}
		}
	}

	return nil
}
