package reconcile

import (
	"context"

	"github.com/orgwarden/orgwarden/pkg/gateway"
)

// syncTeamMembers reconciles the direct membership of every remote
// team that is declared locally. Undeclared teams are only gathered
// here (their member lists feed the later sweeps and the collaborator
// stage) but never acted upon.
func (r *Reconciler) syncTeamMembers(ctx context.Context) error {
	invitations, err := r.gw.ListPendingInvitations(ctx)
	if err != nil {
		return err
	}

	r.invitations = make(map[string]struct{}, len(invitations))
	for _, login := range invitations {
		r.invitations[lower(login)] = struct{}{}
	}

	for _, team := range r.currentTeams {
		current, err := r.fetchDirectMembers(ctx, team)
		if err != nil {
			return err
		}

		r.teamMembers[team.Slug] = current

		rt, configured := r.teams[team.Name]
		if !configured {
			r.log.WithField("team", team.Name).
				Debug("Team not declared locally, membership untouched")

			continue
		}

		if err := r.syncSingleTeamMembers(ctx, team, current, rt.Members, rt.Maintainers); err != nil {
			return err
		}
	}

	return nil
}

// fetchDirectMembers builds the current login-to-role map from strictly
// direct membership; members who only appear via a child team are
// never part of it.
func (r *Reconciler) fetchDirectMembers(
	ctx context.Context, team gateway.Team,
) (map[string]memberInfo, error) {
	current := make(map[string]memberInfo)

	for _, role := range []string{gateway.RoleMember, gateway.RoleMaintainer} {
		users, err := r.gw.ListDirectTeamMembers(ctx, team, role)
		if err != nil {
			return nil, err
		}

		for _, u := range users {
			current[lower(u.Login)] = memberInfo{login: u.Login, role: role}
		}
	}

	return current, nil
}

func (r *Reconciler) syncSingleTeamMembers(
	ctx context.Context,
	team gateway.Team,
	current map[string]memberInfo,
	members, maintainers []string,
) error {
	// Merge configured member and maintainer lists; the maintainer
	// role dominates for a login present in both.
	desired := make(map[string]memberInfo, len(members)+len(maintainers))

	for _, login := range members {
		desired[lower(login)] = memberInfo{login: login, role: gateway.RoleMember}
	}

	for _, login := range maintainers {
		desired[lower(login)] = memberInfo{login: login, role: gateway.RoleMaintainer}
	}

	// Organization owners sitting in the team require elevated trust:
	// force-promote them to maintainer.
	for _, owner := range r.owners {
		if m, ok := desired[lower(owner.Login)]; ok && m.role != gateway.RoleMaintainer {
			r.log.WithField("team", team.Name).WithField("user", m.login).
				Debug("Overriding role of organization owner to maintainer")

			m.role = gateway.RoleMaintainer
			desired[lower(owner.Login)] = m
		}
	}

	if membershipEqual(desired, current) {
		r.log.WithField("team", team.Name).Debug("Team membership in sync")

		return nil
	}

	// Additions and role changes.
	for _, key := range sortedKeys(desired) {
		want := desired[key]
		have, exists := current[key]

		switch {
		case !exists:
			user, err := r.resolveUser(ctx, want.login, "team "+team.Name)
			if err != nil {
				return err
			}

			if user == nil {
				continue
			}

			if _, pending := r.invitations[key]; pending {
				r.log.WithField("team", team.Name).WithField("user", user.Login).
					Info("Invitation already pending, not re-inviting")
				r.ledger.PendingTeamMember(team.Name, user.Login)

				continue
			}

			r.log.WithField("team", team.Name).WithField("user", user.Login).
				WithField("role", want.role).Info("Adding user to team")
			r.ledger.AddTeamMember(team.Name, user.Login)
			r.addedThisRun[key] = struct{}{}

			if !r.opts.Dry {
				if err := r.gw.AddOrUpdateMembership(ctx, team, user.Login, want.role); err != nil {
					return err
				}
			}

		case want.role != have.role:
			r.log.WithField("team", team.Name).WithField("user", have.login).
				WithField("role", want.role).Info("Updating member role")
			r.ledger.ChangeTeamMemberRole(team.Name, have.login)

			if !r.opts.Dry {
				if err := r.gw.AddOrUpdateMembership(ctx, team, have.login, want.role); err != nil {
					return err
				}
			}
		}
	}

	// Removals: current is built from direct membership only, so a
	// user who merely appears via a child team is never removed here.
	for _, key := range sortedKeys(current) {
		if _, ok := desired[key]; ok {
			continue
		}

		have := current[key]

		r.log.WithField("team", team.Name).WithField("user", have.login).
			Info("Removing user from team, not configured")
		r.ledger.RemoveTeamMember(team.Name, have.login)

		if !r.opts.Dry {
			if err := r.gw.RemoveMembership(ctx, team, have.login); err != nil {
				return err
			}
		}
	}

	return nil
}

func membershipEqual(a, b map[string]memberInfo) bool {
	if len(a) != len(b) {
		return false
	}

	for key, m := range a {
		other, ok := b[key]
		if !ok || other.role != m.role {
			return false
		}
	}

	return true
}
