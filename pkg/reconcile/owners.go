package reconcile

import (
	"context"
)

// syncOwners diffs the configured organization owners against the
// current ones. An empty configured list takes no action at all: a
// misconfiguration must never strip every owner. Demoting the
// authenticated identity is skipped without the force flag so a run
// cannot lock itself out.
func (r *Reconciler) syncOwners(ctx context.Context) error {
	owners, err := r.gw.ListOrgAdmins(ctx)
	if err != nil {
		return err
	}

	members, err := r.gw.ListOrgMembers(ctx)
	if err != nil {
		return err
	}

	r.owners = owners
	r.members = members

	if len(r.cfg.Org.OrgOwners) == 0 {
		r.log.Warn("No organization owners configured, not touching owners at all")

		return nil
	}

	current := make(map[string]string, len(owners))
	for _, o := range owners {
		current[lower(o.Login)] = o.Login
	}

	configured := make(map[string]string, len(r.cfg.Org.OrgOwners))
	for _, login := range r.cfg.Org.OrgOwners {
		configured[lower(login)] = login
	}

	// Promote configured owners that are not owners yet.
	for _, key := range sortedKeys(configured) {
		if _, ok := current[key]; ok {
			continue
		}

		login := configured[key]

		user, err := r.resolveUser(ctx, login, "org owners")
		if err != nil {
			return err
		}

		if user == nil {
			continue
		}

		r.log.WithField("user", user.Login).Info("Promoting user to organization owner")
		r.ledger.AddOwner(user.Login)

		if !r.opts.Dry {
			if err := r.gw.PromoteToOwner(ctx, user.Login); err != nil {
				return err
			}
		}
	}

	// Demote current owners that are not configured.
	for _, key := range sortedKeys(current) {
		if _, ok := configured[key]; ok {
			continue
		}

		login := current[key]

		if key == lower(r.authLogin) && !r.opts.Force {
			r.log.WithField("user", login).Warn(
				"Not demoting the authenticated user from owner; use --force to override",
			)

			continue
		}

		r.log.WithField("user", login).Info("Demoting owner to regular member")
		r.ledger.DemoteOwner(login)

		if !r.opts.Dry {
			if err := r.gw.DemoteToMember(ctx, login); err != nil {
				return err
			}
		}
	}

	return nil
}
