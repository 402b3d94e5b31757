package reconcile

import (
	"context"

	"github.com/orgwarden/orgwarden/pkg/permission"
)

// syncCollaborators revokes individual repository access that exceeds
// what the configuration grants. This is strictly one-directional:
// permissions are only ever revoked here, never granted, because
// granting happens exclusively through team membership. The
// organization-wide default permission is a floor under every
// effective set, so access at or below it is never revoked even when
// a team grants less. Excess access that matches exactly the
// permission implied by an unconfigured team the user belongs to is
// accepted as intentional.
func (r *Reconciler) syncCollaborators(ctx context.Context) error {
	defaultPerm, err := r.gw.GetDefaultRepoPermission(ctx)
	if err != nil {
		return err
	}

	configured := r.effectiveUserPermissions()

	// Owners hold implicit admin everywhere and are out of scope.
	ownerSet := make(map[string]struct{}, len(r.owners))
	for _, o := range r.owners {
		ownerSet[lower(o.Login)] = struct{}{}
	}

	for _, remote := range r.currentRepos {
		repoName := remote.Repo.Name

		collaborators, err := r.gw.ListRepoCollaboratorPermissions(ctx, repoName)
		if err != nil {
			return err
		}

		for _, login := range sortedKeys(collaborators) {
			key := lower(login)

			if _, isOwner := ownerSet[key]; isOwner {
				continue
			}

			current := collaborators[login]

			// The default is merged in rather than used as a mere
			// fallback; a team grant weaker than the default must
			// not turn the default into excess access.
			want := permission.Highest(configured[repoName][key], defaultPerm)

			if !permission.IsHigher(current, want) {
				continue
			}

			if implied, ok := r.implied[repoName][key]; ok && implied == current {
				r.log.WithField("repo", repoName).WithField("user", login).
					WithField("permission", current).
					Info("Elevated access stems from an unconfigured team, leaving as is")

				continue
			}

			r.log.WithField("repo", repoName).WithField("user", login).
				WithField("current", current).WithField("configured", want).
				Info("Removing collaborator with elevated individual access")
			r.ledger.RemoveCollaborator(repoName, login)

			if !r.opts.Dry {
				if err := r.gw.RemoveCollaborator(ctx, repoName, login); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// effectiveUserPermissions computes, per repository and lower-cased
// login, the permission the configuration grants through team
// membership, inheritance already resolved and the strongest
// contributing source winning.
func (r *Reconciler) effectiveUserPermissions() map[string]map[string]permission.Permission {
	effective := r.effectiveTeamRepos()
	out := make(map[string]map[string]permission.Permission)

	for name, perms := range effective {
		rt := r.teams[name]

		logins := make([]string, 0, len(rt.Members)+len(rt.Maintainers))
		logins = append(logins, rt.Members...)
		logins = append(logins, rt.Maintainers...)

		for repo, perm := range perms {
			if out[repo] == nil {
				out[repo] = make(map[string]permission.Permission)
			}

			for _, login := range logins {
				key := lower(login)

				if existing, ok := out[repo][key]; ok {
					out[repo][key] = permission.Highest(existing, perm)
				} else {
					out[repo][key] = perm
				}
			}
		}
	}

	return out
}
