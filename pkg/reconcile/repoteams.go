package reconcile

import (
	"context"

	"github.com/orgwarden/orgwarden/pkg/gateway"
	"github.com/orgwarden/orgwarden/pkg/permission"
)

// effectiveTeamRepos computes, per declared team, the repository
// permissions it should hold: its own configured grants merged with
// the grants of every ancestor team, the strongest permission winning.
func (r *Reconciler) effectiveTeamRepos() map[string]map[string]permission.Permission {
	out := make(map[string]map[string]permission.Permission, len(r.teams))

	for name, rt := range r.teams {
		perms := make(map[string]permission.Permission, len(rt.Repos))
		for repo, perm := range rt.Repos {
			perms[repo] = perm
		}

		// Walk the parent chain; this is a tree, but guard against a
		// misdeclared cycle anyway.
		seen := map[string]struct{}{name: {}}
		parent := rt.Settings.Parent

		for parent != nil && *parent != "" {
			ancestor, ok := r.teams[*parent]
			if !ok {
				break
			}

			if _, cyclic := seen[*parent]; cyclic {
				break
			}

			seen[*parent] = struct{}{}

			for repo, perm := range ancestor.Repos {
				if existing, ok := perms[repo]; ok {
					perms[repo] = permission.Highest(existing, perm)
				} else {
					perms[repo] = perm
				}
			}

			parent = ancestor.Settings.Parent
		}

		out[name] = perms
	}

	return out
}

// syncRepoPermissions reconciles team-to-repository grants. Drifted or
// missing grants are applied with the same call that creates them.
// Grants held by undeclared teams are left untouched but recorded,
// and the permission they imply for the team's members feeds the
// collaborator stage. Grants held by declared teams on repositories
// absent from their resolved repository set are removed.
func (r *Reconciler) syncRepoPermissions(ctx context.Context) error {
	repos, err := r.gw.ListReposWithTeamPermissions(ctx, !r.opts.IgnoreArchived)
	if err != nil {
		return err
	}

	r.currentRepos = repos

	reposByName := make(map[string]gateway.RepoTeams, len(repos))
	for _, rt := range repos {
		reposByName[rt.Repo.Name] = rt
	}

	effective := r.effectiveTeamRepos()

	// Apply configured grants that are missing or drifted remotely.
	for _, name := range sortedKeys(effective) {
		team, ok := r.teamByName(name)
		if !ok {
			if !r.opts.Dry {
				// Creation was skipped earlier, for example over an
				// unresolvable parent. Applying grants by slug would
				// kill the whole run for one absent team.
				r.log.WithField("team", name).
					Error("Team does not exist remotely, skipping its repository grants")

				continue
			}

			// Dry-run path: a placeholder carrying just the declared
			// name keeps the diff computable without a remote id.
			team = gateway.Team{Name: name, Slug: gateway.Slugify(name)}
		}

		perms := effective[name]

		for _, repoName := range sortedKeys(perms) {
			want := perms[repoName]

			remote, found := reposByName[repoName]
			if !found {
				r.log.WithField("team", name).WithField("repo", repoName).
					Warn("Configured repository not found in the organization")

				continue
			}

			if current, ok := remote.Teams[team.Slug]; ok && current == want {
				continue
			}

			r.log.WithField("team", name).WithField("repo", repoName).
				WithField("permission", want).Info("Setting team repository permission")
			r.ledger.ChangeRepoTeamPermission(repoName, name, string(want))

			if !r.opts.Dry {
				if err := r.gw.SetTeamRepoPermission(ctx, team, repoName, want); err != nil {
					return err
				}
			}
		}
	}

	// Walk the remote grants: record undeclared teams, remove stray
	// grants of declared teams.
	for _, remote := range repos {
		for _, slug := range sortedKeys(remote.Teams) {
			perm := remote.Teams[slug]

			team, known := r.teamsBySlug[slug]
			if !known {
				team = gateway.Team{Name: slug, Slug: slug}
			}

			if _, configured := r.teams[team.Name]; !configured {
				r.log.WithField("team", team.Name).WithField("repo", remote.Repo.Name).
					WithField("permission", perm).
					Warn("Unconfigured team has repository permissions, leaving untouched")
				r.ledger.UnconfiguredTeamGrant(remote.Repo.Name, team.Name, string(perm))
				r.recordImplied(remote.Repo.Name, slug, perm)

				continue
			}

			if _, wanted := effective[team.Name][remote.Repo.Name]; wanted {
				// Present in the resolved set; any drift was already
				// fixed above.
				continue
			}

			r.log.WithField("team", team.Name).WithField("repo", remote.Repo.Name).
				Info("Removing team from repository, grant not configured")
			r.ledger.RemoveTeamFromRepo(remote.Repo.Name, team.Name)

			if !r.opts.Dry {
				if err := r.gw.RemoveTeamFromRepo(ctx, team, remote.Repo.Name); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// recordImplied notes, for every direct member of an unconfigured
// team, the permission that team's grant implies for them on the repo.
// The collaborator stage accepts matching excess access as deliberate.
func (r *Reconciler) recordImplied(repo, teamSlug string, perm permission.Permission) {
	members, ok := r.teamMembers[teamSlug]
	if !ok {
		return
	}

	if r.implied[repo] == nil {
		r.implied[repo] = make(map[string]permission.Permission, len(members))
	}

	for key := range members {
		if existing, ok := r.implied[repo][key]; ok {
			r.implied[repo][key] = permission.Highest(existing, perm)
		} else {
			r.implied[repo][key] = perm
		}
	}
}
