package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/orgwarden/orgwarden/pkg/permission"
	"github.com/shurcooL/githubv4"
)

// ListDirectTeamMembers returns the team's strictly direct members with
// the given role. The bulk query asks for IMMEDIATE membership only, so
// members inherited from descendant teams are never included.
func (c *Client) ListDirectTeamMembers(
	ctx context.Context, team Team, role string,
) ([]User, error) {
	var query struct {
		Organization struct {
			Team struct {
				Members struct {
					Edges []struct {
						Node struct {
							Login      githubv4.String
							DatabaseID githubv4.Int
						}
					}
					PageInfo struct {
						EndCursor   githubv4.String
						HasNextPage githubv4.Boolean
					}
				} `graphql:"members(first: 100, after: $cursor, membership: IMMEDIATE, role: $role)"`
			} `graphql:"team(slug: $slug)"`
		} `graphql:"organization(login: $org)"`
	}

	variables := map[string]any{
		"org":    githubv4.String(c.org),
		"slug":   githubv4.String(team.Slug),
		"role":   githubv4.TeamMemberRole(strings.ToUpper(role)),
		"cursor": (*githubv4.String)(nil),
	}

	var users []User

	for {
		if err := c.gql.Query(ctx, &query, variables); err != nil {
			return nil, fmt.Errorf(
				"querying direct members of team %s (role %s): %w", team.Name, role, err,
			)
		}

		for _, edge := range query.Organization.Team.Members.Edges {
			users = append(users, User{
				Login: string(edge.Node.Login),
				ID:    int64(edge.Node.DatabaseID),
			})
		}

		if !query.Organization.Team.Members.PageInfo.HasNextPage {
			break
		}

		variables["cursor"] = githubv4.NewString(
			query.Organization.Team.Members.PageInfo.EndCursor,
		)
	}

	return users, nil
}

// ListRepoCollaboratorPermissions merges the paginated collaborator
// stream of one repository into a single login-to-permission map. Only
// direct (non team derived) collaborators are returned. A malformed
// page is treated as containing no collaborators: it is logged and the
// results gathered so far are kept.
func (c *Client) ListRepoCollaboratorPermissions(
	ctx context.Context, repo string,
) (map[string]permission.Permission, error) {
	var query struct {
		Repository struct {
			Collaborators struct {
				Edges []struct {
					Permission githubv4.String
					Node       struct {
						Login githubv4.String
					}
				}
				PageInfo struct {
					EndCursor   githubv4.String
					HasNextPage githubv4.Boolean
				}
			} `graphql:"collaborators(first: 100, after: $cursor, affiliation: DIRECT)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := map[string]any{
		"owner":  githubv4.String(c.org),
		"name":   githubv4.String(repo),
		"cursor": (*githubv4.String)(nil),
	}

	collaborators := make(map[string]permission.Permission)

	for {
		if err := c.gql.Query(ctx, &query, variables); err != nil {
			c.log.WithError(err).WithField("repo", repo).
				Warn("Malformed collaborator page, treating as empty")

			return collaborators, nil
		}

		for _, edge := range query.Repository.Collaborators.Edges {
			login := string(edge.Node.Login)
			if login == "" {
				continue
			}

			collaborators[login] = permission.Normalize(string(edge.Permission))
		}

		if !query.Repository.Collaborators.PageInfo.HasNextPage {
			break
		}

		variables["cursor"] = githubv4.NewString(
			query.Repository.Collaborators.PageInfo.EndCursor,
		)
	}

	return collaborators, nil
}
