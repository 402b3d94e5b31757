package config

import (
	"github.com/orgwarden/orgwarden/pkg/permission"
)

// Hardcoded fallback values applied when neither the team nor the
// organization defaults set a field. Privacy defaults to closed because
// the remote service disallows secret visibility for child teams, and
// closed root teams are the deliberate default for new teams.
const FallbackPrivacy = "closed"

// ResolvedTeam is the fully consolidated desired state for one team,
// immutable once produced for a run. A nil settings field means "leave
// unset": the field is excluded from the settings comparison entirely.
type ResolvedTeam struct {
	Name        string
	Settings    TeamSettings
	Members     []string
	Maintainers []string
	Repos       map[string]permission.Permission
}

// Consolidate merges each team's configuration with the organization
// defaults. Field resolution order: team value, then org-wide default,
// then hardcoded fallback, then leave unset.
func Consolidate(cfg *Config) map[string]*ResolvedTeam {
	resolved := make(map[string]*ResolvedTeam, len(cfg.Teams))

	for name, tc := range cfg.Teams {
		resolved[name] = consolidateTeam(name, tc, &cfg.Org.Defaults.Team)
	}

	return resolved
}

func consolidateTeam(
	name string, tc *TeamConfig, defaults *TeamSettings,
) *ResolvedTeam {
	rt := &ResolvedTeam{
		Name:  name,
		Repos: make(map[string]permission.Permission),
	}

	// A team may be declared with a null body; it still gets defaults.
	var settings TeamSettings
	if tc != nil {
		settings = tc.TeamSettings
		rt.Members = append(rt.Members, tc.Member...)
		rt.Maintainers = append(rt.Maintainers, tc.Maintainer...)

		for repo, perm := range tc.Repos {
			rt.Repos[repo] = permission.Normalize(perm)
		}
	}

	fallbackPrivacy := FallbackPrivacy
	rt.Settings = TeamSettings{
		Parent:              resolveField(settings.Parent, defaults.Parent, nil),
		Privacy:             resolveField(settings.Privacy, defaults.Privacy, &fallbackPrivacy),
		Description:         resolveField(settings.Description, defaults.Description, nil),
		NotificationSetting: resolveField(settings.NotificationSetting, defaults.NotificationSetting, nil),
	}

	return rt
}

// resolveField picks the first non-nil value of team, default and
// fallback. All nil means the field stays unset and untouched.
func resolveField(team, def, fallback *string) *string {
	switch {
	case team != nil:
		return team
	case def != nil:
		return def
	default:
		return fallback
	}
}
