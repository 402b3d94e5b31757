package config

import (
	"testing"

	"github.com/orgwarden/orgwarden/pkg/permission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestConsolidate_ResolutionOrder(t *testing.T) {
	cfg := &Config{
		Org: OrgConfig{
			Defaults: OrgDefaults{
				Team: TeamSettings{
					Privacy:     strp("secret"),
					Description: strp("org-wide default"),
				},
			},
		},
		Teams: map[string]*TeamConfig{
			"docs": {
				TeamSettings: TeamSettings{
					Description: strp("writes the docs"),
				},
			},
		},
	}

	resolved := Consolidate(cfg)
	rt := resolved["docs"]
	require.NotNil(t, rt)

	// Team-specific value wins over the org default.
	require.NotNil(t, rt.Settings.Description)
	assert.Equal(t, "writes the docs", *rt.Settings.Description)

	// Org default wins over the hardcoded fallback.
	require.NotNil(t, rt.Settings.Privacy)
	assert.Equal(t, "secret", *rt.Settings.Privacy)

	// No value at any tier: leave unset.
	assert.Nil(t, rt.Settings.Parent)
	assert.Nil(t, rt.Settings.NotificationSetting)
}

func TestConsolidate_HardcodedPrivacyFallback(t *testing.T) {
	cfg := &Config{
		Teams: map[string]*TeamConfig{"bare": {}},
	}

	rt := Consolidate(cfg)["bare"]
	require.NotNil(t, rt.Settings.Privacy)
	assert.Equal(t, FallbackPrivacy, *rt.Settings.Privacy)
}

func TestConsolidate_NullTeamBody(t *testing.T) {
	cfg := &Config{
		Teams: map[string]*TeamConfig{"empty": nil},
	}

	rt := Consolidate(cfg)["empty"]
	require.NotNil(t, rt)
	assert.Empty(t, rt.Members)
	assert.Empty(t, rt.Maintainers)
	assert.Empty(t, rt.Repos)
	require.NotNil(t, rt.Settings.Privacy)
	assert.Equal(t, FallbackPrivacy, *rt.Settings.Privacy)
}

func TestConsolidate_RepoPermissionsNormalized(t *testing.T) {
	cfg := &Config{
		Teams: map[string]*TeamConfig{
			"platform": {
				Repos: map[string]string{
					"infra":   "WRITE",
					"website": "pull",
				},
			},
		},
	}

	rt := Consolidate(cfg)["platform"]
	assert.Equal(t, permission.Push, rt.Repos["infra"])
	assert.Equal(t, permission.Pull, rt.Repos["website"])
}
