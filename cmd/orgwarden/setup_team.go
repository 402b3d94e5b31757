package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gosimple/slug"
	"github.com/orgwarden/orgwarden/pkg/config"
	"github.com/spf13/cobra"
)

var setupTeamForce bool

var setupTeamCmd = &cobra.Command{
	Use:   "setup-team <name>",
	Short: "Scaffold a team configuration file",
	Long: `Create a commented starter file for one team under the teams/
subdirectory of the configuration directory. The file name is derived
from the slugified team name.`,
	Args: cobra.ExactArgs(1),
	RunE: runSetupTeam,
}

func init() {
	rootCmd.AddCommand(setupTeamCmd)
	setupTeamCmd.Flags().BoolVar(&setupTeamForce, "force", false,
		"overwrite an existing team file")
}

const teamTemplate = `%s:
  # parent: platform
  # privacy: closed
  # description: ""
  # notification_setting: notifications_enabled
  member: []
  maintainer: []
  repos: {}
    # some-repo: push
`

func runSetupTeam(cmd *cobra.Command, args []string) error {
	name := args[0]
	if name == "" {
		return fmt.Errorf("team name must not be empty")
	}

	dir := filepath.Join(cfgDir, config.TeamConfigDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating team config directory: %w", err)
	}

	path := filepath.Join(dir, slug.Make(name)+".yaml")

	if _, err := os.Stat(path); err == nil && !setupTeamForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	content := fmt.Sprintf(teamTemplate, name)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing team file: %w", err)
	}

	log.WithField("path", path).Info("Team configuration scaffolded")

	return nil
}
