// Package config loads and consolidates the organization configuration
// directory: org.yaml (organization name, owners, team defaults),
// app.yaml (credentials and behavioral policies) and teams/*.yaml (one
// or more files declaring the desired team state).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// TeamConfigDir is the subdirectory holding per-team config files.
	TeamConfigDir = "teams"
)

var (
	orgFilePattern  = regexp.MustCompile(`^org\.ya?ml$`)
	appFilePattern  = regexp.MustCompile(`^app\.ya?ml$`)
	teamFilePattern = regexp.MustCompile(`\.ya?ml$`)
)

// Config is the fully loaded configuration tree for one run.
type Config struct {
	Org   OrgConfig
	App   AppConfig
	Teams map[string]*TeamConfig
}

// OrgConfig models org.yaml.
type OrgConfig struct {
	OrgName   string      `yaml:"org_name"`
	OrgOwners []string    `yaml:"org_owners"`
	Defaults  OrgDefaults `yaml:"defaults"`
}

// OrgDefaults holds organization-wide default values.
type OrgDefaults struct {
	Team TeamSettings `yaml:"team"`
}

// TeamSettings are the mutable team fields. A nil field means "leave
// unset": the field is excluded from both the desired and the current
// comparison snapshot, so it is never reported as drifted.
type TeamSettings struct {
	Parent              *string `yaml:"parent"`
	Privacy             *string `yaml:"privacy"`
	Description         *string `yaml:"description"`
	NotificationSetting *string `yaml:"notification_setting"`
}

// TeamConfig is the raw desired state of a single team as declared in
// a teams/*.yaml file. A team may be declared with a null body, which
// counts as configured with no members and no repository grants.
type TeamConfig struct {
	TeamSettings `yaml:",inline"`

	Member     []string          `yaml:"member"`
	Maintainer []string          `yaml:"maintainer"`
	Repos      map[string]string `yaml:"repos"`
}

// Load reads the whole configuration directory. Team declarations may
// be split across multiple files; a team declared in more than one
// file is a fatal configuration error.
func Load(log logrus.FieldLogger, dir string) (*Config, error) {
	orgPath, err := findOne(dir, orgFilePattern)
	if err != nil {
		return nil, fmt.Errorf("locating org config: %w", err)
	}

	appPath, err := findOne(dir, appFilePattern)
	if err != nil {
		return nil, fmt.Errorf("locating app config: %w", err)
	}

	var cfg Config

	if err := readYAML(orgPath, &cfg.Org); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", orgPath, err)
	}

	app, err := loadApp(appPath)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", appPath, err)
	}

	cfg.App = *app

	cfg.Teams, err = loadTeams(log, filepath.Join(dir, TeamConfigDir))
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the entry points without which no run is safe.
func (c *Config) Validate() error {
	if c.Org.OrgName == "" {
		return fmt.Errorf("no organization name configured in org config")
	}

	if c.App.GithubToken == "" {
		return fmt.Errorf(
			"no GitHub token configured; set github_token in app config " +
				"or the GITHUB_TOKEN environment variable",
		)
	}

	return nil
}

// loadTeams parses all team files in dir and merges them into one map.
func loadTeams(
	log logrus.FieldLogger, dir string,
) (map[string]*TeamConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading team config directory: %w", err)
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !teamFilePattern.MatchString(entry.Name()) {
			continue
		}

		files = append(files, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(files)

	if len(files) == 0 {
		log.WithField("dir", dir).Warn("No team configuration files found")
	}

	teams := make(map[string]*TeamConfig)

	for _, file := range files {
		var batch map[string]*TeamConfig
		if err := readYAML(file, &batch); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}

		for name, tc := range batch {
			if _, exists := teams[name]; exists {
				return nil, fmt.Errorf(
					"team %q in %s is already declared in another config file",
					name, file,
				)
			}

			teams[name] = tc
		}
	}

	return teams, nil
}

// findOne locates exactly one file matching pattern in dir. Extra
// matches beyond the first (in lexical order) are ignored with the
// pattern's first match winning.
func findOne(dir string, pattern *regexp.Regexp) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading config directory: %w", err)
	}

	matches := make([]string, 0, 1)

	for _, entry := range entries {
		if !entry.IsDir() && pattern.MatchString(entry.Name()) {
			matches = append(matches, entry.Name())
		}
	}

	if len(matches) == 0 {
		return "", fmt.Errorf("no file matching %s in %s", pattern, dir)
	}

	sort.Strings(matches)

	return filepath.Join(dir, matches[0]), nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	return yaml.Unmarshal(data, out)
}
