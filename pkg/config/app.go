package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides of the
// app configuration, e.g. ORGWARDEN_GITHUB_TOKEN.
const EnvPrefix = "ORGWARDEN"

// AppConfig models app.yaml: credentials, behavioral policies and the
// optional history, API and upload subsystems.
type AppConfig struct {
	GithubToken              string `yaml:"github_token" mapstructure:"github_token"`
	DeleteUnconfiguredTeams  bool   `yaml:"delete_unconfigured_teams" mapstructure:"delete_unconfigured_teams"`
	RemoveMembersWithoutTeam bool   `yaml:"remove_members_without_team" mapstructure:"remove_members_without_team"`
	ReportDir                string `yaml:"report_dir" mapstructure:"report_dir"`

	History HistoryConfig   `yaml:"history" mapstructure:"history"`
	API     APIConfig       `yaml:"api" mapstructure:"api"`
	Upload  *S3UploadConfig `yaml:"upload,omitempty" mapstructure:"upload"`
}

// HistoryConfig controls persistence of per-run change records.
type HistoryConfig struct {
	Enabled  bool           `yaml:"enabled" mapstructure:"enabled"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// DatabaseConfig selects and configures the history database driver.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// SQLiteConfig configures the sqlite history database.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig configures the postgres history database.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode" mapstructure:"ssl_mode"`
}

// APIConfig configures the run-history HTTP API.
type APIConfig struct {
	Listen    string          `yaml:"listen" mapstructure:"listen"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
}

// CORSConfig configures allowed origins for the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// RateLimitConfig configures per-IP API rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// AuthConfig configures optional basic auth for the API.
type AuthConfig struct {
	Enabled bool            `yaml:"enabled" mapstructure:"enabled"`
	Users   []BasicAuthUser `yaml:"users" mapstructure:"users"`
}

// BasicAuthUser is a username/password pair seeded into the store.
type BasicAuthUser struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// S3UploadConfig configures report uploads to S3-compatible storage.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	Region          string `yaml:"region" mapstructure:"region"`
	EndpointURL     string `yaml:"endpoint_url" mapstructure:"endpoint_url"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
}

// loadApp reads app.yaml through viper so that every key can be
// overridden via ORGWARDEN_* environment variables (nested keys joined
// with underscores, e.g. ORGWARDEN_HISTORY_ENABLED). The plain
// GITHUB_TOKEN variable also overrides the configured token, matching
// the conventional GitHub tooling environment.
func loadApp(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading app config: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows about, so
	// bind the scalar override targets explicitly.
	for _, key := range []string{
		"github_token",
		"delete_unconfigured_teams",
		"remove_members_without_team",
		"report_dir",
		"history.enabled",
		"api.listen",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var app AppConfig

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           &app,
	})
	if err != nil {
		return nil, fmt.Errorf("building config decoder: %w", err)
	}

	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding app config: %w", err)
	}

	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		app.GithubToken = token
	}

	app.applyDefaults()

	return &app, nil
}

// applyDefaults sets default values for unspecified options.
func (a *AppConfig) applyDefaults() {
	if a.ReportDir == "" {
		a.ReportDir = "./reports"
	}

	if a.History.Database.Driver == "" {
		a.History.Database.Driver = "sqlite"
	}

	if a.History.Database.SQLite.Path == "" {
		a.History.Database.SQLite.Path = "./orgwarden.db"
	}

	if a.API.Listen == "" {
		a.API.Listen = ":8080"
	}

	if a.API.RateLimit.RequestsPerMinute == 0 {
		a.API.RateLimit.RequestsPerMinute = 120
	}
}
