package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orgwarden/orgwarden/pkg/config"
	"github.com/orgwarden/orgwarden/pkg/gateway"
	"github.com/orgwarden/orgwarden/pkg/ledger"
	"github.com/orgwarden/orgwarden/pkg/reconcile"
	"github.com/orgwarden/orgwarden/pkg/report"
	"github.com/orgwarden/orgwarden/pkg/store"
	"github.com/orgwarden/orgwarden/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	syncDryRun         bool
	syncForce          bool
	syncIgnoreArchived bool
	syncOutputFormat   string
	syncWriteReport    bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the organization with its configuration",
	Long: `Compare the declared organization state with the live GitHub
organization and apply the minimal set of changes. With --dry the same
comparison runs but nothing is written to GitHub.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVar(&syncDryRun, "dry", false,
		"preview changes without applying them")
	syncCmd.Flags().BoolVar(&syncForce, "force", false,
		"allow demoting the authenticated user from owner")
	syncCmd.Flags().BoolVarP(&syncIgnoreArchived, "ignore-archived", "A", false,
		"skip archived repositories")
	syncCmd.Flags().StringVarP(&syncOutputFormat, "output", "o", "text",
		"report format (text, json)")
	syncCmd.Flags().BoolVar(&syncWriteReport, "write-report", false,
		"write the report to the configured report directory")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(log, cfgDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	teams := config.Consolidate(cfg)

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	gw, err := gateway.NewClient(ctx, log, cfg.Org.OrgName, cfg.App.GithubToken)
	if err != nil {
		return fmt.Errorf("connecting to github: %w", err)
	}

	logRateLimit(ctx, gw, "before run")

	started := time.Now().UTC()

	rec := reconcile.New(log, gw, cfg, teams, reconcile.Options{
		Dry:            syncDryRun,
		Force:          syncForce,
		IgnoreArchived: syncIgnoreArchived,
	})

	led, err := rec.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconciling organization: %w", err)
	}

	duration := time.Since(started)

	logRateLimit(ctx, gw, "after run")

	rep := report.New(cfg.Org.OrgName, syncDryRun, led)

	rendered, err := rep.Render(report.Format(syncOutputFormat))
	if err != nil {
		return err
	}

	fmt.Print(rendered)

	var reportDir string

	if syncWriteReport {
		reportDir, err = rep.WriteFiles(cfg.App.ReportDir)
		if err != nil {
			return fmt.Errorf("writing report files: %w", err)
		}

		log.WithField("dir", reportDir).Info("Report written")
	}

	if cfg.App.History.Enabled {
		if err := persistRun(ctx, cfg, led, syncDryRun, syncForce, started, duration); err != nil {
			return fmt.Errorf("persisting run history: %w", err)
		}
	}

	if reportDir != "" &&
		cfg.App.Upload != nil && cfg.App.Upload.Enabled {
		uploader, err := upload.NewS3Uploader(log, cfg.App.Upload)
		if err != nil {
			return fmt.Errorf("creating S3 uploader: %w", err)
		}

		if err := uploader.Preflight(ctx); err != nil {
			return fmt.Errorf("verifying remote storage: %w", err)
		}

		if err := uploader.Upload(ctx, reportDir); err != nil {
			return fmt.Errorf("uploading report: %w", err)
		}
	}

	return nil
}

// logRateLimit logs the remaining GitHub API quota. Failures are
// logged and ignored; quota visibility must never fail a run.
func logRateLimit(ctx context.Context, gw gateway.Gateway, moment string) {
	remaining, limit, err := gw.RateLimit(ctx)
	if err != nil {
		log.WithError(err).Debug("Failed to read rate limit")

		return
	}

	log.WithFields(logrus.Fields{
		"remaining": remaining,
		"limit":     limit,
	}).Debugf("GitHub API quota %s", moment)
}

// persistRun stores one immutable run record in the history database.
func persistRun(
	ctx context.Context,
	cfg *config.Config,
	led *ledger.Ledger,
	dry, force bool,
	started time.Time,
	duration time.Duration,
) error {
	st := store.NewStore(log, &cfg.App.History.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop store")
		}
	}()

	changes, err := json.Marshal(led)
	if err != nil {
		return fmt.Errorf("marshaling ledger: %w", err)
	}

	run := &store.RunRecord{
		Org:        cfg.Org.OrgName,
		DryRun:     dry,
		Force:      force,
		StartedAt:  started,
		DurationMS: duration.Milliseconds(),
		Changes:    string(changes),
	}

	fillSummary(run, led)

	if err := st.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	log.WithField("id", run.ID).Info("Run recorded in history")

	return nil
}

// fillSummary derives the listing counters from the full ledger.
func fillSummary(run *store.RunRecord, led *ledger.Ledger) {
	run.OwnersChanged = len(led.AddedOwners) + len(led.DemotedOwners)
	run.MembersWithoutTeam = len(led.MembersWithoutTeam) + len(led.RemovedMembers)

	for _, tc := range led.Teams {
		if tc.Created || tc.Deleted ||
			len(tc.ChangedSettings) > 0 ||
			len(tc.AddedMembers) > 0 ||
			len(tc.ChangedRoles) > 0 ||
			len(tc.RemovedMembers) > 0 {
			run.TeamsChanged++
		}
	}

	for _, rc := range led.Repos {
		if len(rc.ChangedTeamPermissions) > 0 ||
			len(rc.RemovedTeams) > 0 ||
			len(rc.RemovedCollaborators) > 0 {
			run.ReposChanged++
		}

		run.CollaboratorsRemoved += len(rc.RemovedCollaborators)
	}
}
