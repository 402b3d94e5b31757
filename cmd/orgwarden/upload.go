package main

import (
	"fmt"

	"github.com/orgwarden/orgwarden/pkg/config"
	"github.com/orgwarden/orgwarden/pkg/upload"
	"github.com/spf13/cobra"
)

var uploadReportDir string

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a report directory to remote storage",
	Long:  `Upload a local report directory to S3-compatible storage using the app configuration settings.`,
	RunE:  runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadReportDir, "report-dir", "",
		"Path to the report directory to upload")

	_ = uploadCmd.MarkFlagRequired("report-dir")
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(log, cfgDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.App.Upload == nil || !cfg.App.Upload.Enabled {
		return fmt.Errorf("S3 upload is not configured or not enabled in config")
	}

	uploader, err := upload.NewS3Uploader(log, cfg.App.Upload)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	ctx := cmd.Context()

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("verifying remote storage: %w", err)
	}

	log.WithField("dir", uploadReportDir).Info("Uploading report")

	if err := uploader.Upload(ctx, uploadReportDir); err != nil {
		return fmt.Errorf("uploading report: %w", err)
	}

	log.Info("Upload completed successfully")

	return nil
}
