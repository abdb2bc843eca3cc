package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Check the Drive folder connection",
	Long: `List the configured Drive folder and print the connection report as
JSON. Exits with an error when the folder cannot be listed.

Example:
  GOOGLE_DRIVE_FOLDER_ID=1AbCdEf protokb drive`,
	RunE: runDrive,
}

func init() {
	rootCmd.AddCommand(driveCmd)
}

func runDrive(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	health := a.drive.Check(ctx)
	if err := printJSON(health); err != nil {
		return err
	}
	if !health.Connected {
		return fmt.Errorf("drive not connected")
	}
	return nil
}
