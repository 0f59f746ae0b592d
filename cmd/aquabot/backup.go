package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/HerbHall/aquabot/internal/backup"
	"github.com/HerbHall/aquabot/internal/server"
	"github.com/spf13/cobra"
)

func newBackupCmd(configPath *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the database and configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := server.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if output == "" {
				output = fmt.Sprintf("aquabot-backup-%s.tar.gz", time.Now().UTC().Format("20060102-150405"))
			}
			if err := backup.Backup(cmd.Context(), v.GetString("database.path"), v.ConfigFileUsed(), output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path (default aquabot-backup-<timestamp>.tar.gz)")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var (
		targetDir string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "restore <archive>",
		Short: "Extract a backup archive",
		Long:  "Extract a backup archive into a directory. Stop the server first; point database.path at the restored file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := backup.Restore(cmd.Context(), args[0], targetDir, force)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "restored to %s\n", targetDir)
			if manifest != nil {
				fmt.Fprintf(out, "  database: %s\n  version:  %s\n  created:  %s\n",
					filepath.Join(targetDir, manifest.Database), manifest.Version, manifest.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetDir, "dir", "d", "./data", "target directory")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}
