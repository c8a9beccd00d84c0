package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/prospector/internal/backup"
	"github.com/dukerupert/prospector/internal/database"
)

func (a *app) backups() (*backup.Manager, error) {
	b := a.cfg.Backup
	return backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  b.Endpoint,
			Bucket:    b.Bucket,
			Region:    b.Region,
			AccessKey: b.AccessKey,
			SecretKey: b.SecretKey,
		},
		Prefix:     b.Prefix,
		Passphrase: b.Passphrase,
	}, a.logger.With("component", "backup"))
}

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Encrypted ledger snapshots in S3-compatible storage",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Snapshot the SQLite ledger and upload it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.StoreDriver != "sqlite" {
				return fmt.Errorf("backup: store driver %q has nothing to snapshot", a.cfg.StoreDriver)
			}
			m, err := a.backups()
			if err != nil {
				return err
			}
			db, err := database.Open(a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			snap, err := m.Create(cmd.Context(), db)
			if err != nil {
				return err
			}
			return a.printSnapshots(cmd, []backup.Snapshot{snap})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.backups()
			if err != nil {
				return err
			}
			snaps, err := m.List(cmd.Context())
			if err != nil {
				return err
			}
			return a.printSnapshots(cmd, snaps)
		},
	}

	var dst string
	restore := &cobra.Command{
		Use:   "restore <key>",
		Short: "Download a snapshot and write it over the database file",
		Long:  "Download a snapshot and write it over the database file. Stop the service first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.backups()
			if err != nil {
				return err
			}
			if dst == "" {
				dst = a.cfg.DBPath
			}
			if err := m.Restore(cmd.Context(), args[0], dst); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s to %s\n", args[0], dst)
			return nil
		},
	}
	restore.Flags().StringVar(&dst, "to", "", "destination path (default DB_PATH)")

	var keep time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete snapshots older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.backups()
			if err != nil {
				return err
			}
			removed, err := m.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			for _, key := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), "deleted", key)
			}
			return nil
		},
	}
	prune.Flags().DurationVar(&keep, "keep", 30*24*time.Hour, "retention period")

	cmd.AddCommand(create, list, restore, prune)
	return cmd
}

func (a *app) printSnapshots(cmd *cobra.Command, snaps []backup.Snapshot) error {
	return a.print(cmd.OutOrStdout(), snaps, func(t *Table) {
		t.Header("KEY", "SIZE", "CREATED")
		for _, s := range snaps {
			created := s.CreatedAt
			t.AddRow(s.Key, strconv.FormatInt(s.Size, 10), formatTime(&created))
		}
	})
}
