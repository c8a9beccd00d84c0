package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/prospector/internal/database"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.StoreDriver != "sqlite" {
				return fmt.Errorf("migrate: store driver %q has no schema", a.cfg.StoreDriver)
			}
			db, err := database.Open(a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			v, err := database.Version(db)
			if err != nil {
				return err
			}
			a.logger.Info("migrations applied", "db", a.cfg.DBPath, "version", v)
			fmt.Fprintf(cmd.OutOrStdout(), "%s at version %d\n", a.cfg.DBPath, v)
			return nil
		},
	}
}
