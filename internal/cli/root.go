// Package cli implements prospectctl, the support tool for trials, usage
// and plans. It talks to the store directly rather than through the HTTP API.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukerupert/prospector/internal/config"
	"github.com/dukerupert/prospector/internal/logging"
	"github.com/dukerupert/prospector/internal/plan"
	"github.com/dukerupert/prospector/internal/store"
)

// StoreOpener opens the store named by the configuration.
type StoreOpener func(cfg *config.Config) (store.Store, func() error, error)

func openStore(cfg *config.Config) (store.Store, func() error, error) {
	return store.Open(cfg.StoreDriver, cfg.DBPath)
}

type app struct {
	cfg    *config.Config
	open   StoreOpener
	output string

	store   store.Store
	closeFn func() error
	logger  *slog.Logger
}

// Execute runs prospectctl against the environment's configuration.
func Execute() error {
	return NewRootCmd(config.Read(), openStore).Execute()
}

func NewRootCmd(cfg *config.Config, open StoreOpener) *cobra.Command {
	a := &app{cfg: cfg, open: open}

	root := &cobra.Command{
		Use:   "prospectctl",
		Short: "Support operations for the prospector entitlement service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch a.output {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("unsupported output format %q", a.output)
			}
			a.logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeFn != nil {
				return a.closeFn()
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "output format: table, json, yaml")

	root.AddCommand(
		newTrialCmd(a),
		newUsageCmd(a),
		newPlansCmd(a),
		newMigrateCmd(a),
		newTokenCmd(a),
		newBackupCmd(a),
	)
	return root
}

// storeFor opens the store on first use.
func (a *app) storeFor() (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, closeFn, err := a.open(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store, a.closeFn = s, closeFn
	return s, nil
}

func (a *app) catalog() (*plan.Catalog, error) {
	c, err := plan.Load(a.cfg.PlansFile)
	if err != nil {
		return nil, err
	}
	return c.WithPrices(a.cfg.StripePrices)
}

func (a *app) print(w io.Writer, data any, table func(*Table)) error {
	switch a.output {
	case "json":
		return printJSON(w, data)
	case "yaml":
		return printYAML(w, data)
	default:
		t := NewTable(w)
		table(t)
		return t.Render()
	}
}
