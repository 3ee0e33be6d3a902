// Package cli implements the restock operator command line.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"vendstock/internal/bootstrap"
	"vendstock/internal/config"
	"vendstock/internal/core/clock"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format    string
	Store     string
	BadgerDir string
	Operator  string

	cfg   config.Config
	clock clock.Clock
}

// env is an opened backend plus its services.
type env struct {
	storage  *bootstrap.Storage
	services bootstrap.Services
}

func (e *env) Close() { e.storage.Close() }

// open connects to the configured store. Flags override the environment.
func (o *RootOptions) open(ctx context.Context) (*env, error) {
	cfg := o.cfg
	cfg.StorageDriver = o.Store
	if o.BadgerDir != "" {
		cfg.BadgerDir = o.BadgerDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	st, err := bootstrap.OpenStorage(ctx, cfg, o.clock)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	return &env{storage: st, services: bootstrap.NewServices(st, o.clock, cfg.SessionTTL, nil)}, nil
}

// NewRootCommand creates the root command of the restock CLI.
func NewRootCommand(cfg config.Config, clk clock.Clock) *cobra.Command {
	if clk == nil {
		clk = clock.System()
	}
	opts := &RootOptions{cfg: cfg, clock: clk}

	cmd := &cobra.Command{
		Use:   "restock",
		Short: "Plan and run vending machine restocking visits",
		Long: `Operator tool for vending machine restocking.

Lists machines, previews the worklist a visit would start with and runs an
interactive visit: mark instructions done and commit the new layout.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			if opts.Store != config.DriverPostgres && opts.Store != config.DriverBadger {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid store %q: must be postgres or badger", opts.Store), nil)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	store := cfg.StorageDriver
	if store == "" {
		store = config.DriverPostgres
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().StringVar(&opts.Store, "store", store, "storage backend (postgres|badger)")
	cmd.PersistentFlags().StringVar(&opts.BadgerDir, "badger-dir", "", "badger directory (defaults to BADGER_DIR)")
	cmd.PersistentFlags().StringVar(&opts.Operator, "operator", "", "name recorded in the visit journal")

	cmd.AddCommand(NewMachinesCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewVisitCommand(opts))

	return cmd
}
