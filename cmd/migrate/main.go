package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"beaconhealth.org/internal/migrate"
	"beaconhealth.org/internal/seed"
	"beaconhealth.org/internal/store/pg"
	"beaconhealth.org/ops/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		dsn     string
		timeout time.Duration
	)
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the beacon PostgreSQL schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("BEACON_PG_DSN"), "PostgreSQL DSN")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall command timeout")

	// withStore opens the store and a manager over the embedded migrations.
	withStore := func(fn func(ctx context.Context, store *pg.Store, mgr *migrate.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				return fmt.Errorf("missing DSN: provide via --dsn or BEACON_PG_DSN")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			store, err := pg.Open(dsn)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer store.Close()
			return fn(ctx, store, migrate.NewManager(store.DB(), migrations.SQL, migrations.Dir))
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: withStore(func(ctx context.Context, _ *pg.Store, mgr *migrate.Manager) error {
				applied, err := mgr.Up(ctx)
				for _, name := range applied {
					fmt.Fprintln(os.Stdout, "applied", name)
				}
				if err == nil && len(applied) == 0 {
					fmt.Fprintln(os.Stdout, "up to date")
				}
				return err
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: withStore(func(ctx context.Context, _ *pg.Store, mgr *migrate.Manager) error {
				name, err := mgr.Down(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, "rolled back", name)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print applied and pending migrations",
			RunE: withStore(func(ctx context.Context, _ *pg.Store, mgr *migrate.Manager) error {
				applied, err := mgr.Status(ctx)
				if err != nil {
					return err
				}
				pending, err := mgr.Pending(ctx)
				if err != nil {
					return err
				}
				for _, name := range applied {
					fmt.Fprintln(os.Stdout, "applied ", name)
				}
				for _, name := range pending {
					fmt.Fprintln(os.Stdout, "pending ", name)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Load the demo catalog, prescriptions and messages once",
			RunE: withStore(func(ctx context.Context, store *pg.Store, mgr *migrate.Manager) error {
				fixtures, err := seed.Demo()
				if err != nil {
					return err
				}
				var res seed.Result
				ran, err := mgr.Seed(ctx, "demo", func(ctx context.Context) error {
					res, err = seed.Load(ctx, seed.Targets{Catalog: store, Prescriptions: store, Messages: store}, fixtures)
					return err
				})
				if err != nil {
					return err
				}
				if !ran {
					fmt.Fprintln(os.Stdout, "demo seed already applied")
					return nil
				}
				fmt.Fprintf(os.Stdout, "seeded apps=%d prescriptions=%d messages=%d skipped=%v\n",
					res.Apps, res.Prescriptions, res.Messages, res.Skipped)
				return nil
			}),
		},
	)
	return root
}
