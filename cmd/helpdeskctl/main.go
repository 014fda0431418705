package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/station-helpdesk/internal/config"
	"github.com/spec-kit/station-helpdesk/internal/observability"
	"github.com/spec-kit/station-helpdesk/internal/persistence"
	"github.com/spec-kit/station-helpdesk/internal/repository"
	"github.com/spec-kit/station-helpdesk/internal/seed"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "helpdeskctl",
		Short:         "Administrative commands for the station help desk",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newMigrateCommand(),
		newSeedCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Printf("helpdeskctl: %v", err)
		os.Exit(1)
	}
}

type env struct {
	cfg    *config.Config
	logger *zap.Logger
	pg     *persistence.Postgres
}

func (e *env) close() {
	e.pg.Close()
	_ = e.logger.Sync()
}

func initEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	if !pg.Enabled() {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	return &env{cfg: cfg, logger: logger, pg: pg}, nil
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				e, err := initEnv(cmd.Context())
				if err != nil {
					return err
				}
				defer e.close()
				applied, err := persistence.RunMigrations(cmd.Context(), e.pg.Pool, e.logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: func(cmd *cobra.Command, _ []string) error {
				e, err := initEnv(cmd.Context())
				if err != nil {
					return err
				}
				defer e.close()
				applied, err := persistence.AppliedMigrations(cmd.Context(), e.pg.Pool)
				if err != nil {
					return err
				}
				names, err := persistence.MigrationNames()
				if err != nil {
					return err
				}
				for _, name := range names {
					state := "pending"
					if applied[name] {
						state = "applied"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-40s %s\n", name, state)
				}
				return nil
			},
		},
	)
	return cmd
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo accounts",
		Long:  `Create the demo admin, help-desk and gas-station accounts (password ` + seed.DemoPassword + `). Existing emails are left untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := initEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			created, err := seed.Users(cmd.Context(), repository.NewUserRepository(e.pg.Pool), e.cfg.Auth.BcryptCost, e.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d demo user(s)\n", created)
			return nil
		},
	}
}
