package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/rubric-harvester/internal/app"
	"github.com/samvad-hq/rubric-harvester/internal/config"
	"github.com/samvad-hq/rubric-harvester/internal/domain"
	"github.com/samvad-hq/rubric-harvester/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "harvester failed: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           "harvester",
		Short:         "Harvest lefaso.net rubric listings into article records",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd.Context(), envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file loaded before reading the environment")
	cmd.AddCommand(newInspectCmd(&envFile))
	return cmd
}

func newInspectCmd(envFile *string) *cobra.Command {
	var listing bool

	cmd := &cobra.Command{
		Use:   "inspect <url>",
		Short: "Fetch one page and print what the extractor sees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*envFile)
			if err != nil {
				return err
			}
			defer logger.Close()

			kind := domain.KindArticle
			if listing {
				kind = domain.KindListing
			}
			return app.Inspect(cmd.Context(), cfg, log, kind, args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&listing, "listing", false, "treat the page as a rubric listing and print its article links")
	return cmd
}

func runHarvest(ctx context.Context, envFile string) error {
	cfg, log, err := setup(envFile)
	if err != nil {
		return err
	}
	defer logger.Close()

	logger.InfoObj("harvester starting", "config", cfg)

	harvester, err := app.NewHarvester(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize harvester", "error", err.Error())
		return err
	}

	if err := harvester.Run(ctx); err != nil {
		return fmt.Errorf("harvester run: %w", err)
	}
	return nil
}

func setup(envFile string) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.Init(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
