package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leansocial/shell/internal"
	"github.com/leansocial/shell/internal/config"
	"github.com/leansocial/shell/internal/log"
	"github.com/spf13/cobra"
)

func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
}

func serveCmd() *cobra.Command {
	var configPath, launchURL string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the shell until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log.LogInfoWithFields("main", "Starting leansocial", map[string]any{
				"version": BuildVersion,
				"config":  configPath,
			})

			app, err := internal.NewLeanSocial(cmd.Context(), cfg, launchURL)
			if err != nil {
				return fmt.Errorf("failed to create shell: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&launchURL, "launch-url", "", "location the shell was opened at, e.g. a sign-in deep link")
	return cmd
}

func statusCmd() *cobra.Command {
	var configPath, launchURL string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Resolve the session once and print the auth state as JSON",
		Long: `Runs the session bootstrap without serving and prints the settled
auth state. Credentials are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			app, err := internal.NewLeanSocial(ctx, cfg, launchURL)
			if err != nil {
				return fmt.Errorf("failed to create shell: %w", err)
			}
			defer app.Close()

			st, err := app.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to resolve session: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st.Redacted())
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&launchURL, "launch-url", "", "location to resolve, may carry a redirect marker")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall time limit")
	return cmd
}

func logoutCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out the configured profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			app, err := internal.NewLeanSocial(cmd.Context(), cfg, "")
			if err != nil {
				return fmt.Errorf("failed to create shell: %w", err)
			}
			defer app.Close()

			if err := app.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("sign-out failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}
