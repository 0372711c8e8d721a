package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/leansocial/shell/internal/config"
	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check config files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init <path>",
		Short: "Write a starter config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := generateDefaultConfig(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default config at: %s\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <path>",
		Short: "Check a config file without resolving secrets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.OutOrStdout(), args[0])
		},
	})
	return cmd
}

func defaultConfig() map[string]any {
	return map[string]any{
		"version": config.SupportedVersion,
		"shell": map[string]any{
			"addr":             config.DefaultAddr,
			"baseURL":          "http://" + config.DefaultAddr,
			"landingPath":      config.DefaultLandingPath,
			"signInPath":       config.DefaultSignInPath,
			"signUpPath":       config.DefaultSignUpPath,
			"bootstrapTimeout": config.DefaultBootstrapTimeout.String(),
			"csrfSecret":       map[string]string{"$env": "LEANSOCIAL_CSRF_SECRET"},
		},
		"api": map[string]any{
			"baseURL": "https://api.leansocial.app/v1",
			"timeout": config.DefaultAPITimeout.String(),
		},
		"identity": map[string]any{
			"profile":          config.DefaultProfile,
			"defaultProvider":  "google",
			"stateSecret":      map[string]string{"$env": "LEANSOCIAL_STATE_SECRET"},
			"refreshThreshold": config.DefaultRefreshThreshold.String(),
			"refreshInterval":  config.DefaultRefreshInterval.String(),
			"providers": map[string]any{
				"google": map[string]any{
					"type":         "google",
					"clientId":     map[string]string{"$env": "GOOGLE_CLIENT_ID"},
					"clientSecret": map[string]string{"$env": "GOOGLE_CLIENT_SECRET"},
				},
			},
		},
		"storage": map[string]any{
			"kind":          string(config.StorageKindRedis),
			"encryptionKey": map[string]string{"$env": "LEANSOCIAL_ENCRYPTION_KEY"},
			"redis": map[string]any{
				"addr":      "localhost:6379",
				"keyPrefix": config.DefaultRedisKeyPrefix,
			},
		},
	}
}

func generateDefaultConfig(path string) error {
	data, err := json.MarshalIndent(defaultConfig(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(out io.Writer, path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Fprintf(out, "Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Fprintf(out, "  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Fprintf(out, "  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintf(out, "\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Fprintf(out, "  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Fprintf(out, "  - %s\n", warn.Message)
			}
		}
	}

	fmt.Fprintln(out)
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Fprintln(out, "Result: PASS")
	case len(result.Errors) == 0:
		fmt.Fprintln(out, "Result: FAIL (warnings present)")
	default:
		fmt.Fprintln(out, "Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}
