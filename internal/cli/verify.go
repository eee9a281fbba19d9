package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quantumgate/quantum-api-deploy/internal/config"
	"github.com/quantumgate/quantum-api-deploy/internal/verify"
)

func newVerifyCmd() *cobra.Command {
	var (
		configPath string
		baseURL    string
		asyncProbe bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Smoke-test a deployed endpoint through its public gateway URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(logFormat, logLevel)
			if err != nil {
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if strings.TrimSpace(baseURL) == "" {
				return &userError{
					msg:  "--base-url is required",
					hint: "Pass the gateway invoke URL printed by deploy, e.g. --base-url https://abc123.execute-api.eu-central-1.amazonaws.com",
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeouts.TotalDuration())
			defer cancel()

			c := verify.NewClient(baseURL, cfg.Verify.RequestTimeout())
			if err := verify.Run(ctx, logger, c, verify.Options{
				Shots:           cfg.Verify.Shots,
				BackendProvider: cfg.Verify.BackendProvider,
				AsyncProbe:      asyncProbe,
			}); err != nil {
				return err
			}

			if strings.EqualFold(logFormat, "text") {
				fmt.Printf("\033[32m✓ verification passed\033[0m %s\n", baseURL)
			} else {
				logger.Info("verification passed", "base_url", baseURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public gateway URL to verify")
	cmd.Flags().BoolVar(&asyncProbe, "async-probe", false, "Also verify the asynchronous job round trip")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
