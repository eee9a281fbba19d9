package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantumgate/quantum-api-deploy/internal/config"
	"github.com/quantumgate/quantum-api-deploy/internal/pipeline"
)

func newDiscoverEndpointCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "discover-endpoint",
		Short: "Poll the ingress and print the assigned load balancer hostname",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(logFormat, logLevel)
			if err != nil {
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeouts.TotalDuration())
			defer cancel()

			host, stats, err := pipeline.DiscoverEndpoint(ctx, logger, cfg)
			if err != nil {
				return explainPipelineError(err, cfg)
			}
			logger.Info("endpoint discovered",
				"attempts_used", stats.Attempts,
				"elapsed", stats.Elapsed.Truncate(time.Millisecond).String(),
			)
			fmt.Println(host)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
