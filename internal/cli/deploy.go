package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantumgate/quantum-api-deploy/internal/config"
	"github.com/quantumgate/quantum-api-deploy/internal/discovery"
	"github.com/quantumgate/quantum-api-deploy/internal/pipeline"
)

func newDeployCmd() *cobra.Command {
	var (
		configPath string
		dryRun     bool
		jsonOut    bool
		skipVerify bool
		asyncProbe bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run the full deployment pipeline: cluster, workload, discovery, gateway, verification",
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

			res, err := pipeline.Run(ctx, logger, cfg, pipeline.Options{
				DryRun:     dryRun,
				SkipVerify: skipVerify,
				AsyncProbe: asyncProbe,
			})
			if err != nil {
				if jsonOut {
					if jsonErr := printJSON(res); jsonErr != nil {
						return jsonErr
					}
				}
				return explainPipelineError(err, cfg)
			}

			if jsonOut {
				return printJSON(res)
			}

			human := strings.EqualFold(logFormat, "text")
			if human {
				fmt.Printf("\n\033[32m✓ deployment completed\033[0m\n")
				fmt.Printf("  Cluster:  \033[36m%s\033[0m\n", cfg.Cluster.Name)
				fmt.Printf("  Backend:  \033[36m%s\033[0m\n", res.EndpointAddress)
				fmt.Printf("  Public:   \033[36m%s\033[0m\n", res.InvokeURL)
				fmt.Printf("  Total:    \033[36m%s\033[0m\n", time.Since(res.StartedAt).Truncate(time.Millisecond))
			} else {
				logger.Info("deployment completed",
					"cluster", cfg.Cluster.Name,
					"endpoint", res.EndpointAddress,
					"invoke_url", res.InvokeURL,
					"duration", time.Since(res.StartedAt).String(),
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate and print planned stages without changes")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print machine-readable run result JSON")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Skip the end-to-end verification stage")
	cmd.Flags().BoolVar(&asyncProbe, "async-probe", false, "Also verify the asynchronous job round trip")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func explainPipelineError(err error, cfg config.Config) error {
	var te *discovery.TimeoutError
	if errors.As(err, &te) {
		return &userError{
			msg: err.Error(),
			hint: fmt.Sprintf("Check the AWS Load Balancer Controller and ingress %s in namespace %s; re-run deploy once the ALB exists",
				cfg.Workload.IngressName, cfg.Workload.Namespace),
		}
	}
	var ae *pipeline.ApplyError
	if errors.As(err, &ae) && ae.Layer == "cluster" {
		return &userError{
			msg:  err.Error(),
			hint: "Inspect the Terraform error above; the pipeline is idempotent and safe to re-run after fixing the cause",
		}
	}
	return err
}
