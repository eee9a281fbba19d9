package cli

import (
	"context"
	"fmt"

	survey "github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/quantumgate/quantum-api-deploy/internal/config"
	"github.com/quantumgate/quantum-api-deploy/internal/gateway"
	"github.com/quantumgate/quantum-api-deploy/internal/pipeline"
	"github.com/quantumgate/quantum-api-deploy/internal/tooling/terraform"
)

var (
	destroyLayerFn = destroyLayer
	confirmFn      = confirmTeardown
)

func newTeardownCmd() *cobra.Command {
	var (
		configPath  string
		autoApprove bool
	)

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Destroy the gateway and cluster layers (gateway first)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(logFormat, logLevel)
			if err != nil {
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if !autoApprove {
				ok, err := confirmFn(fmt.Sprintf("Destroy gateway and cluster layers for %s in %s?", cfg.Cluster.Name, cfg.Cluster.Region))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Cancelled.")
					return nil
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeouts.TotalDuration())
			defer cancel()

			// Gateway goes first so no public route outlives its backend.
			logger.Info("destroying gateway layer", "dir", cfg.Gateway.TerraformDir)
			if err := destroyLayerFn(ctx, cfg.Gateway.TerraformDir, gateway.Vars(cfg.Gateway, cfg.Cluster.Region, "")); err != nil {
				return err
			}
			logger.Info("destroying cluster layer", "dir", cfg.Cluster.TerraformDir)
			if err := destroyLayerFn(ctx, cfg.Cluster.TerraformDir, pipeline.ClusterVars(cfg.Cluster)); err != nil {
				return err
			}

			logger.Info("teardown completed", "cluster", cfg.Cluster.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip the interactive confirmation (CI)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func destroyLayer(ctx context.Context, dir string, vars map[string]string) error {
	tf, err := terraform.NewRunner(dir)
	if err != nil {
		return err
	}
	return tf.Destroy(ctx, vars)
}

func confirmTeardown(message string) (bool, error) {
	confirmed := false
	prompt := &survey.Confirm{Message: message}
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return false, err
	}
	return confirmed, nil
}
