package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/quantumgate/quantum-api-deploy/internal/config"
	"github.com/quantumgate/quantum-api-deploy/internal/discovery"
	"github.com/quantumgate/quantum-api-deploy/internal/gateway"
	"github.com/quantumgate/quantum-api-deploy/internal/secrets"
	"github.com/quantumgate/quantum-api-deploy/internal/tooling/kubectl"
	"github.com/quantumgate/quantum-api-deploy/internal/tooling/terraform"
	"github.com/quantumgate/quantum-api-deploy/internal/verify"
	"github.com/quantumgate/quantum-api-deploy/pkg/model"
)

type Options struct {
	DryRun     bool
	SkipVerify bool
	AsyncProbe bool
}

var (
	provisionClusterFn = provisionCluster
	deployWorkloadFn   = deployWorkload
	discoverEndpointFn = DiscoverEndpoint
	provisionGatewayFn = provisionGateway
	verifyDeploymentFn = verifyDeployment
)

// Run executes the five-stage deployment pipeline. Stages run strictly in
// order; the first failure aborts the rest and earlier infrastructure is
// left in place for inspection.
func Run(ctx context.Context, logger *slog.Logger, cfg config.Config, opts Options) (model.RunResult, error) {
	res := model.RunResult{
		RunID:     uuid.NewString(),
		Status:    "running",
		StartedAt: time.Now().UTC(),
		Cluster:   cfg.Cluster.Name,
		Region:    cfg.Cluster.Region,
		DryRun:    opts.DryRun,
	}

	if opts.DryRun {
		res.Stages = []model.StageResult{
			{Name: "cluster_provision", Status: model.StageStatusPlanned, Message: "Converge cluster and network layer"},
			{Name: "workload_deploy", Status: model.StageStatusPlanned, Message: "Apply workload manifests and wait for rollout"},
			{Name: "endpoint_discovery", Status: model.StageStatusPlanned, Message: "Poll ingress status for load balancer hostname"},
			{Name: "gateway_provision", Status: model.StageStatusPlanned, Message: "Bind public gateway to discovered backend"},
			{Name: "verification", Status: model.StageStatusPlanned, Message: "Smoke-test the public endpoint end to end"},
		}
		res.Status = "planned"
		res.EndedAt = time.Now().UTC()
		return res, nil
	}

	var endpoint string
	var invokeURL string

	stages := []struct {
		name string
		desc string
		skip bool
		run  func(context.Context) (string, error)
	}{
		{
			name: "cluster_provision",
			desc: "Converge cluster and network layer",
			run: func(ctx context.Context) (string, error) {
				return "", provisionClusterFn(ctx, logger, cfg)
			},
		},
		{
			name: "workload_deploy",
			desc: "Apply workload manifests and wait for rollout",
			run: func(ctx context.Context) (string, error) {
				return "", deployWorkloadFn(ctx, logger, cfg)
			},
		},
		{
			name: "endpoint_discovery",
			desc: "Poll ingress status for load balancer hostname",
			run: func(ctx context.Context) (string, error) {
				host, stats, err := discoverEndpointFn(ctx, logger, cfg)
				if err != nil {
					return "", err
				}
				logger.Info("endpoint discovered",
					"hostname", host,
					"attempts_used", stats.Attempts,
					"elapsed", stats.Elapsed.Truncate(time.Millisecond).String(),
				)
				endpoint = host
				res.EndpointAddress = host
				return host, nil
			},
		},
		{
			name: "gateway_provision",
			desc: "Bind public gateway to discovered backend",
			run: func(ctx context.Context) (string, error) {
				url, err := provisionGatewayFn(ctx, logger, cfg, endpoint)
				if err != nil {
					return "", err
				}
				invokeURL = url
				res.InvokeURL = url
				return url, nil
			},
		},
		{
			name: "verification",
			desc: "Smoke-test the public endpoint end to end",
			skip: opts.SkipVerify,
			run: func(ctx context.Context) (string, error) {
				return "", verifyDeploymentFn(ctx, logger, cfg, invokeURL, opts.AsyncProbe)
			},
		},
	}

	total := len(stages)
	for i, s := range stages {
		progress := fmt.Sprintf("[%d/%d]", i+1, total)
		if s.skip {
			logger.Info("stage skipped", "stage", s.name, "progress", progress)
			res.Stages = append(res.Stages, model.StageResult{Name: s.name, Status: model.StageStatusSkipped})
			continue
		}

		logger.Info("stage start", "stage", s.name, "description", s.desc, "progress", progress)
		started := time.Now()
		output, err := s.run(ctx)
		d := time.Since(started)
		if err != nil {
			res.Stages = append(res.Stages, model.StageResult{
				Name:     s.name,
				Status:   model.StageStatusFailed,
				Duration: d,
				Message:  err.Error(),
			})
			res.Status = "failed"
			res.Error = fmt.Sprintf("stage %s failed: %v", s.name, err)
			res.EndedAt = time.Now().UTC()
			logger.Error("stage failed", "stage", s.name, "duration", d.String(), "error", err)
			return res, fmt.Errorf("stage %s failed: %w", s.name, err)
		}
		res.Stages = append(res.Stages, model.StageResult{
			Name:     s.name,
			Status:   model.StageStatusSuccess,
			Duration: d,
			Output:   output,
		})
		logger.Info("stage success", "stage", s.name, "duration", d.String(), "progress", progress)
	}

	res.Status = "success"
	res.EndedAt = time.Now().UTC()
	return res, nil
}

func provisionCluster(ctx context.Context, logger *slog.Logger, cfg config.Config) error {
	tf, err := terraform.NewRunner(cfg.Cluster.TerraformDir)
	if err != nil {
		return &ApplyError{Layer: "cluster", Err: err}
	}
	logger.Info("applying cluster layer",
		"dir", cfg.Cluster.TerraformDir,
		"cluster", cfg.Cluster.Name,
		"region", cfg.Cluster.Region,
	)
	if _, err := tf.Apply(ctx, ClusterVars(cfg.Cluster)); err != nil {
		return &ApplyError{Layer: "cluster", Err: err}
	}
	return nil
}

// ClusterVars maps the cluster spec onto the Terraform layer's variables.
func ClusterVars(c config.ClusterConfig) map[string]string {
	return map[string]string{
		"cluster_name":     c.Name,
		"region":           c.Region,
		"node_min":         strconv.Itoa(c.NodeMin),
		"node_desired":     strconv.Itoa(c.NodeDesired),
		"node_max":         strconv.Itoa(c.NodeMax),
		"instance_type":    c.InstanceType,
		"subnet_ids":       terraform.ListVar(c.SubnetIDs),
		"endpoint_public":  strconv.FormatBool(c.EndpointPublic),
		"endpoint_private": strconv.FormatBool(c.EndpointPrivate),
		"admin_principals": terraform.ListVar(c.AdminPrincipals),
	}
}

func deployWorkload(ctx context.Context, logger *slog.Logger, cfg config.Config) error {
	kc := kubectl.NewClient(cfg.Workload.Kubeconfig, cfg.Workload.Namespace)

	if len(cfg.Workload.SecretKeys) > 0 {
		values, err := secrets.Resolve(cfg.Workload.SecretKeys)
		if err != nil {
			return &ApplyError{Layer: "workload", Err: err}
		}
		manifest, err := secrets.RenderManifest(cfg.Workload.SecretName, cfg.Workload.Namespace, values)
		if err != nil {
			return &ApplyError{Layer: "workload", Err: err}
		}
		if err := kc.ApplyManifest(ctx, manifest); err != nil {
			return &ApplyError{Layer: "workload", Err: err}
		}
		logger.Info("workload secret applied", "secret", cfg.Workload.SecretName, "keys", len(values))
	}

	if err := kc.ApplyDir(ctx, cfg.Workload.ManifestDir); err != nil {
		return &ApplyError{Layer: "workload", Err: err}
	}
	if err := kc.SetImage(ctx, cfg.Workload.DeploymentName, cfg.Workload.ContainerName, cfg.Workload.Image); err != nil {
		return &ApplyError{Layer: "workload", Err: err}
	}
	if err := kc.Scale(ctx, cfg.Workload.DeploymentName, cfg.Workload.Replicas); err != nil {
		return &ApplyError{Layer: "workload", Err: err}
	}

	logger.Info("waiting for rollout",
		"deployment", cfg.Workload.DeploymentName,
		"replicas", cfg.Workload.Replicas,
		"timeout", cfg.Workload.RolloutTimeout().String(),
	)
	if err := kc.RolloutStatus(ctx, cfg.Workload.DeploymentName, cfg.Workload.RolloutTimeout()); err != nil {
		return &ApplyError{Layer: "workload", Err: err}
	}
	return nil
}

// DiscoverEndpoint resolves the externally reachable address the cloud
// load balancer assigned to the ingress. Also exposed standalone for the
// discover-endpoint command.
func DiscoverEndpoint(ctx context.Context, logger *slog.Logger, cfg config.Config) (string, discovery.PollStats, error) {
	kc := kubectl.NewClient(cfg.Workload.Kubeconfig, cfg.Workload.Namespace)

	logger.Info("polling ingress for load balancer hostname",
		"ingress", cfg.Workload.IngressName,
		"interval", cfg.Discovery.PollInterval().String(),
		"max_attempts", cfg.Discovery.MaxAttempts,
		"ceiling", cfg.Discovery.Ceiling().String(),
	)

	// The ceiling bounds wall-clock time independently of attempts.
	dctx, cancel := context.WithTimeout(ctx, cfg.Discovery.Ceiling())
	defer cancel()

	return discovery.WaitForHostname(dctx, func(ctx context.Context) (string, error) {
		return kc.IngressHostname(ctx, cfg.Workload.IngressName)
	}, discovery.Options{
		Interval:    cfg.Discovery.PollInterval(),
		MaxAttempts: cfg.Discovery.MaxAttempts,
	})
}

func provisionGateway(ctx context.Context, logger *slog.Logger, cfg config.Config, host string) (string, error) {
	tf, err := terraform.NewRunner(cfg.Gateway.TerraformDir)
	if err != nil {
		return "", &ApplyError{Layer: "gateway", Err: err}
	}
	logger.Info("applying gateway layer",
		"dir", cfg.Gateway.TerraformDir,
		"integration_target", gateway.IntegrationTarget(host),
	)
	url, err := gateway.Provision(ctx, tf, cfg.Gateway, cfg.Cluster.Region, host)
	if err != nil {
		return "", &ApplyError{Layer: "gateway", Err: err}
	}
	return url, nil
}

func verifyDeployment(ctx context.Context, logger *slog.Logger, cfg config.Config, invokeURL string, asyncProbe bool) error {
	if invokeURL == "" {
		return fmt.Errorf("no invoke URL available for verification")
	}
	c := verify.NewClient(invokeURL, cfg.Verify.RequestTimeout())
	return verify.Run(ctx, logger, c, verify.Options{
		Shots:           cfg.Verify.Shots,
		BackendProvider: cfg.Verify.BackendProvider,
		AsyncProbe:      asyncProbe,
	})
}
