package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds deployment pipeline settings.
type Config struct {
	Cluster   ClusterConfig   `yaml:"cluster"`
	Workload  WorkloadConfig  `yaml:"workload"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Verify    VerifyConfig    `yaml:"verify"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
}

var (
	safeNameRE     = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	awsRegionRE    = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d$`)
	imageRE        = regexp.MustCompile(`^[A-Za-z0-9._/:@-]+$`)
	subnetIDRE     = regexp.MustCompile(`^subnet-[a-f0-9]+$`)
	principalArnRE = regexp.MustCompile(`^arn:aws:iam::\d{12}:(root|user/.+|role/.+)$`)
)

type ClusterConfig struct {
	Name            string   `yaml:"name"`
	Region          string   `yaml:"region"`
	TerraformDir    string   `yaml:"terraform_dir"`
	NodeMin         int      `yaml:"node_min"`
	NodeDesired     int      `yaml:"node_desired"`
	NodeMax         int      `yaml:"node_max"`
	InstanceType    string   `yaml:"instance_type"`
	SubnetIDs       []string `yaml:"subnet_ids"`
	EndpointPublic  bool     `yaml:"endpoint_public"`
	EndpointPrivate bool     `yaml:"endpoint_private"`
	AdminPrincipals []string `yaml:"admin_principals"`
}

type WorkloadConfig struct {
	Namespace             string   `yaml:"namespace"`
	DeploymentName        string   `yaml:"deployment_name"`
	ContainerName         string   `yaml:"container_name"`
	IngressName           string   `yaml:"ingress_name"`
	Image                 string   `yaml:"image"`
	Replicas              int      `yaml:"replicas"`
	ManifestDir           string   `yaml:"manifest_dir"`
	SecretName            string   `yaml:"secret_name"`
	SecretKeys            []string `yaml:"secret_keys"`
	Kubeconfig            string   `yaml:"kubeconfig"`
	RolloutTimeoutSeconds int      `yaml:"rollout_timeout_seconds"`
}

type DiscoveryConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	MaxAttempts         int `yaml:"max_attempts"`
	CeilingMinutes      int `yaml:"ceiling_minutes"`
}

type GatewayConfig struct {
	TerraformDir     string `yaml:"terraform_dir"`
	StageName        string `yaml:"stage_name"`
	LogRetentionDays int    `yaml:"log_retention_days"`
}

type VerifyConfig struct {
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	Shots                 int    `yaml:"shots"`
	BackendProvider       string `yaml:"backend_provider"`
}

type TimeoutsConfig struct {
	TotalMinutes int `yaml:"total_minutes"`
}

func (d DiscoveryConfig) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalSeconds) * time.Second
}

func (d DiscoveryConfig) Ceiling() time.Duration {
	return time.Duration(d.CeilingMinutes) * time.Minute
}

func (w WorkloadConfig) RolloutTimeout() time.Duration {
	return time.Duration(w.RolloutTimeoutSeconds) * time.Second
}

func (v VerifyConfig) RequestTimeout() time.Duration {
	return time.Duration(v.RequestTimeoutSeconds) * time.Second
}

func (t TimeoutsConfig) TotalDuration() time.Duration {
	return time.Duration(t.TotalMinutes) * time.Minute
}

func defaultConfig() Config {
	return Config{
		Cluster: ClusterConfig{
			TerraformDir: "deploy/terraform/cluster",
			NodeMin:      1,
			NodeDesired:  2,
			NodeMax:      3,
			InstanceType: "t3.medium",
		},
		Workload: WorkloadConfig{
			Namespace:             "quantum-api",
			DeploymentName:        "quantum-api",
			ContainerName:         "api",
			IngressName:           "quantum-api",
			Replicas:              2,
			ManifestDir:           "deploy/k8s",
			SecretName:            "quantum-api-secrets",
			RolloutTimeoutSeconds: 300,
		},
		Discovery: DiscoveryConfig{
			PollIntervalSeconds: 15,
			MaxAttempts:         12,
			CeilingMinutes:      5,
		},
		Gateway: GatewayConfig{
			TerraformDir:     "deploy/terraform/gateway",
			StageName:        "$default",
			LogRetentionDays: 14,
		},
		Verify: VerifyConfig{
			RequestTimeoutSeconds: 30,
			Shots:                 10,
			BackendProvider:       "qiskit",
		},
		Timeouts: TimeoutsConfig{TotalMinutes: 45},
	}
}

func Load(path string) (Config, error) {
	cfg := defaultConfig()

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(content))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QAD_CLUSTER_NAME"); v != "" {
		cfg.Cluster.Name = v
	}
	if v := os.Getenv("QAD_REGION"); v != "" {
		cfg.Cluster.Region = v
	}
	if v := os.Getenv("QAD_IMAGE"); v != "" {
		cfg.Workload.Image = v
	}
	if v := os.Getenv("QAD_KUBECONFIG"); v != "" {
		cfg.Workload.Kubeconfig = v
	}
	if v := os.Getenv("QAD_REPLICAS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workload.Replicas = n
		}
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Cluster.Name) == "" {
		return fmt.Errorf("cluster.name is required")
	}
	if !safeNameRE.MatchString(c.Cluster.Name) {
		return fmt.Errorf("cluster.name must be a lowercase DNS-style name")
	}
	if strings.TrimSpace(c.Cluster.Region) == "" {
		return fmt.Errorf("cluster.region is required")
	}
	if !awsRegionRE.MatchString(c.Cluster.Region) {
		return fmt.Errorf("cluster.region %q is not a valid region identifier", c.Cluster.Region)
	}
	if strings.TrimSpace(c.Cluster.TerraformDir) == "" {
		return fmt.Errorf("cluster.terraform_dir is required")
	}
	if c.Cluster.NodeMin <= 0 {
		return fmt.Errorf("cluster.node_min must be > 0")
	}
	if c.Cluster.NodeDesired < c.Cluster.NodeMin {
		return fmt.Errorf("cluster.node_desired must be >= cluster.node_min")
	}
	if c.Cluster.NodeMax < c.Cluster.NodeDesired {
		return fmt.Errorf("cluster.node_max must be >= cluster.node_desired")
	}
	if strings.TrimSpace(c.Cluster.InstanceType) == "" {
		return fmt.Errorf("cluster.instance_type is required")
	}
	if len(c.Cluster.SubnetIDs) < 2 {
		return fmt.Errorf("cluster.subnet_ids requires at least 2 subnets")
	}
	for _, id := range c.Cluster.SubnetIDs {
		if !subnetIDRE.MatchString(id) {
			return fmt.Errorf("cluster.subnet_ids entry %q is not a subnet id", id)
		}
	}
	if !c.Cluster.EndpointPublic && !c.Cluster.EndpointPrivate {
		return fmt.Errorf("cluster API endpoint must be public, private, or both")
	}
	for _, arn := range c.Cluster.AdminPrincipals {
		if !principalArnRE.MatchString(arn) {
			return fmt.Errorf("cluster.admin_principals entry %q is not an IAM principal ARN", arn)
		}
	}
	if !safeNameRE.MatchString(c.Workload.Namespace) {
		return fmt.Errorf("workload.namespace must be a lowercase DNS-style name")
	}
	if !safeNameRE.MatchString(c.Workload.DeploymentName) {
		return fmt.Errorf("workload.deployment_name must be a lowercase DNS-style name")
	}
	if !safeNameRE.MatchString(c.Workload.ContainerName) {
		return fmt.Errorf("workload.container_name must be a lowercase DNS-style name")
	}
	if !safeNameRE.MatchString(c.Workload.IngressName) {
		return fmt.Errorf("workload.ingress_name must be a lowercase DNS-style name")
	}
	if strings.TrimSpace(c.Workload.Image) == "" {
		return fmt.Errorf("workload.image is required")
	}
	if !imageRE.MatchString(c.Workload.Image) {
		return fmt.Errorf("workload.image has invalid characters")
	}
	if c.Workload.Replicas <= 0 {
		return fmt.Errorf("workload.replicas must be > 0")
	}
	if strings.TrimSpace(c.Workload.ManifestDir) == "" {
		return fmt.Errorf("workload.manifest_dir is required")
	}
	if strings.TrimSpace(c.Workload.SecretName) == "" && len(c.Workload.SecretKeys) > 0 {
		return fmt.Errorf("workload.secret_name is required when secret_keys are set")
	}
	if c.Workload.RolloutTimeoutSeconds <= 0 {
		return fmt.Errorf("workload.rollout_timeout_seconds must be > 0")
	}
	if c.Discovery.PollIntervalSeconds <= 0 {
		return fmt.Errorf("discovery.poll_interval_seconds must be > 0")
	}
	if c.Discovery.MaxAttempts <= 0 {
		return fmt.Errorf("discovery.max_attempts must be > 0")
	}
	if c.Discovery.CeilingMinutes <= 0 {
		return fmt.Errorf("discovery.ceiling_minutes must be > 0")
	}
	if strings.TrimSpace(c.Gateway.TerraformDir) == "" {
		return fmt.Errorf("gateway.terraform_dir is required")
	}
	if strings.TrimSpace(c.Gateway.StageName) == "" {
		return fmt.Errorf("gateway.stage_name is required")
	}
	if c.Gateway.LogRetentionDays <= 0 {
		return fmt.Errorf("gateway.log_retention_days must be > 0")
	}
	if c.Verify.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("verify.request_timeout_seconds must be > 0")
	}
	if c.Verify.Shots <= 0 {
		return fmt.Errorf("verify.shots must be > 0")
	}
	switch c.Verify.BackendProvider {
	case "qiskit", "braket", "cirq":
	default:
		return fmt.Errorf("verify.backend_provider must be one of: qiskit, braket, cirq")
	}
	if c.Timeouts.TotalMinutes <= 0 {
		return fmt.Errorf("timeouts.total_minutes must be > 0")
	}
	return nil
}
