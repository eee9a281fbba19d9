package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := defaultConfig()
	cfg.Cluster.Name = "quantum-api"
	cfg.Cluster.Region = "eu-central-1"
	cfg.Cluster.SubnetIDs = []string{"subnet-0a1b2c3d", "subnet-4e5f6a7b"}
	cfg.Cluster.EndpointPublic = true
	cfg.Workload.Image = "ghcr.io/quantumgate/quantum-api:0.1.0"
	return cfg
}

func TestValidateSuccess(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for missing required fields")
	}
}

func TestValidateSubnetCount(t *testing.T) {
	cfg := validConfig()
	cfg.Cluster.SubnetIDs = []string{"subnet-0a1b2c3d"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "subnet_ids") {
		t.Fatalf("expected subnet count error, got: %v", err)
	}
}

func TestValidateNodeBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Cluster.NodeMin = 3
	cfg.Cluster.NodeDesired = 2
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for node_desired < node_min")
	}
}

func TestValidateEndpointToggles(t *testing.T) {
	cfg := validConfig()
	cfg.Cluster.EndpointPublic = false
	cfg.Cluster.EndpointPrivate = false
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error when both endpoint toggles are off")
	}
}

func TestValidateAdminPrincipalARN(t *testing.T) {
	cfg := validConfig()
	cfg.Cluster.AdminPrincipals = []string{"not-an-arn"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for malformed principal ARN")
	}
	cfg.Cluster.AdminPrincipals = []string{"arn:aws:iam::123456789012:role/platform-admin"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid principal ARN, got: %v", err)
	}
}

func TestValidateBackendProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Verify.BackendProvider = "pennylane"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for unknown backend provider")
	}
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.yaml")
	content := []byte(`
cluster:
  name: quantum-api
  region: eu-central-1
  subnet_ids: [subnet-0a1b2c3d, subnet-4e5f6a7b]
  endpoint_public: true
workload:
  image: ghcr.io/quantumgate/quantum-api:0.1.0
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	t.Setenv("QAD_IMAGE", "ghcr.io/quantumgate/quantum-api:0.2.0")
	t.Setenv("QAD_REPLICAS", "4")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Workload.Image != "ghcr.io/quantumgate/quantum-api:0.2.0" {
		t.Fatalf("env override not applied: %s", cfg.Workload.Image)
	}
	if cfg.Workload.Replicas != 4 {
		t.Fatalf("replicas override not applied: %d", cfg.Workload.Replicas)
	}
	if cfg.Discovery.PollInterval() != 15*time.Second {
		t.Fatalf("unexpected default poll interval: %s", cfg.Discovery.PollInterval())
	}
	if cfg.Discovery.MaxAttempts != 12 {
		t.Fatalf("unexpected default max attempts: %d", cfg.Discovery.MaxAttempts)
	}
}

func TestLoadExpandsEnvInContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.yaml")
	content := []byte(`
cluster:
  name: quantum-api
  region: ${QAD_TEST_REGION}
  subnet_ids: [subnet-0a1b2c3d, subnet-4e5f6a7b]
  endpoint_public: true
workload:
  image: ghcr.io/quantumgate/quantum-api:0.1.0
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	t.Setenv("QAD_TEST_REGION", "us-east-1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Cluster.Region != "us-east-1" {
		t.Fatalf("env expansion not applied: %s", cfg.Cluster.Region)
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.yaml")
	if err := os.WriteFile(path, []byte("cluster: ["), 0o600); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
