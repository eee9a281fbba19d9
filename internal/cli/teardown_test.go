package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
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
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestTeardownDestroysGatewayBeforeCluster(t *testing.T) {
	var destroyed []string
	origDestroy := destroyLayerFn
	origConfirm := confirmFn
	t.Cleanup(func() {
		destroyLayerFn = origDestroy
		confirmFn = origConfirm
	})
	destroyLayerFn = func(_ context.Context, dir string, _ map[string]string) error {
		destroyed = append(destroyed, dir)
		return nil
	}
	confirmFn = func(_ string) (bool, error) {
		t.Fatal("confirmation must not run with --auto-approve")
		return false, nil
	}

	cmd := newRootCmd()
	cmd.SetArgs([]string{"teardown", "--config", writeTestConfig(t), "--auto-approve"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("teardown: %v", err)
	}

	if len(destroyed) != 2 {
		t.Fatalf("expected 2 layer destroys, got %v", destroyed)
	}
	if destroyed[0] != "deploy/terraform/gateway" || destroyed[1] != "deploy/terraform/cluster" {
		t.Fatalf("wrong destroy order: %v", destroyed)
	}
}

func TestTeardownDeclinedConfirmation(t *testing.T) {
	origDestroy := destroyLayerFn
	origConfirm := confirmFn
	t.Cleanup(func() {
		destroyLayerFn = origDestroy
		confirmFn = origConfirm
	})
	destroyLayerFn = func(_ context.Context, dir string, _ map[string]string) error {
		t.Fatalf("destroy must not run after declined confirmation (dir %s)", dir)
		return nil
	}
	confirmFn = func(_ string) (bool, error) { return false, nil }

	cmd := newRootCmd()
	cmd.SetArgs([]string{"teardown", "--config", writeTestConfig(t)})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("declined teardown should not error: %v", err)
	}
}
