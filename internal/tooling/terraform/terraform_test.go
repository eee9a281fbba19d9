package terraform

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hashicorp/terraform-exec/tfexec"
)

type fakeExecutor struct {
	initCalls    int
	applyCalls   int
	destroyCalls int
	applyErr     error
	initErr      error
	outputs      map[string]tfexec.OutputMeta
}

func (f *fakeExecutor) Init(_ context.Context, _ ...tfexec.InitOption) error {
	f.initCalls++
	return f.initErr
}

func (f *fakeExecutor) Apply(_ context.Context, _ ...tfexec.ApplyOption) error {
	f.applyCalls++
	return f.applyErr
}

func (f *fakeExecutor) Destroy(_ context.Context, _ ...tfexec.DestroyOption) error {
	f.destroyCalls++
	return nil
}

func (f *fakeExecutor) Output(_ context.Context, _ ...tfexec.OutputOption) (map[string]tfexec.OutputMeta, error) {
	return f.outputs, nil
}

func TestApplyReturnsFlattenedOutputs(t *testing.T) {
	fake := &fakeExecutor{
		outputs: map[string]tfexec.OutputMeta{
			"invoke_url": {Value: json.RawMessage(`"https://abc123.execute-api.eu-central-1.amazonaws.com"`)},
			"node_count": {Value: json.RawMessage(`2`)},
		},
	}
	r := &Runner{workDir: "deploy/terraform/gateway", tf: fake}

	outputs, err := r.Apply(context.Background(), map[string]string{"backend_host": "alb.example.com"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if fake.initCalls != 1 || fake.applyCalls != 1 {
		t.Fatalf("expected exactly one init and one apply, got %d/%d", fake.initCalls, fake.applyCalls)
	}
	if outputs["invoke_url"] != "https://abc123.execute-api.eu-central-1.amazonaws.com" {
		t.Fatalf("string output not unquoted: %q", outputs["invoke_url"])
	}
	if outputs["node_count"] != "2" {
		t.Fatalf("non-string output not preserved: %q", outputs["node_count"])
	}
}

func TestApplyPropagatesToolError(t *testing.T) {
	underlying := errors.New("Error: creating EKS Cluster: AccessDeniedException")
	fake := &fakeExecutor{applyErr: underlying}
	r := &Runner{workDir: "deploy/terraform/cluster", tf: fake}

	_, err := r.Apply(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected apply error")
	}
	if !errors.Is(err, underlying) {
		t.Fatalf("underlying error not wrapped: %v", err)
	}
	if !strings.Contains(err.Error(), "deploy/terraform/cluster") {
		t.Fatalf("error does not name the layer dir: %v", err)
	}
}

func TestApplyStopsAfterInitError(t *testing.T) {
	fake := &fakeExecutor{initErr: errors.New("backend init failed")}
	r := &Runner{workDir: "deploy/terraform/cluster", tf: fake}

	if _, err := r.Apply(context.Background(), nil); err == nil {
		t.Fatalf("expected init error")
	}
	if fake.applyCalls != 0 {
		t.Fatalf("apply must not run after failed init")
	}
}

func TestDestroyRunsInitFirst(t *testing.T) {
	fake := &fakeExecutor{}
	r := &Runner{workDir: "deploy/terraform/gateway", tf: fake}

	if err := r.Destroy(context.Background(), map[string]string{"stage_name": "$default"}); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if fake.initCalls != 1 || fake.destroyCalls != 1 {
		t.Fatalf("expected one init and one destroy, got %d/%d", fake.initCalls, fake.destroyCalls)
	}
}

func TestSortedVarPairsDeterministic(t *testing.T) {
	pairs := sortedVarPairs(map[string]string{
		"region":       "eu-central-1",
		"cluster_name": "quantum-api",
	})
	if len(pairs) != 2 || pairs[0] != "cluster_name=quantum-api" || pairs[1] != "region=eu-central-1" {
		t.Fatalf("unexpected pairs: %v", pairs)
	}
}

func TestListVar(t *testing.T) {
	if got := ListVar([]string{"subnet-0a1b2c3d", "subnet-4e5f6a7b"}); got != `["subnet-0a1b2c3d","subnet-4e5f6a7b"]` {
		t.Fatalf("unexpected list var: %s", got)
	}
	if got := ListVar(nil); got != "[]" {
		t.Fatalf("unexpected empty list var: %s", got)
	}
}
