package terraform

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"

	"github.com/hashicorp/terraform-exec/tfexec"
)

// executor is the subset of tfexec.Terraform the pipeline drives.
type executor interface {
	Init(ctx context.Context, opts ...tfexec.InitOption) error
	Apply(ctx context.Context, opts ...tfexec.ApplyOption) error
	Destroy(ctx context.Context, opts ...tfexec.DestroyOption) error
	Output(ctx context.Context, opts ...tfexec.OutputOption) (map[string]tfexec.OutputMeta, error)
}

// Runner applies one Terraform layer (a working directory) idempotently.
type Runner struct {
	workDir string
	tf      executor
}

func NewRunner(workDir string) (*Runner, error) {
	tfPath, err := exec.LookPath("terraform")
	if err != nil {
		return nil, fmt.Errorf("terraform not found in PATH: %w", err)
	}
	tf, err := tfexec.NewTerraform(workDir, tfPath)
	if err != nil {
		return nil, fmt.Errorf("create terraform executor for %s: %w", workDir, err)
	}
	return &Runner{workDir: workDir, tf: tf}, nil
}

// Apply runs init + apply with the given variables and returns the layer's
// outputs flattened to strings. Re-applying a converged layer is a no-op.
func (r *Runner) Apply(ctx context.Context, vars map[string]string) (map[string]string, error) {
	if err := r.tf.Init(ctx); err != nil {
		return nil, fmt.Errorf("terraform init in %s: %w", r.workDir, err)
	}

	applyOpts := make([]tfexec.ApplyOption, 0, len(vars))
	for _, kv := range sortedVarPairs(vars) {
		applyOpts = append(applyOpts, tfexec.Var(kv))
	}
	if err := r.tf.Apply(ctx, applyOpts...); err != nil {
		return nil, fmt.Errorf("terraform apply in %s: %w", r.workDir, err)
	}

	metas, err := r.tf.Output(ctx)
	if err != nil {
		return nil, fmt.Errorf("terraform output in %s: %w", r.workDir, err)
	}
	return flattenOutputs(metas), nil
}

// Destroy runs init + destroy with the given variables.
func (r *Runner) Destroy(ctx context.Context, vars map[string]string) error {
	if err := r.tf.Init(ctx); err != nil {
		return fmt.Errorf("terraform init in %s: %w", r.workDir, err)
	}
	destroyOpts := make([]tfexec.DestroyOption, 0, len(vars))
	for _, kv := range sortedVarPairs(vars) {
		destroyOpts = append(destroyOpts, tfexec.Var(kv))
	}
	if err := r.tf.Destroy(ctx, destroyOpts...); err != nil {
		return fmt.Errorf("terraform destroy in %s: %w", r.workDir, err)
	}
	return nil
}

func sortedVarPairs(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+vars[k])
	}
	return pairs
}

func flattenOutputs(metas map[string]tfexec.OutputMeta) map[string]string {
	outputs := make(map[string]string, len(metas))
	for key, meta := range metas {
		var s string
		if err := json.Unmarshal(meta.Value, &s); err == nil {
			outputs[key] = s
			continue
		}
		outputs[key] = string(meta.Value)
	}
	return outputs
}

// ListVar encodes a string slice as an HCL list literal for -var flags.
func ListVar(values []string) string {
	if values == nil {
		return "[]"
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}
