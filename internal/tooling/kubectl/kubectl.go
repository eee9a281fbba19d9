package kubectl

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Client shells out to kubectl against one namespace. Kubeconfig is optional;
// empty means the ambient kubeconfig (CI exports it after cluster provision).
type Client struct {
	Bin        string
	Kubeconfig string
	Namespace  string
}

var runCommandFn = runCommand

func NewClient(kubeconfig, namespace string) *Client {
	return &Client{Bin: "kubectl", Kubeconfig: kubeconfig, Namespace: namespace}
}

// ApplyDir applies every manifest in dir. kubectl apply is a no-op for
// already-converged objects.
func (c *Client) ApplyDir(ctx context.Context, dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("manifest dir is empty")
	}
	_, err := c.run(ctx, "", "apply", "-f", dir)
	return err
}

// ApplyManifest applies a single rendered manifest from stdin.
func (c *Client) ApplyManifest(ctx context.Context, manifest string) error {
	if strings.TrimSpace(manifest) == "" {
		return fmt.Errorf("manifest is empty")
	}
	_, err := c.run(ctx, manifest, "apply", "-f", "-")
	return err
}

// SetImage points the deployment's container at the given image reference.
func (c *Client) SetImage(ctx context.Context, deployment, container, image string) error {
	_, err := c.run(ctx, "", "set", "image", "deployment/"+deployment, container+"="+image)
	return err
}

// Scale sets the deployment replica count.
func (c *Client) Scale(ctx context.Context, deployment string, replicas int) error {
	_, err := c.run(ctx, "", "scale", "deployment/"+deployment, "--replicas="+strconv.Itoa(replicas))
	return err
}

// RolloutStatus blocks until the deployment reaches its desired replica
// count or the timeout elapses. Timeout is a fatal error, not a pass.
func (c *Client) RolloutStatus(ctx context.Context, deployment string, timeout time.Duration) error {
	_, err := c.run(ctx, "", "rollout", "status", "deployment/"+deployment, "--timeout="+timeout.String())
	return err
}

// IngressHostname reads the load balancer hostname currently assigned to the
// ingress. Empty output means the cloud controller has not provisioned the
// ALB yet.
func (c *Client) IngressHostname(ctx context.Context, ingress string) (string, error) {
	out, err := c.run(ctx, "", "get", "ingress", ingress,
		"-o", "jsonpath={.status.loadBalancer.ingress[0].hostname}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) run(ctx context.Context, stdin string, args ...string) (string, error) {
	full := make([]string, 0, len(args)+4)
	if c.Kubeconfig != "" {
		full = append(full, "--kubeconfig", c.Kubeconfig)
	}
	if c.Namespace != "" {
		full = append(full, "--namespace", c.Namespace)
	}
	full = append(full, args...)

	bin := c.Bin
	if bin == "" {
		bin = "kubectl"
	}
	return runCommandFn(ctx, bin, full, stdin)
}

func runCommand(ctx context.Context, bin string, args []string, stdin string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail != "" {
			return stdout.String(), fmt.Errorf("%s %s: %w: %s", bin, strings.Join(args, " "), err, detail)
		}
		return stdout.String(), fmt.Errorf("%s %s: %w", bin, strings.Join(args, " "), err)
	}
	return stdout.String(), nil
}
