package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/quantumgate/quantum-api-deploy/internal/config"
	"github.com/quantumgate/quantum-api-deploy/internal/discovery"
)

// The backend hop is always plaintext HTTP on port 80: TLS terminates at
// the gateway and the ALB carries no certificate.
const backendPort = 80

// applier is satisfied by terraform.Runner.
type applier interface {
	Apply(ctx context.Context, vars map[string]string) (map[string]string, error)
}

// IntegrationTarget builds the proxy integration URI for a discovered
// backend address. The {proxy} placeholder forwards the matched path
// remainder verbatim.
func IntegrationTarget(host string) string {
	return fmt.Sprintf("http://%s:%d/{proxy}", host, backendPort)
}

// Vars builds the Terraform variable set for the gateway layer. The backend
// host is passed through on every apply so a replaced load balancer updates
// the integration instead of leaving it stale.
func Vars(cfg config.GatewayConfig, region, host string) map[string]string {
	return map[string]string{
		"backend_host":       host,
		"region":             region,
		"stage_name":         cfg.StageName,
		"log_retention_days": strconv.Itoa(cfg.LogRetentionDays),
	}
}

// Provision applies the gateway layer bound to the discovered backend
// address and returns the public invoke URL. An unvalidated or empty
// address fails before any apply runs.
func Provision(ctx context.Context, tf applier, cfg config.GatewayConfig, region, host string) (string, error) {
	if err := discovery.ValidateHostname(host); err != nil {
		return "", fmt.Errorf("refusing to bind gateway: %w", err)
	}

	outputs, err := tf.Apply(ctx, Vars(cfg, region, host))
	if err != nil {
		return "", err
	}

	invokeURL := strings.TrimSpace(outputs["invoke_url"])
	if invokeURL == "" {
		return "", fmt.Errorf("gateway layer applied but invoke_url output is empty")
	}
	parsed, err := url.Parse(invokeURL)
	if err != nil || parsed.Scheme != "https" || parsed.Host == "" {
		return "", fmt.Errorf("gateway invoke_url %q is not a https URL", invokeURL)
	}
	return strings.TrimSuffix(invokeURL, "/"), nil
}
