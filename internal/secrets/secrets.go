package secrets

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// keyringService names this tool's entries in the OS keyring (local runs;
// CI always injects via environment).
const keyringService = "quantum-api-deploy"

var (
	getenvFn     = os.Getenv
	keyringGetFn = keyring.Get
)

// Resolve returns a value for every requested key, environment first, OS
// keyring second. Credential material never lives in the config file.
func Resolve(keys []string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("secret key name is empty")
		}
		if v := getenvFn(key); v != "" {
			values[key] = v
			continue
		}
		v, err := keyringGetFn(keyringService, key)
		if err != nil || v == "" {
			return nil, fmt.Errorf("secret %s not found: set the %s environment variable or store it in the OS keyring under service %q", key, key, keyringService)
		}
		values[key] = v
	}
	return values, nil
}

type secretManifest struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   secretMetadata    `yaml:"metadata"`
	Type       string            `yaml:"type"`
	StringData map[string]string `yaml:"stringData"`
}

type secretMetadata struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
}

// RenderManifest produces an Opaque Secret manifest for kubectl apply.
// Applying the same values again is a no-op on the cluster.
func RenderManifest(name, namespace string, data map[string]string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("secret name is empty")
	}
	if strings.TrimSpace(namespace) == "" {
		return "", fmt.Errorf("secret namespace is empty")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("secret %s has no data", name)
	}

	manifest := secretManifest{
		APIVersion: "v1",
		Kind:       "Secret",
		Metadata:   secretMetadata{Name: name, Namespace: namespace},
		Type:       "Opaque",
		StringData: data,
	}
	out, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("render secret %s: %w", name, err)
	}
	return string(out), nil
}
