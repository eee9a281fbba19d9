package secrets

import (
	"errors"
	"strings"
	"testing"
)

func withFakeSources(t *testing.T, env map[string]string, ring map[string]string) {
	t.Helper()
	origEnv := getenvFn
	origRing := keyringGetFn
	t.Cleanup(func() {
		getenvFn = origEnv
		keyringGetFn = origRing
	})
	getenvFn = func(key string) string { return env[key] }
	keyringGetFn = func(service, key string) (string, error) {
		if service != keyringService {
			return "", errors.New("unknown service")
		}
		v, ok := ring[key]
		if !ok {
			return "", errors.New("secret not found in keyring")
		}
		return v, nil
	}
}

func TestResolvePrefersEnvironment(t *testing.T) {
	withFakeSources(t,
		map[string]string{"IBM_QUANTUM_TOKEN": "env-token"},
		map[string]string{"IBM_QUANTUM_TOKEN": "ring-token"},
	)

	values, err := Resolve([]string{"IBM_QUANTUM_TOKEN"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if values["IBM_QUANTUM_TOKEN"] != "env-token" {
		t.Fatalf("environment should win: %q", values["IBM_QUANTUM_TOKEN"])
	}
}

func TestResolveFallsBackToKeyring(t *testing.T) {
	withFakeSources(t,
		map[string]string{},
		map[string]string{"AWS_SECRET_ACCESS_KEY": "ring-secret"},
	)

	values, err := Resolve([]string{"AWS_SECRET_ACCESS_KEY"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if values["AWS_SECRET_ACCESS_KEY"] != "ring-secret" {
		t.Fatalf("keyring fallback not applied: %q", values["AWS_SECRET_ACCESS_KEY"])
	}
}

func TestResolveMissingSecretNamesTheKey(t *testing.T) {
	withFakeSources(t, map[string]string{}, map[string]string{})

	_, err := Resolve([]string{"IBM_QUANTUM_TOKEN"})
	if err == nil || !strings.Contains(err.Error(), "IBM_QUANTUM_TOKEN") {
		t.Fatalf("expected error naming the missing key, got: %v", err)
	}
}

func TestRenderManifest(t *testing.T) {
	manifest, err := RenderManifest("quantum-api-secrets", "quantum-api", map[string]string{
		"IBM_QUANTUM_TOKEN": "tok-123",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"kind: Secret",
		"name: quantum-api-secrets",
		"namespace: quantum-api",
		"type: Opaque",
		"IBM_QUANTUM_TOKEN: tok-123",
	} {
		if !strings.Contains(manifest, want) {
			t.Fatalf("manifest missing %q:\n%s", want, manifest)
		}
	}
}

func TestRenderManifestRejectsEmptyData(t *testing.T) {
	if _, err := RenderManifest("quantum-api-secrets", "quantum-api", nil); err == nil {
		t.Fatalf("expected error for empty secret data")
	}
}

func TestRenderManifestDeterministic(t *testing.T) {
	data := map[string]string{
		"B_KEY": "2",
		"A_KEY": "1",
		"C_KEY": "3",
	}
	first, err := RenderManifest("s", "ns", data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := RenderManifest("s", "ns", data)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if again != first {
			t.Fatalf("manifest rendering not deterministic:\n%s\nvs\n%s", first, again)
		}
	}
}
