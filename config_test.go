package poe

import (
	"os"
	"testing"
)

// TestResolveAccessKeyPrecedence exercises the lookup order using the
// unexported, length-unchecked resolveAccessKey: precedence and length
// validation are independent concerns, tested separately.
func TestResolveAccessKeyPrecedence(t *testing.T) {
	os.Unsetenv("POE_ACCESS_KEY")
	os.Unsetenv("POE_API_KEY")

	if _, err := resolveAccessKey("", ""); err == nil {
		t.Fatalf("expected error when nothing is set")
	}

	key, err := resolveAccessKey("", "legacy")
	if err != nil || key != "legacy" {
		t.Fatalf("expected legacy api_key fallback, got %q err=%v", key, err)
	}

	os.Setenv("POE_API_KEY", "from-env-api-key")
	defer os.Unsetenv("POE_API_KEY")
	key, err = resolveAccessKey("", "")
	if err != nil || key != "from-env-api-key" {
		t.Fatalf("expected POE_API_KEY fallback, got %q err=%v", key, err)
	}

	key, err = resolveAccessKey("", "legacy")
	if err != nil || key != "legacy" {
		t.Fatalf("expected legacy api_key to win over POE_API_KEY, got %q", key)
	}

	os.Setenv("POE_ACCESS_KEY", "from-env-access-key")
	defer os.Unsetenv("POE_ACCESS_KEY")
	key, err = resolveAccessKey("", "legacy")
	if err != nil || key != "from-env-access-key" {
		t.Fatalf("expected POE_ACCESS_KEY to win over legacy api_key, got %q", key)
	}

	key, err = resolveAccessKey("direct", "legacy")
	if err != nil || key != "direct" {
		t.Fatalf("expected direct argument to win over everything, got %q", key)
	}
}

func TestResolveAccessKeyRejectsWrongLength(t *testing.T) {
	os.Unsetenv("POE_ACCESS_KEY")
	os.Unsetenv("POE_API_KEY")

	if _, err := ResolveAccessKey("too-short", ""); err == nil {
		t.Fatalf("expected error for a key that isn't %d characters", AccessKeyLength)
	}

	valid := "abcdefghijklmnopqrstuvwxyz012345" // 32 characters
	if len(valid) != AccessKeyLength {
		t.Fatalf("test fixture itself isn't %d characters", AccessKeyLength)
	}
	key, err := ResolveAccessKey(valid, "")
	if err != nil || key != valid {
		t.Fatalf("expected a %d-character key to resolve cleanly, got %q err=%v", AccessKeyLength, key, err)
	}
}

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig("")
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.ManifestPath != "bots.yaml" {
		t.Fatalf("expected default manifest path, got %q", cfg.ManifestPath)
	}
}
