package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEnv(t *testing.T) {
	unsetEnv(t, "FOO")
	unsetEnv(t, "QUOTED")
	unsetEnv(t, "SINGLE")
	unsetEnv(t, "EMPTY")
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "" +
		"# comment\n" +
		"FOO=bar\n" +
		"QUOTED=\"baz\"\n" +
		"SINGLE='qux'\n" +
		"EMPTY=\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("FOO"); got != "bar" {
		t.Fatalf("FOO expected bar, got %q", got)
	}
	if got := os.Getenv("QUOTED"); got != "baz" {
		t.Fatalf("QUOTED expected baz, got %q", got)
	}
	if got := os.Getenv("SINGLE"); got != "qux" {
		t.Fatalf("SINGLE expected qux, got %q", got)
	}
	if got := os.Getenv("EMPTY"); got != "" {
		t.Fatalf("EMPTY expected empty, got %q", got)
	}
}

func TestLoadEnvDoesNotOverrideExisting(t *testing.T) {
	t.Setenv("FOO", "existing")
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("FOO=bar\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("FOO"); got != "existing" {
		t.Fatalf("FOO expected existing, got %q", got)
	}
}

func TestLoadEnvStripsExport(t *testing.T) {
	unsetEnv(t, "EXPORTED")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("export EXPORTED=1\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("EXPORTED"); got != "1" {
		t.Fatalf("EXPORTED expected 1, got %q", got)
	}
}

func TestLoadSecretsReportsMissing(t *testing.T) {
	for _, key := range []string{"HL_PRIVATE_KEY", "HL_WALLET_ADDRESS", "AEVO_API_KEY", "AEVO_API_SECRET", "AEVO_SIGNING_KEY", "WALLET_PRIVATE_KEY", "AEVO_WALLET_ADDRESS"} {
		unsetEnv(t, key)
	}
	t.Setenv("HL_PRIVATE_KEY", "0xabc")
	t.Setenv("HL_WALLET_ADDRESS", "0xwallet")
	secrets, err := LoadSecrets()
	if !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
	if !strings.Contains(err.Error(), "AEVO_API_KEY") {
		t.Fatalf("expected AEVO_API_KEY in error, got %v", err)
	}
	if secrets.WalletPrivateKey != "0xabc" {
		t.Fatalf("expected wallet key fallback, got %q", secrets.WalletPrivateKey)
	}
	if secrets.AevoWallet != "0xwallet" {
		t.Fatalf("expected aevo wallet fallback, got %q", secrets.AevoWallet)
	}
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	if old, ok := os.LookupEnv(key); ok {
		t.Cleanup(func() { _ = os.Setenv(key, old) })
	} else {
		t.Cleanup(func() { _ = os.Unsetenv(key) })
	}
	_ = os.Unsetenv(key)
}
