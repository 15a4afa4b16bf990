package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestSessionConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if got := cfg.Session.AutosaveInterval(); got != 30*time.Second {
		t.Errorf("autosave interval = %v, want 30s", got)
	}
	if !cfg.Session.BackupEnabled {
		t.Error("backups should be enabled by default")
	}
	if cfg.Session.BackupRetentionCount != 10 {
		t.Errorf("retention count = %d, want 10", cfg.Session.BackupRetentionCount)
	}
}

func TestSessionConfig_NegativeInterval(t *testing.T) {
	cfg := SessionConfig{AutosaveIntervalSeconds: -5}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative interval should fail validation")
	}
}

func TestSessionConfig_FallbackEncoding(t *testing.T) {
	cfg := SessionConfig{FallbackEncoding: "windows-1256"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("known encoding should pass: %v", err)
	}

	cfg.FallbackEncoding = "ebcdic"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown encoding should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}
