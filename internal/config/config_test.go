package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.Listen.Addr != "0.0.0.0:12345" {
		t.Errorf("default addr = %q, want %q", cfg.Listen.Addr, "0.0.0.0:12345")
	}
	if cfg.Limits.MaxFileSize != 100*1024*1024 {
		t.Errorf("default max_file_size = %d, want %d", cfg.Limits.MaxFileSize, 100*1024*1024)
	}
	if cfg.Limits.MaxInlineFileSize != 200*1024 {
		t.Errorf("default max_inline_file_size = %d, want %d", cfg.Limits.MaxInlineFileSize, 200*1024)
	}
	if cfg.Limits.SendBuffer != 256 {
		t.Errorf("default send_buffer = %d, want 256", cfg.Limits.SendBuffer)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default logging.level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("/nonexistent/chatrelay.toml")
	if err != nil {
		t.Fatalf("Load non-existent file should use defaults, got error: %v", err)
	}
	if cfg.Listen.Addr != "0.0.0.0:12345" {
		t.Errorf("addr = %q, want default", cfg.Listen.Addr)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatrelay.toml")
	content := `
[listen]
addr = "127.0.0.1:9000"

[limits]
max_file_size = 1048576

[logging]
level = "debug"
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen.Addr != "127.0.0.1:9000" {
		t.Errorf("addr = %q, want 127.0.0.1:9000", cfg.Listen.Addr)
	}
	if cfg.Limits.MaxFileSize != 1048576 {
		t.Errorf("max_file_size = %d, want 1048576", cfg.Limits.MaxFileSize)
	}
	// Unset fields keep their defaults.
	if cfg.Limits.SendBuffer != 256 {
		t.Errorf("send_buffer = %d, want default 256", cfg.Limits.SendBuffer)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoad_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatrelay.toml")
	if err := os.WriteFile(path, []byte("listen = {"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load of malformed TOML should fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATRELAY_LISTEN_ADDR", "0.0.0.0:2323")
	t.Setenv("CHATRELAY_LIMITS_MAX_FILE_SIZE", "2048")
	t.Setenv("CHATRELAY_LOGGING_LEVEL", "warn")

	cfg, err := Load("/nonexistent/chatrelay.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen.Addr != "0.0.0.0:2323" {
		t.Errorf("addr = %q, want env override", cfg.Listen.Addr)
	}
	if cfg.Limits.MaxFileSize != 2048 {
		t.Errorf("max_file_size = %d, want 2048", cfg.Limits.MaxFileSize)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q, want warn", cfg.Logging.Level)
	}
}
