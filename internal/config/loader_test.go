package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileParsesToml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pacboot.toml")
	body := `
journal_path = "/boot/pacboot.journal"
t2_score = 4
t3_score = 7
tick_interval_seconds = 15
log_level = "debug"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.JournalPath != "/boot/pacboot.journal" {
		t.Fatalf("JournalPath = %q", c.JournalPath)
	}
	if c.T2Score != 4 || c.T3Score != 7 {
		t.Fatalf("T2Score/T3Score = %d/%d, want 4/7", c.T2Score, c.T3Score)
	}
	if c.TickInterval != 15*time.Second {
		t.Fatalf("TickInterval = %v, want 15s", c.TickInterval)
	}
	if c.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", c.LogLevel)
	}
}

func TestLoadFileMissingReturnsError(t *testing.T) {
	if _, err := LoadFile("/nonexistent/pacboot.toml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadFileUnsetFieldsStayZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pacboot.toml")
	if err := os.WriteFile(path, []byte(`log_level = "warn"`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.JournalPath != "" {
		t.Fatalf("JournalPath = %q, want empty (not set in file)", c.JournalPath)
	}
	if c.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q, want warn", c.LogLevel)
	}
}

func TestLoadEnvReadsPrefixedVariables(t *testing.T) {
	t.Setenv("PAC_JOURNAL_PATH", "/env/journal")
	t.Setenv("PAC_T2_SCORE", "8")
	t.Setenv("PAC_TICK_INTERVAL_SECONDS", "20")

	c := LoadEnv()
	if c.JournalPath != "/env/journal" {
		t.Fatalf("JournalPath = %q, want /env/journal", c.JournalPath)
	}
	if c.T2Score != 8 {
		t.Fatalf("T2Score = %d, want 8", c.T2Score)
	}
	if c.TickInterval != 20*time.Second {
		t.Fatalf("TickInterval = %v, want 20s", c.TickInterval)
	}
}

func TestLoadEnvUnsetVariablesStayZero(t *testing.T) {
	c := LoadEnv()
	if c.JournalPath != "" {
		t.Fatalf("JournalPath = %q, want empty", c.JournalPath)
	}
	if c.T2Score != 0 {
		t.Fatalf("T2Score = %d, want 0", c.T2Score)
	}
}
