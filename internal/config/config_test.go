package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ekifun/transcodefleet/internal/config"
)

func TestLoadClientFileAppliesDefaultsWhenPathEmpty(t *testing.T) {
	cfg, err := config.LoadClientFile("")
	if err != nil {
		t.Fatalf("LoadClientFile(\"\") returned error: %v", err)
	}
	if cfg.SegmentDuration != 10 {
		t.Fatalf("expected default segment duration 10, got %v", cfg.SegmentDuration)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.LogLevel)
	}
}

func TestLoadClientFileParsesNodesTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.toml")
	contents := `
input_file = "in.mp4"
output_file = "out.mp4"
segment_duration = 6

[[nodes]]
address = "10.0.0.1:7776"
slots = 4

[[nodes]]
address = "10.0.0.2:7776"
slots = 2
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.LoadClientFile(path)
	if err != nil {
		t.Fatalf("LoadClientFile returned error: %v", err)
	}
	if len(cfg.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(cfg.Nodes))
	}
	if cfg.Nodes[0].Address != "10.0.0.1:7776" || cfg.Nodes[0].Slots != 4 {
		t.Fatalf("unexpected first node: %+v", cfg.Nodes[0])
	}
	if cfg.SegmentDuration != 6 {
		t.Fatalf("expected segment duration 6, got %v", cfg.SegmentDuration)
	}
}

func TestLoadClientFileRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.toml")
	if err := os.WriteFile(path, []byte("not_a_real_field = true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := config.LoadClientFile(path); err == nil {
		t.Fatal("expected an error for an unknown config key")
	}
}

func TestLoadNodeFileDefaultsToUnboundedConcurrency(t *testing.T) {
	cfg, err := config.LoadNodeFile("")
	if err != nil {
		t.Fatalf("LoadNodeFile(\"\") returned error: %v", err)
	}
	if cfg.MaxInFlight != 0 {
		t.Fatalf("expected MaxInFlight 0 (unbounded), got %d", cfg.MaxInFlight)
	}
	if cfg.Listen != ":7776" {
		t.Fatalf("expected default listen :7776, got %q", cfg.Listen)
	}
}
