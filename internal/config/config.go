// Package config defines the on-disk configuration format shared by the
// client and node binaries and the merge-under-flags rule spec.md §6
// requires: config file supplies defaults, explicit CLI flags win.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// NodeSpec pairs a worker address with its declared slot count, the unit
// the dispatcher schedules in (spec.md §3, WorkerEndpoint). Address is a
// bare host:port; internal/transport always speaks plain HTTP/1.1 to it,
// so no scheme is accepted here.
type NodeSpec struct {
	Address string `toml:"address"`
	Slots   int    `toml:"slots"`
}

// ClientFile is the config-file shape for the client binary.
type ClientFile struct {
	InputFile       string     `toml:"input_file"`
	OutputFile      string     `toml:"output_file"`
	Nodes           []NodeSpec `toml:"nodes"`
	EncoderParams   string     `toml:"encoder_params"`
	TempDir         string     `toml:"temp_dir"`
	SegmentDuration float64    `toml:"segment_duration"`
	KafkaBrokers    []string   `toml:"kafka_brokers"`
	RedisAddr       string     `toml:"redis_addr"`
	JobHistoryPath  string     `toml:"job_history_path"`
	LogLevel        string     `toml:"log_level"`
	LogFormat       string     `toml:"log_format"`
}

// NodeFile is the config-file shape for the node binary.
type NodeFile struct {
	Listen    string `toml:"listen"`
	TempDir   string `toml:"temp_dir"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	MaxInFlight int  `toml:"max_in_flight"`
}

// DefaultClientFile returns the zero-value defaults applied before a config
// file (if any) and CLI flags are layered on top.
func DefaultClientFile() ClientFile {
	return ClientFile{
		SegmentDuration: 10,
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// DefaultNodeFile returns the zero-value defaults for the node binary.
func DefaultNodeFile() NodeFile {
	return NodeFile{
		Listen:      ":7776",
		LogLevel:    "info",
		LogFormat:   "console",
		MaxInFlight: 0, // 0 == unbounded (OS/CPU self-limits, per spec.md §5)
	}
}

// LoadClientFile reads and strictly decodes a client config file. Unknown
// keys are rejected per spec.md §6 ("Unknown keys are rejected").
func LoadClientFile(path string) (ClientFile, error) {
	cfg := DefaultClientFile()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// LoadNodeFile reads and strictly decodes a node config file.
func LoadNodeFile(path string) (NodeFile, error) {
	cfg := DefaultNodeFile()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}
