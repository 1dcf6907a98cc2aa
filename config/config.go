// Package config holds the windchime run configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultEnv is the conda environment the pipeline runs in.
const DefaultEnv = "qiime2-amplicon-2024.10"

// Config is the JSON configuration shared by all commands. Command line
// flags override the values read from a file.
type Config struct {
	DemultiplexBarcodes string `json:"demultiplex_barcodes"` // barcode table
	PipelineEnv         string `json:"pipeline_env"`
	SkipExisting        bool   `json:"skip_existing"`

	Forward  string `json:"forward"` // pooled R1
	Reverse  string `json:"reverse"` // pooled R2
	Manifest string `json:"manifest"`
	Metadata string `json:"metadata"` // QIIME2 sample metadata, optional

	Mismatches     int   `json:"mismatches"`
	Threads        int   `json:"threads"`
	Offset         int   `json:"offset"`
	ReverseOffset  int   `json:"reverse_offset"`
	Trim           bool  `json:"trim"`
	BatchSize      int   `json:"batch_size"`
	MalformedProbe int   `json:"malformed_probe"`
	MaxMalformed   int64 `json:"max_malformed"`

	OutDir string `json:"outdir"`
	Target string `json:"target"`
	Cores  int    `json:"cores"`

	DBMirror    string `json:"db_mirror"`
	S3Endpoint  string `json:"s3_endpoint"`
	S3PathStyle bool   `json:"s3_path_style"`

	MetricsFile string `json:"metrics_file"`
	Ledger      string `json:"ledger"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DemultiplexBarcodes: "barcodes.tsv",
		PipelineEnv:         DefaultEnv,
		Manifest:            "manifest.tsv",
		Threads:             1,
		BatchSize:           4096,
		MalformedProbe:      100,
		OutDir:              "windchime_out",
		Target:              "18s",
		Cores:               1,
	}
}

// ReadConfigFile reads a JSON configuration on top of the defaults.
func ReadConfigFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	c, err := configFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return c, nil
}

func configFromJSON(data []byte) (*Config, error) {
	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the values that have no sensible fallback.
func (c *Config) Validate() error {
	switch {
	case c.Mismatches < 0:
		return fmt.Errorf("mismatches must not be negative, got %d", c.Mismatches)
	case c.Offset < 0 || c.ReverseOffset < 0:
		return fmt.Errorf("barcode offsets must not be negative")
	case c.Threads < 1:
		return fmt.Errorf("threads must be at least 1, got %d", c.Threads)
	case c.BatchSize < 1:
		return fmt.Errorf("batch_size must be at least 1, got %d", c.BatchSize)
	case c.MalformedProbe < 0 || c.MaxMalformed < 0:
		return fmt.Errorf("malformed_probe and max_malformed must not be negative")
	case c.Cores < 1:
		return fmt.Errorf("cores must be at least 1, got %d", c.Cores)
	case c.Target != "16s" && c.Target != "18s":
		return fmt.Errorf("unsupported target %q, choose 16s or 18s", c.Target)
	case c.OutDir == "":
		return fmt.Errorf("outdir must not be empty")
	}
	return nil
}

// OutPath places a relative name in the output directory.
func (c *Config) OutPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.OutDir, name)
}

// LedgerPath returns the run ledger database, windchime.db in the output
// directory unless configured.
func (c *Config) LedgerPath() string {
	if c.Ledger != "" {
		return c.Ledger
	}
	return c.OutPath("windchime.db")
}
