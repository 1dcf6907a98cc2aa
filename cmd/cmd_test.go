package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shenwei356/xopen"
)

func init() {
	logSetup = func(string, string) (io.Writer, error) { return nil, nil }
}

func writeFile(t *testing.T, filename, content string) string {
	t.Helper()
	w, err := xopen.Wopen(filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteString(content); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return filename
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	configFile := writeFile(t, filepath.Join(dir, "windchime.json"),
		`{"mismatches": 1, "threads": 2, "outdir": "from-file", "target": "16s"}`)

	cfg, err := loadConfig("demux", []string{"-threads", "3", "-configfile", configFile}, DemuxHelp, bindDemux)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Threads != 3 {
		t.Errorf("flag must override the file, got threads %d", cfg.Threads)
	}
	if cfg.Mismatches != 1 || cfg.OutDir != "from-file" || cfg.Target != "16s" {
		t.Errorf("file values lost: %+v", cfg)
	}
	if cfg.BatchSize != 4096 {
		t.Errorf("default batch size lost, got %d", cfg.BatchSize)
	}

	if _, err := loadConfig("demux", []string{"-threads", "0"}, DemuxHelp, bindDemux); err == nil {
		t.Error("expected a validation error")
	}
	if _, err := loadConfig("demux", []string{"-help"}, DemuxHelp, bindDemux); !IsHelp(err) {
		t.Errorf("expected the help error, got %v", err)
	}
	if _, err := loadConfig("demux", []string{"extra"}, DemuxHelp, bindDemux); err == nil {
		t.Error("expected an error for a positional argument")
	}
}

func TestDemuxAndHistory(t *testing.T) {
	dir := t.TempDir()
	var fwd, rev strings.Builder
	for i, seq := range []string{"ACGTGGGG", "TTTTGGGG", "ACGTCCCC", "CCCCGGGG"} {
		fmt.Fprintf(&fwd, "@p%d/1\n%s\n+\n%s\n", i, seq, strings.Repeat("I", len(seq)))
		fmt.Fprintf(&rev, "@p%d/2\nAAAA\n+\nIIII\n", i)
	}
	forward := writeFile(t, filepath.Join(dir, "R1.fastq.gz"), fwd.String())
	reverse := writeFile(t, filepath.Join(dir, "R2.fastq.gz"), rev.String())
	barcodes := writeFile(t, filepath.Join(dir, "barcodes.tsv"), "sample_id\tbarcode\nS1\tACGT\nS2\tTTTT\n")
	out := filepath.Join(dir, "out")

	err := demuxCommand([]string{
		"-forward", forward, "-reverse", reverse, "-barcodes", barcodes,
		"-outdir", out, "-metrics-file", "demux.prom",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"manifest.tsv", "windchime.db", "demux.prom", "demultiplexed/S1_L001_R1_001.fastq.gz"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Error(err)
		}
	}

	var buf bytes.Buffer
	if err := historyCommand([]string{"-outdir", out}, &buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "demux") || !strings.Contains(lines[1], "completed") {
		t.Fatalf("unexpected history:\n%s", buf.String())
	}
	runID := strings.Fields(lines[1])[0]

	buf.Reset()
	if err := historyCommand([]string{"-outdir", out, "-run", runID}, &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "S1") || !strings.Contains(buf.String(), "S2") {
		t.Errorf("sample counts missing:\n%s", buf.String())
	}
}

func TestDemuxFailureIsRecorded(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	err := demuxCommand([]string{
		"-forward", filepath.Join(dir, "missing_R1.fastq.gz"),
		"-reverse", filepath.Join(dir, "missing_R2.fastq.gz"),
		"-barcodes", writeFile(t, filepath.Join(dir, "barcodes.tsv"), "sample_id\tbarcode\nS1\tACGT\n"),
		"-outdir", out,
	})
	if err == nil {
		t.Fatal("expected an error for missing inputs")
	}
	var buf bytes.Buffer
	if err := historyCommand([]string{"-outdir", out}, &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "failed") {
		t.Errorf("expected a failed run:\n%s", buf.String())
	}
}
