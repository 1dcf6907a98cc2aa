package demux

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// failingTarget places a link to /dev/full at path, so every write that
// reaches the file fails with ENOSPC.
func failingTarget(t *testing.T, path string) {
	t.Helper()
	f, err := os.OpenFile("/dev/full", os.O_WRONLY, 0)
	if err != nil {
		t.Skip("/dev/full not available:", err)
	}
	f.Close()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/dev/full", path); err != nil {
		t.Fatal(err)
	}
}

func TestFastqStreamReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.fastq.gz")
	failingTarget(t, path)
	stream, err := createStream(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.out.WriteString(fastqRecord("r1", "ACGTACGT")); err != nil {
		t.Fatal(err)
	}
	err = stream.close()
	var outErr *OutputError
	if !errors.As(err, &outErr) || outErr.Path != path {
		t.Fatalf("expected an output error for %s, got %v", path, err)
	}
}

func TestDemultiplexOutputFailure(t *testing.T) {
	entries := []BarcodeEntry{{"S1", "ACGT", ""}, {"S2", "TTTT", ""}}
	rng := rand.New(rand.NewSource(3))
	tests := []struct {
		name  string
		pairs int
	}{
		{"on close", 4},
		{"while writing", 20000}, // more than one compression block
	}
	for _, test := range tests {
		pairs := make([][2]string, test.pairs)
		for i := range pairs {
			prefix := entries[i%2].Barcode
			pairs[i] = [2]string{prefix + string(randomSeq(rng, 146, "ACGT")), string(randomSeq(rng, 150, "ACGT"))}
		}
		r := newTestRun(t, entries, pairs)
		opts := r.options("out", 0, 2)
		fwd, _ := OutputNames("S1")
		failingTarget(t, filepath.Join(opts.OutDir, ".partial-"+opts.RunTag+"."+fwd))

		_, err := Demultiplex(context.Background(), opts)
		var outErr *OutputError
		if !errors.As(err, &outErr) {
			t.Fatalf("%s: expected an output error, got %v", test.name, err)
		}
		files, _ := os.ReadDir(opts.OutDir)
		for _, f := range files {
			t.Errorf("%s: %s left behind", test.name, f.Name())
		}
		if _, err := os.Stat(filepath.Join(opts.OutDir, "manifest.tsv")); !os.IsNotExist(err) {
			t.Errorf("%s: manifest must not be written, stat: %v", test.name, err)
		}
	}
}
