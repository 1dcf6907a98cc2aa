package demux

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// ManifestHeader is the header of a QIIME2 PairedEndFastqManifestPhred33V2 file.
const ManifestHeader = "sample-id\tforward-absolute-filepath\treverse-absolute-filepath"

// EmitManifest writes one row per sample that received pairs, in table
// order, and returns the absolute manifest path.
func EmitManifest(path string, stats *RunStatistics, outputs []SampleOutputs) (string, error) {
	byID := make(map[string]SampleOutputs, len(outputs))
	for _, o := range outputs {
		byID[o.SampleID] = o
	}

	var rows [][3]string
	for i, id := range stats.Samples {
		o, ok := byID[id]
		if stats.Assigned[i] == 0 || !ok {
			log.Printf("warning: sample %s received no reads", id)
			continue
		}
		fwd, err := filepath.Abs(o.ForwardPath)
		if err != nil {
			return "", err
		}
		rev, err := filepath.Abs(o.ReversePath)
		if err != nil {
			return "", err
		}
		rows = append(rows, [3]string{id, fwd, rev})
	}
	if len(rows) == 0 {
		return "", ErrNoSamplesAssigned
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	tmp := filepath.Join(filepath.Dir(abs), ".partial."+filepath.Base(abs))
	if err := writeManifest(tmp, rows); err != nil {
		_ = os.Remove(tmp)
		return "", &OutputError{Path: abs, Op: "write", Err: err}
	}
	if err := os.Rename(tmp, abs); err != nil {
		_ = os.Remove(tmp)
		return "", &OutputError{Path: abs, Op: "rename", Err: err}
	}
	return abs, nil
}

func writeManifest(filename string, rows [][3]string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, ManifestHeader)
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", row[0], row[1], row[2])
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
