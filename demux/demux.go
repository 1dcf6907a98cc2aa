package demux

import (
	"context"
	"log"
	"path/filepath"
)

// Options describes one demultiplexing run.
type Options struct {
	Forward, Reverse string // pooled input FASTQ files

	// Table is used as is when set, otherwise it is read from Barcodes.
	Table    *BarcodeTable
	Barcodes string

	OutDir   string
	Manifest string // relative names are placed in OutDir
	RunTag   string // names the temporary outputs of this run

	Policy Policy
	Engine EngineOptions
}

// Result is what a run produced. Stats is set whenever input was read,
// also when the run failed.
type Result struct {
	Stats    *RunStatistics
	Outputs  []SampleOutputs
	Manifest string
}

// Demultiplex splits a pooled pair of FASTQ files into per-sample pairs
// and writes the QIIME2 manifest for them.
func Demultiplex(ctx context.Context, opts Options) (*Result, error) {
	table := opts.Table
	if table == nil {
		log.Println("Reading barcode table", opts.Barcodes)
		var err error
		if table, err = ReadBarcodeTable(opts.Barcodes); err != nil {
			return nil, err
		}
	}
	matcher, err := NewMatcher(table, opts.Policy)
	if err != nil {
		return nil, err
	}

	reader, err := OpenPairReader(opts.Forward, opts.Reverse)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	tag := opts.RunTag
	if tag == "" {
		tag = "run"
	}
	pool, err := NewWriterPool(opts.OutDir, tag)
	if err != nil {
		return nil, err
	}

	policy := matcher.Policy()
	log.Printf("Starting demux of %d samples (barcode offset %d, up to %d mismatches, trim %v)",
		len(table.Entries), policy.Offset, policy.MaxMismatches, policy.Trim)
	result := &Result{}
	result.Stats, err = Run(ctx, reader, matcher, pool, opts.Engine)
	if err != nil {
		return result, err
	}
	if result.Outputs, err = pool.Close(); err != nil {
		return result, err
	}

	manifest := opts.Manifest
	if manifest == "" {
		manifest = "manifest.tsv"
	}
	if !filepath.IsAbs(manifest) {
		manifest = filepath.Join(opts.OutDir, manifest)
	}
	if result.Manifest, err = EmitManifest(manifest, result.Stats, result.Outputs); err != nil {
		return result, err
	}
	log.Printf("done, %d of %d pairs assigned", result.Stats.TotalAssigned(), result.Stats.PairsSeen)
	return result, nil
}
