package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Primers holds the cutadapt adapters and the primers used to extract the
// reference reads for one target region.
type Primers struct {
	AdapterF, AdapterR string
	PrimerF, PrimerR   string
}

var targets = map[string]Primers{
	"18s": {
		AdapterF: "^TTGTACACACCGCCC...GTAGGTGAACCTGCRGAAGG",
		AdapterR: "^CCTTCYGCAGGTTCACCTAC...GGGCGGTGTGTACAA",
		PrimerF:  "TTGTACACACCGCCC",
		PrimerR:  "CCTTCYGCAGGTTCACCTAC",
	},
	"16s": {
		AdapterF: "^GTGYCAGCMGCCGCGGTAA...AAACTYAAAKRAATTGRCGG",
		AdapterR: "^CCGYCAATTYMTTTRAGTTT...TTACCGCGGCKGCTGRCAC",
		PrimerF:  "GTGYCAGCMGCCGCGGTAA",
		PrimerR:  "CCGYCAATTYMTTTRAGTTT",
	},
}

// TargetPrimers returns the primers of a target region, 16s or 18s.
func TargetPrimers(target string) (Primers, error) {
	p, ok := targets[strings.ToLower(target)]
	if !ok {
		return Primers{}, fmt.Errorf("unsupported target %q, use 16s or 18s", target)
	}
	return p, nil
}

// PipelineConfig selects what QiimeSteps builds.
type PipelineConfig struct {
	Env      string
	OutDir   string
	Manifest string
	Metadata string // sample metadata for the feature table summary, optional
	Target   string
	Cores    int
}

// Well-known artifacts below the output directory.
const (
	PR2Dir       = "db/pr2"
	MergedOutput = "asv_count_tax.tsv"
)

// QiimeSteps builds the workflow from the imported manifest to the merged
// ASV and taxonomy table.
func QiimeSteps(cfg PipelineConfig) ([]Step, error) {
	primers, err := TargetPrimers(cfg.Target)
	if err != nil {
		return nil, err
	}
	cores := cfg.Cores
	if cores < 1 {
		cores = 1
	}
	out := func(name string) string { return filepath.Join(cfg.OutDir, name) }
	qiime := func(description string, produces []string, args ...string) *Command {
		return &Command{Description: description, Env: cfg.Env, Program: "qiime", Args: args, Produces: produces}
	}

	var (
		demuxQza      = out("paired-end-demux.qza")
		demuxQzv      = out("paired-end-demux.qzv")
		trimmedQza    = out("paired-end-demux-trimmed.qza")
		trimmedQzv    = out("paired-end-demux-trimmed.qzv")
		tableQza      = out("asvs/table-dada2.qza")
		repSeqsQza    = out("asvs/rep-seqs-dada2.qza")
		statsQza      = out("asvs/stats-dada2.qza")
		asvTableDir   = out("asv_table")
		biom          = filepath.Join(asvTableDir, "feature-table.biom")
		asvTSV        = filepath.Join(asvTableDir, "asv-table.tsv")
		pr2           = func(name string) string { return out(filepath.Join(PR2Dir, name)) }
		taxSklearnQza = out("pr2_tax_sklearn.qza")
		asvTaxDir     = out("asv_tax_dir")
		exportedTax   = filepath.Join(asvTaxDir, "taxonomy.tsv")
		pr2TaxTSV     = filepath.Join(asvTaxDir, "pr2_taxonomy.tsv")
	)

	dada2Steps := []Step{
		qiime("Running DADA2 denoise-paired", []string{tableQza, repSeqsQza, statsQza},
			"dada2", "denoise-paired",
			"--i-demultiplexed-seqs", trimmedQza,
			"--p-n-threads", "0", "--p-trunc-q", "2",
			"--p-trunc-len-f", "219", "--p-trunc-len-r", "194",
			"--p-max-ee-f", "2", "--p-max-ee-r", "4",
			"--p-n-reads-learn", "1000000",
			"--p-chimera-method", "pooled",
			"--o-table", tableQza,
			"--o-representative-sequences", repSeqsQza,
			"--o-denoising-stats", statsQza),
		qiime("Tabulating DADA2 denoising stats", []string{out("asvs/stats-dada2.qzv")},
			"metadata", "tabulate", "--m-input-file", statsQza, "--o-visualization", out("asvs/stats-dada2.qzv")),
	}
	// with metadata the feature table summary runs with the denoising
	tableQzv := out("asvs/table-dada2.qzv")
	summarize := []Step{qiime("Summarizing feature table", []string{tableQzv},
		"feature-table", "summarize", "--i-table", tableQza, "--o-visualization", tableQzv)}
	if cfg.Metadata != "" {
		dada2Steps = append(dada2Steps, qiime("Summarizing feature table with metadata", []string{tableQzv},
			"feature-table", "summarize", "--i-table", tableQza, "--o-visualization", tableQzv,
			"--m-sample-metadata-file", cfg.Metadata))
		summarize = nil
	}

	steps := []Step{
		qiime("Importing files using manifest", []string{demuxQza},
			"tools", "import", "--type", "SampleData[PairedEndSequencesWithQuality]",
			"--input-path", cfg.Manifest,
			"--output-path", demuxQza,
			"--input-format", "PairedEndFastqManifestPhred33V2"),
		&Group{
			Description: "Summarizing demultiplexed data",
			Steps: []Step{
				qiime("Validating imported file", nil, "tools", "validate", demuxQza),
				qiime("Summarizing demultiplexed data", []string{demuxQzv},
					"demux", "summarize", "--i-data", demuxQza, "--o-visualization", demuxQzv),
			},
		},
		&Group{
			Description: "Trimming reads with Cutadapt",
			Steps: []Step{
				qiime("Trimming reads with Cutadapt", []string{trimmedQza},
					"cutadapt", "trim-paired", "--i-demultiplexed-sequences", demuxQza,
					"--p-cores", strconv.Itoa(cores),
					"--p-adapter-f", primers.AdapterF, "--p-adapter-r", primers.AdapterR,
					"--p-error-rate", "0.1", "--p-overlap", "3", "--verbose",
					"--o-trimmed-sequences", trimmedQza),
				qiime("Summarizing trimmed data", []string{trimmedQzv},
					"demux", "summarize", "--i-data", trimmedQza, "--p-n", "100000", "--o-visualization", trimmedQzv),
			},
		},
		&Group{
			Description: "DADA2 denoise-paired",
			Produces:    []string{tableQza, repSeqsQza, statsQza},
			Steps:       dada2Steps,
		},
		qiime("Exporting ASV table", []string{biom},
			"tools", "export", "--input-path", tableQza, "--output-path", asvTableDir),
		&Command{
			Description: "Converting BIOM to TSV",
			Env:         cfg.Env,
			Program:     "biom",
			Args:        []string{"convert", "-i", biom, "-o", asvTSV, "--to-tsv"},
			Produces:    []string{asvTSV},
		},
		qiime("Exporting representative sequences", []string{out("asvs/dna-sequences.fasta")},
			"tools", "export", "--input-path", repSeqsQza, "--output-path", out("asvs")),
		qiime("Tabulating representative sequences", []string{out("asvs/rep-seqs-dada2.qzv")},
			"feature-table", "tabulate-seqs", "--i-data", repSeqsQza, "--o-visualization", out("asvs/rep-seqs-dada2.qzv")),
	}
	steps = append(steps, summarize...)
	steps = append(steps,
		qiime("Importing pr2 sequences", []string{pr2("pr2.qza")},
			"tools", "import", "--type", "FeatureData[Sequence]",
			"--input-path", pr2("pr2_with_taxonomy_simple.fasta"),
			"--output-path", pr2("pr2.qza")),
		qiime("Importing pr2 taxonomy", []string{pr2("pr2_tax.qza")},
			"tools", "import", "--type", "FeatureData[Taxonomy]",
			"--input-format", "HeaderlessTSVTaxonomyFormat",
			"--input-path", pr2("pr2_taxonomy.tsv"),
			"--output-path", pr2("pr2_tax.qza")),
		qiime("Extracting pr2 reads", []string{pr2("pr2_extracts.qza")},
			"feature-classifier", "extract-reads",
			"--i-sequences", pr2("pr2.qza"),
			"--p-f-primer", primers.PrimerF,
			"--p-r-primer", primers.PrimerR,
			"--o-reads", pr2("pr2_extracts.qza")),
		qiime("Fitting pr2 classifier", []string{pr2("pr2_classifier.qza")},
			"feature-classifier", "fit-classifier-naive-bayes",
			"--i-reference-reads", pr2("pr2_extracts.qza"),
			"--i-reference-taxonomy", pr2("pr2_tax.qza"),
			"--o-classifier", pr2("pr2_classifier.qza"),
			"--p-classify--chunk-size", "100000"),
		qiime("Classifying reads with pr2 classifier", []string{taxSklearnQza},
			"feature-classifier", "classify-sklearn",
			"--p-n-jobs", "0",
			"--i-classifier", pr2("pr2_classifier.qza"),
			"--i-reads", repSeqsQza,
			"--o-classification", taxSklearnQza),
		&Group{
			Description: "Exporting pr2 taxonomy",
			Produces:    []string{pr2TaxTSV},
			Steps: []Step{
				qiime("Exporting pr2 taxonomy", []string{exportedTax},
					"tools", "export", "--input-path", taxSklearnQza, "--output-path", asvTaxDir),
				&Func{
					Description: "Renaming pr2 taxonomy file",
					Produces:    []string{pr2TaxTSV},
					Fn: func(context.Context) error {
						return os.Rename(exportedTax, pr2TaxTSV)
					},
				},
			},
		},
		&Func{
			Description: "Merging ASV and taxonomy tables",
			Produces:    []string{out(MergedOutput)},
			Fn: func(context.Context) error {
				return MergeASVTaxonomy(asvTSV, pr2TaxTSV, out(MergedOutput))
			},
		},
	)
	return steps, nil
}
