package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"

	"github.com/nikothomas/windchime/config"
	"github.com/nikothomas/windchime/demux"
	"github.com/nikothomas/windchime/internal/metrics"
)

// DemuxHelp is the help string for this command.
const DemuxHelp = "\ndemux parameters:\n" +
	"windchime demux\n" +
	configHelp +
	"[-barcodes file]\n" +
	"[-forward file] [-reverse file]\n" +
	"[-manifest file]\n" +
	"[-mismatches n]\n" +
	"[-offset n] [-reverse-offset n]\n" +
	"[-trim]\n" +
	"[-threads n]\n" +
	"[-batch-size n]\n" +
	"[-malformed-probe n] [-max-malformed n]\n" +
	"[-metrics-file file]\n" +
	"[-cpuprofile file] [-memprofile file]\n"

// DemuxDir holds the per-sample FASTQ files below the output directory.
const DemuxDir = "demultiplexed"

func bindManifest(flags *flag.FlagSet, cfg *config.Config) {
	flags.StringVar(&cfg.Manifest, "manifest", cfg.Manifest, "QIIME2 manifest `file`")
}

func bindDemux(flags *flag.FlagSet, cfg *config.Config) {
	flags.StringVar(&cfg.DemultiplexBarcodes, "barcodes", cfg.DemultiplexBarcodes, "barcode table `file`")
	flags.StringVar(&cfg.Forward, "forward", cfg.Forward, "pooled forward reads `file`")
	flags.StringVar(&cfg.Reverse, "reverse", cfg.Reverse, "pooled reverse reads `file`")
	flags.IntVar(&cfg.Mismatches, "mismatches", cfg.Mismatches, "allow this many mismatches per barcode")
	flags.IntVar(&cfg.Offset, "offset", cfg.Offset, "position of the barcode in the forward read")
	flags.IntVar(&cfg.ReverseOffset, "reverse-offset", cfg.ReverseOffset, "position of the barcode in the reverse read")
	flags.BoolVar(&cfg.Trim, "trim", cfg.Trim, "remove the barcodes from the written reads")
	flags.IntVar(&cfg.Threads, "threads", cfg.Threads, "number of classifying workers")
	flags.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "read pairs per batch")
	flags.IntVar(&cfg.MalformedProbe, "malformed-probe", cfg.MalformedProbe, "give up when this many leading pairs are all malformed")
	flags.Int64Var(&cfg.MaxMalformed, "max-malformed", cfg.MaxMalformed, "give up after this many malformed pairs, 0 for no limit")
	flags.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "write Prometheus metrics to `file`")
}

// Demux implements the windchime demux command.
func Demux() error {
	return demuxCommand(os.Args[2:])
}

func demuxCommand(args []string) error {
	var cpuprofile, memprofile string
	cfg, err := loadConfig("demux", args, DemuxHelp, bindDemux, bindManifest, func(flags *flag.FlagSet, _ *config.Config) {
		flags.StringVar(&cpuprofile, "cpuprofile", cpuprofile, "write cpu profile to `file`")
		flags.StringVar(&memprofile, "memprofile", memprofile, "write memory profile to `file`")
	})
	if err != nil {
		return err
	}
	if cfg.Forward == "" || cfg.Reverse == "" {
		fmt.Fprint(os.Stderr, DemuxHelp)
		return fmt.Errorf("demux needs -forward and -reverse")
	}

	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	s, err := startSession(cfg, "demux", cfg.Forward+" "+cfg.Reverse)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	err = s.finish(runDemux(ctx, s))

	if memprofile != "" {
		f, ferr := os.Create(memprofile)
		if ferr != nil {
			log.Println("could not create memory profile:", ferr)
			return err
		}
		defer f.Close()
		runtime.GC()
		if ferr := pprof.WriteHeapProfile(f); ferr != nil {
			log.Println("could not write memory profile:", ferr)
		}
	}
	return err
}

// manifestPath is the absolute manifest location, shared with the
// pipeline import step.
func manifestPath(cfg *config.Config) (string, error) {
	return filepath.Abs(cfg.OutPath(cfg.Manifest))
}

func runDemux(ctx context.Context, s *session) error {
	cfg := s.cfg
	manifest, err := manifestPath(cfg)
	if err != nil {
		return err
	}
	result, err := demux.Demultiplex(ctx, demux.Options{
		Forward:  cfg.Forward,
		Reverse:  cfg.Reverse,
		Barcodes: cfg.DemultiplexBarcodes,
		OutDir:   cfg.OutPath(DemuxDir),
		Manifest: manifest,
		RunTag:   s.runID,
		Policy: demux.Policy{
			Offset:        cfg.Offset,
			ReverseOffset: cfg.ReverseOffset,
			MaxMismatches: cfg.Mismatches,
			Trim:          cfg.Trim,
		},
		Engine: demux.EngineOptions{
			Threads:        cfg.Threads,
			BatchSize:      cfg.BatchSize,
			MalformedProbe: cfg.MalformedProbe,
			MaxMalformed:   cfg.MaxMalformed,
		},
	})

	stats := &demux.RunStatistics{}
	if result != nil && result.Stats != nil {
		stats = result.Stats
	}
	if serr := stats.WriteSummary(s.report(), err); serr != nil {
		log.Println("Could not write summary:", serr)
	}
	if len(stats.Samples) > 0 {
		if rerr := s.run.RecordSamples(stats.Samples, stats.Assigned); rerr != nil {
			log.Println("Could not record sample counts:", rerr)
		}
	}
	if cfg.MetricsFile != "" && stats.PairsSeen > 0 {
		if merr := metrics.WriteTextfile(cfg.OutPath(cfg.MetricsFile), stats); merr != nil {
			log.Println("Could not write metrics:", merr)
		}
	}
	if err != nil {
		return err
	}
	log.Println("Manifest written to", result.Manifest)
	return nil
}
