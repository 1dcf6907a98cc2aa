package cmd

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/nikothomas/windchime/config"
)

// RunAllHelp is the help string for this command.
const RunAllHelp = "\nrun-all parameters:\n" +
	"windchime run-all\n" +
	"runs install-env, demux, download-dbs and pipeline in sequence and\n" +
	"accepts the parameters of all of them, except the profiling flags.\n" +
	"[-demultiplex=false] skips demux and uses an existing manifest\n"

// RunAll implements the windchime run-all command.
func RunAll() error {
	var verbose, force bool
	demultiplex := true
	cfg, err := loadConfig("run-all", os.Args[2:], RunAllHelp, bindEnv, bindDemux, bindManifest, bindDBs, bindPipeline,
		func(flags *flag.FlagSet, _ *config.Config) {
			flags.BoolVar(&verbose, "verbose", verbose, "show the commands and their output")
			flags.BoolVar(&force, "force", force, "download the databases again")
			flags.BoolVar(&demultiplex, "demultiplex", demultiplex, "demultiplex the pooled reads first")
		})
	if err != nil {
		return err
	}
	if demultiplex && (cfg.Forward == "" || cfg.Reverse == "") {
		fmt.Fprint(os.Stderr, RunAllHelp)
		return fmt.Errorf("run-all needs -forward and -reverse unless -demultiplex=false")
	}
	s, err := startSession(cfg, "run-all", strings.Join(os.Args[2:], " "))
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	log.Println("==> Setting up the conda environment")
	if err := installEnv(ctx, s, verbose); err != nil {
		return s.finish(err)
	}
	if demultiplex {
		log.Println("==> Demultiplexing")
		if err := runDemux(ctx, s); err != nil {
			return s.finish(err)
		}
	}
	log.Println("==> Downloading reference databases")
	if err := downloadDBs(ctx, cfg, force); err != nil {
		return s.finish(err)
	}
	log.Println("==> Running the QIIME2 pipeline")
	return s.finish(runPipeline(ctx, s, verbose))
}
