package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/nikothomas/windchime/config"
	"github.com/nikothomas/windchime/dbfetch"
	"github.com/nikothomas/windchime/pipeline"
)

// InstallEnvHelp is the help string for this command.
const InstallEnvHelp = "\ninstall-env parameters:\n" +
	"windchime install-env\n" +
	configHelp +
	"[-env name]\n"

// DownloadDBsHelp is the help string for this command.
const DownloadDBsHelp = "\ndownload-dbs parameters:\n" +
	"windchime download-dbs\n" +
	configHelp +
	"[-db-mirror url]\n" +
	"[-s3-endpoint url] [-s3-path-style]\n" +
	"[-force]\n"

// PipelineHelp is the help string for this command.
const PipelineHelp = "\npipeline parameters:\n" +
	"windchime pipeline\n" +
	configHelp +
	"[-env name]\n" +
	"[-manifest file]\n" +
	"[-metadata file]\n" +
	"[-target 16s|18s]\n" +
	"[-cores n]\n" +
	"[-skip-existing]\n" +
	"[-verbose]\n"

func bindEnv(flags *flag.FlagSet, cfg *config.Config) {
	flags.StringVar(&cfg.PipelineEnv, "env", cfg.PipelineEnv, "conda environment `name`")
}

func bindDBs(flags *flag.FlagSet, cfg *config.Config) {
	flags.StringVar(&cfg.DBMirror, "db-mirror", cfg.DBMirror, "fetch the reference databases from `url`")
	flags.StringVar(&cfg.S3Endpoint, "s3-endpoint", cfg.S3Endpoint, "S3 endpoint `url` for s3:// mirrors")
	flags.BoolVar(&cfg.S3PathStyle, "s3-path-style", cfg.S3PathStyle, "use path style S3 addressing")
}

func bindPipeline(flags *flag.FlagSet, cfg *config.Config) {
	flags.StringVar(&cfg.Metadata, "metadata", cfg.Metadata, "QIIME2 sample metadata `file` for the feature table summary")
	flags.StringVar(&cfg.Target, "target", cfg.Target, "amplicon target, 16s or 18s")
	flags.IntVar(&cfg.Cores, "cores", cfg.Cores, "cores for cutadapt")
	flags.BoolVar(&cfg.SkipExisting, "skip-existing", cfg.SkipExisting, "skip steps whose outputs exist")
}

// InstallEnv implements the windchime install-env command.
func InstallEnv() error {
	cfg, err := loadConfig("install-env", os.Args[2:], InstallEnvHelp, bindEnv)
	if err != nil {
		return err
	}
	s, err := startSession(cfg, "install-env", cfg.PipelineEnv)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	return s.finish(installEnv(ctx, s, false))
}

func installEnv(ctx context.Context, s *session, verbose bool) error {
	installer := &pipeline.EnvInstaller{Name: s.cfg.PipelineEnv}
	return installer.Install(ctx, &pipeline.Runner{Verbose: verbose, Recorder: s.run})
}

// DownloadDBs implements the windchime download-dbs command.
func DownloadDBs() error {
	var force bool
	cfg, err := loadConfig("download-dbs", os.Args[2:], DownloadDBsHelp, bindDBs, func(flags *flag.FlagSet, _ *config.Config) {
		flags.BoolVar(&force, "force", force, "download again even when the files exist")
	})
	if err != nil {
		return err
	}
	s, err := startSession(cfg, "download-dbs", cfg.DBMirror)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	return s.finish(downloadDBs(ctx, s.cfg, force))
}

func downloadDBs(ctx context.Context, cfg *config.Config, force bool) error {
	fetcher := &dbfetch.Fetcher{
		Sources: dbfetch.PR2Sources(cfg.DBMirror),
		S3Config: dbfetch.S3Config{
			Region:    os.Getenv("AWS_REGION"),
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		},
	}
	return fetcher.Fetch(ctx, cfg.OutPath(pipeline.PR2Dir), force)
}

// Pipeline implements the windchime pipeline command.
func Pipeline() error {
	var verbose bool
	cfg, err := loadConfig("pipeline", os.Args[2:], PipelineHelp, bindEnv, bindManifest, bindPipeline, func(flags *flag.FlagSet, _ *config.Config) {
		flags.BoolVar(&verbose, "verbose", verbose, "show the commands and their output")
	})
	if err != nil {
		return err
	}
	s, err := startSession(cfg, "pipeline", cfg.Target)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	return s.finish(runPipeline(ctx, s, verbose))
}

func runPipeline(ctx context.Context, s *session, verbose bool) error {
	cfg := s.cfg
	manifest, err := manifestPath(cfg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(manifest); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	var metadata string
	if cfg.Metadata != "" {
		if metadata, err = filepath.Abs(cfg.Metadata); err != nil {
			return err
		}
		if _, err := os.Stat(metadata); err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
	}
	steps, err := pipeline.QiimeSteps(pipeline.PipelineConfig{
		Env:      cfg.PipelineEnv,
		OutDir:   cfg.OutDir,
		Manifest: manifest,
		Metadata: metadata,
		Target:   cfg.Target,
		Cores:    cfg.Cores,
	})
	if err != nil {
		return err
	}
	r := &pipeline.Runner{SkipExisting: cfg.SkipExisting, Verbose: verbose, Recorder: s.run}
	if err := r.Run(ctx, steps...); err != nil {
		return err
	}
	log.Println("Pipeline finished, results in", cfg.OutPath(pipeline.MergedOutput))
	return nil
}
