package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/nikothomas/windchime/config"
	"github.com/nikothomas/windchime/internal/ledger"
)

// ProgramMessage is the first line printed when the windchime binary is
// called.
const ProgramMessage = "\nwindchime: amplicon sequencing workflow for QIIME2\n"

// HelpMessage is printed to show the help flag.
const HelpMessage = "Print command details:\n" +
	"[--help]\n"

// LogFilename is the log file kept in the output directory.
const LogFilename = "windchime.log"

const configHelp = "[-configfile file]\n" +
	"[-outdir dir]\n" +
	"[-ledger file]\n"

// bindFlags registers the flags of one command on top of cfg.
type bindFlags func(flags *flag.FlagSet, cfg *config.Config)

func bindCommon(flags *flag.FlagSet, cfg *config.Config) {
	flags.StringVar(&cfg.OutDir, "outdir", cfg.OutDir, "write all results below `dir`")
	flags.StringVar(&cfg.Ledger, "ledger", cfg.Ledger, "record runs in the sqlite database `file`")
}

// loadConfig reads -configfile, when given, and then applies the command
// line on top of it. The arguments are parsed twice so that flags win over
// file values whatever their order.
func loadConfig(name string, args []string, help string, bind ...bindFlags) (*config.Config, error) {
	var configFile string
	parse := func(cfg *config.Config) error {
		flags := flag.NewFlagSet(name, flag.ContinueOnError)
		flags.SetOutput(io.Discard)
		flags.StringVar(&configFile, "configfile", configFile, "read configuration from `file`")
		bindCommon(flags, cfg)
		for _, b := range bind {
			b(flags, cfg)
		}
		if err := flags.Parse(args); err != nil {
			if err != flag.ErrHelp {
				fmt.Fprintln(os.Stderr, err)
			}
			fmt.Fprint(os.Stderr, help)
			return err
		}
		if flags.NArg() > 0 {
			fmt.Fprintln(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
			fmt.Fprint(os.Stderr, help)
			return fmt.Errorf("unexpected arguments %v", flags.Args())
		}
		return nil
	}

	cfg := config.Default()
	if err := parse(cfg); err != nil {
		return nil, err
	}
	if configFile != "" {
		log.Println("Reading configuration", configFile)
		var err error
		if cfg, err = config.ReadConfigFile(configFile); err != nil {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
		if err := parse(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprint(os.Stderr, help)
		return nil, err
	}
	return cfg, nil
}

// logSetup redirects the log of a session; replaced in tests.
var logSetup = setLogOutput

// setLogOutput mirrors the log into the output directory. Standard error
// itself is redirected to the log file, so the output of external tools
// ends up there as well.
func setLogOutput(dir, runID string) (io.Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	fullPath := filepath.Join(dir, LogFilename)
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	fmt.Fprint(f, ProgramMessage)

	orgStderr, err := unix.Dup(2)
	if err != nil {
		return nil, err
	}
	ferr := os.NewFile(uintptr(orgStderr), "/dev/stderr")
	if err := unix.Dup2(int(f.Fd()), 2); err != nil {
		return nil, err
	}

	log.SetOutput(io.MultiWriter(f, ferr))
	log.SetPrefix("[" + runID[:8] + "] ")
	log.Println("Created log file at", fullPath)
	log.Println("Command line:", os.Args)
	return f, nil
}

// session is one recorded invocation of a command.
type session struct {
	cfg     *config.Config
	runID   string
	logFile io.Writer // nil when the log is not mirrored
	ledger  *ledger.Ledger
	run     *ledger.Run
}

func startSession(cfg *config.Config, command, detail string) (*session, error) {
	s := &session{cfg: cfg, runID: uuid.NewString()}
	var err error
	if s.logFile, err = logSetup(cfg.OutDir, s.runID); err != nil {
		return nil, fmt.Errorf("log setup: %w", err)
	}
	if s.ledger, err = ledger.Open(cfg.LedgerPath()); err != nil {
		return nil, err
	}
	if s.run, err = s.ledger.StartRun(s.runID, command, detail); err != nil {
		_ = s.ledger.Close()
		return nil, err
	}
	log.Printf("Run %s: %s", s.runID, command)
	return s, nil
}

// finish records the outcome of the run and passes runErr on.
func (s *session) finish(runErr error) error {
	if err := s.run.Finish(runErr); err != nil {
		log.Println("Could not record run:", err)
	}
	if err := s.ledger.Close(); err != nil {
		log.Println("Could not close ledger:", err)
	}
	return runErr
}

// report writes to standard output and the log file.
func (s *session) report() io.Writer {
	if s.logFile == nil {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, s.logFile)
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// IsHelp tells whether err only asked for the help text.
func IsHelp(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
