package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/nikothomas/windchime/config"
	"github.com/nikothomas/windchime/internal/ledger"
)

// HistoryHelp is the help string for this command.
const HistoryHelp = "\nhistory parameters:\n" +
	"windchime history\n" +
	configHelp +
	"[-limit n]\n" +
	"[-run id]\n"

// History implements the windchime history command.
func History() error {
	return historyCommand(os.Args[2:], os.Stdout)
}

func historyCommand(args []string, w io.Writer) error {
	var (
		limit = 20
		runID string
	)
	cfg, err := loadConfig("history", args, HistoryHelp, func(flags *flag.FlagSet, _ *config.Config) {
		flags.IntVar(&limit, "limit", limit, "show this many runs, 0 for all")
		flags.StringVar(&runID, "run", runID, "show the steps and sample counts of one run")
	})
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.LedgerPath()); err != nil {
		return fmt.Errorf("no run ledger: %w", err)
	}
	l, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return err
	}
	defer l.Close()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if runID != "" {
		err = printRun(tw, l, runID)
	} else {
		err = printRuns(tw, l, limit)
	}
	if err != nil {
		return err
	}
	return tw.Flush()
}

func printRuns(w io.Writer, l *ledger.Ledger, limit int) error {
	runs, err := l.Runs(limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tCOMMAND\tSTARTED\tDURATION\tSTATUS\tDETAIL")
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Command, r.StartedAt.Format(time.DateTime), duration, r.Status, r.Detail)
	}
	return nil
}

func printRun(w io.Writer, l *ledger.Ledger, runID string) error {
	steps, err := l.Steps(runID)
	if err != nil {
		return err
	}
	samples, err := l.Samples(runID)
	if err != nil {
		return err
	}
	if len(steps) == 0 && len(samples) == 0 {
		return fmt.Errorf("run %s has no recorded steps or samples", runID)
	}
	if len(steps) > 0 {
		fmt.Fprintln(w, "STEP\tSTATUS\tDURATION")
		for _, s := range steps {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.Status, s.Duration.Round(time.Millisecond))
		}
	}
	if len(samples) > 0 {
		if len(steps) > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, "SAMPLE\tPAIRS")
		for _, s := range samples {
			fmt.Fprintf(w, "%s\t%d\n", s.SampleID, s.Pairs)
		}
	}
	return nil
}
