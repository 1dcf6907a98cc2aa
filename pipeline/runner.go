package pipeline

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Recorder is told about every top-level step the runner handles.
type Recorder interface {
	RecordStep(name string, skipped bool, stepErr error, elapsed time.Duration) error
}

// Runner executes steps in order and stops at the first failure.
type Runner struct {
	SkipExisting bool
	Verbose      bool
	Recorder     Recorder
}

// Complete reports whether every output exists as a non-empty regular
// file. No outputs is never complete.
func Complete(outputs []string) bool {
	if len(outputs) == 0 {
		return false
	}
	for _, name := range outputs {
		info, err := os.Stat(name)
		if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
			return false
		}
	}
	return true
}

// Run runs steps, skipping the complete ones when SkipExisting is set.
func (r *Runner) Run(ctx context.Context, steps ...Step) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.SkipExisting && Complete(s.Outputs()) {
			log.Printf("Skipping '%s' because its outputs already exist", s.Name())
			r.record(s.Name(), true, nil, 0)
			continue
		}
		start := time.Now()
		err := r.execute(ctx, s)
		r.record(s.Name(), false, err, time.Since(start))
		if err != nil {
			log.Printf("%s failed", s.Name())
			return err
		}
	}
	return nil
}

func (r *Runner) record(name string, skipped bool, err error, elapsed time.Duration) {
	if r.Recorder == nil {
		return
	}
	if rerr := r.Recorder.RecordStep(name, skipped, err, elapsed); rerr != nil {
		log.Printf("recording step %s: %v", name, rerr)
	}
}

// execute prepares the output directories and runs a step unconditionally.
func (r *Runner) execute(ctx context.Context, s Step) error {
	for _, out := range s.Outputs() {
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return &StepError{Step: s.Name(), Code: -1, Err: err}
		}
	}
	log.Printf("==> %s", s.Name())
	return s.Run(ctx, r)
}
