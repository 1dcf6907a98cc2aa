// Package pipeline runs the external QIIME2 workflow as a list of steps
// that declare the artifacts they produce.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// Step is one unit of the workflow.
type Step interface {
	Name() string

	// Outputs lists the artifacts the step produces. A step without
	// outputs is never skipped.
	Outputs() []string

	// BuildArgs returns the command line of an external step, nil for
	// in-process work.
	BuildArgs() []string

	Run(ctx context.Context, r *Runner) error

	// InterpretExitCode maps an exit status to nil or a *StepError.
	InterpretExitCode(code int) error
}

// StepError reports a failed step. Code is -1 when the step never
// produced an exit status.
type StepError struct {
	Step string
	Code int
	Err  error
}

func (e *StepError) Error() string {
	if e.Code >= 0 {
		return fmt.Sprintf("step %q failed with exit status %d: %v", e.Step, e.Code, e.Err)
	}
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func exitCodeError(name string, code int) error {
	if code == 0 {
		return nil
	}
	return &StepError{Step: name, Code: code, Err: fmt.Errorf("exit status %d", code)}
}

// Command runs an external program, inside a conda environment when Env
// is set.
type Command struct {
	Description string
	Env         string
	Program     string
	Args        []string
	Produces    []string
	ExtraEnv    []string // KEY=VALUE pairs added to the environment
}

func (c *Command) Name() string      { return c.Description }
func (c *Command) Outputs() []string { return c.Produces }

func (c *Command) BuildArgs() []string {
	var argv []string
	if c.Env != "" {
		argv = append(argv, "conda", "run", "-n", c.Env)
	}
	argv = append(argv, c.Program)
	return append(argv, c.Args...)
}

func (c *Command) InterpretExitCode(code int) error { return exitCodeError(c.Name(), code) }

func (c *Command) Run(ctx context.Context, r *Runner) error {
	argv := c.BuildArgs()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if len(c.ExtraEnv) > 0 {
		cmd.Env = append(os.Environ(), c.ExtraEnv...)
	}
	if r.Verbose {
		log.Printf("[CMD] %s", strings.Join(append(append([]string(nil), c.ExtraEnv...), argv...), " "))
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	}
	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		if ctx.Err() != nil {
			return &StepError{Step: c.Name(), Code: -1, Err: ctx.Err()}
		}
		return c.InterpretExitCode(exitErr.ExitCode())
	case err != nil:
		return &StepError{Step: c.Name(), Code: -1, Err: err}
	}
	return c.InterpretExitCode(0)
}

// Func is in-process work.
type Func struct {
	Description string
	Produces    []string
	Fn          func(ctx context.Context) error
}

func (f *Func) Name() string        { return f.Description }
func (f *Func) Outputs() []string   { return f.Produces }
func (f *Func) BuildArgs() []string { return nil }

func (f *Func) InterpretExitCode(code int) error { return exitCodeError(f.Name(), code) }

func (f *Func) Run(ctx context.Context, _ *Runner) error {
	if err := f.Fn(ctx); err != nil {
		return &StepError{Step: f.Name(), Code: -1, Err: err}
	}
	return nil
}

// Group runs several steps as one unit: all are skipped or all are run.
type Group struct {
	Description string
	Steps       []Step

	// Produces overrides the union of the member outputs.
	Produces []string
}

func (g *Group) Name() string { return g.Description }

func (g *Group) Outputs() []string {
	if g.Produces != nil {
		return g.Produces
	}
	var outputs []string
	for _, s := range g.Steps {
		outputs = append(outputs, s.Outputs()...)
	}
	return outputs
}

func (g *Group) BuildArgs() []string { return nil }

func (g *Group) InterpretExitCode(code int) error { return exitCodeError(g.Name(), code) }

func (g *Group) Run(ctx context.Context, r *Runner) error {
	for _, s := range g.Steps {
		if err := r.execute(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
