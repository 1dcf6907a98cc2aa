package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	linuxYML = "https://data.qiime2.org/distro/amplicon/qiime2-amplicon-2024.10-py310-linux-conda.yml"
	osxYML   = "https://data.qiime2.org/distro/amplicon/qiime2-amplicon-2024.10-py310-osx-conda.yml"
)

// EnvInstaller makes sure the QIIME2 amplicon conda environment exists.
type EnvInstaller struct {
	Name string

	// GOOS and GOARCH select the environment file, the running platform
	// when empty.
	GOOS, GOARCH string
}

func (e *EnvInstaller) platform() (string, string) {
	goos, goarch := e.GOOS, e.GOARCH
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	return goos, goarch
}

// Exists asks conda whether the environment is known.
func (e *EnvInstaller) Exists(ctx context.Context) (bool, error) {
	out, err := exec.CommandContext(ctx, "conda", "env", "list").Output()
	if err != nil {
		return false, fmt.Errorf("could not retrieve the conda environment list: %w", err)
	}
	return envListed(out, e.Name), nil
}

// envListed looks for name in the output of conda env list, either as the
// first column or as the last element of an environment path.
func envListed(list []byte, name string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(list))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if fields[0] == name || filepath.Base(fields[len(fields)-1]) == name {
			return true
		}
	}
	return false
}

// Steps returns the commands that create the environment on this platform.
func (e *EnvInstaller) Steps() []Step {
	goos, goarch := e.platform()
	yml := linuxYML
	if goos == "darwin" {
		yml = osxYML
	}
	create := &Command{
		Description: "Creating conda environment " + e.Name,
		Program:     "conda",
		Args:        []string{"env", "create", "-n", e.Name, "--file", yml},
	}
	if goos != "darwin" || goarch != "arm64" {
		return []Step{create}
	}
	// osx-arm64 runs the osx-64 build
	create.ExtraEnv = []string{"CONDA_SUBDIR=osx-64"}
	return []Step{create, &Command{
		Description: "Pinning conda subdir to osx-64",
		Env:         e.Name,
		Program:     "conda",
		Args:        []string{"config", "--env", "--set", "subdir", "osx-64"},
	}}
}

// Install creates the environment unless it already exists.
func (e *EnvInstaller) Install(ctx context.Context, r *Runner) error {
	exists, err := e.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		log.Printf("Conda environment '%s' already exists. Skipping creation.", e.Name)
		return nil
	}
	log.Println("Installing QIIME2 environment for your system...")
	if err := r.Run(ctx, e.Steps()...); err != nil {
		return err
	}
	log.Printf("Installation complete. You can activate it with: conda activate %s", e.Name)
	return nil
}
