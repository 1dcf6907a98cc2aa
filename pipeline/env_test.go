package pipeline

import (
	"strings"
	"testing"
)

const condaEnvList = `# conda environments:
#
base                     /opt/miniconda3
qiime2-amplicon-2024.10  *  /opt/miniconda3/envs/qiime2-amplicon-2024.10
                         /home/user/other/envs/unnamed-env
`

func TestEnvListed(t *testing.T) {
	tests := map[string]bool{
		"base":                    true,
		"qiime2-amplicon-2024.10": true,
		"unnamed-env":             true,
		"qiime2":                  false,
		"conda":                   false,
	}
	for name, want := range tests {
		if got := envListed([]byte(condaEnvList), name); got != want {
			t.Errorf("envListed(%s) = %v, want %v", name, got, want)
		}
	}
}

func TestEnvInstallerSteps(t *testing.T) {
	tests := []struct {
		goos, goarch string
		yml          string
		steps        int
		subdir       bool
	}{
		{"linux", "amd64", "linux-conda.yml", 1, false},
		{"darwin", "amd64", "osx-conda.yml", 1, false},
		{"darwin", "arm64", "osx-conda.yml", 2, true},
	}
	for _, test := range tests {
		e := &EnvInstaller{Name: "qiime2", GOOS: test.goos, GOARCH: test.goarch}
		steps := e.Steps()
		if len(steps) != test.steps {
			t.Fatalf("%s/%s: got %d steps, want %d", test.goos, test.goarch, len(steps), test.steps)
		}
		create := steps[0].(*Command)
		args := strings.Join(create.BuildArgs(), " ")
		if !strings.HasPrefix(args, "conda env create -n qiime2 --file ") || !strings.HasSuffix(args, test.yml) {
			t.Errorf("%s/%s: unexpected command %q", test.goos, test.goarch, args)
		}
		if got := len(create.ExtraEnv) == 1 && create.ExtraEnv[0] == "CONDA_SUBDIR=osx-64"; got != test.subdir {
			t.Errorf("%s/%s: CONDA_SUBDIR expected %v", test.goos, test.goarch, test.subdir)
		}
	}
}
