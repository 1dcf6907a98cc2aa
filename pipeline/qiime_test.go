package pipeline

import (
	"path/filepath"
	"strings"
	"testing"
)

func flatten(steps []Step) []Step {
	var out []Step
	for _, s := range steps {
		if g, ok := s.(*Group); ok {
			out = append(out, flatten(g.Steps)...)
			continue
		}
		out = append(out, s)
	}
	return out
}

func TestQiimeSteps(t *testing.T) {
	cfg := PipelineConfig{Env: "qiime2-test", OutDir: "/work/out", Manifest: "/work/out/manifest.tsv", Target: "16S", Cores: 4}
	steps, err := QiimeSteps(cfg)
	if err != nil {
		t.Fatal(err)
	}

	first := strings.Join(steps[0].BuildArgs(), " ")
	if !strings.HasPrefix(first, "conda run -n qiime2-test qiime tools import") || !strings.Contains(first, "--input-path /work/out/manifest.tsv") {
		t.Errorf("unexpected import command %q", first)
	}

	var all []string
	for _, s := range flatten(steps) {
		all = append(all, strings.Join(s.BuildArgs(), " "))
		for _, out := range s.Outputs() {
			if !strings.HasPrefix(out, cfg.OutDir+"/") {
				t.Errorf("%s: output %s outside the output directory", s.Name(), out)
			}
		}
	}
	joined := strings.Join(all, "\n")
	for _, want := range []string{
		"--p-adapter-f ^GTGYCAGCMGCCGCGGTAA...AAACTYAAAKRAATTGRCGG",
		"--p-f-primer GTGYCAGCMGCCGCGGTAA",
		"--p-r-primer CCGYCAATTYMTTTRAGTTT",
		"--p-cores 4",
		"--p-trunc-len-f 219 --p-trunc-len-r 194",
		"biom convert -i /work/out/asv_table/feature-table.biom -o /work/out/asv_table/asv-table.tsv --to-tsv",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in the workflow", want)
		}
	}

	last := steps[len(steps)-1]
	if outs := last.Outputs(); len(outs) != 1 || outs[0] != filepath.Join(cfg.OutDir, MergedOutput) {
		t.Errorf("the workflow must end with the merged table, got %v", outs)
	}
}

func TestQiimeStepsTargets(t *testing.T) {
	steps, err := QiimeSteps(PipelineConfig{Env: "e", OutDir: "out", Manifest: "m.tsv", Target: "18s"})
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, s := range flatten(steps) {
		if strings.Contains(strings.Join(s.BuildArgs(), " "), "--p-f-primer TTGTACACACCGCCC") {
			found = true
		}
	}
	if !found {
		t.Error("18s primers not used")
	}
	if _, err := QiimeSteps(PipelineConfig{Target: "ITS"}); err == nil {
		t.Error("expected an error for an unsupported target")
	}
}

func TestQiimeStepsMetadata(t *testing.T) {
	summaries := func(cfg PipelineConfig) (inDADA2, standalone []string) {
		steps, err := QiimeSteps(cfg)
		if err != nil {
			t.Fatal(err)
		}
		for _, s := range steps {
			if g, ok := s.(*Group); ok && g.Name() == "DADA2 denoise-paired" {
				for _, member := range g.Steps {
					if strings.Contains(strings.Join(member.BuildArgs(), " "), "feature-table summarize") {
						inDADA2 = append(inDADA2, strings.Join(member.BuildArgs(), " "))
					}
				}
				continue
			}
			if strings.Contains(strings.Join(s.BuildArgs(), " "), "feature-table summarize") {
				standalone = append(standalone, strings.Join(s.BuildArgs(), " "))
			}
		}
		return inDADA2, standalone
	}

	cfg := PipelineConfig{Env: "e", OutDir: "/work/out", Manifest: "/work/m.tsv", Target: "18s"}
	inDADA2, standalone := summaries(cfg)
	if len(inDADA2) != 0 || len(standalone) != 1 || strings.Contains(standalone[0], "--m-sample-metadata-file") {
		t.Errorf("without metadata: got %q in DADA2 and %q after it", inDADA2, standalone)
	}

	cfg.Metadata = "/work/metadata.tsv"
	inDADA2, standalone = summaries(cfg)
	if len(standalone) != 0 || len(inDADA2) != 1 ||
		!strings.HasSuffix(inDADA2[0], "--o-visualization /work/out/asvs/table-dada2.qzv --m-sample-metadata-file /work/metadata.tsv") {
		t.Errorf("with metadata: got %q in DADA2 and %q after it", inDADA2, standalone)
	}
}
