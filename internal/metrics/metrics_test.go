package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nikothomas/windchime/demux"
)

func TestWriteTextfile(t *testing.T) {
	stats := &demux.RunStatistics{
		Samples:    []string{"S1", "S2"},
		Assigned:   []int64{7, 3},
		PairsSeen:  14,
		Unassigned: 4,
		NoMatch:    2,
		Ambiguous:  1,
		Malformed:  1,
	}
	filename := filepath.Join(t.TempDir(), "windchime.prom")
	if err := WriteTextfile(filename, stats); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`windchime_demux_pairs_total{outcome="assigned"} 10`,
		`windchime_demux_pairs_total{outcome="no_match"} 2`,
		`windchime_demux_pairs_total{outcome="ambiguous"} 1`,
		`windchime_demux_pairs_total{outcome="too_short"} 0`,
		`windchime_demux_pairs_total{outcome="malformed"} 1`,
		`windchime_demux_sample_pairs{sample="S1"} 7`,
		`windchime_demux_sample_pairs{sample="S2"} 3`,
		"# TYPE windchime_demux_pairs_total counter",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in\n%s", want, text)
		}
	}
}
