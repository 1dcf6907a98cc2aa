package demux

import (
	"fmt"
	"sort"
	"testing"
)

func StringSlicesDiffer(expected []string, actual []string) (differ bool) {
	if len(expected) != len(actual) {
		return true
	}
	for i := range expected {
		if expected[i] != actual[i] {
			return true
		}
	}
	return false
}

func TestMismatches(t *testing.T) {
	type test struct {
		input    string
		distance int
		want     []string
	}

	tests := []test{
		{"A", 0, []string{"A"}},
		{"A", 1, []string{"A", "C", "G", "T", "N"}},
		{"A", 2, []string{"A", "C", "G", "T", "N"}},
		{"AT", 0, []string{"AT"}},
		{"AT", 1, []string{"AT", "CT", "GT", "TT", "NT", "AA", "AC", "AG", "AN"}},
		{"AT", 2, []string{"AT",
			"CT", "GT", "TT", "NT",
			"AA", "AC", "AG", "AN",
			"CA", "CC", "CG", "CN",
			"GA", "GC", "GG", "GN",
			"TA", "TC", "TG", "TN",
			"NA", "NC", "NG", "NN",
		}},
	}

	for _, test := range tests {
		actual := mismatches(test.input, test.distance)

		sort.Strings(actual)
		sort.Strings(test.want)
		if StringSlicesDiffer(test.want, actual) {
			t.Errorf("Test: %#v, received: %#v", test, actual)
		}
	}
}

func TestNeighbourhoodDistances(t *testing.T) {
	for variant, d := range neighbourhood("ACGT", 2) {
		diff := 0
		for i := range variant {
			if variant[i] != "ACGT"[i] {
				diff++
			}
		}
		if diff != d {
			t.Errorf("%s: recorded distance %d, actual %d", variant, d, diff)
		}
	}
}

func TestHamming(t *testing.T) {
	tests := []struct {
		read    string
		barcode string
		limit   int
		want    int
	}{
		{"ACGT", "ACGT", 2, 0},
		{"acgt", "ACGT", 2, 0},
		{"ACGA", "ACGT", 2, 1},
		{"NCGT", "ACGT", 2, 1},
		{"NCGT", "NCGT", 2, 1}, // N never matches
		{"TTTT", "ACGT", 1, 2}, // stops after passing the limit
	}
	for _, test := range tests {
		if got := hamming([]byte(test.read), test.barcode, test.limit); got != test.want {
			t.Errorf("hamming(%s, %s, %d) = %d, want %d", test.read, test.barcode, test.limit, got, test.want)
		}
	}
}

func BenchmarkMismatches(b *testing.B) {
	b.ReportAllocs()
	for mm := 0; mm <= 4; mm++ {
		b.Run(fmt.Sprintf("Mismatches%d", mm),
			func(b *testing.B) {
				for n := 0; n < b.N; n++ {
					mismatches("ACGTACGTGATCGATC", mm)
				}
			})
	}
}
