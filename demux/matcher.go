package demux

import "fmt"

// maxIndexedMismatches bounds the neighbourhood size of the lookup index.
const maxIndexedMismatches = 2

// Policy configures where barcodes are read and how much they may differ.
type Policy struct {
	Offset        int  // start of the forward barcode window
	ReverseOffset int  // start of the reverse barcode window (dual tables)
	MaxMismatches int  // per barcode, Hamming distance
	Trim          bool // strip read bases up to the end of the window
}

// Status tells why a pair was or was not assigned.
type Status uint8

const (
	Assigned Status = iota
	NoMatch
	Ambiguous
	TooShort
)

var statusNames = [...]string{"assigned", "no_match", "ambiguous", "too_short"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", s)
}

// Assignment is the outcome of classifying one pair.
type Assignment struct {
	Status   Status
	Sample   int // index into the barcode table, -1 unless Assigned
	Distance int
}

// Assigned reports whether the pair belongs to a sample.
func (a Assignment) Assigned() bool { return a.Status == Assigned }

type indexEntry struct {
	sample    int
	distance  int
	ambiguous bool
}

// Matcher classifies read pairs against a barcode table. It is safe for
// concurrent use.
type Matcher struct {
	table  *BarcodeTable
	policy Policy
	index  map[string]indexEntry
}

// NewMatcher prepares a matcher. Single-barcode tables with a small
// mismatch budget get a precomputed lookup index.
func NewMatcher(table *BarcodeTable, policy Policy) (*Matcher, error) {
	if policy.Offset < 0 || policy.ReverseOffset < 0 {
		return nil, fmt.Errorf("barcode offsets must not be negative")
	}
	if policy.MaxMismatches < 0 {
		return nil, fmt.Errorf("mismatches must not be negative")
	}
	m := &Matcher{table: table, policy: policy}
	if !table.Dual && policy.MaxMismatches <= maxIndexedMismatches {
		m.index = buildIndex(table, policy.MaxMismatches)
	}
	return m, nil
}

// Table returns the barcode table the matcher was built from.
func (m *Matcher) Table() *BarcodeTable { return m.table }

// Policy returns the matching policy.
func (m *Matcher) Policy() Policy { return m.policy }

func buildIndex(table *BarcodeTable, k int) map[string]indexEntry {
	index := make(map[string]indexEntry)
	for i, e := range table.Entries {
		for variant := range neighbourhood(e.Barcode, k) {
			d := hamming([]byte(variant), e.Barcode, k)
			if d > k {
				continue
			}
			cur, ok := index[variant]
			switch {
			case !ok || d < cur.distance:
				index[variant] = indexEntry{sample: i, distance: d}
			case d == cur.distance && cur.sample != i:
				cur.ambiguous = true
				index[variant] = cur
			}
		}
	}
	return index
}

func plainWindow(w []byte) bool {
	for _, c := range w {
		switch c {
		case 'A', 'C', 'G', 'T', 'N':
		default:
			return false
		}
	}
	return true
}

// Classify assigns the pair to the unique closest sample within the
// mismatch budget. Ties at the minimal distance are Ambiguous.
func (m *Matcher) Classify(pair *ReadPair) Assignment {
	start, end := m.policy.Offset, m.policy.Offset+m.table.Length
	if m.tooShort(pair.Forward.Seq, end) {
		return Assignment{Status: TooShort, Sample: -1}
	}
	window := pair.Forward.Seq[start:end]

	if m.table.Dual {
		rstart, rend := m.policy.ReverseOffset, m.policy.ReverseOffset+m.table.ReverseLength
		if m.tooShort(pair.Reverse.Seq, rend) {
			return Assignment{Status: TooShort, Sample: -1}
		}
		return m.scan(window, pair.Reverse.Seq[rstart:rend])
	}

	if m.index != nil && plainWindow(window) {
		hit, ok := m.index[string(window)]
		switch {
		case !ok:
			return Assignment{Status: NoMatch, Sample: -1}
		case hit.ambiguous:
			return Assignment{Status: Ambiguous, Sample: -1, Distance: hit.distance}
		default:
			return Assignment{Status: Assigned, Sample: hit.sample, Distance: hit.distance}
		}
	}
	return m.scan(window, nil)
}

// tooShort reports whether a read cannot hold the window, or would be
// left empty by trimming.
func (m *Matcher) tooShort(seq []byte, end int) bool {
	if m.policy.Trim {
		return len(seq) <= end
	}
	return len(seq) < end
}

// scan compares the windows against every entry.
func (m *Matcher) scan(window, reverse []byte) Assignment {
	k := m.policy.MaxMismatches
	best, bestDistance, ties := -1, 0, 0
	for i, e := range m.table.Entries {
		d := hamming(window, e.Barcode, k)
		if d > k {
			continue
		}
		if reverse != nil {
			rd := hamming(reverse, e.ReverseBarcode, k)
			if rd > k {
				continue
			}
			d += rd
		}
		switch {
		case best < 0 || d < bestDistance:
			best, bestDistance, ties = i, d, 1
		case d == bestDistance:
			ties++
		}
	}
	switch {
	case best < 0:
		return Assignment{Status: NoMatch, Sample: -1}
	case ties > 1:
		return Assignment{Status: Ambiguous, Sample: -1, Distance: bestDistance}
	}
	return Assignment{Status: Assigned, Sample: best, Distance: bestDistance}
}

// trim removes the bases up to the end of the barcode windows.
func (m *Matcher) trim(pair *ReadPair) {
	if !m.policy.Trim {
		return
	}
	end := m.policy.Offset + m.table.Length
	pair.Forward.Seq, pair.Forward.Qual = pair.Forward.Seq[end:], pair.Forward.Qual[end:]
	if m.table.Dual {
		rend := m.policy.ReverseOffset + m.table.ReverseLength
		pair.Reverse.Seq, pair.Reverse.Qual = pair.Reverse.Seq[rend:], pair.Reverse.Qual[rend:]
	}
}
