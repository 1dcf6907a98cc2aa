package demux

import (
	"fmt"
	"io"
)

// RunStatistics summarizes one demultiplexing run.
// PairsSeen always equals TotalAssigned() + Unassigned.
type RunStatistics struct {
	Samples  []string // table order
	Assigned []int64  // parallel to Samples

	PairsSeen  int64
	Unassigned int64

	// breakdown of Unassigned
	NoMatch   int64
	Ambiguous int64
	TooShort  int64
	Malformed int64
}

func newRunStatistics(samples []string) *RunStatistics {
	return &RunStatistics{Samples: samples, Assigned: make([]int64, len(samples))}
}

func (s *RunStatistics) count(a Assignment) {
	s.PairsSeen++
	switch a.Status {
	case Assigned:
		s.Assigned[a.Sample]++
		return
	case NoMatch:
		s.NoMatch++
	case Ambiguous:
		s.Ambiguous++
	case TooShort:
		s.TooShort++
	}
	s.Unassigned++
}

func (s *RunStatistics) countMalformed(n int64) {
	s.PairsSeen += n
	s.Malformed += n
	s.Unassigned += n
}

func (s *RunStatistics) merge(other *RunStatistics) {
	for i, n := range other.Assigned {
		s.Assigned[i] += n
	}
	s.PairsSeen += other.PairsSeen
	s.Unassigned += other.Unassigned
	s.NoMatch += other.NoMatch
	s.Ambiguous += other.Ambiguous
	s.TooShort += other.TooShort
	s.Malformed += other.Malformed
}

// TotalAssigned sums the pairs assigned to any sample.
func (s *RunStatistics) TotalAssigned() (total int64) {
	for _, n := range s.Assigned {
		total += n
	}
	return total
}

// AssignedTo returns the pairs assigned to one sample.
func (s *RunStatistics) AssignedTo(sample string) int64 {
	for i, id := range s.Samples {
		if id == sample {
			return s.Assigned[i]
		}
	}
	return 0
}

// WriteSummary prints the run summary. The last line is either
// "completed with N unassigned" or "aborted: <err>".
func (s *RunStatistics) WriteSummary(w io.Writer, runErr error) error {
	if _, err := fmt.Fprintf(w, "pairs seen\t%d\n", s.PairsSeen); err != nil {
		return err
	}
	for i, id := range s.Samples {
		if _, err := fmt.Fprintf(w, "assigned\t%s\t%d\n", id, s.Assigned[i]); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "unassigned\t%d\t(no_match %d, ambiguous %d, too_short %d, malformed %d)\n",
		s.Unassigned, s.NoMatch, s.Ambiguous, s.TooShort, s.Malformed); err != nil {
		return err
	}
	var err error
	if runErr != nil {
		_, err = fmt.Fprintf(w, "aborted: %v\n", runErr)
	} else {
		_, err = fmt.Fprintf(w, "completed with %d unassigned\n", s.Unassigned)
	}
	return err
}
