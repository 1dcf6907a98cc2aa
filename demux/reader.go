package demux

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/xopen"
)

// Record is one FASTQ entry. Header excludes the leading '@'.
type Record struct {
	Header []byte
	Seq    []byte
	Qual   []byte
}

// ReadPair holds two mates read in lock step.
type ReadPair struct {
	ID      string
	Forward Record
	Reverse Record
}

// PairSource produces read pairs until io.EOF. Errors wrapping
// ErrMalformedRecord are recoverable, all others end the stream.
type PairSource interface {
	Next() (*ReadPair, error)
}

// fastqReader reads four-line FASTQ records from a (possibly gzipped) file.
type fastqReader struct {
	name    string
	r       *xopen.Reader
	records int64
}

func openFastq(filename string) (*fastqReader, error) {
	r, err := xopen.Ropen(filename)
	if err != nil {
		return nil, err
	}
	return &fastqReader{name: filename, r: r}, nil
}

func (fr *fastqReader) line() ([]byte, error) {
	line, err := fr.r.ReadBytes('\n')
	if err == io.EOF && len(line) > 0 {
		err = nil // last line without newline
	}
	return bytes.TrimRight(line, "\r\n"), err
}

// next returns io.EOF at a clean end of file.
func (fr *fastqReader) next() (*Record, error) {
	var lines [4][]byte
	for i := range lines {
		line, err := fr.line()
		if err != nil {
			if err != io.EOF {
				return nil, err
			}
			if i == 0 {
				return nil, io.EOF
			}
			fr.records++
			return nil, &RecordError{File: fr.name, Record: fr.records, Reason: fmt.Sprintf("only %d of 4 lines", i), Err: ErrTruncated}
		}
		if i == 0 && len(line) == 0 {
			// tolerate trailing blank lines
			if _, err := fr.r.Peek(1); err == io.EOF {
				return nil, io.EOF
			}
		}
		lines[i] = line
	}
	fr.records++

	reason := ""
	switch {
	case len(lines[0]) == 0 || lines[0][0] != '@':
		reason = "header does not start with '@'"
	case len(lines[2]) == 0 || lines[2][0] != '+':
		reason = "separator does not start with '+'"
	case len(lines[1]) == 0:
		reason = "empty sequence"
	case len(lines[1]) != len(lines[3]):
		reason = fmt.Sprintf("sequence length %d differs from quality length %d", len(lines[1]), len(lines[3]))
	default:
		if err := seq.DNAredundant.IsValid(lines[1]); err != nil {
			reason = err.Error()
		}
	}
	if reason != "" {
		return nil, &RecordError{File: fr.name, Record: fr.records, Reason: reason, Err: ErrMalformedRecord}
	}
	return &Record{Header: lines[0][1:], Seq: lines[1], Qual: lines[3]}, nil
}

func (fr *fastqReader) Close() error { return fr.r.Close() }

// PairReader streams synchronized pairs from a forward and a reverse file.
type PairReader struct {
	fwd, rev *fastqReader
	pairs    int64
}

// OpenPairReader opens both files for incremental reading.
func OpenPairReader(forward, reverse string) (*PairReader, error) {
	fwd, err := openFastq(forward)
	if err != nil {
		return nil, err
	}
	rev, err := openFastq(reverse)
	if err != nil {
		_ = fwd.Close()
		return nil, err
	}
	return &PairReader{fwd: fwd, rev: rev}, nil
}

// Pairs returns the number of complete pairs consumed so far, malformed
// ones included.
func (r *PairReader) Pairs() int64 { return r.pairs }

// Next returns the next pair, io.EOF when both files end together.
func (r *PairReader) Next() (*ReadPair, error) {
	f, ferr := r.fwd.next()
	v, rerr := r.rev.next()

	// fatal errors first, so a truncated mate is never reported as malformed
	for _, err := range []error{ferr, rerr} {
		if err != nil && err != io.EOF && !errors.Is(err, ErrMalformedRecord) {
			return nil, err
		}
	}
	switch {
	case ferr == io.EOF && rerr == io.EOF:
		return nil, io.EOF
	case ferr == io.EOF:
		return nil, fmt.Errorf("%w: %s ended after %d records, %s continues", ErrDesync, r.fwd.name, r.pairs, r.rev.name)
	case rerr == io.EOF:
		return nil, fmt.Errorf("%w: %s ended after %d records, %s continues", ErrDesync, r.rev.name, r.pairs, r.fwd.name)
	}
	r.pairs++
	if ferr != nil {
		return nil, ferr
	}
	if rerr != nil {
		return nil, rerr
	}

	id := mateID(f.Header)
	if !bytes.Equal(id, mateID(v.Header)) {
		return nil, fmt.Errorf("%w: pair %d: %q and %q", ErrPairMismatch, r.pairs, f.Header, v.Header)
	}
	return &ReadPair{ID: string(id), Forward: *f, Reverse: *v}, nil
}

// Close closes both inputs.
func (r *PairReader) Close() error {
	ferr := r.fwd.Close()
	rerr := r.rev.Close()
	if ferr != nil {
		return ferr
	}
	return rerr
}

// mateID cuts a read header at the first blank and drops a /1, /2 or /3
// mate suffix.
func mateID(header []byte) []byte {
	if i := bytes.IndexAny(header, " \t"); i >= 0 {
		header = header[:i]
	}
	if n := len(header); n >= 2 && header[n-2] == '/' && header[n-1] >= '1' && header[n-1] <= '3' {
		header = header[:n-2]
	}
	return header
}
