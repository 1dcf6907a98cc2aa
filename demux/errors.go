package demux

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRecord marks a FASTQ block that could be consumed but not
	// parsed. The pair is skipped and counted; the stream stays in lock step.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrTruncated marks a FASTQ block cut short by the end of the file.
	ErrTruncated = errors.New("truncated record")

	// ErrPairMismatch is returned when mates carry different read names.
	ErrPairMismatch = errors.New("read names of mates differ")

	// ErrDesync is returned when one input ends before the other.
	ErrDesync = errors.New("forward and reverse inputs have different record counts")

	// ErrAmbiguousBarcode is returned at load time for duplicate barcodes.
	ErrAmbiguousBarcode = errors.New("ambiguous barcode")

	// ErrNoSamplesAssigned is returned by EmitManifest when no sample
	// received a single pair.
	ErrNoSamplesAssigned = errors.New("no read pairs were assigned to any sample")

	// ErrTooManyMalformed is returned when malformed records pass the
	// configured limits, which usually means the inputs are not FASTQ.
	ErrTooManyMalformed = errors.New("too many malformed records")
)

// RecordError locates a per-record problem in one of the input files.
type RecordError struct {
	File   string
	Record int64 // 1-based
	Reason string
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: record %d: %s: %v", e.File, e.Record, e.Reason, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// OutputError reports a failed write, flush, close or rename of an output file.
type OutputError struct {
	Path string
	Op   string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }
