package demux

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/pgzip"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"
)

// SampleOutputs describes the finished files of one sample.
type SampleOutputs struct {
	SampleID    string
	ForwardPath string
	ReversePath string
	Pairs       int64
}

// OutputNames returns the forward and reverse file names used for a sample.
func OutputNames(sample string) (forward, reverse string) {
	return sample + "_L001_R1_001.fastq.gz", sample + "_L001_R2_001.fastq.gz"
}

// fastqStream is one gzip FASTQ output. The layers are kept apart so that
// errors from the compressor and the file surface on flush and close.
type fastqStream struct {
	path string
	f    *os.File
	gz   *pgzip.Writer
	out  *xopen.Writer // buffered front for fastx
}

func createStream(path string) (*fastqStream, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, &OutputError{Path: path, Op: "create", Err: err}
	}
	gz := pgzip.NewWriter(f)
	return &fastqStream{
		path: path,
		f:    f,
		gz:   gz,
		out:  &xopen.Writer{Writer: bufio.NewWriterSize(gz, 1<<16)},
	}, nil
}

func (s *fastqStream) flush() error {
	if err := s.out.Writer.Flush(); err != nil {
		return &OutputError{Path: s.path, Op: "write", Err: err}
	}
	return nil
}

// close flushes and closes every layer, reporting the first failure.
func (s *fastqStream) close() error {
	err := s.flush()
	if cerr := s.gz.Close(); cerr != nil && err == nil {
		err = &OutputError{Path: s.path, Op: "compress", Err: cerr}
	}
	if cerr := s.f.Close(); cerr != nil && err == nil {
		err = &OutputError{Path: s.path, Op: "close", Err: cerr}
	}
	return err
}

// sampleWriter owns both output streams of one sample. Batches are written
// by a single goroutine, forward record then reverse record, so the two
// files stay pair-aligned no matter how many workers feed it.
type sampleWriter struct {
	pool    *WriterPool
	outputs SampleOutputs
	tmp     [2]string
	streams [2]*fastqStream
	batches chan []*ReadPair
	done    chan struct{}
	err     error // owned by the goroutine until done is closed
}

func newSampleWriter(p *WriterPool, sample string) (*sampleWriter, error) {
	fwd, rev := OutputNames(sample)
	w := &sampleWriter{
		pool: p,
		outputs: SampleOutputs{
			SampleID:    sample,
			ForwardPath: filepath.Join(p.dir, fwd),
			ReversePath: filepath.Join(p.dir, rev),
		},
		batches: make(chan []*ReadPair, p.queue),
		done:    make(chan struct{}),
	}
	for i, name := range []string{fwd, rev} {
		w.tmp[i] = filepath.Join(p.dir, ".partial-"+p.tag+"."+name)
		stream, err := createStream(w.tmp[i])
		if err != nil {
			for j := 0; j < i; j++ {
				_ = w.streams[j].close()
				_ = os.Remove(w.tmp[j])
			}
			return nil, err
		}
		w.streams[i] = stream
	}

	go func(w *sampleWriter) {
		defer close(w.done)
		for pairs := range w.batches {
			if w.err != nil {
				continue // keep draining so senders never block
			}
			if err := w.write(pairs); err != nil {
				w.err = err
				w.pool.fail(err)
			}
		}
		for _, stream := range w.streams {
			if err := stream.close(); err != nil && w.err == nil {
				w.err = err
				w.pool.fail(err)
			}
		}
	}(w)
	return w, nil
}

func (w *sampleWriter) write(pairs []*ReadPair) error {
	fwd := &fastx.Record{Seq: &seq.Seq{}}
	rev := &fastx.Record{Seq: &seq.Seq{}}
	for _, pair := range pairs {
		fwd.Name, fwd.Seq.Seq, fwd.Seq.Qual = pair.Forward.Header, pair.Forward.Seq, pair.Forward.Qual
		rev.Name, rev.Seq.Seq, rev.Seq.Qual = pair.Reverse.Header, pair.Reverse.Seq, pair.Reverse.Qual
		fwd.FormatToWriter(w.streams[0].out, 0)
		rev.FormatToWriter(w.streams[1].out, 0)
		w.outputs.Pairs++
	}
	// bufio errors are sticky, so one flush per batch catches any failed write
	for _, stream := range w.streams {
		if err := stream.flush(); err != nil {
			return err
		}
	}
	return nil
}

// WriterPool hands out one sampleWriter per sample, created on first use.
// Files are written under temporary names and only renamed into place by
// a successful Close.
type WriterPool struct {
	dir   string
	tag   string
	queue int

	mu      sync.Mutex
	writers map[string]*sampleWriter
	order   []*sampleWriter
	closed  bool

	failOnce sync.Once
	failErr  error
	failed   chan struct{}
}

// NewWriterPool creates dir if needed. tag distinguishes the temporary
// files of concurrent or crashed runs.
func NewWriterPool(dir, tag string) (*WriterPool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &WriterPool{
		dir:     dir,
		tag:     tag,
		queue:   4,
		writers: make(map[string]*sampleWriter),
		failed:  make(chan struct{}),
	}, nil
}

func (p *WriterPool) fail(err error) {
	p.failOnce.Do(func() {
		p.failErr = err
		close(p.failed)
	})
}

// Err returns the first output error of the run, if any.
func (p *WriterPool) Err() error {
	select {
	case <-p.failed:
		return p.failErr
	default:
		return nil
	}
}

func (p *WriterPool) writer(sample string) (*sampleWriter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("write to sample %q after the writer pool was closed", sample)
	}
	if w, ok := p.writers[sample]; ok {
		return w, nil
	}
	w, err := newSampleWriter(p, sample)
	if err != nil {
		return nil, err
	}
	p.writers[sample] = w
	p.order = append(p.order, w)
	return w, nil
}

// Write queues pairs for a sample. The pool takes ownership of the slice.
// Write must not be called concurrently with Close or Abort.
func (p *WriterPool) Write(sample string, pairs []*ReadPair) error {
	if err := p.Err(); err != nil {
		return err
	}
	w, err := p.writer(sample)
	if err != nil {
		p.fail(err)
		return err
	}
	w.batches <- pairs
	return nil
}

// shutdown closes every stream exactly once and waits for the writers.
func (p *WriterPool) shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for _, w := range p.order {
		close(w.batches)
	}
	var first error
	for _, w := range p.order {
		<-w.done
		if w.err != nil && first == nil {
			first = w.err
		}
	}
	return first
}

func (p *WriterPool) removePartials() error {
	var first error
	for _, w := range p.order {
		for _, tmp := range w.tmp {
			if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) && first == nil {
				first = err
			}
		}
	}
	return first
}

// Close flushes and closes all outputs, then renames them to their final
// names. On any failure no output of this run is left behind.
func (p *WriterPool) Close() ([]SampleOutputs, error) {
	err := p.shutdown()
	if err == nil {
		err = p.Err()
	}
	if err != nil {
		_ = p.removePartials()
		return nil, err
	}

	outputs := make([]SampleOutputs, 0, len(p.order))
	var renamed []string
	for _, w := range p.order {
		for i, final := range []string{w.outputs.ForwardPath, w.outputs.ReversePath} {
			if err := os.Rename(w.tmp[i], final); err != nil {
				for _, done := range renamed {
					_ = os.Remove(done)
				}
				_ = p.removePartials()
				return nil, &OutputError{Path: final, Op: "rename", Err: err}
			}
			renamed = append(renamed, final)
		}
		outputs = append(outputs, w.outputs)
	}
	return outputs, nil
}

// Abort closes all outputs and removes them.
func (p *WriterPool) Abort() error {
	_ = p.shutdown()
	return p.removePartials()
}
