package demux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/exascience/pargo/pipeline"
)

// EngineOptions tunes the demultiplexing pipeline.
type EngineOptions struct {
	// Threads bounds the classify and route workers. Values below 1 mean 1.
	Threads int

	// BatchSize is the number of pairs fetched per batch.
	BatchSize int

	// MalformedProbe is the number of leading pairs that must not all be
	// malformed. 0 disables the probe.
	MalformedProbe int

	// MaxMalformed aborts the run once more pairs are malformed. 0 means
	// unlimited.
	MaxMalformed int64
}

// DefaultEngineOptions returns sequential processing with the usual probe.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{Threads: 1, BatchSize: 4096, MalformedProbe: 100}
}

// maxLoggedMalformed limits how many malformed records are logged one by one.
const maxLoggedMalformed = 10

type pairBatch struct {
	pairs     []*ReadPair
	malformed int64
}

// pairSource adapts a PairSource to a pargo pipeline.Source. Fetch is only
// ever called by the pipeline's single producer.
type pairSource struct {
	ctx  context.Context
	src  PairSource
	opts EngineOptions

	err       error
	data      *pairBatch
	seen      int64
	malformed int64
}

func (s *pairSource) Err() error { return s.err }

func (s *pairSource) Prepare(_ context.Context) int { return -1 }

func (s *pairSource) Data() interface{} { return s.data }

// Fetch counts malformed pairs as fetched, so only the end of input or an
// error yields an empty fetch.
func (s *pairSource) Fetch(size int) (fetched int) {
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return 0
	}
	batch := &pairBatch{pairs: make([]*ReadPair, 0, size)}
	for fetched < size {
		pair, err := s.src.Next()
		if err == io.EOF {
			if s.seen > 0 && s.malformed == s.seen && s.opts.MalformedProbe > 0 {
				s.err = fmt.Errorf("%w: all %d pairs are malformed", ErrTooManyMalformed, s.seen)
				return 0
			}
			break
		}
		if err != nil && !errors.Is(err, ErrMalformedRecord) {
			s.err = err
			return 0
		}
		s.seen++
		fetched++
		if err != nil {
			s.malformed++
			batch.malformed++
			if s.malformed <= maxLoggedMalformed {
				log.Printf("skipping malformed pair %d: %v", s.seen, err)
			}
			if s.opts.MaxMalformed > 0 && s.malformed > s.opts.MaxMalformed {
				s.err = fmt.Errorf("%w: more than %d malformed pairs", ErrTooManyMalformed, s.opts.MaxMalformed)
				return 0
			}
		} else {
			batch.pairs = append(batch.pairs, pair)
		}
		if probe := int64(s.opts.MalformedProbe); probe > 0 && s.seen == probe && s.malformed == probe {
			s.err = fmt.Errorf("%w: the first %d pairs are all malformed, is the input FASTQ?", ErrTooManyMalformed, probe)
			return 0
		}
	}
	s.data = batch
	return fetched
}

// Run classifies every pair of source and routes assigned pairs to pool.
// On error the pool is aborted; on success the caller closes it.
// The returned statistics cover the pairs processed before any error.
func Run(ctx context.Context, source PairSource, matcher *Matcher, pool *WriterPool, opts EngineOptions) (*RunStatistics, error) {
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultEngineOptions().BatchSize
	}
	samples := matcher.Table().SampleIDs()
	total := newRunStatistics(samples)
	src := &pairSource{ctx: ctx, src: source, opts: opts}

	var p pipeline.Pipeline
	p.Source(src)
	p.SetVariableBatchSize(opts.BatchSize, opts.BatchSize)
	p.Add(
		pipeline.LimitedPar(opts.Threads, pipeline.Receive(func(_ int, data interface{}) interface{} {
			batch := data.(*pairBatch)
			stats := newRunStatistics(samples)
			stats.countMalformed(batch.malformed)
			groups := make(map[int][]*ReadPair)
			for _, pair := range batch.pairs {
				a := matcher.Classify(pair)
				stats.count(a)
				if a.Assigned() {
					matcher.trim(pair)
					groups[a.Sample] = append(groups[a.Sample], pair)
				}
			}
			for sample, pairs := range groups {
				if err := pool.Write(samples[sample], pairs); err != nil {
					p.SetErr(err)
					break
				}
			}
			return stats
		})),
		pipeline.Seq(pipeline.Receive(func(_ int, data interface{}) interface{} {
			total.merge(data.(*RunStatistics))
			return data
		})),
	)
	p.Run()

	err := p.Err()
	if err == nil {
		err = src.Err()
	}
	if err == nil {
		err = pool.Err()
	}
	if err != nil {
		if aerr := pool.Abort(); aerr != nil {
			log.Printf("removing partial outputs: %v", aerr)
		}
		return total, err
	}
	return total, nil
}
