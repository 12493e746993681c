// Package dataset streams training records from TFRecord files into
// shuffled, fixed-size batches.
//
// The pipeline runs in the background:
//
//	files -> reader -> decoders -> shuffle buffer -> batcher -> Next()
//
// The first read or decode error stops every stage and is returned by
// the following call to Next.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/zebrago/internal/record"
	"github.com/born-ml/zebrago/internal/tfrecord"
)

// Errors returned by the pipeline.
var (
	ErrNoFiles = errors.New("dataset: no files match pattern")
	ErrEmpty   = errors.New("dataset: files contain no records")
	ErrClosed  = errors.New("dataset: pipeline closed")
)

// Options configures a Pipeline.
type Options struct {
	BatchSize     int
	ShuffleBuffer int // 0 or 1 keeps file order
	Repeat        bool
	Seed          uint64
	Workers       int // decode goroutines
	Prefetch      int // batches buffered ahead of Next
	Compression   tfrecord.Compression
}

// DefaultOptions returns the options used for training.
func DefaultOptions() Options {
	return Options{
		BatchSize:     64,
		ShuffleBuffer: 12800,
		Repeat:        true,
		Seed:          1,
		Workers:       1,
		Prefetch:      4,
		Compression:   tfrecord.Zlib,
	}
}

// Batch is a group of decoded samples laid out for the model input.
type Batch struct {
	Size int
	// Features is [Size][19][19][7] flattened.
	Features []float32
	Next     []int32
	Outcome  []float32
	Notes    []string
}

// newBatch packs samples into a Batch.
func newBatch(samples []*record.Sample) *Batch {
	b := &Batch{
		Size:     len(samples),
		Features: make([]float32, 0, len(samples)*record.SampleSize),
		Next:     make([]int32, len(samples)),
		Outcome:  make([]float32, len(samples)),
		Notes:    make([]string, len(samples)),
	}
	for i, s := range samples {
		b.Features = append(b.Features, s.Features...)
		b.Next[i] = s.Next
		b.Outcome[i] = s.Outcome
		b.Notes[i] = s.Note
	}
	return b
}

// Glob expands a comma separated list of glob patterns into a sorted,
// de-duplicated file list.
func Glob(patterns string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, p := range strings.Split(patterns, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("dataset: bad pattern %q: %w", p, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; !ok {
				seen[m] = struct{}{}
				files = append(files, m)
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoFiles, patterns)
	}
	sort.Strings(files)
	return files, nil
}

// Pipeline delivers batches produced by background goroutines.
type Pipeline struct {
	batches <-chan *Batch
	cancel  context.CancelFunc
	group   *errgroup.Group
	closed  bool
	err     error
}

// Open starts a pipeline over files.
func Open(ctx context.Context, files []string, opts Options) (*Pipeline, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("dataset: batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Prefetch < 0 {
		opts.Prefetch = 0
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	raw := make(chan []byte, 256)
	samples := make(chan *record.Sample, 256)
	batches := make(chan *Batch, opts.Prefetch)

	g.Go(func() error {
		defer close(raw)
		return readFiles(ctx, files, opts, raw)
	})

	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			return decode(ctx, raw, samples)
		})
	}
	g.Go(func() error {
		wg.Wait()
		close(samples)
		return nil
	})

	g.Go(func() error {
		defer close(batches)
		return batch(ctx, samples, batches, opts)
	})

	return &Pipeline{batches: batches, cancel: cancel, group: g}, nil
}

// Next returns the next batch. It returns io.EOF once a non-repeating
// pipeline is exhausted; the last batch may be smaller than BatchSize.
func (p *Pipeline) Next() (*Batch, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.err != nil {
		return nil, p.err
	}
	if b, ok := <-p.batches; ok {
		return b, nil
	}
	if err := p.group.Wait(); err != nil {
		p.err = err
		return nil, err
	}
	p.err = io.EOF
	return nil, io.EOF
}

// Close stops the pipeline and waits for its goroutines.
func (p *Pipeline) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.cancel()
	for range p.batches {
	}
	err := p.group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func readFiles(ctx context.Context, files []string, opts Options, out chan<- []byte) error {
	for {
		n := 0
		for _, path := range files {
			count, err := readFile(ctx, path, opts.Compression, out)
			if err != nil {
				return err
			}
			n += count
		}
		if !opts.Repeat {
			return nil
		}
		if n == 0 {
			return ErrEmpty
		}
	}
}

func readFile(ctx context.Context, path string, c tfrecord.Compression, out chan<- []byte) (int, error) {
	r, err := tfrecord.Open(path, c)
	if err != nil {
		return 0, fmt.Errorf("dataset: %w", err)
	}
	defer func() { _ = r.Close() }()

	for {
		data, err := r.Next()
		if err == io.EOF {
			return r.Count(), nil
		}
		if err != nil {
			return r.Count(), fmt.Errorf("dataset: %s: %w", path, err)
		}
		select {
		case out <- data:
		case <-ctx.Done():
			return r.Count(), ctx.Err()
		}
	}
}

func decode(ctx context.Context, in <-chan []byte, out chan<- *record.Sample) error {
	for data := range in {
		s, err := record.Decode(data)
		if err != nil {
			return fmt.Errorf("dataset: %w", err)
		}
		select {
		case out <- s:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// batch shuffles samples through a fixed-size buffer and groups them.
// Once the buffer is full each incoming sample replaces a randomly chosen
// one, which is emitted.
func batch(ctx context.Context, in <-chan *record.Sample, out chan<- *Batch, opts Options) error {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	buffer := make([]*record.Sample, 0, max(opts.ShuffleBuffer, 1))
	pending := make([]*record.Sample, 0, opts.BatchSize)

	emit := func(s *record.Sample) error {
		pending = append(pending, s)
		if len(pending) < opts.BatchSize {
			return nil
		}
		b := newBatch(pending)
		pending = pending[:0]
		select {
		case out <- b:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for s := range in {
		if opts.ShuffleBuffer <= 1 {
			if err := emit(s); err != nil {
				return err
			}
			continue
		}
		if len(buffer) < opts.ShuffleBuffer {
			buffer = append(buffer, s)
			continue
		}
		i := rng.IntN(len(buffer))
		s, buffer[i] = buffer[i], s
		if err := emit(s); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rng.Shuffle(len(buffer), func(i, j int) { buffer[i], buffer[j] = buffer[j], buffer[i] })
	for _, s := range buffer {
		if err := emit(s); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		select {
		case out <- newBatch(pending):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ReadSamples decodes up to limit records from one file. A limit of zero
// or less reads the whole file.
func ReadSamples(path string, c tfrecord.Compression, limit int) ([]*record.Sample, error) {
	r, err := tfrecord.Open(path, c)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer func() { _ = r.Close() }()

	var out []*record.Sample
	for limit <= 0 || len(out) < limit {
		data, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, fmt.Errorf("dataset: %s: %w", path, err)
		}
		s, err := record.Decode(data)
		if err != nil {
			return out, fmt.Errorf("dataset: %s: record %d: %w", path, r.Count()-1, err)
		}
		out = append(out, s)
	}
	return out, nil
}
