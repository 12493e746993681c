// Package gendata converts SGF game records into sharded TFRecord files of
// training examples.
//
// Every move of a 19x19 game after the first few becomes one example: the
// position before the move, the move itself as the policy target and the
// game result from the mover's point of view as the value target.
package gendata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/zebrago/internal/board"
	"github.com/born-ml/zebrago/internal/config"
	"github.com/born-ml/zebrago/internal/dataset"
	"github.com/born-ml/zebrago/internal/record"
	"github.com/born-ml/zebrago/internal/sgf"
	"github.com/born-ml/zebrago/internal/tfrecord"
)

// ErrBoardSize is returned for positions that are not 19x19.
var ErrBoardSize = errors.New("gendata: board is not 19x19")

// Stats summarizes a generator run.
type Stats struct {
	Files    int
	Failed   int
	Examples int
	Shards   []string
}

// ShardName returns the path of output shard n.
func ShardName(prefix string, n int) string {
	return fmt.Sprintf("%s-%04d.rio", prefix, n)
}

// Position converts the board before next into a training sample. Passes
// and off-board moves are rejected.
func Position(b *board.Board, next board.Point, outcome float32, note string) (*record.Sample, error) {
	if b.Width() != record.BoardSize || b.Height() != record.BoardSize {
		return nil, fmt.Errorf("%w: %dx%d", ErrBoardSize, b.Width(), b.Height())
	}
	if !b.OnBoard(next) {
		return nil, fmt.Errorf("%w: next move %v", record.ErrInvalidLabel, next)
	}
	s := record.NewSample()
	s.Next = int32(record.MoveIndex(next.X, next.Y))
	s.Outcome = outcome
	s.Note = note
	f := b.Features()
	for c := range f.Planes {
		s.SetPlane(c, f.Planes[c])
	}
	return s, nil
}

// Examples replays g and returns one sample per move from step minSteps
// on. Games not played on a 19x19 board yield no samples.
func Examples(g *sgf.GameRecord, note string, minSteps int) ([]*record.Sample, error) {
	if g.Width != record.BoardSize || g.Height != record.BoardSize {
		return nil, nil
	}
	var out []*record.Sample
	_, err := sgf.Replay(g, func(ctx *sgf.ReplayContext) error {
		if ctx.Step < minSteps || ctx.Next.IsPass() {
			return nil
		}
		var outcome float32
		if ctx.Result > 0 {
			outcome = 1
		}
		if ctx.Board.ToPlay() == board.White {
			outcome = 1 - outcome
		}
		s, err := Position(ctx.Board, ctx.Next, outcome, note)
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type result struct {
	index   int
	path    string
	samples []*record.Sample
	err     error
}

// Run converts every SGF file matched by cfg.SGFFiles. Files that fail to
// parse or replay, or that produce no examples, are logged and counted in
// Stats.Failed. Shards are written in input file order regardless of the
// number of workers.
func Run(ctx context.Context, cfg config.Gen, logger *log.Logger) (Stats, error) {
	if err := cfg.Validate(); err != nil {
		return Stats{}, err
	}
	files, err := dataset.Glob(cfg.SGFFiles)
	if err != nil {
		return Stats{}, err
	}
	logger.Printf("found %d sgf files", len(files))

	if dir := filepath.Dir(cfg.OutputPrefix); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Stats{}, err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	paths := make(chan int)
	results := make(chan result, cfg.Workers)

	g.Go(func() error {
		defer close(paths)
		for i := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			select {
			case paths <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	workers, wctx := errgroup.WithContext(ctx)
	for range cfg.Workers {
		workers.Go(func() error {
			for i := range paths {
				r := result{index: i, path: files[i]}
				game, err := sgf.ReadFile(files[i])
				if err == nil {
					r.samples, err = Examples(game, filepath.Base(files[i]), cfg.MinSteps)
				}
				r.err = err
				select {
				case results <- r:
				case <-wctx.Done():
					return wctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(results)
		return workers.Wait()
	})

	stats := Stats{Files: len(files)}
	w := &shardWriter{prefix: cfg.OutputPrefix, perFile: cfg.ExamplesPerFile, compression: cfg.CompressionType(), logger: logger}
	g.Go(func() error {
		pending := make(map[int]result)
		next := 0
		for r := range results {
			pending[r.index] = r
			for {
				r, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				switch {
				case r.err != nil:
					logger.Printf("WARNING: failed in processing %s: %v", r.path, r.err)
					stats.Failed++
					continue
				case len(r.samples) == 0:
					logger.Printf("WARNING: no examples in %s", r.path)
					stats.Failed++
					continue
				}
				logger.Printf("converted %d examples from %s", len(r.samples), r.path)
				for _, s := range r.samples {
					if err := w.write(s); err != nil {
						return err
					}
				}
				stats.Examples += len(r.samples)
			}
		}
		return nil
	})

	err = g.Wait()
	if cerr := w.close(); err == nil {
		err = cerr
	}
	stats.Shards = w.shards
	if err != nil {
		return stats, err
	}
	logger.Printf("total examples: %d, %d files failed out of %d files", stats.Examples, stats.Failed, stats.Files)
	return stats, nil
}

// shardWriter rotates output files every perFile records.
type shardWriter struct {
	prefix      string
	perFile     int
	compression tfrecord.Compression
	logger      *log.Logger

	cur    *tfrecord.Writer
	shards []string
}

func (w *shardWriter) write(s *record.Sample) error {
	if w.cur != nil && w.cur.Count() >= w.perFile {
		if err := w.close(); err != nil {
			return err
		}
	}
	if w.cur == nil {
		path := ShardName(w.prefix, len(w.shards))
		cur, err := tfrecord.Create(path, w.compression)
		if err != nil {
			return err
		}
		w.cur = cur
		w.shards = append(w.shards, path)
	}
	return w.cur.Write(record.Encode(s))
}

func (w *shardWriter) close() error {
	if w.cur == nil {
		return nil
	}
	n := w.cur.Count()
	err := w.cur.Close()
	w.cur = nil
	if err != nil {
		return err
	}
	w.logger.Printf("wrote %d examples to %s", n, w.shards[len(w.shards)-1])
	return nil
}
