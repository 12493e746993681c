// Package evaluate measures how often a network predicts the moves of
// recorded games and how well its value head separates winners from
// losers.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/born-ml/born/tensor"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/zebrago/internal/board"
	"github.com/born-ml/zebrago/internal/gendata"
	"github.com/born-ml/zebrago/internal/model"
	"github.com/born-ml/zebrago/internal/record"
	"github.com/born-ml/zebrago/internal/sgf"
)

// DefaultBatchSize is the number of positions scored per forward pass.
const DefaultBatchSize = 128

// valueBuckets splits [0, 1] for the value histograms.
const valueBuckets = 100

// ErrNoPositions is returned when no game yields a position to score.
var ErrNoPositions = errors.New("evaluate: no positions")

// Position is one recorded move with its context.
type Position struct {
	Sample *record.Sample
	// Result is positive if the player to move won the game.
	Result float32
}

// Scorer runs the network on a batch of flattened HWC features.
type Scorer interface {
	Score(features []float32, batch int) (model.Prediction, error)
}

type netScorer[B tensor.Backend] struct {
	net *model.DualNet[B]
}

// NewNetScorer scores positions with net in inference mode.
func NewNetScorer[B tensor.Backend](net *model.DualNet[B]) Scorer {
	return netScorer[B]{net: net}
}

func (s netScorer[B]) Score(features []float32, batch int) (model.Prediction, error) {
	in, err := model.InputTensor(features, batch, s.net.Backend())
	if err != nil {
		return model.Prediction{}, err
	}
	return s.net.Predict(in), nil
}

// GamePositions replays g and returns every non-pass move of a 19x19 game.
func GamePositions(g *sgf.GameRecord, note string) ([]Position, error) {
	if g.Width != record.BoardSize || g.Height != record.BoardSize {
		return nil, nil
	}
	var out []Position
	_, err := sgf.Replay(g, func(ctx *sgf.ReplayContext) error {
		if ctx.Next.IsPass() {
			return nil
		}
		result := ctx.Result
		if ctx.Board.ToPlay() == board.White {
			result = -result
		}
		s, err := gendata.Position(ctx.Board, ctx.Next, result, note)
		if err != nil {
			return err
		}
		out = append(out, Position{Sample: s, Result: result})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadPositions replays files concurrently and returns their positions in
// file order. Files that cannot be read or replayed are logged and skipped.
func LoadPositions(ctx context.Context, files []string, workers int, logger *log.Logger) ([]Position, error) {
	perFile := make([][]Position, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			game, err := sgf.ReadFile(path)
			if err == nil {
				perFile[i], err = GamePositions(game, filepath.Base(path))
			}
			if err != nil {
				logger.Printf("WARNING: skipping %s: %v", path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []Position
	for _, ps := range perFile {
		out = append(out, ps...)
	}
	logger.Printf("extracted %d positions from %d sgf files", len(out), len(files))
	return out, nil
}

// Report aggregates move prediction and value statistics.
type Report struct {
	Positions int
	// Counts of positions whose recorded move ranks first, in the top 3
	// and in the top 10 of the policy.
	Top1, Top3, Top10 int
	// Value outputs for positions won and lost by the player to move.
	Win, Lose *Histogram
}

func newReport() *Report {
	return &Report{
		Win:  NewHistogram(0, 1, valueBuckets),
		Lose: NewHistogram(0, 1, valueBuckets),
	}
}

func (r *Report) add(p Position, policy []float32, value float32) {
	rank := model.Rank(policy, int(p.Sample.Next))
	if rank == 0 {
		r.Top1++
	}
	if rank < 3 {
		r.Top3++
	}
	if rank < 10 {
		r.Top10++
	}
	if p.Result > 0 {
		r.Win.Count(value)
	} else {
		r.Lose.Count(value)
	}
	r.Positions++
}

func (r *Report) percent(n int) float64 {
	if r.Positions == 0 {
		return 0
	}
	return float64(n) * 100 / float64(r.Positions)
}

// Top1Percent returns the share of exact move predictions.
func (r *Report) Top1Percent() float64 { return r.percent(r.Top1) }

// Top3Percent returns the share of recorded moves in the top 3.
func (r *Report) Top3Percent() float64 { return r.percent(r.Top3) }

// Top10Percent returns the share of recorded moves in the top 10.
func (r *Report) Top10Percent() float64 { return r.percent(r.Top10) }

func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Positions: %d\n", r.Positions)
	fmt.Fprintf(&sb, "Top: %f%%\n", r.Top1Percent())
	fmt.Fprintf(&sb, "Top 3: %f%%\n", r.Top3Percent())
	fmt.Fprintf(&sb, "Top 10: %f%%\n", r.Top10Percent())
	fmt.Fprintf(&sb, "Winner score distribution: %s\n", r.Win)
	fmt.Fprintf(&sb, "Loser score distribution: %s\n", r.Lose)
	return sb.String()
}

// Run scores positions in batches and aggregates the results.
func Run(ctx context.Context, positions []Position, scorer Scorer, batchSize int) (*Report, error) {
	if len(positions) == 0 {
		return nil, ErrNoPositions
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	r := newReport()
	for start := 0; start < len(positions); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch := positions[start:min(start+batchSize, len(positions))]
		features := make([]float32, 0, len(batch)*record.SampleSize)
		for _, p := range batch {
			features = append(features, p.Sample.Features...)
		}
		pred, err := scorer.Score(features, len(batch))
		if err != nil {
			return nil, fmt.Errorf("evaluate: batch at %d: %w", start, err)
		}
		if len(pred.Policy) != len(batch) || len(pred.Value) != len(batch) {
			return nil, fmt.Errorf("evaluate: scorer returned %d policies and %d values for %d positions",
				len(pred.Policy), len(pred.Value), len(batch))
		}
		for i, p := range batch {
			r.add(p, pred.Policy[i], pred.Value[i])
		}
	}
	return r, nil
}
