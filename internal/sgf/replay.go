package sgf

import (
	"errors"
	"fmt"

	"github.com/born-ml/zebrago/internal/board"
)

// Replay errors.
var (
	ErrBadSetup = errors.New("sgf: setup stone is illegal or captures")
	ErrIllegal  = errors.New("sgf: illegal move in record")
)

// ErrSkipGame may be returned by a ReplayFunc to stop replaying without
// reporting an error.
var ErrSkipGame = errors.New("sgf: skip game")

// ReplayContext describes the position before a recorded move.
type ReplayContext struct {
	// Board is the position with the mover to play. It must not be
	// modified or retained by the callback.
	Board *board.Board
	// Step is the zero-based index of Next among the recorded moves.
	Step int
	Next board.Point
	// Result is +1 if Black won the game, -1 if White won, 0 otherwise.
	Result float32
}

// ReplayFunc is called once per recorded move, before the move is played.
type ReplayFunc func(ctx *ReplayContext) error

// Replay places the setup stones of g and then plays its moves, calling fn
// before every move. A move by the player not on turn is preceded by a
// pass. It returns the final board.
func Replay(g *GameRecord, fn ReplayFunc) (*board.Board, error) {
	b, err := board.New(g.Width, g.Height)
	if err != nil {
		return nil, err
	}
	if err := setup(b, board.Black, g.Black); err != nil {
		return nil, err
	}
	if err := setup(b, board.White, g.White); err != nil {
		return nil, err
	}

	result := g.Winner()
	for i, m := range g.Moves {
		if m.Color != b.ToPlay() {
			b.Pass()
		}
		if fn != nil {
			err := fn(&ReplayContext{Board: b, Step: i, Next: m.Point, Result: result})
			if errors.Is(err, ErrSkipGame) {
				return b, nil
			}
			if err != nil {
				return b, err
			}
		}
		if _, err := b.Move(m.Point); err != nil {
			return b, fmt.Errorf("%w: #%d %v %v", ErrIllegal, i, m.Color, m.Point)
		}
	}
	return b, nil
}

// setup places stones for c, each followed by a pass so that c keeps the
// turn.
func setup(b *board.Board, c board.Color, stones []board.Point) error {
	if b.ToPlay() != c {
		b.Pass()
	}
	for _, p := range stones {
		captured, err := b.Move(p)
		if err != nil {
			return fmt.Errorf("%w: %v %v", ErrBadSetup, c, p)
		}
		if len(captured) > 0 {
			return fmt.Errorf("%w: %v %v captures %d", ErrBadSetup, c, p, len(captured))
		}
		b.Pass()
	}
	return nil
}
