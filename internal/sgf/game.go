package sgf

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/zebrago/internal/board"
)

// Errors returned while interpreting a game tree.
var (
	ErrNotGo    = errors.New("sgf: not a game of Go")
	ErrBadValue = errors.New("sgf: bad property value")
	ErrSetup    = errors.New("sgf: setup stones after the first move")
)

// DefaultSize is the board size assumed when SZ is absent.
const DefaultSize = 19

// Move is one recorded move. Passes use board.Pass.
type Move struct {
	Color board.Color
	Point board.Point
}

// GameRecord is the main line of a game.
type GameRecord struct {
	Width, Height int
	Komi          float64
	// Result is the raw RE value, e.g. "B+R" or "W+3.5".
	Result      string
	PlayerBlack string
	PlayerWhite string

	// Setup stones placed before the first move.
	Black, White []board.Point

	Moves []Move
}

// Winner returns +1 when Black won, -1 when White won and 0 for draws,
// unknown or missing results.
func (g *GameRecord) Winner() float32 {
	r := strings.ToUpper(strings.TrimSpace(g.Result))
	switch {
	case strings.HasPrefix(r, "B+"):
		return 1
	case strings.HasPrefix(r, "W+"):
		return -1
	}
	return 0
}

// ReadFile parses the first game of an SGF file.
func ReadFile(path string) (*GameRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Load parses data and interprets its first game tree.
func Load(data []byte) (*GameRecord, error) {
	trees, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return FromTree(trees[0])
}

// FromTree interprets the main line of t.
func FromTree(t *GameTree) (*GameRecord, error) {
	g := &GameRecord{Width: DefaultSize, Height: DefaultSize}
	nodes := t.MainLine()

	root := nodes[0]
	if gm, ok := root.Get("GM"); ok && strings.TrimSpace(gm) != "1" {
		return nil, fmt.Errorf("%w: GM[%s]", ErrNotGo, gm)
	}
	if sz, ok := root.Get("SZ"); ok {
		w, h, err := parseSize(sz)
		if err != nil {
			return nil, err
		}
		g.Width, g.Height = w, h
	}
	if km, ok := root.Get("KM"); ok && strings.TrimSpace(km) != "" {
		komi, err := strconv.ParseFloat(strings.TrimSpace(km), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: KM[%s]", ErrBadValue, km)
		}
		g.Komi = komi
	}
	g.Result, _ = root.Get("RE")
	g.PlayerBlack, _ = root.Get("PB")
	g.PlayerWhite, _ = root.Get("PW")

	for _, n := range nodes {
		for _, setup := range []struct {
			ident string
			dst   *[]board.Point
		}{{"AB", &g.Black}, {"AW", &g.White}} {
			values, ok := n.Properties[setup.ident]
			if !ok {
				continue
			}
			if len(g.Moves) > 0 {
				return nil, ErrSetup
			}
			for _, v := range values {
				pts, err := g.pointList(v)
				if err != nil {
					return nil, err
				}
				*setup.dst = append(*setup.dst, pts...)
			}
		}

		for _, mv := range []struct {
			ident string
			color board.Color
		}{{"B", board.Black}, {"W", board.White}} {
			v, ok := n.Get(mv.ident)
			if !ok {
				continue
			}
			p, err := g.point(v, true)
			if err != nil {
				return nil, err
			}
			g.Moves = append(g.Moves, Move{Color: mv.color, Point: p})
		}
	}
	return g, nil
}

func parseSize(v string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: SZ[%s]", ErrBadValue, v)
	}
	h := w
	if len(parts) == 2 {
		if h, err = strconv.Atoi(parts[1]); err != nil {
			return 0, 0, fmt.Errorf("%w: SZ[%s]", ErrBadValue, v)
		}
	}
	if w < 1 || h < 1 || w > board.MaxSize || h > board.MaxSize {
		return 0, 0, fmt.Errorf("%w: SZ[%s]", ErrBadValue, v)
	}
	return w, h, nil
}

func coord(c byte) int {
	switch {
	case c >= 'a' && c <= 'z':
		return int(c - 'a')
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 26
	}
	return -1
}

// point decodes a two-letter coordinate. For moves an empty value, or "tt"
// on boards up to 19x19, is a pass.
func (g *GameRecord) point(v string, move bool) (board.Point, error) {
	v = strings.TrimSpace(v)
	if move && (v == "" || (v == "tt" && g.Width <= 19 && g.Height <= 19)) {
		return board.Pass, nil
	}
	if len(v) != 2 {
		return board.NoPoint, fmt.Errorf("%w: point %q", ErrBadValue, v)
	}
	p := board.Point{X: coord(v[0]), Y: coord(v[1])}
	if p.X < 0 || p.X >= g.Width || p.Y < 0 || p.Y >= g.Height {
		return board.NoPoint, fmt.Errorf("%w: point %q off a %dx%d board", ErrBadValue, v, g.Width, g.Height)
	}
	return p, nil
}

// pointList expands a point or a compressed "aa:cc" rectangle.
func (g *GameRecord) pointList(v string) ([]board.Point, error) {
	lo, hi, ok := strings.Cut(v, ":")
	if !ok {
		p, err := g.point(v, false)
		if err != nil {
			return nil, err
		}
		return []board.Point{p}, nil
	}
	a, err := g.point(lo, false)
	if err != nil {
		return nil, err
	}
	b, err := g.point(hi, false)
	if err != nil {
		return nil, err
	}
	var out []board.Point
	for y := min(a.Y, b.Y); y <= max(a.Y, b.Y); y++ {
		for x := min(a.X, b.X); x <= max(a.X, b.X); x++ {
			out = append(out, board.Point{X: x, Y: y})
		}
	}
	return out, nil
}
