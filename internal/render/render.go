// Package render draws Go positions as SVG.
//
// Rows are drawn top-down in increasing y, so point (0, 0) sits in the
// upper-left corner as in SGF coordinates.
package render

import (
	"fmt"
	"io"
	"strconv"

	svg "github.com/ajstarks/svgo"

	"github.com/born-ml/zebrago/internal/board"
	"github.com/born-ml/zebrago/internal/record"
)

// Layout in pixels.
const (
	Margin     = 40
	GridSize   = 25
	StoneSize  = 11
	FontSize   = 15
	BoardColor = "wheat"
)

// CoordStyle selects the axis labels.
type CoordStyle int

const (
	// CoordA1 labels columns A-T without I and rows from 1.
	CoordA1 CoordStyle = iota
	// Coord00 labels both axes with zero-based indices.
	Coord00
)

// ParseCoordStyle accepts "A1" or "00".
func ParseCoordStyle(s string) (CoordStyle, error) {
	switch s {
	case "A1", "a1":
		return CoordA1, nil
	case "00":
		return Coord00, nil
	}
	return CoordA1, fmt.Errorf("render: unknown coordinate style %q", s)
}

// Golden is the square number that marks the recorded move.
const Golden = -1

type stone struct {
	x, y  int
	color board.Color
}

type square struct {
	x, y, number int
}

// Board collects stones and annotations for one drawing.
type Board struct {
	Width, Height int
	Coords        CoordStyle
	// Rotate swaps x and y of everything added afterwards.
	Rotate bool

	stones  []stone
	squares []square
}

// New returns an empty drawing of the given size.
func New(width, height int) *Board {
	return &Board{Width: width, Height: height}
}

// PixelWidth returns the width of the image.
func (b *Board) PixelWidth() int { return (b.Width-1)*GridSize + 2*Margin }

// PixelHeight returns the height of the image.
func (b *Board) PixelHeight() int { return (b.Height-1)*GridSize + 2*Margin }

// AddStone places a stone of color c at (x, y).
func (b *Board) AddStone(x, y int, c board.Color) {
	if b.Rotate {
		x, y = y, x
	}
	b.stones = append(b.stones, stone{x, y, c})
}

// AddSquare marks (x, y) with a numbered yellow square. Golden draws a pink
// square labelled "G" instead.
func (b *Board) AddSquare(x, y, number int) {
	if b.Rotate {
		x, y = y, x
	}
	b.squares = append(b.squares, square{x, y, number})
}

// FromBoard draws every stone of a position.
func FromBoard(p *board.Board) *Board {
	b := New(p.Width(), p.Height())
	for y := 0; y < p.Height(); y++ {
		for x := 0; x < p.Width(); x++ {
			if c := p.At(board.Point{X: x, Y: y}); c != board.Empty {
				b.AddStone(x, y, c)
			}
		}
	}
	return b
}

// FromSample draws the stones of a training sample's orig plane, the
// player to move in black, and marks the recorded move.
func FromSample(s *record.Sample) *Board {
	b := New(record.BoardSize, record.BoardSize)
	b.Coords = Coord00
	for y := 0; y < record.BoardSize; y++ {
		for x := 0; x < record.BoardSize; x++ {
			switch v := s.At(y, x, 0); {
			case v > 0.5:
				b.AddStone(x, y, board.Black)
			case v < -0.5:
				b.AddStone(x, y, board.White)
			}
		}
	}
	x, y := record.MoveXY(int(s.Next))
	b.AddSquare(x, y, Golden)
	return b
}

// starPoints returns the hoshi of square boards.
func (b *Board) starPoints() [][2]int {
	if b.Width != b.Height {
		return nil
	}
	var lines []int
	switch b.Width {
	case 19:
		lines = []int{3, 9, 15}
	case 13:
		lines = []int{3, 6, 9}
	case 9:
		lines = []int{2, 4, 6}
	default:
		if b.Width%2 == 1 {
			c := b.Width / 2
			return [][2]int{{c, c}}
		}
		return nil
	}
	c := b.Width / 2
	var out [][2]int
	for _, y := range lines {
		for _, x := range lines {
			// Smaller boards only mark the corners and the center.
			if b.Width != 19 && (x == c) != (y == c) {
				continue
			}
			out = append(out, [2]int{x, y})
		}
	}
	return out
}

func (b *Board) labels() (cols, rows []string) {
	for k := 0; k < b.Width; k++ {
		if b.Coords == Coord00 {
			cols = append(cols, strconv.Itoa(k))
		} else {
			cols = append(cols, board.Point{X: k}.String()[:1])
		}
	}
	for k := 0; k < b.Height; k++ {
		if b.Coords == Coord00 {
			rows = append(rows, strconv.Itoa(k))
		} else {
			rows = append(rows, strconv.Itoa(k+1))
		}
	}
	return cols, rows
}

func px(k int) int { return Margin + k*GridSize }

func text(canvas *svg.SVG, x, y int, s string) {
	canvas.Text(x, y, s, fmt.Sprintf(`font-size="%d"`, FontSize), `font-weight="lighter"`)
}

// Draw writes the SVG document to w.
func (b *Board) Draw(w io.Writer) error {
	ew := &errWriter{w: w}
	pw, ph := b.PixelWidth(), b.PixelHeight()

	canvas := svg.New(ew)
	canvas.Start(pw, ph)
	canvas.Gstyle("fill-opacity:1.0;stroke:black;stroke-width:1")
	canvas.Rect(0, 0, pw, ph, "fill:"+BoardColor)

	for k := 0; k < b.Width; k++ {
		canvas.Line(px(k), Margin, px(k), ph-Margin)
	}
	for k := 0; k < b.Height; k++ {
		canvas.Line(Margin, px(k), pw-Margin, px(k))
	}

	cols, rows := b.labels()
	for k, s := range cols {
		x := px(k) - 4
		text(canvas, x, 18, s)
		text(canvas, x, ph-10, s)
	}
	for k, s := range rows {
		y := px(k) + 6
		text(canvas, 7, y, s)
		text(canvas, pw-22, y, s)
	}

	for _, p := range b.starPoints() {
		canvas.Circle(px(p[0]), px(p[1]), 2, "fill:black")
	}

	for _, s := range b.stones {
		fill := "white"
		if s.color == board.Black {
			fill = "black"
		}
		canvas.Circle(px(s.x), px(s.y), StoneSize, "fill:"+fill)
	}

	for _, sq := range b.squares {
		fill, label := "yellow", strconv.Itoa(sq.number)
		if sq.number < 0 {
			fill, label = "pink", "G"
		}
		canvas.Rect(px(sq.x)-8, px(sq.y)-8, 16, 16, `fill="`+fill+`"`)
		text(canvas, px(sq.x)-5, px(sq.y)+5, label)
	}

	canvas.Gend()
	canvas.End()
	return ew.err
}

// errWriter keeps the first write error; svg.SVG does not report them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return len(p), nil
	}
	if _, err := e.w.Write(p); err != nil {
		e.err = err
	}
	return len(p), nil
}
