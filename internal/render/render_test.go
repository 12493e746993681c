package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/zebrago/internal/board"
	"github.com/born-ml/zebrago/internal/record"
)

func draw(t *testing.T, b *Board) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, b.Draw(&buf))
	return buf.String()
}

func TestGeometry(t *testing.T) {
	b := New(19, 19)
	assert.Equal(t, 530, b.PixelWidth())
	assert.Equal(t, 530, b.PixelHeight())

	out := draw(t, b)
	assert.Contains(t, out, `width="530"`)
	assert.Contains(t, out, "fill:wheat")
	assert.Equal(t, 38, strings.Count(out, "<line"))
	assert.Equal(t, 9, strings.Count(out, "<circle"), "star points")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "</svg>"))
}

func TestStarPoints(t *testing.T) {
	tests := []struct {
		w, h int
		want int
	}{
		{19, 19, 9},
		{13, 13, 5},
		{9, 9, 5},
		{7, 7, 1},
		{6, 6, 0},
		{19, 13, 0},
	}
	for _, tt := range tests {
		assert.Len(t, New(tt.w, tt.h).starPoints(), tt.want, "%dx%d", tt.w, tt.h)
	}
	assert.Contains(t, New(19, 19).starPoints(), [2]int{3, 15})
}

func TestCoordinateLabels(t *testing.T) {
	b := New(19, 19)
	out := draw(t, b)
	assert.Contains(t, out, ">T</text>")
	assert.Contains(t, out, ">19</text>")
	assert.NotContains(t, out, ">I</text>")
	assert.Contains(t, out, `font-size="15"`)

	b.Coords = Coord00
	out = draw(t, b)
	assert.Contains(t, out, ">0</text>")
	assert.Contains(t, out, ">18</text>")
	assert.NotContains(t, out, ">T</text>")

	style, err := ParseCoordStyle("00")
	require.NoError(t, err)
	assert.Equal(t, Coord00, style)
	_, err = ParseCoordStyle("xy")
	assert.Error(t, err)
}

func TestStonesAndSquares(t *testing.T) {
	b := New(9, 9)
	b.AddStone(0, 0, board.Black)
	b.AddStone(8, 0, board.White)
	b.AddSquare(4, 4, 0)
	b.AddSquare(2, 3, Golden)

	out := draw(t, b)
	assert.Contains(t, out, `cx="40" cy="40" r="11"`)
	assert.Contains(t, out, `cx="240" cy="40" r="11"`)
	assert.Contains(t, out, "fill:black")
	assert.Contains(t, out, "fill:white")
	assert.Contains(t, out, `fill="yellow"`)
	assert.Contains(t, out, `fill="pink"`)
	assert.Contains(t, out, ">G</text>")
}

func TestRotate(t *testing.T) {
	b := New(19, 19)
	b.Rotate = true
	b.AddStone(1, 5, board.Black)
	assert.Equal(t, stone{5, 1, board.Black}, b.stones[0])
}

func TestFromBoard(t *testing.T) {
	p, err := board.New(9, 9)
	require.NoError(t, err)
	_, err = p.Move(board.Point{X: 2, Y: 2})
	require.NoError(t, err)
	_, err = p.Move(board.Point{X: 6, Y: 6})
	require.NoError(t, err)

	b := FromBoard(p)
	assert.ElementsMatch(t, []stone{{2, 2, board.Black}, {6, 6, board.White}}, b.stones)
}

func TestFromSample(t *testing.T) {
	s := record.NewSample()
	s.Set(0, 1, 0, 1)
	s.Set(2, 3, 0, -1)
	s.Next = int32(record.MoveIndex(4, 5))

	b := FromSample(s)
	assert.Equal(t, Coord00, b.Coords)
	assert.ElementsMatch(t, []stone{{1, 0, board.Black}, {3, 2, board.White}}, b.stones)
	assert.Equal(t, []square{{4, 5, Golden}}, b.squares)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestDrawReportsWriteError(t *testing.T) {
	err := New(9, 9).Draw(failingWriter{})
	assert.EqualError(t, err, "disk full")
}
