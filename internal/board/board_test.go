package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sgfPoint decodes a two-letter SGF coordinate such as "ba".
func sgfPoint(s string) Point {
	return Point{int(s[0] - 'a'), int(s[1] - 'a')}
}

// setStones places stones for c the way setup properties are replayed:
// each stone is followed by a pass so the turn returns to c.
func setStones(t *testing.T, b *Board, c Color, coords ...string) {
	t.Helper()
	if b.ToPlay() != c {
		_, err := b.Move(Pass)
		require.NoError(t, err)
	}
	for _, s := range coords {
		captured, err := b.Move(sgfPoint(s))
		require.NoError(t, err, s)
		require.Empty(t, captured, s)
		_, err = b.Move(Pass)
		require.NoError(t, err)
	}
}

func mustMove(t *testing.T, b *Board, x, y int) []Point {
	t.Helper()
	captured, err := b.Move(Point{x, y})
	require.NoError(t, err, "move %v", Point{x, y})
	return captured
}

//	    A B C D E
//	05| X + O X +|05
//	04| O X X O X|04
//	03| + O + O +|03
//	02| X O X X O|02
//	01| + X O O +|01
func fiveByFive(t *testing.T) *Board {
	t.Helper()
	b, err := New(5, 5)
	require.NoError(t, err)
	setStones(t, b, Black, "ba", "ab", "cb", "db", "bd", "cd", "ed", "ae", "de")
	setStones(t, b, White, "ca", "da", "bb", "eb", "bc", "dc", "ad", "dd", "ce")
	return b
}

// blackToPlay returns a clone of the 5x5 position with Black to move.
func blackToPlay(t *testing.T) *Board {
	b := fiveByFive(t).Clone()
	if b.ToPlay() != Black {
		_, err := b.Move(Pass)
		require.NoError(t, err)
	}
	return b
}

func TestNew(t *testing.T) {
	b, err := New(19, 19)
	require.NoError(t, err)
	assert.Equal(t, Black, b.ToPlay())
	assert.Equal(t, NoPoint, b.Ko())
	assert.Empty(t, b.Forbidden())

	_, err = New(0, 19)
	assert.ErrorIs(t, err, ErrBadSize)
	_, err = New(26, 26)
	assert.ErrorIs(t, err, ErrBadSize)
}

func TestPointString(t *testing.T) {
	tests := []struct {
		p    Point
		want string
	}{
		{Point{0, 0}, "A1"},
		{Point{7, 2}, "H3"},
		{Point{8, 2}, "J3"},
		{Point{18, 18}, "T19"},
		{Pass, "pass"},
		{Resign, "resign"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.String())
			got, err := ParsePoint(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.p, got)
		})
	}

	for _, bad := range []string{"", "I5", "A0", "Z", "1A"} {
		_, err := ParsePoint(bad)
		assert.Error(t, err, bad)
	}
}

func TestPresetPosition(t *testing.T) {
	b := fiveByFive(t)
	assert.Equal(t, White, b.ToPlay())
	assert.Equal(t, Black, b.At(Point{1, 0}))
	assert.Equal(t, White, b.At(Point{2, 0}))
	assert.Equal(t, Empty, b.At(Point{0, 0}))
	assert.Equal(t, Empty, b.At(Point{-1, 0}))
	assert.Equal(t, 1, b.Liberties(Point{2, 0}))
}

func TestEstimateTerritory(t *testing.T) {
	b := blackToPlay(t)
	assert.Equal(t, Territory{Unknown: 4, Black: 11, White: 10}, b.EstimateTerritory())

	empty, err := New(9, 9)
	require.NoError(t, err)
	mustMove(t, empty, 4, 4)
	assert.Equal(t, Territory{Unknown: 80, Black: 1}, empty.EstimateTerritory())
}

func TestCaptureTwoStones(t *testing.T) {
	b := blackToPlay(t)

	captured := mustMove(t, b, 4, 0)
	assert.ElementsMatch(t, []Point{{2, 0}, {3, 0}}, captured)

	assert.True(t, b.IsLegal(Point{3, 0}))
	captured = mustMove(t, b, 3, 0)
	assert.ElementsMatch(t, []Point{{4, 0}}, captured)
}

func TestSuicideAndLargeCapture(t *testing.T) {
	b := blackToPlay(t)

	assert.Empty(t, mustMove(t, b, 2, 2))
	assert.False(t, b.IsLegal(Point{0, 2}))
	assert.Contains(t, b.Forbidden(), Point{0, 2})

	_, err := b.Move(Point{0, 2})
	assert.ErrorIs(t, err, ErrIllegalMove)

	captured := mustMove(t, b, 1, 4)
	assert.ElementsMatch(t, []Point{{0, 4}, {1, 3}, {2, 3}, {2, 2}, {2, 1}, {3, 1}}, captured)
}

func TestKoAndSuicide(t *testing.T) {
	b := blackToPlay(t)

	assert.Empty(t, mustMove(t, b, 2, 2))
	captured := mustMove(t, b, 4, 4)
	require.Len(t, captured, 1)
	ko := Point{3, 4}
	assert.Equal(t, ko, captured[0])
	assert.Equal(t, ko, b.Ko())

	assert.False(t, b.IsLegal(ko))
	assert.False(t, b.IsLegal(Point{1, 4}))
	assert.False(t, b.IsLegal(Point{4, 2}))

	// A pass lifts the ko.
	_, err := b.Move(Pass)
	require.NoError(t, err)
	assert.Equal(t, NoPoint, b.Ko())
}

func TestChainWithoutInitialLiberties(t *testing.T) {
	b := blackToPlay(t)

	assert.Empty(t, mustMove(t, b, 4, 2))
	assert.Empty(t, mustMove(t, b, 0, 2))
	captured := mustMove(t, b, 4, 0)
	assert.ElementsMatch(t, []Point{{2, 0}, {3, 0}, {4, 1}}, captured)
}

func TestKoSequence(t *testing.T) {
	b, err := New(11, 11)
	require.NoError(t, err)
	setStones(t, b, Black, "ba", "gb", "ac", "bc", "cc", "gc", "cd", "dd", "ed", "fd", "ce")
	setStones(t, b, White, "cb", "fb", "dc", "ec", "fc", "hc", "bd", "gd", "hd", "be", "fe", "cf", "df", "gf")
	if b.ToPlay() != Black {
		_, err := b.Move(Pass)
		require.NoError(t, err)
	}

	assert.Empty(t, mustMove(t, b, 3, 1))
	assert.Empty(t, mustMove(t, b, 3, 0))
	assert.Empty(t, mustMove(t, b, 4, 0))
	assert.Equal(t, []Point{{3, 1}}, mustMove(t, b, 4, 1))
	assert.Empty(t, mustMove(t, b, 2, 0))
	assert.Equal(t, []Point{{4, 0}}, mustMove(t, b, 5, 0))
	assert.Empty(t, mustMove(t, b, 1, 1))
	assert.Empty(t, mustMove(t, b, 7, 1))

	ko1 := Point{2, 1}
	assert.Equal(t, []Point{ko1}, mustMove(t, b, 3, 1))
	assert.False(t, b.IsLegal(ko1))

	assert.ElementsMatch(t, []Point{{6, 1}, {6, 2}}, mustMove(t, b, 6, 0))

	ko2 := Point{3, 0}
	assert.Equal(t, []Point{ko2}, mustMove(t, b, 4, 0))
	assert.False(t, b.IsLegal(ko2))
}

func TestForbiddenSingleEye(t *testing.T) {
	b, err := New(5, 5)
	require.NoError(t, err)
	setStones(t, b, Black, "ca", "cb", "cc", "bc")
	setStones(t, b, White, "ba", "bb", "ab")
	if b.ToPlay() != Black {
		_, err := b.Move(Pass)
		require.NoError(t, err)
	}
	mustMove(t, b, 0, 2)
	assert.False(t, b.IsLegal(Point{0, 0}))
}

func TestForbiddenSharedLiberty(t *testing.T) {
	b, err := New(9, 9)
	require.NoError(t, err)
	for _, p := range []Point{{2, 0}, {1, 0}, {3, 0}, {2, 1}, {8, 8}, {3, 1}, {5, 0}, {5, 1}, {6, 0}, {6, 1}} {
		mustMove(t, b, p.X, p.Y)
	}
	require.Equal(t, Black, b.ToPlay())
	assert.True(t, b.IsLegal(Point{4, 0}))

	mustMove(t, b, 8, 7)
	mustMove(t, b, 7, 0)
	require.Equal(t, Black, b.ToPlay())
	assert.True(t, b.IsLegal(Point{4, 0}))

	mustMove(t, b, 7, 8)
	mustMove(t, b, 4, 1)
	require.Equal(t, Black, b.ToPlay())
	assert.False(t, b.IsLegal(Point{4, 0}))
}

func TestSingleStoneSuicide(t *testing.T) {
	b, err := New(5, 5)
	require.NoError(t, err)
	setStones(t, b, White, "ba", "ab")
	if b.ToPlay() != Black {
		_, err := b.Move(Pass)
		require.NoError(t, err)
	}
	assert.False(t, b.IsLegal(Point{0, 0}))
	assert.Equal(t, []Point{{0, 0}}, b.Forbidden())
}

func TestIllegalMoves(t *testing.T) {
	b, err := New(9, 9)
	require.NoError(t, err)
	mustMove(t, b, 4, 4)

	assert.False(t, b.IsLegal(Point{4, 4}))
	assert.False(t, b.IsLegal(Point{9, 0}))
	assert.False(t, b.IsLegal(Point{0, -1}))
	assert.True(t, b.IsLegal(Pass))
	assert.True(t, b.IsLegal(Resign))

	before := b.Clone()
	captured, err := b.Move(Resign)
	require.NoError(t, err)
	assert.Empty(t, captured)
	assert.Equal(t, before.ToPlay(), b.ToPlay())
}

func TestCloneIsIndependent(t *testing.T) {
	b := blackToPlay(t)
	c := b.Clone()
	mustMove(t, c, 4, 0)
	assert.Equal(t, White, b.At(Point{2, 0}))
	assert.Equal(t, Empty, c.At(Point{2, 0}))
	assert.Equal(t, 1, b.Liberties(Point{2, 0}))
}

func TestFeatures(t *testing.T) {
	f := fiveByFive(t).Features()
	assert.Equal(t, 5, f.Width)
	assert.Equal(t, 5, f.Height)

	assert.Equal(t, []float32{
		0, -1, 1, 1, 0,
		-1, 1, -1, -1, 1,
		0, 1, 0, 1, 0,
		1, -1, -1, 1, -1,
		-1, 0, 1, -1, 0,
	}, f.Plane("orig"))

	plane := func(idx ...int) []float32 {
		p := make([]float32, 25)
		for _, i := range idx {
			p[i] = 1
		}
		return p
	}
	assert.Equal(t, plane(2, 3, 15, 22), f.Plane("b1"))
	assert.Equal(t, plane(6, 9, 11, 13, 18), f.Plane("b2"))
	assert.Equal(t, plane(), f.Plane("b3"))
	assert.Equal(t, plane(1, 7, 8, 20, 23), f.Plane("w1"))
	assert.Equal(t, plane(5, 16, 17, 19), f.Plane("w2"))
	assert.Equal(t, plane(), f.Plane("w3"))
	assert.Nil(t, f.Plane("missing"))
}

func TestString(t *testing.T) {
	b, err := New(3, 3)
	require.NoError(t, err)
	mustMove(t, b, 0, 0)
	mustMove(t, b, 2, 2)

	want := "To play: black\n\n" +
		"    A B C \n" +
		"03| + + O|03\n" +
		"02| + + +|02\n" +
		"01| X + +|01\n" +
		"    A B C \n"
	assert.Equal(t, want, b.String())
}
