// Package board implements the rules of Go needed to replay recorded games:
// chains and liberties, captures, simple ko and suicide prohibition.
//
// The player to move is tracked by the board itself. Playing out of turn
// is expressed by passing first, which is how recorded games with handicap
// stones or consecutive moves of one color are replayed.
//
// Coordinates are zero-based (x, y) with x the column and y the row; the
// flattened index of a point is y*width + x.
package board

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Color is the content of a point or the identity of a player.
type Color int8

// Point contents.
const (
	Empty Color = iota
	Black
	White
)

// Opponent returns the other player. Empty stays Empty.
func (c Color) Opponent() Color {
	switch c {
	case Black:
		return White
	case White:
		return Black
	}
	return Empty
}

func (c Color) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	}
	return "empty"
}

// Point is a board coordinate.
type Point struct {
	X, Y int
}

// Special moves.
var (
	NoPoint = Point{-1, -1}
	Pass    = Point{-2, -2}
	Resign  = Point{-3, -3}
)

// IsPass reports whether p is the pass move.
func (p Point) IsPass() bool { return p == Pass }

// String formats p with column letters that skip 'I' and one-based rows,
// e.g. Point{3, 3} is "D4".
func (p Point) String() string {
	switch p {
	case Pass:
		return "pass"
	case Resign:
		return "resign"
	case NoPoint:
		return "none"
	}
	return fmt.Sprintf("%c%d", columnLabel(p.X), p.Y+1)
}

func columnLabel(x int) byte {
	if x >= 8 {
		return byte('A' + x + 1)
	}
	return byte('A' + x)
}

// ParsePoint is the inverse of Point.String for boards up to 25 wide.
func ParsePoint(s string) (Point, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "PASS":
		return Pass, nil
	case "RESIGN":
		return Resign, nil
	}
	if len(s) < 2 {
		return NoPoint, fmt.Errorf("board: bad point %q", s)
	}
	col := s[0]
	if col < 'A' || col > 'Z' || col == 'I' {
		return NoPoint, fmt.Errorf("board: bad column in %q", s)
	}
	x := int(col - 'A')
	if col > 'I' {
		x--
	}
	var row int
	if _, err := fmt.Sscanf(s[1:], "%d", &row); err != nil || row < 1 {
		return NoPoint, fmt.Errorf("board: bad row in %q", s)
	}
	return Point{x, row - 1}, nil
}

// Errors returned by Move.
var (
	ErrIllegalMove = errors.New("board: illegal move")
	ErrBadSize     = errors.New("board: bad size")
)

// MaxSize bounds both board dimensions.
const MaxSize = 25

type chain struct {
	id        int
	color     Color
	stones    []Point
	liberties map[Point]struct{}
}

// firstLiberty returns the smallest liberty, or NoPoint.
func (c *chain) firstLiberty() Point {
	first := NoPoint
	for p := range c.liberties {
		if first == NoPoint || p.Y < first.Y || (p.Y == first.Y && p.X < first.X) {
			first = p
		}
	}
	return first
}

func (c *chain) clone() *chain {
	n := &chain{
		id:        c.id,
		color:     c.color,
		stones:    append([]Point(nil), c.stones...),
		liberties: make(map[Point]struct{}, len(c.liberties)),
	}
	for p := range c.liberties {
		n.liberties[p] = struct{}{}
	}
	return n
}

// Board is a Go position together with the player to move.
type Board struct {
	width, height int
	toPlay        Color

	stones  []Color
	chainID []int
	chains  map[int]*chain
	nextID  int

	ko Point
}

// New returns an empty board with Black to move.
func New(width, height int) (*Board, error) {
	if width < 1 || height < 1 || width > MaxSize || height > MaxSize {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadSize, width, height)
	}
	b := &Board{
		width:   width,
		height:  height,
		toPlay:  Black,
		stones:  make([]Color, width*height),
		chainID: make([]int, width*height),
		chains:  make(map[int]*chain),
		nextID:  1,
		ko:      NoPoint,
	}
	return b, nil
}

// Width returns the number of columns.
func (b *Board) Width() int { return b.width }

// Height returns the number of rows.
func (b *Board) Height() int { return b.height }

// ToPlay returns the player who makes the next move.
func (b *Board) ToPlay() Color { return b.toPlay }

// Ko returns the point the player to move may not retake, or NoPoint.
func (b *Board) Ko() Point { return b.ko }

// Index flattens p.
func (b *Board) Index(p Point) int { return p.Y*b.width + p.X }

// At returns the content of p, Empty when p is off the board.
func (b *Board) At(p Point) Color {
	if !b.OnBoard(p) {
		return Empty
	}
	return b.stones[b.Index(p)]
}

// OnBoard reports whether p lies on the board.
func (b *Board) OnBoard(p Point) bool {
	return p.X >= 0 && p.X < b.width && p.Y >= 0 && p.Y < b.height
}

// Clone returns a deep copy.
func (b *Board) Clone() *Board {
	c := &Board{
		width:   b.width,
		height:  b.height,
		toPlay:  b.toPlay,
		stones:  append([]Color(nil), b.stones...),
		chainID: append([]int(nil), b.chainID...),
		chains:  make(map[int]*chain, len(b.chains)),
		nextID:  b.nextID,
		ko:      b.ko,
	}
	for id, ch := range b.chains {
		c.chains[id] = ch.clone()
	}
	return c
}

func (b *Board) neighbors(p Point) []Point {
	out := make([]Point, 0, 4)
	for _, d := range [4]Point{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		n := Point{p.X + d.X, p.Y + d.Y}
		if b.OnBoard(n) {
			out = append(out, n)
		}
	}
	return out
}

func (b *Board) chainAt(p Point) *chain {
	id := b.chainID[b.Index(p)]
	if id == 0 {
		return nil
	}
	return b.chains[id]
}

// adjacent splits the surroundings of p into chains of the player to
// move, opponent chains and empty points.
func (b *Board) adjacent(p Point) (own, opp []*chain, libs []Point) {
	seen := make(map[int]bool, 4)
	for _, n := range b.neighbors(p) {
		if b.At(n) == Empty {
			libs = append(libs, n)
			continue
		}
		ch := b.chainAt(n)
		if seen[ch.id] {
			continue
		}
		seen[ch.id] = true
		if ch.color == b.toPlay {
			own = append(own, ch)
		} else {
			opp = append(opp, ch)
		}
	}
	return own, opp, libs
}

// IsLegal reports whether the player to move may play p. Pass and resign
// are always legal.
func (b *Board) IsLegal(p Point) bool {
	if p == Pass || p == Resign {
		return true
	}
	if !b.OnBoard(p) || b.At(p) != Empty {
		return false
	}
	if p == b.ko {
		return false
	}
	return !b.isSuicide(p)
}

// isSuicide reports whether a stone at p would leave its own chain with no
// liberties without capturing anything.
func (b *Board) isSuicide(p Point) bool {
	own, opp, libs := b.adjacent(p)
	if len(libs) > 0 {
		return false
	}
	for _, ch := range opp {
		if len(ch.liberties) == 1 {
			return false
		}
	}
	for _, ch := range own {
		if len(ch.liberties) >= 2 {
			return false
		}
	}
	return true
}

// Forbidden lists the suicide points of the player to move in row-major
// order.
func (b *Board) Forbidden() []Point {
	var out []Point
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			p := Point{x, y}
			if b.At(p) == Empty && b.isSuicide(p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// Move plays p for the player to move and hands the turn to the opponent.
// It returns the captured stones. Resign leaves the board unchanged.
func (b *Board) Move(p Point) ([]Point, error) {
	if !b.IsLegal(p) {
		return nil, fmt.Errorf("%w: %v %v", ErrIllegalMove, b.toPlay, p)
	}
	if p == Resign {
		return nil, nil
	}
	b.ko = NoPoint
	if p == Pass {
		b.toPlay = b.toPlay.Opponent()
		return nil, nil
	}

	own, opp, libs := b.adjacent(p)
	b.stones[b.Index(p)] = b.toPlay

	var captured []Point
	for _, ch := range opp {
		if len(ch.liberties) == 1 {
			if _, ok := ch.liberties[p]; ok {
				captured = append(captured, b.remove(ch)...)
				continue
			}
		}
		delete(ch.liberties, p)
	}

	var created *chain
	if len(own) == 0 {
		created = b.newChain(p, libs)
	} else {
		b.merge(p, libs, own)
	}

	for _, s := range captured {
		for _, n := range b.neighbors(s) {
			if ch := b.chainAt(n); ch != nil {
				ch.liberties[s] = struct{}{}
			}
		}
	}

	if len(captured) == 1 && created != nil && len(created.liberties) == 1 {
		if _, ok := created.liberties[captured[0]]; ok {
			b.ko = captured[0]
		}
	}

	b.toPlay = b.toPlay.Opponent()
	return captured, nil
}

// Pass hands the turn to the opponent.
func (b *Board) Pass() {
	_, _ = b.Move(Pass)
}

func (b *Board) remove(ch *chain) []Point {
	for _, s := range ch.stones {
		i := b.Index(s)
		b.stones[i] = Empty
		b.chainID[i] = 0
	}
	delete(b.chains, ch.id)
	return ch.stones
}

func (b *Board) newChain(p Point, libs []Point) *chain {
	ch := &chain{
		id:        b.nextID,
		color:     b.toPlay,
		stones:    []Point{p},
		liberties: make(map[Point]struct{}, len(libs)),
	}
	b.nextID++
	for _, l := range libs {
		ch.liberties[l] = struct{}{}
	}
	b.chainID[b.Index(p)] = ch.id
	b.chains[ch.id] = ch
	return ch
}

func (b *Board) merge(joint Point, libs []Point, chains []*chain) {
	into := chains[0]
	for _, from := range chains[1:] {
		for _, s := range from.stones {
			b.chainID[b.Index(s)] = into.id
		}
		into.stones = append(into.stones, from.stones...)
		for l := range from.liberties {
			into.liberties[l] = struct{}{}
		}
		delete(b.chains, from.id)
	}
	into.stones = append(into.stones, joint)
	b.chainID[b.Index(joint)] = into.id
	delete(into.liberties, joint)
	for _, l := range libs {
		into.liberties[l] = struct{}{}
	}
}

// Liberties returns the liberty count of the chain through p, or 0 when p
// is empty.
func (b *Board) Liberties(p Point) int {
	if !b.OnBoard(p) {
		return 0
	}
	if ch := b.chainAt(p); ch != nil {
		return len(ch.liberties)
	}
	return 0
}

// sortedChains returns chains ordered by id so output is stable.
func (b *Board) sortedChains() []*chain {
	out := make([]*chain, 0, len(b.chains))
	for _, ch := range b.chains {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// String draws the board with X for Black and O for White, top row first.
func (b *Board) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "To play: %v", b.toPlay)
	if b.ko != NoPoint {
		fmt.Fprintf(&sb, ", ko: %v", b.ko)
	}
	sb.WriteString("\n\n")

	axis := "    "
	for x := 0; x < b.width; x++ {
		axis += string(columnLabel(x)) + " "
	}
	sb.WriteString(axis + "\n")
	syms := [3]string{" +", " X", " O"}
	for y := b.height - 1; y >= 0; y-- {
		fmt.Fprintf(&sb, "%02d|", y+1)
		for x := 0; x < b.width; x++ {
			sb.WriteString(syms[b.At(Point{x, y})])
		}
		fmt.Fprintf(&sb, "|%02d\n", y+1)
	}
	sb.WriteString(axis + "\n")

	if f := b.Forbidden(); len(f) > 0 {
		sb.WriteString("Forbidden:")
		for _, p := range f {
			sb.WriteString(" " + p.String())
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
