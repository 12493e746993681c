// Package sgf reads Smart Game Format game records and replays them on a
// board.
//
// Only the subset needed for game replay is interpreted: board size,
// result, komi, player names, setup stones (AB/AW) and moves (B/W). All
// other properties are kept in the parsed tree but otherwise ignored.
// When a tree has variations the first one is taken as the main line.
package sgf

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax is returned for input that is not a well-formed SGF collection.
var ErrSyntax = errors.New("sgf: syntax error")

// GameTree is one parenthesized tree: a sequence of nodes followed by
// zero or more variations.
type GameTree struct {
	Nodes    []Node
	Children []*GameTree
}

// Node holds the properties of one node. A property may carry several
// values, e.g. AB[aa][bb].
type Node struct {
	Properties map[string][]string
}

// Get returns the first value of the property, if present.
func (n Node) Get(ident string) (string, bool) {
	v, ok := n.Properties[ident]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// MainLine returns the nodes of the tree following the first variation at
// every branch.
func (t *GameTree) MainLine() []Node {
	var nodes []Node
	for cur := t; cur != nil; {
		nodes = append(nodes, cur.Nodes...)
		if len(cur.Children) == 0 {
			break
		}
		cur = cur.Children[0]
	}
	return nodes
}

// Parse reads every game tree of an SGF collection.
func Parse(data []byte) ([]*GameTree, error) {
	p := &parser{src: data}
	var trees []*GameTree
	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		t, err := p.tree()
		if err != nil {
			return nil, err
		}
		trees = append(trees, t)
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("%w: no game tree", ErrSyntax)
	}
	return trees, nil
}

type parser struct {
	src []byte
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.eof() {
		return p.errorf("unexpected end of input, want %q", c)
	}
	if p.peek() != c {
		return p.errorf("got %q, want %q", p.peek(), c)
	}
	p.pos++
	return nil
}

func (p *parser) tree() (*GameTree, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	t := &GameTree{}
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("unterminated game tree")
		}
		if p.peek() != ';' {
			break
		}
		p.pos++
		n, err := p.node()
		if err != nil {
			return nil, err
		}
		t.Nodes = append(t.Nodes, n)
	}
	if len(t.Nodes) == 0 {
		return nil, p.errorf("game tree without nodes")
	}
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("unterminated game tree")
		}
		if p.peek() != '(' {
			break
		}
		child, err := p.tree()
		if err != nil {
			return nil, err
		}
		t.Children = append(t.Children, child)
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *parser) node() (Node, error) {
	n := Node{Properties: make(map[string][]string)}
	for {
		p.skipSpace()
		if p.eof() || !isIdentChar(p.peek()) {
			return n, nil
		}
		ident := p.ident()
		p.skipSpace()
		if p.eof() || p.peek() != '[' {
			return n, p.errorf("property %s without value", ident)
		}
		for !p.eof() && p.peek() == '[' {
			v, err := p.value()
			if err != nil {
				return n, err
			}
			n.Properties[ident] = append(n.Properties[ident], v)
			p.skipSpace()
		}
	}
}

func isIdentChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// ident reads a property identifier. Lower-case letters, allowed by old
// format versions, are dropped.
func (p *parser) ident() string {
	var sb strings.Builder
	for !p.eof() && isIdentChar(p.peek()) {
		if c := p.peek(); c >= 'A' && c <= 'Z' {
			sb.WriteByte(c)
		}
		p.pos++
	}
	return sb.String()
}

// value reads one bracketed value, resolving backslash escapes.
func (p *parser) value() (string, error) {
	start := p.pos
	p.pos++ // '['
	var sb strings.Builder
	for !p.eof() {
		c := p.peek()
		p.pos++
		switch c {
		case '\\':
			if p.eof() {
				return "", p.errorf("dangling escape")
			}
			next := p.peek()
			p.pos++
			// Soft line break.
			if next == '\n' || next == '\r' {
				continue
			}
			sb.WriteByte(next)
		case ']':
			return sb.String(), nil
		default:
			sb.WriteByte(c)
		}
	}
	p.pos = start
	return "", p.errorf("unterminated property value")
}
