package board

// NumPlanes is the number of feature planes produced by Features.
const NumPlanes = 7

// PlaneNames names the planes in the order Features returns them.
var PlaneNames = [NumPlanes]string{"orig", "b1", "b2", "b3", "w1", "w2", "w3"}

// Features holds the input planes of a position as seen by the player to
// move. Each plane is flattened row-major, index y*Width + x.
//
// Plane 0 holds +1 for the mover's stones and -1 for the opponent's.
// Planes 1-3 mark the mover's chains with 1, 2 or 3 liberties and planes
// 4-6 mark the opponent's chains likewise.
type Features struct {
	Width, Height int
	Planes        [NumPlanes][]float32
}

// Plane returns plane c by name, or nil for an unknown name.
func (f *Features) Plane(name string) []float32 {
	for c, n := range PlaneNames {
		if n == name {
			return f.Planes[c]
		}
	}
	return nil
}

// Features computes the feature planes of the current position.
func (b *Board) Features() *Features {
	area := b.width * b.height
	f := &Features{Width: b.width, Height: b.height}
	for c := range f.Planes {
		f.Planes[c] = make([]float32, area)
	}

	for i, s := range b.stones {
		switch {
		case s == Empty:
		case s == b.toPlay:
			f.Planes[0][i] = 1
		default:
			f.Planes[0][i] = -1
		}
	}

	for _, ch := range b.chains {
		n := len(ch.liberties)
		if n == 0 || n > 3 {
			continue
		}
		c := n
		if ch.color != b.toPlay {
			c += 3
		}
		for _, s := range ch.stones {
			f.Planes[c][b.Index(s)] = 1
		}
	}
	return f
}
