package board

// Territory is a rough area count: stones plus empty regions bordered by a
// single color. Regions touching both colors, or none, are Unknown.
type Territory struct {
	Unknown, Black, White int
}

// minStonesForEstimate is the stone count below which every empty point is
// reported as Unknown.
const minStonesForEstimate = 11

// EstimateTerritory flood-fills the empty regions of the board.
func (b *Board) EstimateTerritory() Territory {
	var t Territory
	for _, s := range b.stones {
		switch s {
		case Black:
			t.Black++
		case White:
			t.White++
		}
	}
	if t.Black+t.White < minStonesForEstimate {
		t.Unknown = len(b.stones) - t.Black - t.White
		return t
	}

	visited := make([]bool, len(b.stones))
	var stack []Point
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			start := Point{x, y}
			if b.At(start) != Empty || visited[b.Index(start)] {
				continue
			}
			visited[b.Index(start)] = true
			stack = append(stack[:0], start)
			size := 1
			var touchBlack, touchWhite bool
			for len(stack) > 0 {
				cur := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for _, n := range b.neighbors(cur) {
					switch b.At(n) {
					case Black:
						touchBlack = true
					case White:
						touchWhite = true
					default:
						if !visited[b.Index(n)] {
							visited[b.Index(n)] = true
							stack = append(stack, n)
							size++
						}
					}
				}
			}
			switch {
			case touchBlack && !touchWhite:
				t.Black += size
			case touchWhite && !touchBlack:
				t.White += size
			default:
				t.Unknown += size
			}
		}
	}
	return t
}
