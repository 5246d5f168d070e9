package geom

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// Loop is a closed polygon; the last point connects back to the first.
type Loop []mgl32.Vec2

// TracedLoop is a perimeter loop together with the set pixel whose corner
// started the trace. Holes and outer loops both border that pixel's component.
type TracedLoop struct {
	Points Loop
	Pixel  image.Point
}

type dir uint8

const (
	dirNone dir = iota
	dirUp
	dirDown
	dirLeft
	dirRight
)

type tracer struct {
	m      *Mask
	vEdges []bool // (W+1)*H, edge at x between y and y+1
	hEdges []bool // W*(H+1), edge at y between x and x+1
}

// TraceLoops walks every perimeter of m once using marching squares. Filled
// pixels stay on the left of the walking direction, so outer loops come out
// counter-clockwise on screen and holes clockwise. Diagonal-only contacts are
// kept apart.
func TraceLoops(m *Mask) []TracedLoop {
	t := &tracer{
		m:      m,
		vEdges: make([]bool, (m.W+1)*m.H),
		hEdges: make([]bool, m.W*(m.H+1)),
	}
	var out []TracedLoop
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if !m.Get(x, y) {
				continue
			}
			n := 0
			if m.Get(x+1, y) {
				n++
			}
			if m.Get(x, y+1) {
				n++
			}
			if m.Get(x+1, y+1) {
				n++
			}
			if n >= 3 {
				continue
			}
			if pts := t.trace(x+1, y+1); len(pts) > 0 {
				out = append(out, TracedLoop{Points: pts, Pixel: image.Pt(x, y)})
			}
		}
	}
	return out
}

func (t *tracer) state(x, y int) int {
	s := 0
	if t.m.Get(x-1, y-1) {
		s |= 1
	}
	if t.m.Get(x, y-1) {
		s |= 2
	}
	if t.m.Get(x-1, y) {
		s |= 4
	}
	if t.m.Get(x, y) {
		s |= 8
	}
	return s
}

// next picks the walking direction for the 2x2 neighborhood at point (x, y).
// The two saddle states resolve on the previous direction.
func (t *tracer) next(x, y int, prev dir) dir {
	switch t.state(x, y) {
	case 1, 5, 13:
		return dirUp
	case 2, 3, 7:
		return dirRight
	case 4, 12, 14:
		return dirLeft
	case 8, 10, 11:
		return dirDown
	case 6:
		if prev == dirUp {
			return dirLeft
		}
		return dirRight
	case 9:
		if prev == dirRight {
			return dirUp
		}
		return dirDown
	}
	return dirNone
}

func (t *tracer) edge(x, y int, d dir) *bool {
	w := t.m.W
	switch d {
	case dirUp:
		return &t.vEdges[(y-1)*(w+1)+x]
	case dirDown:
		return &t.vEdges[y*(w+1)+x]
	case dirLeft:
		return &t.hEdges[y*w+x-1]
	case dirRight:
		return &t.hEdges[y*w+x]
	}
	return nil
}

func move(x, y int, d dir) (int, int) {
	switch d {
	case dirUp:
		return x, y - 1
	case dirDown:
		return x, y + 1
	case dirLeft:
		return x - 1, y
	case dirRight:
		return x + 1, y
	}
	return x, y
}

func (t *tracer) trace(sx, sy int) Loop {
	// Seeding prev with right sends a saddle start around the upper-left
	// pixel, which is the pixel that triggered the scan.
	startDir := t.next(sx, sy, dirRight)
	if startDir == dirNone || *t.edge(sx, sy, startDir) {
		return nil
	}

	limit := 4 * (t.m.W + 1) * (t.m.H + 1)
	var pts Loop
	x, y := sx, sy
	d, last := startDir, dirNone
	for steps := 0; ; steps++ {
		if steps > 0 && x == sx && y == sy && d == startDir {
			break
		}
		if steps > limit {
			return nil
		}
		if d != last {
			pts = append(pts, mgl32.Vec2{float32(x), float32(y)})
		}
		*t.edge(x, y, d) = true
		x, y = move(x, y, d)
		last = d
		d = t.next(x, y, last)
		if d == dirNone {
			return nil
		}
	}
	if last == startDir && len(pts) > 1 {
		pts = pts[1:]
	}
	return pts
}
