package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Simplify reduces a closed loop with Ramer-Douglas-Peucker. The loop is split
// at the vertex farthest from its first point and each half is reduced
// separately. The result may have fewer than 3 points for tiny loops.
func Simplify(l Loop, eps float32) Loop {
	if len(l) < 3 || eps <= 0 {
		return append(Loop(nil), l...)
	}
	far, best := 0, float32(-1)
	for i, p := range l {
		if d := p.Sub(l[0]).Len(); d > best {
			far, best = i, d
		}
	}
	if far == 0 {
		return Loop{l[0]}
	}

	first := rdp(l[:far+1], eps)
	second := make(Loop, 0, len(l)-far+1)
	second = append(second, l[far:]...)
	second = append(second, l[0])
	second = rdp(second, eps)

	out := make(Loop, 0, len(first)+len(second))
	out = append(out, first...)
	out = append(out, second[1:len(second)-1]...)
	return out
}

// rdp keeps both endpoints of an open polyline.
func rdp(pts Loop, eps float32) Loop {
	if len(pts) < 3 {
		return append(Loop(nil), pts...)
	}
	a, b := pts[0], pts[len(pts)-1]
	idx, best := -1, float32(0)
	for i := 1; i < len(pts)-1; i++ {
		if d := SegmentDistance(pts[i], a, b); d > best {
			idx, best = i, d
		}
	}
	if idx < 0 || best <= eps {
		return Loop{a, b}
	}
	left := rdp(pts[:idx+1], eps)
	right := rdp(pts[idx:], eps)
	return append(left[:len(left)-1], right...)
}

// SegmentDistance is the distance from p to segment ab.
func SegmentDistance(p, a, b mgl32.Vec2) float32 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return p.Sub(a).Len()
	}
	t := p.Sub(a).Dot(ab) / l2
	t = float32(math.Max(0, math.Min(1, float64(t))))
	return p.Sub(a.Add(ab.Mul(t))).Len()
}

// SignedArea uses the shoelace formula in y-down coordinates: holes traced by
// TraceLoops are positive, outer loops negative.
func SignedArea(l Loop) float32 {
	var a float32
	for i := range l {
		j := (i + 1) % len(l)
		a += l[i][0]*l[j][1] - l[j][0]*l[i][1]
	}
	return a / 2
}

// IsHole reports whether l winds clockwise on screen.
func IsHole(l Loop) bool { return SignedArea(l) > 0 }

// Centroid is the vertex average.
func Centroid(pts []mgl32.Vec2) mgl32.Vec2 {
	var c mgl32.Vec2
	if len(pts) == 0 {
		return c
	}
	for _, p := range pts {
		c = c.Add(p)
	}
	return c.Mul(1 / float32(len(pts)))
}

// Contains is an even-odd point-in-polygon test.
func (l Loop) Contains(p mgl32.Vec2) bool {
	in := false
	for i, j := 0, len(l)-1; i < len(l); j, i = i, i+1 {
		a, b := l[i], l[j]
		if (a[1] > p[1]) != (b[1] > p[1]) {
			x := (b[0]-a[0])*(p[1]-a[1])/(b[1]-a[1]) + a[0]
			if p[0] < x {
				in = !in
			}
		}
	}
	return in
}
