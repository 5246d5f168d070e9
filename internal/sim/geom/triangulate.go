package geom

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

type Triangle [3]mgl32.Vec2

func (t Triangle) Centroid() mgl32.Vec2 {
	return t[0].Add(t[1]).Add(t[2]).Mul(1.0 / 3)
}

func (t Triangle) Area() float32 {
	return float32(math.Abs(float64(cross(t[0], t[1], t[2])))) / 2
}

func (t Triangle) Contains(p mgl32.Vec2) bool {
	return pointInTriangle(p, t[0], t[1], t[2])
}

func cross(o, a, b mgl32.Vec2) float32 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func pointInTriangle(p, a, b, c mgl32.Vec2) bool {
	d1 := cross(a, b, p)
	d2 := cross(b, c, p)
	d3 := cross(c, a, p)
	neg := d1 < 0 || d2 < 0 || d3 < 0
	pos := d1 > 0 || d2 > 0 || d3 > 0
	return !(neg && pos)
}

// RemoveHoles splices every hole into outer through a bridge edge, yielding a
// single weakly simple polygon. Holes that cannot be bridged are skipped and
// counted in the second return value.
func RemoveHoles(outer Loop, holes []Loop) (Loop, int) {
	poly := append(Loop(nil), outer...)
	sorted := append([]Loop(nil), holes...)
	sort.Slice(sorted, func(i, j int) bool { return maxX(sorted[i]) > maxX(sorted[j]) })

	skipped := 0
	for _, h := range sorted {
		if len(h) < 3 {
			skipped++
			continue
		}
		next, ok := bridge(poly, h)
		if !ok {
			skipped++
			continue
		}
		poly = next
	}
	return poly, skipped
}

func maxX(l Loop) float32 {
	m := float32(math.Inf(-1))
	for _, p := range l {
		m = max(m, p[0])
	}
	return m
}

func bridge(poly, hole Loop) (Loop, bool) {
	mi := 0
	for i, p := range hole {
		if p[0] > hole[mi][0] {
			mi = i
		}
	}
	m := hole[mi]

	bestX := float32(math.Inf(1))
	pi := -1
	for i := range poly {
		a, b := poly[i], poly[(i+1)%len(poly)]
		if a[1] == b[1] {
			if a[1] == m[1] {
				for k, v := range [2]mgl32.Vec2{a, b} {
					if v[0] >= m[0] && v[0] < bestX {
						bestX = v[0]
						pi = (i + k) % len(poly)
					}
				}
			}
			continue
		}
		if (a[1] > m[1]) == (b[1] > m[1]) && a[1] != m[1] && b[1] != m[1] {
			continue
		}
		if min(a[1], b[1]) > m[1] || max(a[1], b[1]) < m[1] {
			continue
		}
		x := a[0] + (m[1]-a[1])*(b[0]-a[0])/(b[1]-a[1])
		if x < m[0] || x >= bestX {
			continue
		}
		bestX = x
		switch {
		case x == a[0] && m[1] == a[1]:
			pi = i
		case x == b[0] && m[1] == b[1]:
			pi = (i + 1) % len(poly)
		case a[0] > b[0]:
			pi = i
		default:
			pi = (i + 1) % len(poly)
		}
	}
	if pi < 0 {
		return nil, false
	}

	ip := mgl32.Vec2{bestX, m[1]}
	p := poly[pi]
	if p != ip {
		// Another vertex inside (m, ip, p) may block the view of p; take the
		// one with the smallest angle to the ray.
		bestAngle := angleTo(m, p)
		for i, v := range poly {
			if i == pi || v == m || !pointInTriangle(v, m, ip, p) {
				continue
			}
			if v[0] < m[0] {
				continue
			}
			if a := angleTo(m, v); a < bestAngle || (a == bestAngle && v.Sub(m).Len() < poly[pi].Sub(m).Len()) {
				bestAngle = a
				pi = i
			}
		}
	}

	out := make(Loop, 0, len(poly)+len(hole)+2)
	out = append(out, poly[:pi+1]...)
	for k := 0; k <= len(hole); k++ {
		out = append(out, hole[(mi+k)%len(hole)])
	}
	out = append(out, poly[pi])
	out = append(out, poly[pi+1:]...)
	return out, true
}

func angleTo(o, p mgl32.Vec2) float32 {
	d := p.Sub(o)
	return float32(math.Abs(math.Atan2(float64(d[1]), float64(d[0]))))
}

// Triangulate ear-clips a simple (or bridged) polygon of either winding.
// Collinear vertices are dropped without emitting a triangle.
func Triangulate(poly Loop) []Triangle {
	n := len(poly)
	if n < 3 {
		return nil
	}
	sign := float32(1)
	if SignedArea(poly) < 0 {
		sign = -1
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	tris := make([]Triangle, 0, n-2)
	guard := 0
	for len(idx) > 3 && guard < 4*n*n {
		guard++
		clipped := false
		for k := 0; k < len(idx); k++ {
			ia := idx[(k+len(idx)-1)%len(idx)]
			ib := idx[k]
			ic := idx[(k+1)%len(idx)]
			a, b, c := poly[ia], poly[ib], poly[ic]
			cr := cross(a, b, c) * sign
			if cr == 0 {
				idx = append(idx[:k], idx[k+1:]...)
				clipped = true
				break
			}
			if cr < 0 {
				continue
			}
			if earBlocked(poly, idx, a, b, c) {
				continue
			}
			tris = append(tris, Triangle{a, b, c})
			idx = append(idx[:k], idx[k+1:]...)
			clipped = true
			break
		}
		if !clipped {
			// Numerically stuck; clip the flattest convex-ish vertex.
			k := flattest(poly, idx)
			ia, ib, ic := idx[(k+len(idx)-1)%len(idx)], idx[k], idx[(k+1)%len(idx)]
			if cross(poly[ia], poly[ib], poly[ic])*sign > 0 {
				tris = append(tris, Triangle{poly[ia], poly[ib], poly[ic]})
			}
			idx = append(idx[:k], idx[k+1:]...)
		}
	}
	if len(idx) == 3 {
		a, b, c := poly[idx[0]], poly[idx[1]], poly[idx[2]]
		if cross(a, b, c) != 0 {
			tris = append(tris, Triangle{a, b, c})
		}
	}
	return tris
}

func earBlocked(poly Loop, idx []int, a, b, c mgl32.Vec2) bool {
	for _, j := range idx {
		p := poly[j]
		if p == a || p == b || p == c {
			continue
		}
		if pointInTriangle(p, a, b, c) {
			return true
		}
	}
	return false
}

func flattest(poly Loop, idx []int) int {
	best, bestV := 0, float32(math.Inf(1))
	for k := range idx {
		a := poly[idx[(k+len(idx)-1)%len(idx)]]
		b := poly[idx[k]]
		c := poly[idx[(k+1)%len(idx)]]
		if v := float32(math.Abs(float64(cross(a, b, c)))); v < bestV {
			best, bestV = k, v
		}
	}
	return best
}
