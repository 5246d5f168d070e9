package geom

// Polygon is one outer perimeter with its holes and triangulation.
type Polygon struct {
	Outer     Loop
	Holes     []Loop
	Merged    Loop
	Triangles []Triangle
	Component int
}

// Result of Build. Labels is the 4-connected component label per mask pixel.
type Result struct {
	Polygons []Polygon
	Labels   []int32
	// Discarded lists single-pixel components whose outer loop simplified
	// below 3 vertices.
	Discarded []int
	// SkippedHoles counts holes that could not be bridged into their outer loop.
	SkippedHoles int
}

// Build runs trace, simplify, hole removal and ear clipping over m.
func Build(m *Mask, eps float32) Result {
	labels, n := m.Components()
	res := Result{Labels: labels}
	sizes := make([]int, n)
	for _, l := range labels {
		if l >= 0 {
			sizes[l]++
		}
	}

	traced := TraceLoops(m)
	byComponent := map[int]int{}
	var holes []TracedLoop
	for _, tl := range traced {
		if IsHole(tl.Points) {
			holes = append(holes, tl)
			continue
		}
		comp := int(labels[tl.Pixel.Y*m.W+tl.Pixel.X])
		s := Simplify(tl.Points, eps)
		if len(s) < 3 {
			// Thin runs collapse under eps; keep their traced outline.
			if sizes[comp] < 2 || len(tl.Points) < 3 {
				res.Discarded = append(res.Discarded, comp)
				continue
			}
			s = append(Loop(nil), tl.Points...)
		}
		byComponent[comp] = len(res.Polygons)
		res.Polygons = append(res.Polygons, Polygon{Outer: s, Component: comp})
	}

	for _, h := range holes {
		comp := int(labels[h.Pixel.Y*m.W+h.Pixel.X])
		pi, ok := byComponent[comp]
		if !ok {
			continue
		}
		s := Simplify(h.Points, eps)
		if len(s) < 3 {
			continue
		}
		res.Polygons[pi].Holes = append(res.Polygons[pi].Holes, s)
	}

	for i := range res.Polygons {
		p := &res.Polygons[i]
		merged, skipped := RemoveHoles(p.Outer, p.Holes)
		res.SkippedHoles += skipped
		p.Merged = merged
		p.Triangles = Triangulate(merged)
	}
	return res
}

// TriangleCount sums triangles over all polygons.
func (r Result) TriangleCount() int {
	n := 0
	for _, p := range r.Polygons {
		n += len(p.Triangles)
	}
	return n
}
