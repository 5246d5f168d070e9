// Package geom turns binary pixel masks into simplified, hole-free, triangulated
// polygons. Coordinates are pixel-corner coordinates with y pointing down.
package geom

import "image"

// Mask is a row-major binary image.
type Mask struct {
	W, H int
	Bits []bool
}

func NewMask(w, h int) *Mask {
	return &Mask{W: w, H: h, Bits: make([]bool, w*h)}
}

// Get returns false outside the mask.
func (m *Mask) Get(x, y int) bool {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return false
	}
	return m.Bits[y*m.W+x]
}

func (m *Mask) Set(x, y int, v bool) { m.Bits[y*m.W+x] = v }

func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Bounds returns the tight bounding box of set pixels, or an empty rectangle.
func (m *Mask) Bounds() image.Rectangle {
	minX, minY, maxX, maxY := m.W, m.H, -1, -1
	for y := 0; y < m.H; y++ {
		row := m.Bits[y*m.W : (y+1)*m.W]
		for x, b := range row {
			if !b {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}
	if maxX < 0 {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// Components labels 4-connected components, returning a label per pixel
// (-1 for unset) and the component count. The fill uses an explicit stack.
func (m *Mask) Components() ([]int32, int) {
	labels := make([]int32, len(m.Bits))
	for i := range labels {
		labels[i] = -1
	}
	var stack []int
	n := 0
	for i, b := range m.Bits {
		if !b || labels[i] >= 0 {
			continue
		}
		id := int32(n)
		n++
		labels[i] = id
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := p%m.W, p/m.W
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nx, ny := x+d[0], y+d[1]
				if !m.Get(nx, ny) {
					continue
				}
				q := ny*m.W + nx
				if labels[q] < 0 {
					labels[q] = id
					stack = append(stack, q)
				}
			}
		}
	}
	return labels, n
}
