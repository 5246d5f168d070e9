package world

import (
	"image"
	"image/color"

	"pixelcraft.ai/internal/sim/materials"
)

// RasterizeDirty redraws the cells flagged dirty since the last call into img,
// which must cover the live array, and clears the flags. It returns the number
// of pixels written.
func (w *World) RasterizeDirty(img *image.RGBA) int {
	if img.Rect.Dx() < w.W || img.Rect.Dy() < w.H {
		return 0
	}
	n := 0
	for y := 0; y < w.H; y++ {
		for x := 0; x < w.W; x++ {
			i := w.index(x, y)
			if !w.dirty[i] && !w.bgDirty[i] {
				continue
			}
			w.dirty[i], w.bgDirty[i] = false, false
			c := w.bgColor[i]
			if t := w.bg[i]; t.Mat != 0 {
				c = t.Color
			}
			if t := w.tiles[i]; t.Mat != 0 {
				c = t.Color
			}
			r, g, b, a := materials.Unpack(c)
			img.SetRGBA(img.Rect.Min.X+x, img.Rect.Min.Y+y, color.RGBA{R: r, G: g, B: b, A: a})
			n++
		}
	}
	return n
}
