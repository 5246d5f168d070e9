package world

import (
	"context"
	"image"
	"image/color"

	"github.com/go-gl/mathgl/mgl32"

	"pixelcraft.ai/internal/sim/geom"
	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/physics"
)

// RigidBody is a free pixel raster driven by the physics engine. Its origin
// is the top-left corner of the raster, in global pixels.
type RigidBody struct {
	ID      int
	Body    physics.BodyID
	HasBody bool

	W, H  int
	Tiles []materials.Tile

	Surface   *image.RGBA
	Outline   []geom.Loop
	Triangles []geom.Triangle
	Density   float32

	HitboxDirty  bool
	SurfaceDirty bool

	// Weld is the body-local pixel pinned to the static world, if any.
	Weld *image.Point

	// pose used until the physics body exists
	def physics.BodyDef
}

// Mask is the set of non-air pixels.
func (b *RigidBody) Mask() *geom.Mask {
	m := geom.NewMask(b.W, b.H)
	for i, t := range b.Tiles {
		m.Bits[i] = t.Mat != 0
	}
	return m
}

func (b *RigidBody) PixelCount() int {
	n := 0
	for _, t := range b.Tiles {
		if t.Mat != 0 {
			n++
		}
	}
	return n
}

func (w *World) Bodies() []*RigidBody { return w.bodies }

// AddRigidBody registers a raster as a body. The physics body is built by the
// next UpdateRigidBodies.
func (w *World) AddRigidBody(tiles []materials.Tile, width, height int, def physics.BodyDef, weld *image.Point) *RigidBody {
	if len(tiles) != width*height {
		panic("world: rigid body raster size mismatch")
	}
	def.Type = physics.Dynamic
	b := &RigidBody{
		W:            width,
		H:            height,
		Tiles:        tiles,
		Density:      w.cfg.Mesh.Density,
		HitboxDirty:  true,
		SurfaceDirty: true,
		Weld:         weld,
		def:          def,
	}
	w.addBody(b)
	return b
}

func (w *World) addBody(b *RigidBody) {
	w.nextBody++
	b.ID = w.nextBody
	w.bodies = append(w.bodies, b)
}

func (w *World) removeBody(b *RigidBody) {
	if b.HasBody {
		w.phys.DestroyBody(b.Body)
		b.HasBody = false
	}
	for i, o := range w.bodies {
		if o == b {
			w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
			return
		}
	}
}

// Pose returns the body's current transform and velocities.
func (w *World) Pose(b *RigidBody) physics.BodyDef {
	if b.HasBody {
		if st, ok := w.phys.Body(b.Body); ok {
			return st.BodyDef
		}
	}
	return b.def
}

// UpdateRigidBodies rebuilds the hitboxes of dirty bodies and redraws dirty
// surfaces.
func (w *World) UpdateRigidBodies() {
	for _, b := range append([]*RigidBody(nil), w.bodies...) {
		if b.HitboxDirty {
			w.updateHitbox(b, 0)
		}
	}
	for _, b := range w.bodies {
		if b.SurfaceDirty {
			b.redraw()
		}
	}
}

func (b *RigidBody) redraw() {
	if b.Surface == nil || b.Surface.Rect.Dx() != b.W || b.Surface.Rect.Dy() != b.H {
		b.Surface = image.NewRGBA(image.Rect(0, 0, b.W, b.H))
	}
	for y := 0; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			r, g, bl, a := materials.Unpack(b.Tiles[x+y*b.W].Color)
			if b.Tiles[x+y*b.W].Mat == 0 {
				a = 0
			}
			b.Surface.SetRGBA(x, y, color.RGBA{R: r, G: g, B: bl, A: a})
		}
	}
	b.SurfaceDirty = false
}

func rotate(v mgl32.Vec2, angle float32) mgl32.Vec2 {
	return mgl32.Rotate2D(angle).Mul2x1(v)
}

// crop trims the raster to its set pixels and moves the origin to match.
func (w *World) crop(b *RigidBody, def *physics.BodyDef, r image.Rectangle) {
	if r == image.Rect(0, 0, b.W, b.H) {
		return
	}
	tiles := make([]materials.Tile, r.Dx()*r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		copy(tiles[(y-r.Min.Y)*r.Dx():], b.Tiles[r.Min.X+y*b.W:r.Max.X+y*b.W])
	}
	off := mgl32.Vec2{float32(r.Min.X), float32(r.Min.Y)}
	def.Position = def.Position.Add(rotate(off, def.Angle))
	if b.Weld != nil {
		p := b.Weld.Sub(r.Min)
		if p.In(image.Rect(0, 0, r.Dx(), r.Dy())) {
			b.Weld = &p
		} else {
			b.Weld = nil
		}
	}
	b.Tiles, b.W, b.H = tiles, r.Dx(), r.Dy()
	b.SurfaceDirty = true
}

// updateHitbox re-derives b's collision geometry, replacing b by one body per
// disjoint outline. It returns the bodies that now stand for b.
func (w *World) updateHitbox(b *RigidBody, depth int) []*RigidBody {
	def := w.Pose(b)
	b.HitboxDirty = false

	mask := b.Mask()
	r := mask.Bounds()
	if r.Empty() {
		w.removeBody(b)
		return nil
	}
	w.crop(b, &def, r)
	mask = b.Mask()

	res := geom.Build(mask, w.cfg.Mesh.SimplifyEpsilon)
	var polys []geom.Polygon
	for _, p := range res.Polygons {
		if len(p.Triangles) > 0 {
			polys = append(polys, p)
		}
	}
	if len(polys) == 0 {
		w.log.Printf("body %d: %d pixels produced no outline, dropped", b.ID, mask.Count())
		w.removeBody(b)
		return nil
	}

	assign := w.partition(mask, res, polys)

	single := len(polys) == 1 || depth >= w.cfg.Mesh.MaxSplitDepth
	// Two one-triangle pieces below the top level are kept together; splitting
	// them again does not terminate on some slivers.
	if depth > 0 && len(polys) == 2 && len(polys[0].Triangles)+len(polys[1].Triangles) == 2 {
		single = true
	}
	if single {
		for i := range b.Tiles {
			if b.Tiles[i].Mat != 0 && assign[i] < 0 {
				b.Tiles[i] = materials.AirTile()
			}
		}
		var tris []geom.Triangle
		var outline []geom.Loop
		for _, p := range polys {
			tris = append(tris, p.Triangles...)
			outline = append(outline, p.Outer)
			outline = append(outline, p.Holes...)
		}
		w.buildBody(b, def, tris, outline)
		return []*RigidBody{b}
	}

	total := b.PixelCount()
	succ := make([]*RigidBody, 0, len(polys))
	for k := range polys {
		nb := w.successor(b, def, assign, int32(k))
		if nb == nil {
			continue
		}
		succ = append(succ, nb)
	}
	w.removeBody(b)
	w.counters.Splits++

	var out []*RigidBody
	for _, nb := range succ {
		w.addBody(nb)
		next := depth + 1
		if nb.PixelCount() == total {
			next = w.cfg.Mesh.MaxSplitDepth
		}
		out = append(out, w.updateHitbox(nb, next)...)
	}
	return out
}

// partition maps every set pixel to the polygon that owns it: the polygon of
// its 4-connected component, or for components without a usable polygon, the
// polygon with the nearest triangle centroid. Pixels of discarded
// single-pixel components map to -1.
func (w *World) partition(m *geom.Mask, res geom.Result, polys []geom.Polygon) []int32 {
	byComp := map[int32]int32{}
	for k, p := range polys {
		byComp[int32(p.Component)] = int32(k)
	}
	discarded := map[int32]bool{}
	for _, c := range res.Discarded {
		discarded[int32(c)] = true
	}
	type centroid struct {
		p mgl32.Vec2
		k int32
	}
	var cents []centroid
	for k, p := range polys {
		for _, t := range p.Triangles {
			cents = append(cents, centroid{t.Centroid(), int32(k)})
		}
	}

	assign := make([]int32, len(m.Bits))
	rows := func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < m.W; x++ {
				i := x + y*m.W
				assign[i] = -1
				if !m.Bits[i] {
					continue
				}
				lbl := res.Labels[i]
				if k, ok := byComp[lbl]; ok {
					assign[i] = k
					continue
				}
				if discarded[lbl] {
					continue
				}
				c := mgl32.Vec2{float32(x) + 0.5, float32(y) + 0.5}
				best := float32(-1)
				for _, ct := range cents {
					if d := ct.p.Sub(c).LenSqr(); best < 0 || d < best {
						best, assign[i] = d, ct.k
					}
				}
			}
		}
	}
	if m.W > w.cfg.Mesh.SplitParallelWidth {
		_ = w.meshPool.Rows(context.Background(), m.H, rows)
	} else {
		rows(0, m.H)
	}
	return assign
}

// successor copies the pixels assigned to k into a new body posed like b.
func (w *World) successor(b *RigidBody, def physics.BodyDef, assign []int32, k int32) *RigidBody {
	r := image.Rectangle{}
	for y := 0; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			if assign[x+y*b.W] == k {
				r = r.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	if r.Empty() {
		return nil
	}
	tiles := make([]materials.Tile, r.Dx()*r.Dy())
	for i := range tiles {
		tiles[i] = materials.AirTile()
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if assign[x+y*b.W] == k {
				tiles[(x-r.Min.X)+(y-r.Min.Y)*r.Dx()] = b.Tiles[x+y*b.W]
			}
		}
	}
	nd := def
	nd.Position = def.Position.Add(rotate(mgl32.Vec2{float32(r.Min.X), float32(r.Min.Y)}, def.Angle))
	nb := &RigidBody{
		W:            r.Dx(),
		H:            r.Dy(),
		Tiles:        tiles,
		Density:      b.Density,
		SurfaceDirty: true,
		def:          nd,
	}
	if b.Weld != nil && assign[b.Weld.X+b.Weld.Y*b.W] == k {
		p := b.Weld.Sub(r.Min)
		nb.Weld = &p
	}
	return nb
}

func (w *World) buildBody(b *RigidBody, def physics.BodyDef, tris []geom.Triangle, outline []geom.Loop) {
	if b.HasBody {
		w.phys.DestroyBody(b.Body)
	}
	shapes := make([]physics.Shape, len(tris))
	for i, t := range tris {
		shapes[i] = physics.Shape{Vertices: []mgl32.Vec2{t[0], t[1], t[2]}}
	}
	fix := physics.Fixture{
		Shapes:   shapes,
		Density:  b.Density,
		Friction: w.cfg.Mesh.Friction,
		Category: physics.CategoryBody,
		Mask:     physics.MaskAll,
	}
	def.Type = physics.Dynamic
	if b.Weld != nil {
		fix.Category = physics.CategoryWelded
		fix.Mask = physics.MaskAll &^ (physics.CategoryBody | physics.CategoryWelded)
	}
	b.Body = w.phys.CreateBody(def, fix)
	b.HasBody = true
	b.def = def
	if b.Weld != nil {
		anchor := def.Position.Add(rotate(mgl32.Vec2{float32(b.Weld.X) + 0.5, float32(b.Weld.Y) + 0.5}, def.Angle))
		w.phys.CreateWeldJoint(w.anchorBody(), b.Body, anchor)
	}
	b.Triangles = tris
	b.Outline = outline
	b.SurfaceDirty = true
}

// anchorBody is the shared static body welded fragments hang from.
func (w *World) anchorBody() physics.BodyID {
	if !w.hasAnchor {
		w.anchor = w.phys.CreateBody(physics.BodyDef{Type: physics.Static}, physics.Fixture{Category: physics.CategoryTerrain})
		w.hasAnchor = true
	}
	return w.anchor
}

// RasterizeBodies marks the live cells covered by body pixels.
func (w *World) RasterizeBodies() {
	clear(w.objMask)
	off := w.arrayOffset()
	for _, b := range w.bodies {
		def := w.Pose(b)
		rot := mgl32.Rotate2D(def.Angle)
		for y := 0; y < b.H; y++ {
			for x := 0; x < b.W; x++ {
				if b.Tiles[x+y*b.W].Mat == 0 {
					continue
				}
				p := def.Position.Add(rot.Mul2x1(mgl32.Vec2{float32(x) + 0.5, float32(y) + 0.5})).Add(off)
				ax, ay := int(floor32(p[0])), int(floor32(p[1]))
				if w.inArray(ax, ay) {
					w.objMask[w.index(ax, ay)] = true
				}
			}
		}
	}
}

func floor32(v float32) float32 {
	f := float32(int(v))
	if f > v {
		f--
	}
	return f
}
