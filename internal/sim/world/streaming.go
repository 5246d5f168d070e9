package world

import (
	"context"
	"errors"
	"image"
	"sort"

	"pixelcraft.ai/internal/sim/mathx"
	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/workers"
	"pixelcraft.ai/internal/sim/world/terrain/gen"
	"pixelcraft.ai/internal/sim/world/terrain/store"
)

type loadJob struct {
	Key store.ChunkKey
}

type loadResult struct {
	Chunk     *store.Chunk
	Generated bool
	Corrupt   string
	Err       error
}

// loadOrGenerate runs on the load pool. It must not touch World state other
// than the read-only registry, generator and store.
func (w *World) loadOrGenerate(j loadJob) loadResult {
	if w.store.Exists(j.Key) {
		ch, err := w.store.Load(j.Key, w.reg)
		if err == nil {
			return loadResult{Chunk: ch}
		}
		var ce *store.CorruptionError
		if !errors.As(err, &ce) {
			return loadResult{Err: err, Chunk: store.NewPlaceholder(j.Key.X, j.Key.Y)}
		}
		if !w.cfg.Persistence.RegenerateCorrupt {
			return loadResult{Chunk: ch, Corrupt: ce.Error()}
		}
		fresh := store.NewPlaceholder(j.Key.X, j.Key.Y)
		w.gen.GenerateChunk(fresh)
		return loadResult{Chunk: fresh, Generated: true, Corrupt: ce.Error()}
	}
	ch := store.NewPlaceholder(j.Key.X, j.Key.Y)
	w.gen.GenerateChunk(ch)
	return loadResult{Chunk: ch, Generated: true}
}

// QueueLoadChunk requests chunk (cx, cy). populate lets the chunk advance
// through generation phases and pull in its neighbors; render merges it into
// the live arrays once ready.
func (w *World) QueueLoadChunk(cx, cy int, populate, render bool) {
	k := store.ChunkKey{X: cx, Y: cy}
	if populate {
		w.populate[k] = true
	}
	if render {
		w.render[k] = true
	}
	ch, ok := w.chunks[k]
	if ok && ch.HasTileCache() {
		w.pushReadyFront(k)
		return
	}
	if !ok {
		w.chunks[k] = store.NewPlaceholder(cx, cy)
	}
	if w.loading[k] {
		return
	}
	w.loading[k] = true
	w.queued = append(w.queued, k)
}

func (w *World) pushReadyFront(k store.ChunkKey) {
	if w.inReady[k] {
		for i, r := range w.ready {
			if r == k {
				copy(w.ready[1:i+1], w.ready[:i])
				w.ready[0] = k
				return
			}
		}
	}
	w.inReady[k] = true
	w.ready = append(w.ready, store.ChunkKey{})
	copy(w.ready[1:], w.ready)
	w.ready[0] = k
}

func (w *World) pushReadyBack(k store.ChunkKey) {
	if w.inReady[k] {
		return
	}
	w.inReady[k] = true
	w.ready = append(w.ready, k)
}

// Frame dispatches queued loads, collects finished ones without blocking and
// merges up to MergeBatch ready chunks.
func (w *World) Frame() {
	for _, k := range w.queued {
		w.loader.Submit(loadJob{Key: k})
	}
	w.queued = w.queued[:0]

	w.absorbLoads(w.loader.Poll())

	for n := 0; n < w.cfg.World.MergeBatch && len(w.ready) > 0; n++ {
		k := w.ready[0]
		w.ready = w.ready[1:]
		delete(w.inReady, k)
		ch, ok := w.chunks[k]
		if !ok || !ch.HasTileCache() || !w.render[k] {
			continue
		}
		if w.visible(ch).Empty() {
			continue
		}
		w.MergeChunk(ch)
	}
}

// AwaitLoads blocks until every dispatched load finished and was absorbed.
func (w *World) AwaitLoads() {
	for _, k := range w.queued {
		w.loader.Submit(loadJob{Key: k})
	}
	w.queued = w.queued[:0]
	w.absorbLoads(w.loader.Drain())
}

func (w *World) absorbLoads(rs []loadResult) {
	for _, r := range rs {
		k := r.Chunk.Key()
		delete(w.loading, k)
		if r.Err != nil {
			w.log.Printf("chunk %v: load failed: %v", k, r.Err)
			delete(w.chunks, k)
			continue
		}
		if r.Corrupt != "" {
			w.counters.Corrupt++
			w.log.Printf("chunk %v: %s (regenerated=%v)", k, r.Corrupt, r.Generated)
			if w.ledger != nil {
				w.ledger.RecordCorruption(k.X, k.Y, r.Corrupt)
			}
		}
		if _, still := w.chunks[k]; !still {
			// Evicted while loading.
			continue
		}
		if r.Generated {
			w.counters.Generated++
		} else {
			w.counters.Loaded++
		}
		r.Chunk.MeshDirty = true
		w.chunks[k] = r.Chunk
		w.pushReadyBack(k)
	}
}

// footprint is the chunk's rectangle in array coordinates.
func (w *World) footprint(cx, cy int) image.Rectangle {
	x, y := w.ToArray(cx*store.Width, cy*store.Height)
	return image.Rect(x, y, x+store.Width, y+store.Height)
}

func (w *World) visible(ch *store.Chunk) image.Rectangle {
	return w.footprint(ch.X, ch.Y).Intersect(image.Rect(0, 0, w.W, w.H))
}

// MergeChunk copies the chunk's cached layers into the live arrays over the
// visible part of its footprint. Merging the same chunk twice is a no-op.
func (w *World) MergeChunk(ch *store.Chunk) {
	fp := w.footprint(ch.X, ch.Y)
	vis := fp.Intersect(image.Rect(0, 0, w.W, w.H))
	if vis.Empty() || !ch.HasTileCache() {
		return
	}
	for y := vis.Min.Y; y < vis.Max.Y; y++ {
		ly := y - fp.Min.Y
		src := store.Index(vis.Min.X-fp.Min.X, ly)
		dst := w.index(vis.Min.X, y)
		n := vis.Dx()
		copy(w.tiles[dst:dst+n], ch.Tiles[src:src+n])
		copy(w.bg[dst:dst+n], ch.Background[src:src+n])
		copy(w.bgColor[dst:dst+n], ch.BGColor[src:src+n])
		for i := dst; i < dst+n; i++ {
			w.dirty[i] = true
			w.bgDirty[i] = true
			w.flowX[i], w.flowY[i] = 0, 0
		}
	}
	ch.MeshDirty = true
	w.live[ch.Key()] = true
	w.counters.Merged++
}

// pullChunk copies live array content back into the chunk's cache.
func (w *World) pullChunk(ch *store.Chunk) {
	fp := w.footprint(ch.X, ch.Y)
	vis := fp.Intersect(image.Rect(0, 0, w.W, w.H))
	if vis.Empty() || !ch.HasTileCache() {
		return
	}
	for y := vis.Min.Y; y < vis.Max.Y; y++ {
		ly := y - fp.Min.Y
		dst := store.Index(vis.Min.X-fp.Min.X, ly)
		src := w.index(vis.Min.X, y)
		n := vis.Dx()
		copy(ch.Tiles[dst:dst+n], w.tiles[src:src+n])
		copy(ch.Background[dst:dst+n], w.bg[src:src+n])
		copy(ch.BGColor[dst:dst+n], w.bgColor[src:src+n])
	}
}

func (w *World) saveChunk(ch *store.Chunk) error {
	n, err := w.store.Save(ch)
	if err != nil {
		return err
	}
	w.counters.ChunkWrites++
	if w.ledger != nil {
		w.ledger.RecordSave(ch.X, ch.Y, ch.Phase, n)
	}
	return nil
}

// TickChunkGeneration evicts far chunks and advances the generation phase of
// the rest by at most one.
func (w *World) TickChunkGeneration() {
	center := w.centerChunk()
	dist := w.cfg.World.UnloadDist
	for _, k := range w.sortedKeys() {
		ch := w.chunks[k]
		if max(mathx.AbsInt(k.X-center.X), mathx.AbsInt(k.Y-center.Y)) > dist {
			w.evict(ch)
			continue
		}
		if !ch.HasTileCache() || ch.Phase >= w.maxPhase {
			continue
		}
		if !w.neighborsReady(k, ch.Phase) {
			continue
		}
		w.advancePhase(ch)
	}
}

func (w *World) sortedKeys() []store.ChunkKey {
	keys := w.ChunkKeys()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Y != keys[j].Y {
			return keys[i].Y < keys[j].Y
		}
		return keys[i].X < keys[j].X
	})
	return keys
}

// neighborsReady reports whether all 8 neighbors hold tiles at phase >= p.
// Missing neighbors of populated chunks are queued unless they lie beyond
// the unload distance, where eviction would drop them again.
func (w *World) neighborsReady(k store.ChunkKey, p int8) bool {
	center := w.centerChunk()
	dist := w.cfg.World.UnloadDist
	ok := true
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nk := store.ChunkKey{X: k.X + dx, Y: k.Y + dy}
			n, present := w.chunks[nk]
			if !present {
				far := max(mathx.AbsInt(nk.X-center.X), mathx.AbsInt(nk.Y-center.Y)) > dist
				if w.populate[k] && !far {
					w.QueueLoadChunk(nk.X, nk.Y, false, false)
				}
				ok = false
				continue
			}
			if !n.HasTileCache() || n.Phase < p {
				ok = false
			}
		}
	}
	return ok
}

func (w *World) advancePhase(ch *store.Chunk) {
	next := int(ch.Phase) + 1
	pops := gen.PopulatorsFor(w.gen, next)
	if len(pops) > 0 {
		nb := gen.NewNeighborhood(ch.X, ch.Y, func(k store.ChunkKey) *store.Chunk { return w.chunks[k] })
		w.syncNeighborhood(nb, w.pullChunk)
		for _, p := range pops {
			placed := p.Apply(ch.Tiles, nb, ch)
			w.counters.Structures += len(placed)
		}
		w.syncNeighborhood(nb, w.MergeChunk)
	}
	ch.Phase = int8(next)
	ch.MeshDirty = true
	w.counters.PhaseSteps++
}

func (w *World) syncNeighborhood(nb *gen.Neighborhood, fn func(*store.Chunk)) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			c := nb.Chunk(dx, dy)
			if c != nil && w.live[c.Key()] {
				fn(c)
			}
		}
	}
}

func (w *World) evict(ch *store.Chunk) {
	k := ch.Key()
	if ch.HasTileCache() {
		if w.live[k] {
			w.pullChunk(ch)
		}
		if err := w.saveChunk(ch); err != nil {
			w.log.Printf("chunk %v: evict: %v", k, err)
		}
	}
	if ch.HasBody {
		w.phys.DestroyBody(ch.Body)
		ch.HasBody = false
	}
	if ch.HasTileCache() {
		w.counters.Evicted++
	}
	ch.Release()
	delete(w.chunks, k)
	delete(w.live, k)
	delete(w.populate, k)
	delete(w.render, k)
	delete(w.inReady, k)
	for i, r := range w.ready {
		if r == k {
			w.ready = append(w.ready[:i], w.ready[i+1:]...)
			break
		}
	}
}

// MoveLoadZone shifts the live window by (dx, dy) pixels: array content moves
// with it so that global coordinates keep their tiles.
func (w *World) MoveLoadZone(dx, dy int) {
	if dx == 0 && dy == 0 {
		return
	}
	w.tickChunks(dx, dy)
}

// SetCamera moves the load zone so that global (gx, gy) sits near the middle
// of the array. Moves are snapped to whole chunks.
func (w *World) SetCamera(gx, gy int) {
	snap := func(v, s int) int { return mathx.FloorDiv(v+s/2, s) * s }
	target := image.Pt(snap(w.W/2-gx, store.Width), snap(w.H/2-gy, store.Height))
	d := target.Sub(w.loadZone)
	w.MoveLoadZone(d.X, d.Y)
	w.QueueVisible()
}

// QueueVisible requests every chunk overlapping the live array.
func (w *World) QueueVisible() {
	g0x, g0y := w.ToGlobal(0, 0)
	g1x, g1y := w.ToGlobal(w.W-1, w.H-1)
	for cy := mathx.FloorDiv(g0y, store.Height); cy <= mathx.FloorDiv(g1y, store.Height); cy++ {
		for cx := mathx.FloorDiv(g0x, store.Width); cx <= mathx.FloorDiv(g1x, store.Width); cx++ {
			k := store.ChunkKey{X: cx, Y: cy}
			if w.live[k] {
				continue
			}
			w.QueueLoadChunk(cx, cy, true, true)
		}
	}
}

func (w *World) tickChunks(dx, dy int) {
	oldWin := w.window()

	// Bring caches up to date before anything leaves the array.
	for k := range w.live {
		w.pullChunk(w.chunks[k])
	}

	w.shiftArrays(dx, dy)
	w.loadZone = w.loadZone.Add(image.Pt(dx, dy))
	newWin := w.window()

	for k := range w.live {
		fp := image.Rect(k.X*store.Width, k.Y*store.Height, (k.X+1)*store.Width, (k.Y+1)*store.Height)
		oldVis, newVis := fp.Intersect(oldWin), fp.Intersect(newWin)
		switch {
		case newVis.Empty():
			delete(w.live, k)
		case !newVis.In(oldVis):
			// Partly scrolled back in; refill from the synced cache.
			w.pushReadyFront(k)
		}
	}
	w.QueueVisible()
}

// window is the live array's extent in global coordinates.
func (w *World) window() image.Rectangle {
	return image.Rect(0, 0, w.W, w.H).Sub(w.loadZone)
}

// shiftArrays moves every live array by (dx, dy) and clears exposed cells.
func (w *World) shiftArrays(dx, dy int) {
	p := w.maintPool
	air := func() materials.Tile { return materials.AirTile() }
	w.tiles = shifted(p, w.tiles, w.W, w.H, dx, dy, air)
	w.bg = shifted(p, w.bg, w.W, w.H, dx, dy, air)
	w.bgColor = shifted(p, w.bgColor, w.W, w.H, dx, dy, zero[uint32])
	w.flowX = shifted(p, w.flowX, w.W, w.H, dx, dy, zero[float32])
	w.flowY = shifted(p, w.flowY, w.W, w.H, dx, dy, zero[float32])
	w.objMask = shifted(p, w.objMask, w.W, w.H, dx, dy, zero[bool])
	for i := range w.dirty {
		w.dirty[i] = true
		w.bgDirty[i] = true
	}
}

func zero[T any]() T {
	var v T
	return v
}

// shifted returns a copy of src moved by (dx, dy); uncovered cells get fill().
// Rows are copied in parallel bands.
func shifted[T any](p *workers.Pool, src []T, W, H, dx, dy int, fill func() T) []T {
	dst := make([]T, len(src))
	_ = p.Rows(context.Background(), H, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			row := dst[y*W : (y+1)*W]
			sy := y - dy
			if sy < 0 || sy >= H {
				for x := range row {
					row[x] = fill()
				}
				continue
			}
			srow := src[sy*W : (sy+1)*W]
			for x := range row {
				if sx := x - dx; sx >= 0 && sx < W {
					row[x] = srow[sx]
				} else {
					row[x] = fill()
				}
			}
		}
	})
	return dst
}
