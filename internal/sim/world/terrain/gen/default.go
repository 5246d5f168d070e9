package gen

import (
	"fmt"
	"image"
	"math/rand/v2"

	"pixelcraft.ai/internal/sim/mathx"
	"pixelcraft.ai/internal/sim/materials"
	"pixelcraft.ai/internal/sim/world/terrain/store"
)

const (
	SurfaceBase  = 64
	SeaLevel     = 88
	BedrockDepth = 2048
	LavaDepth    = 640
	biomeRegion  = 384
)

// Default is the standard terrain: rolling hills with biomes, caves, ore and
// gravel pockets, water filling low valleys and lava deep down.
type Default struct {
	Seed int64
	reg  *materials.Registry

	air, stone, dirt, sand, gravel, water, lava uint16
	grass, wood, bedrock, coal, iron           uint16

	pops []Populator
}

func NewDefault(seed int64, reg *materials.Registry) (*Default, error) {
	d := &Default{Seed: seed, reg: reg}
	for name, dst := range map[string]*uint16{
		"AIR": &d.air, "STONE": &d.stone, "DIRT": &d.dirt, "SAND": &d.sand,
		"GRAVEL": &d.gravel, "WATER": &d.water, "LAVA": &d.lava, "GRASS": &d.grass,
		"WOOD": &d.wood, "BEDROCK": &d.bedrock, "COAL_ORE": &d.coal, "IRON_ORE": &d.iron,
	} {
		id, ok := reg.ByName(name)
		if !ok {
			return nil, fmt.Errorf("missing material in registry: %s", name)
		}
		*dst = id
	}
	d.pops = []Populator{&grassPopulator{d: d}, &treePopulator{d: d}}
	return d, nil
}

func (d *Default) Name() string { return "default" }

func (d *Default) Populators() []Populator { return d.pops }

// SurfaceAt returns the first solid row of column x.
func (d *Default) SurfaceAt(x int) int {
	broad := (mathx.Noise1(d.Seed, x, 192) - 0.5) * 96
	fine := (mathx.Noise1(d.Seed+1, x, 32) - 0.5) * 18
	return SurfaceBase + int(broad+fine)
}

func (d *Default) rng(cx, cy, salt int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(d.Seed), mathx.Hash3(d.Seed, cx, cy, salt)))
}

// Material picks the foreground material at a global pixel.
func (d *Default) Material(x, y, surface int, biome Biome) uint16 {
	if y >= BedrockDepth {
		return d.bedrock
	}
	depth := y - surface
	if depth < 0 {
		if y >= SeaLevel {
			return d.water
		}
		return d.air
	}
	soil := 5 + int(mathx.Hash2(d.Seed+3, x, 0)%4)
	if depth > 12 && mathx.Fractal2(d.Seed+2, x, y, 96, 3) > 0.66 {
		if y >= LavaDepth && mathx.Noise2(d.Seed+4, x, y, 128) > 0.55 {
			return d.lava
		}
		return d.air
	}
	if depth < soil {
		if biome == Desert {
			return d.sand
		}
		return d.dirt
	}
	if biome == Desert && depth < soil*3 {
		return d.sand
	}
	switch {
	case InCluster(d.Seed+12, x, y, 40, 6, 90):
		return d.gravel
	case depth > 80 && InCluster(d.Seed+11, x, y, 64, 4, 60):
		return d.iron
	case InCluster(d.Seed+10, x, y, 48, 5, 70):
		return d.coal
	}
	return d.stone
}

func (d *Default) GenerateChunk(ch *store.Chunk) {
	ch.Allocate()
	rng := d.rng(ch.X, ch.Y, 0)
	x0, y0 := ch.X*store.Width, ch.Y*store.Height
	for lx := 0; lx < store.Width; lx++ {
		gx := x0 + lx
		surface := d.SurfaceAt(gx)
		biome := BiomeAt(d.Seed, gx, biomeRegion)
		for ly := 0; ly < store.Height; ly++ {
			gy := y0 + ly
			i := store.Index(lx, ly)
			ch.Biome[i] = uint8(biome)
			if id := d.Material(gx, gy, surface, biome); id != d.air {
				ch.Tiles[i] = d.reg.NewTile(id, rng)
			}
			if gy >= surface+2 {
				bg := d.reg.NewTile(d.stone, rng)
				if gy < surface+10 {
					bg = d.reg.NewTile(d.dirt, rng)
				}
				bg.Color = darken(bg.Color)
				ch.Background[i] = bg
			} else {
				ch.BGColor[i] = skyColor(gy)
			}
		}
	}
	ch.Phase = 0
}

func darken(c uint32) uint32 {
	r, g, b, a := materials.Unpack(c)
	return materials.RGBA(r/2, g/2, b/2, a)
}

func skyColor(y int) uint32 {
	t := mathx.Clamp(y+256, 0, 512) * 255 / 512
	return materials.RGBA(uint8(90+t/4), uint8(140+t/5), 230, 255)
}

// grassPopulator covers exposed dirt. It reads the row above the chunk from
// its north neighbor.
type grassPopulator struct{ d *Default }

func (p *grassPopulator) Phase() int { return 1 }

func (p *grassPopulator) Apply(tiles []materials.Tile, nb *Neighborhood, ch *store.Chunk) []PlacedStructure {
	rng := p.d.rng(ch.X, ch.Y, 1)
	x0, y0 := ch.X*store.Width, ch.Y*store.Height
	for lx := 0; lx < store.Width; lx++ {
		for ly := 0; ly < store.Height; ly++ {
			i := store.Index(lx, ly)
			if tiles[i].Mat != p.d.dirt {
				continue
			}
			above, ok := nb.Get(x0+lx, y0+ly-1)
			if ok && above.Mat == p.d.air {
				tiles[i] = p.d.reg.NewTile(p.d.grass, rng)
			}
		}
	}
	return nil
}

// treePopulator grows trees on grass. Canopies may reach into neighbor chunks.
type treePopulator struct{ d *Default }

func (p *treePopulator) Phase() int { return 2 }

func treeChance(b Biome) uint64 {
	switch b {
	case Forest:
		return 220
	case Plains:
		return 40
	}
	return 0
}

func (p *treePopulator) Apply(tiles []materials.Tile, nb *Neighborhood, ch *store.Chunk) []PlacedStructure {
	d := p.d
	rng := d.rng(ch.X, ch.Y, 2)
	x0, y0 := ch.X*store.Width, ch.Y*store.Height
	var placed []PlacedStructure
	for lx := 2; lx < store.Width; lx += 6 {
		gx := x0 + lx
		h := mathx.Hash2(d.Seed+20, gx, 0)
		if h%1000 >= treeChance(Biome(ch.Biome[store.Index(lx, 0)])) {
			continue
		}
		for ly := 1; ly < store.Height; ly++ {
			if tiles[store.Index(lx, ly)].Mat != d.grass || tiles[store.Index(lx, ly-1)].Mat != d.air {
				continue
			}
			placed = append(placed, d.growTree(nb, rng, gx, y0+ly-1, 8+int(h>>12)%10))
			break
		}
	}
	return placed
}

func (d *Default) growTree(nb *Neighborhood, rng *rand.Rand, gx, base, height int) PlacedStructure {
	top := base
	for k := 0; k < height; k++ {
		t, ok := nb.Get(gx, base-k)
		if !ok || t.Mat != d.air {
			break
		}
		nb.Set(gx, base-k, d.reg.NewTile(d.wood, rng))
		top = base - k
	}
	const r = 4
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r {
				continue
			}
			if t, ok := nb.Get(gx+dx, top+dy); ok && t.Mat == d.air {
				nb.Set(gx+dx, top+dy, d.reg.NewTile(d.grass, rng))
			}
		}
	}
	return PlacedStructure{Name: "tree", Bounds: image.Rect(gx-r, top-r, gx+r+1, base+1)}
}
