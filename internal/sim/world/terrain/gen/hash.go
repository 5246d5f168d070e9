package gen

import "pixelcraft.ai/internal/sim/mathx"

type Biome uint8

const (
	Plains Biome = iota
	Forest
	Desert
)

func (b Biome) String() string {
	switch b {
	case Forest:
		return "FOREST"
	case Desert:
		return "DESERT"
	}
	return "PLAINS"
}

func BiomeFrom(noise uint64) Biome {
	return Biome(noise % 3)
}

// BiomeAt buckets columns into regions of regionSize pixels.
func BiomeAt(seed int64, x, regionSize int) Biome {
	if regionSize <= 0 {
		regionSize = 1
	}
	return BiomeFrom(mathx.Hash2(seed, mathx.FloorDiv(x, regionSize), 0))
}

func ClampPermille(v int) int {
	return mathx.Clamp(v, 0, 1000)
}

// InCluster reports whether (x, y) lies within radius of the cluster center
// hashed into its grid cell or one of the 8 surrounding cells. Each cell holds
// a cluster with probability probPermille/1000.
func InCluster(seed int64, x, y, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := mathx.FloorDiv(x, grid)
	gy := mathx.FloorDiv(y, grid)
	r2 := radius * radius

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgy := gy + dy
			h := mathx.Hash2(seed, cgx, cgy)
			if h%1000 >= probPermille {
				continue
			}

			ox := int((h >> 10) % uint64(grid))
			oy := int((h >> 20) % uint64(grid))
			cx := cgx*grid + ox
			cy := cgy*grid + oy

			ddx := x - cx
			ddy := y - cy
			if ddx*ddx+ddy*ddy <= r2 {
				return true
			}
		}
	}
	return false
}
