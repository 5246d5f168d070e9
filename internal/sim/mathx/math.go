package mathx

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func Sign(x int) int {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	}
	return 0
}

func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, y int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func Hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// Unit maps a hash to [0,1).
func Unit(h uint64) float64 {
	return float64(h>>11) / (1 << 53)
}

func smooth(t float64) float64 { return t * t * (3 - 2*t) }

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

// Noise1 is smoothed value noise over x with lattice spacing cell; range [0,1).
func Noise1(seed int64, x, cell int) float64 {
	i := FloorDiv(x, cell)
	t := float64(Mod(x, cell)) / float64(cell)
	a := Unit(Hash2(seed, i, 0))
	b := Unit(Hash2(seed, i+1, 0))
	return lerp(a, b, smooth(t))
}

// Noise2 is bilinear smoothed value noise; range [0,1).
func Noise2(seed int64, x, y, cell int) float64 {
	ix, iy := FloorDiv(x, cell), FloorDiv(y, cell)
	tx := smooth(float64(Mod(x, cell)) / float64(cell))
	ty := smooth(float64(Mod(y, cell)) / float64(cell))
	a := Unit(Hash2(seed, ix, iy))
	b := Unit(Hash2(seed, ix+1, iy))
	c := Unit(Hash2(seed, ix, iy+1))
	d := Unit(Hash2(seed, ix+1, iy+1))
	return lerp(lerp(a, b, tx), lerp(c, d, tx), ty)
}

// Fractal2 sums octaves of Noise2, halving the cell each octave.
func Fractal2(seed int64, x, y, cell, octaves int) float64 {
	var sum, amp, norm float64 = 0, 1, 0
	for o := 0; o < octaves && cell > 0; o++ {
		sum += Noise2(seed+int64(o)*7919, x, y, cell) * amp
		norm += amp
		amp *= 0.5
		cell /= 2
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}
