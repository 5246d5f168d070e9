package mathx

import "testing"

func TestFloorDivMod(t *testing.T) {
	cases := []struct{ a, b, q, m int }{
		{0, 128, 0, 0},
		{127, 128, 0, 127},
		{128, 128, 1, 0},
		{-1, 128, -1, 127},
		{-128, 128, -1, 0},
		{-129, 128, -2, 127},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.q {
			t.Fatalf("FloorDiv(%d,%d)=%d want %d", c.a, c.b, got, c.q)
		}
		if got := Mod(c.a, c.b); got != c.m {
			t.Fatalf("Mod(%d,%d)=%d want %d", c.a, c.b, got, c.m)
		}
	}
}

func TestNoiseDeterministicAndBounded(t *testing.T) {
	for x := -300; x < 300; x += 7 {
		for y := -300; y < 300; y += 11 {
			v := Noise2(42, x, y, 32)
			if v < 0 || v >= 1 {
				t.Fatalf("Noise2 out of range at %d,%d: %v", x, y, v)
			}
			if v != Noise2(42, x, y, 32) {
				t.Fatalf("Noise2 not deterministic")
			}
		}
		if v := Noise1(42, x, 16); v < 0 || v >= 1 {
			t.Fatalf("Noise1 out of range at %d: %v", x, v)
		}
	}
	if Noise1(1, 0, 16) != Unit(Hash2(1, 0, 0)) {
		t.Fatalf("Noise1 should hit lattice value at cell boundary")
	}
}
