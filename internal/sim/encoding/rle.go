package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"pixelcraft.ai/internal/sim/materials"
)

// EncodeMaterials run-length encodes the material ids of a tile grid into
// base64 of (material, run) uvarint pairs, row-major.
func EncodeMaterials(tiles []materials.Tile) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	put := func(v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		buf.Write(tmp[:n])
	}
	for i := 0; i < len(tiles); {
		mat := tiles[i].Mat
		j := i + 1
		for j < len(tiles) && tiles[j].Mat == mat {
			j++
		}
		put(uint64(mat))
		put(uint64(j - i))
		i = j
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeMaterials reverses EncodeMaterials. The runs must cover exactly n
// cells.
func DecodeMaterials(b64 string, n int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, 0, n)
	for i := 0; i < len(raw); {
		mat, k := binary.Uvarint(raw[i:])
		if k <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += k
		run, k := binary.Uvarint(raw[i:])
		if k <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += k
		if mat > 0xFFFF {
			return nil, fmt.Errorf("material id too large: %d", mat)
		}
		if run == 0 || run > uint64(n-len(out)) {
			return nil, fmt.Errorf("run of %d at cell %d overflows %d cells", run, len(out), n)
		}
		for ; run > 0; run-- {
			out = append(out, uint16(mat))
		}
	}
	if len(out) != n {
		return nil, fmt.Errorf("runs cover %d cells, want %d", len(out), n)
	}
	return out, nil
}
