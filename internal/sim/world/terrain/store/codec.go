package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"pixelcraft.ai/internal/sim/materials"
)

// File layout, little endian:
//
//	int8  phase
//	int32 tile block uncompressed size
//	int32 tile block compressed size
//	int32 background uncompressed size
//	int32 background compressed size
//	tile block (zstd): Area records {uint16 mat, uint32 color, int32 temp} for
//	                   the foreground layer, then Area records for the background layer
//	background (zstd): Area packed uint32 colors
const (
	headerSize = 1 + 4*4
	recordSize = 2 + 4 + 4

	tileBlockSize = 2 * Area * recordSize
	bgBlockSize   = Area * 4

	// Guards allocation against garbage headers.
	maxCompressed = 4 * tileBlockSize
)

var ErrCorrupt = errors.New("chunk data corrupt")

// CorruptionError describes recoverable damage found while reading a chunk.
// The chunk keeps whatever could be decoded; the rest stays air.
type CorruptionError struct {
	Key     ChunkKey
	Reasons []string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("chunk %v corrupt: %s", e.Key, strings.Join(e.Reasons, "; "))
}

func (e *CorruptionError) Unwrap() error { return ErrCorrupt }

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(maxCompressed)))
	})
	return encoder, decoder, codecErr
}

// WriteTo serializes both tile layers and the background colors.
func (c *Chunk) WriteTo(w io.Writer) (int64, error) {
	if !c.HasTileCache() {
		return 0, fmt.Errorf("chunk %v has no tile data", c.Key())
	}
	enc, _, err := codec()
	if err != nil {
		return 0, err
	}

	raw := make([]byte, tileBlockSize)
	off := 0
	for _, layer := range [2][]materials.Tile{c.Tiles, c.Background} {
		for _, t := range layer {
			binary.LittleEndian.PutUint16(raw[off:], t.Mat)
			binary.LittleEndian.PutUint32(raw[off+2:], t.Color)
			binary.LittleEndian.PutUint32(raw[off+6:], uint32(t.Temp))
			off += recordSize
		}
	}
	bgRaw := make([]byte, bgBlockSize)
	for i, col := range c.BGColor {
		binary.LittleEndian.PutUint32(bgRaw[i*4:], col)
	}

	tileComp := enc.EncodeAll(raw, nil)
	bgComp := enc.EncodeAll(bgRaw, nil)

	var hdr [headerSize]byte
	hdr[0] = byte(c.Phase)
	binary.LittleEndian.PutUint32(hdr[1:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(hdr[5:], uint32(len(tileComp)))
	binary.LittleEndian.PutUint32(hdr[9:], uint32(len(bgRaw)))
	binary.LittleEndian.PutUint32(hdr[13:], uint32(len(bgComp)))

	var n int64
	for _, b := range [][]byte{hdr[:], tileComp, bgComp} {
		m, err := w.Write(b)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReadFrom restores a chunk written by WriteTo. I/O errors before any payload
// is read are returned as-is; damaged payloads yield a *CorruptionError with
// the chunk populated as far as the data allowed.
func (c *Chunk) ReadFrom(r io.Reader, reg *materials.Registry) error {
	_, dec, err := codec()
	if err != nil {
		return err
	}
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("chunk %v header: %w", c.Key(), err)
	}
	phase := int8(hdr[0])
	tileRaw := int32(binary.LittleEndian.Uint32(hdr[1:]))
	tileComp := int32(binary.LittleEndian.Uint32(hdr[5:]))
	bgRaw := int32(binary.LittleEndian.Uint32(hdr[9:]))
	bgComp := int32(binary.LittleEndian.Uint32(hdr[13:]))

	ce := &CorruptionError{Key: c.Key()}
	c.Phase = phase
	c.Allocate()

	tiles := readBlock(r, dec, "tile block", tileRaw, tileComp, tileBlockSize, ce)
	bg := readBlock(r, dec, "background", bgRaw, bgComp, bgBlockSize, ce)

	badIDs := 0
	n := min(len(tiles)/recordSize, 2*Area)
	for i := 0; i < n; i++ {
		rec := tiles[i*recordSize:]
		id := binary.LittleEndian.Uint16(rec)
		col := binary.LittleEndian.Uint32(rec[2:])
		temp := int32(binary.LittleEndian.Uint32(rec[6:]))
		if !reg.Valid(id) {
			badIDs++
			id, col = 0, 0
		}
		t := reg.Restore(id, col, temp)
		if i < Area {
			c.Tiles[i] = t
		} else {
			c.Background[i-Area] = t
		}
	}
	if badIDs > 0 {
		ce.Reasons = append(ce.Reasons, fmt.Sprintf("%d material ids outside registry", badIDs))
	}
	for i := 0; i < min(len(bg)/4, Area); i++ {
		c.BGColor[i] = binary.LittleEndian.Uint32(bg[i*4:])
	}

	if len(ce.Reasons) > 0 {
		return ce
	}
	return nil
}

func readBlock(r io.Reader, dec *zstd.Decoder, name string, rawSize, compSize int32, want int, ce *CorruptionError) []byte {
	if rawSize != int32(want) {
		ce.Reasons = append(ce.Reasons, fmt.Sprintf("%s declares %d bytes, layout needs %d", name, rawSize, want))
	}
	if compSize < 0 || compSize > maxCompressed {
		ce.Reasons = append(ce.Reasons, fmt.Sprintf("%s compressed size %d out of range", name, compSize))
		return nil
	}
	comp := make([]byte, compSize)
	if k, err := io.ReadFull(r, comp); err != nil {
		ce.Reasons = append(ce.Reasons, fmt.Sprintf("%s truncated at %d/%d bytes", name, k, compSize))
		comp = comp[:k]
	}
	out, err := dec.DecodeAll(comp, make([]byte, 0, want))
	if err != nil {
		ce.Reasons = append(ce.Reasons, fmt.Sprintf("%s decompress: %v", name, err))
	}
	if len(out) != int(rawSize) {
		ce.Reasons = append(ce.Reasons, fmt.Sprintf("%s decompressed to %d bytes, header says %d", name, len(out), rawSize))
	}
	return out
}
