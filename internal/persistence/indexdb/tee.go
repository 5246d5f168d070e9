package indexdb

import "pixelcraft.ai/internal/sim/world"

type tee []world.ChunkLedger

// Tee fans chunk events out to every non-nil ledger. It returns nil when
// none remain.
func Tee(ls ...world.ChunkLedger) world.ChunkLedger {
	var t tee
	for _, l := range ls {
		if l != nil {
			t = append(t, l)
		}
	}
	switch len(t) {
	case 0:
		return nil
	case 1:
		return t[0]
	}
	return t
}

func (t tee) RecordSave(x, y int, phase int8, bytes int64) {
	for _, l := range t {
		l.RecordSave(x, y, phase, bytes)
	}
}

func (t tee) RecordCorruption(x, y int, reason string) {
	for _, l := range t {
		l.RecordCorruption(x, y, reason)
	}
}
