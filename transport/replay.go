package transport

const replayWindowSize = 64

// replayWindow drops duplicated and too-old datagrams by sequence number. It keeps
// the highest sequence seen and a bitmap of the 64 sequences below it. Sequence
// comparison uses serial arithmetic so the 32-bit counter may wrap.
type replayWindow struct {
	started bool
	highest uint32
	bitmap  uint64 // bit i set ⇒ highest-i was seen
}

// accept reports whether seq is new and records it.
func (w *replayWindow) accept(seq uint32) bool {
	if !w.started {
		w.started = true
		w.highest = seq
		w.bitmap = 1
		return true
	}

	if d := int32(seq - w.highest); d > 0 {
		if d >= replayWindowSize {
			w.bitmap = 1
		} else {
			w.bitmap = w.bitmap<<uint(d) | 1
		}
		w.highest = seq
		return true
	}

	back := uint32(w.highest - seq)
	if back >= replayWindowSize {
		return false
	}
	bit := uint64(1) << back
	if w.bitmap&bit != 0 {
		return false
	}
	w.bitmap |= bit
	return true
}
