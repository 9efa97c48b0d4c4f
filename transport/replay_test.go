package transport

import (
	"math"
	"testing"
)

func TestReplayWindow(t *testing.T) {
	var w replayWindow
	steps := []struct {
		seq  uint32
		want bool
	}{
		{10, true},
		{10, false}, // duplicate
		{12, true},
		{11, true}, // late but inside the window
		{11, false},
		{100, true},
		{36, false}, // 64 behind the newest
		{37, true},
		{99, true},
		{99, false},
	}
	for i, s := range steps {
		if got := w.accept(s.seq); got != s.want {
			t.Fatalf("step %d: accept(%d) = %v, want %v", i, s.seq, got, s.want)
		}
	}
}

func TestReplayWindowWraps(t *testing.T) {
	var w replayWindow
	if !w.accept(math.MaxUint32 - 1) {
		t.Fatal("first sequence rejected")
	}
	if !w.accept(2) {
		t.Fatal("sequence after wrap rejected")
	}
	if !w.accept(math.MaxUint32) {
		t.Fatal("late sequence before wrap rejected")
	}
	if w.accept(math.MaxUint32 - 1) {
		t.Fatal("duplicate before wrap accepted")
	}
}
