package pty

import (
	"fmt"
	"testing"
)

func TestRollingBuffer_SnapshotOrder(t *testing.T) {
	buf := NewRollingBuffer(10)
	buf.Append("a")
	buf.Append("b")
	buf.Append("c")

	got := buf.Snapshot()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d chunks, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected chunk %d to be %q, got %q", i, want[i], got[i])
		}
	}
}

func TestRollingBuffer_EvictsOldest(t *testing.T) {
	buf := NewRollingBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Append(fmt.Sprintf("chunk-%d", i))
	}

	if buf.Len() != 3 {
		t.Fatalf("Expected length 3, got %d", buf.Len())
	}
	got := buf.Snapshot()
	want := []string{"chunk-2", "chunk-3", "chunk-4"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected chunk %d to be %q, got %q", i, want[i], got[i])
		}
	}
}

func TestRollingBuffer_DefaultCapacity(t *testing.T) {
	buf := NewRollingBuffer(0)
	if buf.Cap() != DefaultBufferCap {
		t.Errorf("Expected capacity %d, got %d", DefaultBufferCap, buf.Cap())
	}
}

func TestRollingBuffer_EmptySnapshot(t *testing.T) {
	buf := NewRollingBuffer(4)
	if got := buf.Snapshot(); len(got) != 0 {
		t.Errorf("Expected empty snapshot, got %d chunks", len(got))
	}
}
