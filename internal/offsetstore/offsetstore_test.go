package offsetstore

import (
	"context"
	"testing"
)

func TestMemoryCommittedAndLastSeen(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, err := m.Committed(ctx, "g", "t", 0); err != nil || ok {
		t.Fatalf("expected no committed offset yet, got ok=%v err=%v", ok, err)
	}

	if err := m.CommitOffset(ctx, "g", "t", 0, Position{Offset: 42, TimestampMillis: 1000}); err != nil {
		t.Fatalf("CommitOffset: %v", err)
	}
	pos, ok, err := m.Committed(ctx, "g", "t", 0)
	if err != nil || !ok || pos.Offset != 42 {
		t.Fatalf("unexpected committed position: %+v ok=%v err=%v", pos, ok, err)
	}

	if err := m.RecordSeen(ctx, "g", "t", 0, Position{Offset: 50}); err != nil {
		t.Fatalf("RecordSeen: %v", err)
	}
	seen, ok, err := m.LastSeen(ctx, "g", "t", 0)
	if err != nil || !ok || seen.Offset != 50 {
		t.Fatalf("unexpected last-seen position: %+v ok=%v err=%v", seen, ok, err)
	}

	// A distinct partition must not share state.
	if _, ok, err := m.Committed(ctx, "g", "t", 1); err != nil || ok {
		t.Fatalf("expected partition 1 to be unset, got ok=%v err=%v", ok, err)
	}
}
