package offsetstore

import (
	"context"
	"errors"
	"testing"
)

func TestPartitionLeaseAcquireIsExclusive(t *testing.T) {
	client := newTestEtcdClient(t)
	ctx := context.Background()

	a := NewPartitionLease(client, PartitionLeaseConfig{ConsumerID: "consumer-a", LeaseTTLSeconds: 5})
	b := NewPartitionLease(client, PartitionLeaseConfig{ConsumerID: "consumer-b", LeaseTTLSeconds: 5})

	if err := a.Acquire(ctx, "clicks", 0); err != nil {
		t.Fatalf("a.Acquire: %v", err)
	}
	if !a.Owns("clicks", 0) {
		t.Fatalf("expected a to own clicks/0")
	}

	if err := b.Acquire(ctx, "clicks", 0); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for b, got %v", err)
	}
	if b.Owns("clicks", 0) {
		t.Fatalf("expected b to not own clicks/0")
	}

	// Re-acquiring an already-held lease is a no-op, not a conflict.
	if err := a.Acquire(ctx, "clicks", 0); err != nil {
		t.Fatalf("a re-Acquire: %v", err)
	}

	a.Release("clicks", 0)
	if a.Owns("clicks", 0) {
		t.Fatalf("expected a to have released clicks/0")
	}

	if err := b.Acquire(ctx, "clicks", 0); err != nil {
		t.Fatalf("b.Acquire after release: %v", err)
	}
}

func TestPartitionLeaseReleaseAllClearsOwnership(t *testing.T) {
	client := newTestEtcdClient(t)
	ctx := context.Background()

	a := NewPartitionLease(client, PartitionLeaseConfig{ConsumerID: "consumer-a", LeaseTTLSeconds: 5})
	if err := a.Acquire(ctx, "clicks", 0); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := a.Acquire(ctx, "clicks", 1); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	a.ReleaseAll()

	if a.Owns("clicks", 0) || a.Owns("clicks", 1) {
		t.Fatalf("expected ReleaseAll to clear all ownership")
	}
	if err := a.Acquire(ctx, "clicks", 0); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown after ReleaseAll, got %v", err)
	}
}
