package offsetstore

import (
	"context"
	"testing"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/Thepunisher64344/sunbird-secor/internal/testutil"
)

func newTestEtcdClient(t *testing.T) *clientv3.Client {
	t.Helper()
	endpoints := testutil.StartEmbeddedEtcd(t)
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new etcd client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestEtcdStoreCommitAndCommitted(t *testing.T) {
	client := newTestEtcdClient(t)
	store := NewEtcd(client)
	ctx := context.Background()

	if _, ok, err := store.Committed(ctx, "g", "clicks", 0); err != nil || ok {
		t.Fatalf("expected no committed offset yet, ok=%v err=%v", ok, err)
	}

	if err := store.CommitOffset(ctx, "g", "clicks", 0, Position{Offset: 42, TimestampMillis: 1000}); err != nil {
		t.Fatalf("CommitOffset: %v", err)
	}

	pos, ok, err := store.Committed(ctx, "g", "clicks", 0)
	if err != nil || !ok {
		t.Fatalf("Committed: ok=%v err=%v", ok, err)
	}
	if pos.Offset != 42 || pos.TimestampMillis != 1000 {
		t.Fatalf("got %+v, want offset=42 ts=1000", pos)
	}

	if err := store.RecordSeen(ctx, "g", "clicks", 0, Position{Offset: 50}); err != nil {
		t.Fatalf("RecordSeen: %v", err)
	}
	seen, ok, err := store.LastSeen(ctx, "g", "clicks", 0)
	if err != nil || !ok || seen.Offset != 50 {
		t.Fatalf("LastSeen: got %+v ok=%v err=%v", seen, ok, err)
	}
}

func TestEtcdStoreIsolatesPartitions(t *testing.T) {
	client := newTestEtcdClient(t)
	store := NewEtcd(client)
	ctx := context.Background()

	if err := store.CommitOffset(ctx, "g", "clicks", 0, Position{Offset: 1}); err != nil {
		t.Fatalf("CommitOffset partition 0: %v", err)
	}
	if _, ok, err := store.Committed(ctx, "g", "clicks", 1); err != nil || ok {
		t.Fatalf("expected partition 1 to remain uncommitted, ok=%v err=%v", ok, err)
	}
}
