package consumerloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Thepunisher64344/sunbird-secor/internal/blobstore"
	"github.com/Thepunisher64344/sunbird-secor/internal/commitpolicy"
	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/dedupe"
	"github.com/Thepunisher64344/sunbird-secor/internal/model"
	"github.com/Thepunisher64344/sunbird-secor/internal/offsetstore"
	"github.com/Thepunisher64344/sunbird-secor/internal/parser"
	"github.com/Thepunisher64344/sunbird-secor/internal/registry"
	"github.com/Thepunisher64344/sunbird-secor/internal/tracker"
	"github.com/Thepunisher64344/sunbird-secor/internal/uploader"
)

type fakeSource struct {
	mu      sync.Mutex
	batches []Batch
	idx     int
	done    chan struct{}
}

func (f *fakeSource) Poll(ctx context.Context) (Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.batches) {
		close(f.done)
		<-ctx.Done()
		return Batch{}, ctx.Err()
	}
	b := f.batches[f.idx]
	f.idx++
	return b, nil
}

func (f *fakeSource) Close() error { return nil }

func TestRunAppendsMessagesAndFlushesOnRevoke(t *testing.T) {
	root := t.TempDir()
	reg := registry.New(root, "", 0, config.CodecConfig{Format: "delimited"}, nil)
	tr := tracker.New(reg)
	blob := blobstore.NewMemory()
	offsets := offsetstore.NewMemory()
	policy := commitpolicy.New(config.CommitPolicyConfig{MaxFileRecords: 1000}) // never trip on its own
	up := uploader.New(reg, policy, blob, offsets, dedupe.New(16), "g", config.CommitPolicyConfig{UploadConcurrency: 2, UploadRetries: 1, UploadBackoff: time.Millisecond}, nil)

	p, err := parser.New(config.ParserConfig{
		Class: "timestamped", TimestampName: "ts", TimestampUnit: "ms",
		OutputDtFormat: "'dt='yyyy-MM-dd", TimeZone: "UTC",
	})
	if err != nil {
		t.Fatalf("parser.New: %v", err)
	}

	source := &fakeSource{
		done: make(chan struct{}),
		batches: []Batch{
			{Messages: []model.Message{
				{Topic: "clicks", KafkaPartition: 0, Offset: 0, Payload: []byte(`{"ts":1400000000000}`)},
				{Topic: "clicks", KafkaPartition: 0, Offset: 1, Payload: []byte(`{"ts":1400000000000}`)},
			}},
			{Revoked: []TopicPartition{{Topic: "clicks", Partition: 0}}},
		},
	}

	loop := New(Config{
		Source: source, Parser: p, Registry: reg, Tracker: tr, Uploader: up, Offsets: offsets,
		Group: "g", SweepInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	select {
	case <-source.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for source to be drained")
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}

	pos, ok, err := offsets.Committed(context.Background(), "g", "clicks", 0)
	if err != nil || !ok {
		t.Fatalf("expected a committed offset after revoke flush, got ok=%v err=%v", ok, err)
	}
	if pos.Offset != 2 {
		t.Fatalf("got committed offset %d want 2", pos.Offset)
	}
}
