package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/model"
)

func TestGetOrOpenReusesEntry(t *testing.T) {
	root := t.TempDir()
	r := New(root, "", 0, config.CodecConfig{Format: "delimited"}, nil)

	key := Key{Topic: "clicks", KafkaPartition: 2, LogicalPartition: "dt=2024-01-02"}
	e1, err := r.GetOrOpen(key, 100, nil)
	if err != nil {
		t.Fatalf("GetOrOpen: %v", err)
	}
	e2, err := r.GetOrOpen(key, 999, nil)
	if err != nil {
		t.Fatalf("GetOrOpen second call: %v", err)
	}
	if e1 != e2 {
		t.Fatal("expected the same entry to be returned for the same key")
	}
	if e1.FirstOffset != 100 {
		t.Fatalf("got FirstOffset %d want 100", e1.FirstOffset)
	}
}

func TestAppendAndClose(t *testing.T) {
	root := t.TempDir()
	r := New(root, "", 0, config.CodecConfig{Format: "delimited"}, nil)

	key := Key{Topic: "clicks", KafkaPartition: 0, LogicalPartition: "dt=2024-01-02"}
	e, err := r.GetOrOpen(key, 10, nil)
	if err != nil {
		t.Fatalf("GetOrOpen: %v", err)
	}
	msgs := []model.Message{
		{Topic: "clicks", KafkaPartition: 0, Offset: 10, Payload: []byte("a")},
		{Topic: "clicks", KafkaPartition: 0, Offset: 11, Payload: []byte("b")},
	}
	for _, m := range msgs {
		if err := e.Append(m); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if e.Count != 2 || e.LastOffset != 11 {
		t.Fatalf("unexpected bookkeeping: count=%d lastOffset=%d", e.Count, e.LastOffset)
	}

	if err := r.Close(key); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Append(model.Message{Offset: 12, Payload: []byte("c")}); err == nil {
		t.Fatal("expected append after close to fail")
	}

	data, err := os.ReadFile(e.Path.Render())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "a\nb\n" {
		t.Fatalf("unexpected file contents: %q", data)
	}

	r.Drop(key)
	e3, err := r.GetOrOpen(key, 20, nil)
	if err != nil {
		t.Fatalf("GetOrOpen after drop: %v", err)
	}
	if e3 == e {
		t.Fatal("expected a fresh entry after Drop")
	}
}

func TestEntriesForFiltersByTopicAndPartition(t *testing.T) {
	root := t.TempDir()
	r := New(root, "", 0, config.CodecConfig{Format: "delimited"}, nil)

	k1 := Key{Topic: "clicks", KafkaPartition: 0, LogicalPartition: "dt=2024-01-02"}
	k2 := Key{Topic: "clicks", KafkaPartition: 1, LogicalPartition: "dt=2024-01-02"}
	k3 := Key{Topic: "views", KafkaPartition: 0, LogicalPartition: "dt=2024-01-02"}
	for _, k := range []Key{k1, k2, k3} {
		if _, err := r.GetOrOpen(k, 0, nil); err != nil {
			t.Fatalf("GetOrOpen: %v", err)
		}
	}

	entries := r.EntriesFor("clicks", 0)
	if len(entries) != 1 || entries[0].Key != k1 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if len(r.All()) != 3 {
		t.Fatalf("expected 3 total entries, got %d", len(r.All()))
	}
}

func TestGetOrOpenCreatesDirectoryTree(t *testing.T) {
	root := t.TempDir()
	r := New(root, "", 3, config.CodecConfig{Format: "delimited"}, nil)
	key := Key{Topic: "clicks", KafkaPartition: 0, LogicalPartition: "dt=2024-01-02"}
	e, err := r.GetOrOpen(key, 0, nil)
	if err != nil {
		t.Fatalf("GetOrOpen: %v", err)
	}
	want := filepath.Join(root, "clicks", "dt=2024-01-02")
	if got := filepath.Dir(e.Path.Render()); got != want {
		t.Fatalf("got dir %q want %q", got, want)
	}
}
