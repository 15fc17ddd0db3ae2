package orphanscan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/offsetstore"
	"github.com/Thepunisher64344/sunbird-secor/internal/registry"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestScanDiscardsFilesBelowCommitted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "clicks", "dt=2024-01-02", "0_0_00000000000000000000"), "a\nb\n")

	reg := registry.New(root, "", 0, config.CodecConfig{Format: "delimited"}, nil)
	offsets := offsetstore.NewMemory()
	if err := offsets.CommitOffset(context.Background(), "g", "clicks", 0, offsetstore.Position{Offset: 5}); err != nil {
		t.Fatalf("CommitOffset: %v", err)
	}

	outcomes, err := Scan(context.Background(), root, "g", reg, offsets, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Result != "discarded" {
		t.Fatalf("got outcomes %+v, want one discarded", outcomes)
	}
	if _, err := os.Stat(outcomes[0].Path); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, stat err = %v", err)
	}
}

func TestScanResumesFilesAboveCommitted(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "clicks", "dt=2024-01-02", "0_0_00000000000000000010")
	writeFile(t, path, "a\nb\nc\n")

	reg := registry.New(root, "", 0, config.CodecConfig{Format: "delimited"}, nil)
	offsets := offsetstore.NewMemory()
	if err := offsets.CommitOffset(context.Background(), "g", "clicks", 0, offsetstore.Position{Offset: 5}); err != nil {
		t.Fatalf("CommitOffset: %v", err)
	}

	outcomes, err := Scan(context.Background(), root, "g", reg, offsets, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Result != "resumed" {
		t.Fatalf("got outcomes %+v, want one resumed", outcomes)
	}

	key := registry.Key{Topic: "clicks", KafkaPartition: 0, LogicalPartition: "dt=2024-01-02"}
	entry, ok := reg.Lookup(key)
	if !ok {
		t.Fatalf("expected adopted entry to be registered")
	}
	if entry.Count != 3 || entry.LastOffset != 12 {
		t.Fatalf("got Count=%d LastOffset=%d, want Count=3 LastOffset=12", entry.Count, entry.LastOffset)
	}
}

func TestScanQuarantinesUnparseablePaths(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "not-a-valid-layout")
	writeFile(t, path, "garbage")

	reg := registry.New(root, "", 0, config.CodecConfig{Format: "delimited"}, nil)
	offsets := offsetstore.NewMemory()

	outcomes, err := Scan(context.Background(), root, "g", reg, offsets, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Result != "quarantined" {
		t.Fatalf("got outcomes %+v, want one quarantined", outcomes)
	}
	if _, err := os.Stat(filepath.Join(root, QuarantineDir, "not-a-valid-layout")); err != nil {
		t.Fatalf("expected file under quarantine dir: %v", err)
	}
}
