package commitpolicy

import (
	"testing"
	"time"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/registry"
)

func TestShouldFlushOnSize(t *testing.T) {
	p := New(config.CommitPolicyConfig{MaxFileSizeBytes: 100})
	e := &registry.Entry{Bytes: 150, CreatedAt: time.Now()}
	if !p.ShouldFlush(e, time.Now()) {
		t.Fatal("expected flush on size threshold")
	}
}

func TestShouldFlushOnRecords(t *testing.T) {
	p := New(config.CommitPolicyConfig{MaxFileRecords: 10})
	e := &registry.Entry{Count: 10, CreatedAt: time.Now()}
	if !p.ShouldFlush(e, time.Now()) {
		t.Fatal("expected flush on record count threshold")
	}
}

func TestShouldFlushOnOldestAge(t *testing.T) {
	p := New(config.CommitPolicyConfig{MaxFileAgeSeconds: 60, AgePolicy: "oldest"})
	now := time.Now()
	e := &registry.Entry{CreatedAt: now.Add(-2 * time.Minute), LastWriteAt: now}
	if !p.ShouldFlush(e, now) {
		t.Fatal("expected flush on age threshold measured from creation")
	}
}

func TestShouldFlushOnNewestAgeIgnoresCreatedAt(t *testing.T) {
	p := New(config.CommitPolicyConfig{MaxFileAgeSeconds: 60, AgePolicy: "newest"})
	now := time.Now()
	e := &registry.Entry{CreatedAt: now.Add(-10 * time.Minute), LastWriteAt: now}
	if p.ShouldFlush(e, now) {
		t.Fatal("expected no flush: last write was just now under newest policy")
	}
}

func TestNoThresholdsMeansNeverFlush(t *testing.T) {
	p := New(config.CommitPolicyConfig{})
	e := &registry.Entry{Bytes: 1 << 30, Count: 1 << 20, CreatedAt: time.Now().Add(-24 * time.Hour)}
	if p.ShouldFlush(e, time.Now()) {
		t.Fatal("expected no flush when no thresholds configured")
	}
}
