// Package commitpolicy decides when an open registry entry should be
// closed and uploaded: on size, age, or record-count thresholds, whichever
// fires first.
package commitpolicy

import (
	"time"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/registry"
)

// Policy evaluates whether an entry should be flushed now.
type Policy struct {
	maxBytes   int64
	maxAge     time.Duration
	maxRecords int64
	ageField   func(*registry.Entry) time.Time
}

// New builds a Policy from CommitPolicyConfig. AgePolicy selects which
// timestamp ages are measured against: "oldest" uses the entry's creation
// time (the moment the first record arrived), "newest" uses the time of the
// most recent append (used to flush partitions that go quiet without
// waiting for the oldest-record clock).
func New(cfg config.CommitPolicyConfig) Policy {
	ageField := func(e *registry.Entry) time.Time { return e.CreatedAt }
	if cfg.AgePolicy == "newest" {
		ageField = func(e *registry.Entry) time.Time { return e.LastWriteAt }
	}
	return Policy{
		maxBytes:   cfg.MaxFileSizeBytes,
		maxAge:     time.Duration(cfg.MaxFileAgeSeconds) * time.Second,
		maxRecords: cfg.MaxFileRecords,
		ageField:   ageField,
	}
}

// ShouldFlush reports whether e has crossed any configured threshold. A
// threshold of zero or less is treated as disabled.
func (p Policy) ShouldFlush(e *registry.Entry, now time.Time) bool {
	if p.maxBytes > 0 && e.Bytes >= p.maxBytes {
		return true
	}
	if p.maxRecords > 0 && e.Count >= p.maxRecords {
		return true
	}
	if p.maxAge > 0 && now.Sub(p.ageField(e)) >= p.maxAge {
		return true
	}
	return false
}
