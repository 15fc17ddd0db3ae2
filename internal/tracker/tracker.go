// Package tracker implements PartitionTracker: per-(topic, kafkaPartition)
// visibility into which logical partitions currently have open files, and
// the earliest offset among them that has not yet been durably uploaded.
// The consumer loop records each write here and forgets a partition when it
// is revoked.
package tracker

import (
	"sync"
	"time"

	"github.com/Thepunisher64344/sunbird-secor/internal/registry"
)

// PartitionTracker aggregates registry entries by (topic, kafkaPartition).
type PartitionTracker struct {
	reg *registry.FileRegistry

	mu         sync.Mutex
	firstWrite map[topicPartition]time.Time
	lastWrite  map[topicPartition]time.Time
}

type topicPartition struct {
	Topic     string
	Partition int32
}

// New builds a PartitionTracker reading from reg.
func New(reg *registry.FileRegistry) *PartitionTracker {
	return &PartitionTracker{
		reg:        reg,
		firstWrite: make(map[topicPartition]time.Time),
		lastWrite:  make(map[topicPartition]time.Time),
	}
}

// OpenLogicalPartitions returns the logical partition strings currently
// holding an open file for (topic, kafkaPartition).
func (t *PartitionTracker) OpenLogicalPartitions(topic string, kafkaPartition int32) []string {
	entries := t.reg.EntriesFor(topic, kafkaPartition)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key.LogicalPartition)
	}
	return out
}

// EarliestUncommittedOffset returns the lowest FirstOffset among currently
// open entries for (topic, kafkaPartition), and false if none are open.
// This is the offset below which it is safe to advance a Kafka commit: an
// upload for it hasn't happened yet, so a crash before that offset would
// lose nothing that was ever archived.
func (t *PartitionTracker) EarliestUncommittedOffset(topic string, kafkaPartition int32) (int64, bool) {
	entries := t.reg.EntriesFor(topic, kafkaPartition)
	if len(entries) == 0 {
		return 0, false
	}
	earliest := entries[0].FirstOffset
	for _, e := range entries[1:] {
		if e.FirstOffset < earliest {
			earliest = e.FirstOffset
		}
	}
	return earliest, true
}

// RecordWrite updates the first/last write timestamps observed for
// (topic, kafkaPartition), used for staleness reporting independent of any
// single logical partition's own commit-policy clock.
func (t *PartitionTracker) RecordWrite(topic string, kafkaPartition int32, at time.Time) {
	key := topicPartition{Topic: topic, Partition: kafkaPartition}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.firstWrite[key]; !ok {
		t.firstWrite[key] = at
	}
	t.lastWrite[key] = at
}

// FirstWrite and LastWrite return the recorded timestamps for (topic,
// kafkaPartition), and false if no write has been recorded yet.
func (t *PartitionTracker) FirstWrite(topic string, kafkaPartition int32) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.firstWrite[topicPartition{Topic: topic, Partition: kafkaPartition}]
	return v, ok
}

func (t *PartitionTracker) LastWrite(topic string, kafkaPartition int32) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.lastWrite[topicPartition{Topic: topic, Partition: kafkaPartition}]
	return v, ok
}

// Forget drops recorded timestamps for (topic, kafkaPartition), called
// after a rebalance revoke once its files have been flushed.
func (t *PartitionTracker) Forget(topic string, kafkaPartition int32) {
	key := topicPartition{Topic: topic, Partition: kafkaPartition}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.firstWrite, key)
	delete(t.lastWrite, key)
}
