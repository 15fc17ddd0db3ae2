package offsetstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process OffsetStore for tests.
type Memory struct {
	mu        sync.Mutex
	committed map[string]Position
	lastSeen  map[string]Position
}

// NewMemory returns an empty in-memory OffsetStore.
func NewMemory() *Memory {
	return &Memory{committed: make(map[string]Position), lastSeen: make(map[string]Position)}
}

func key(group, topic string, kafkaPartition int32) string {
	return fmt.Sprintf("%s/%s/%d", group, topic, kafkaPartition)
}

func (m *Memory) Committed(_ context.Context, group, topic string, kafkaPartition int32) (Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.committed[key(group, topic, kafkaPartition)]
	return pos, ok, nil
}

func (m *Memory) CommitOffset(_ context.Context, group, topic string, kafkaPartition int32, pos Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed[key(group, topic, kafkaPartition)] = pos
	return nil
}

func (m *Memory) LastSeen(_ context.Context, group, topic string, kafkaPartition int32) (Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.lastSeen[key(group, topic, kafkaPartition)]
	return pos, ok, nil
}

func (m *Memory) RecordSeen(_ context.Context, group, topic string, kafkaPartition int32, pos Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeen[key(group, topic, kafkaPartition)] = pos
	return nil
}
