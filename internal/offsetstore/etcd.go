package offsetstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// etcdStore is an etcd-backed OffsetStore. Unlike partition ownership
// leases, committed/last-seen positions are plain durable keys with no
// lease attached — they must survive a consumer crash, not expire with it.
type etcdStore struct {
	client *clientv3.Client
}

// NewEtcd returns an etcd-backed OffsetStore.
func NewEtcd(client *clientv3.Client) OffsetStore {
	return &etcdStore{client: client}
}

func committedKey(group, topic string, kafkaPartition int32) string {
	return fmt.Sprintf("/secor/offsets/%s/%s/%d/committed", group, topic, kafkaPartition)
}

func lastSeenKey(group, topic string, kafkaPartition int32) string {
	return fmt.Sprintf("/secor/offsets/%s/%s/%d/lastSeen", group, topic, kafkaPartition)
}

func (s *etcdStore) get(ctx context.Context, key string) (Position, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return Position{}, false, fmt.Errorf("offsetstore: get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return Position{}, false, nil
	}
	var pos Position
	if err := json.Unmarshal(resp.Kvs[0].Value, &pos); err != nil {
		return Position{}, false, fmt.Errorf("offsetstore: decode %s: %w", key, err)
	}
	return pos, true, nil
}

func (s *etcdStore) put(ctx context.Context, key string, pos Position) error {
	body, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("offsetstore: encode %s: %w", key, err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := s.client.Put(ctx, key, string(body)); err != nil {
		return fmt.Errorf("offsetstore: put %s: %w", key, err)
	}
	return nil
}

func (s *etcdStore) Committed(ctx context.Context, group, topic string, kafkaPartition int32) (Position, bool, error) {
	return s.get(ctx, committedKey(group, topic, kafkaPartition))
}

func (s *etcdStore) CommitOffset(ctx context.Context, group, topic string, kafkaPartition int32, pos Position) error {
	return s.put(ctx, committedKey(group, topic, kafkaPartition), pos)
}

func (s *etcdStore) LastSeen(ctx context.Context, group, topic string, kafkaPartition int32) (Position, bool, error) {
	return s.get(ctx, lastSeenKey(group, topic, kafkaPartition))
}

func (s *etcdStore) RecordSeen(ctx context.Context, group, topic string, kafkaPartition int32, pos Position) error {
	return s.put(ctx, lastSeenKey(group, topic, kafkaPartition), pos)
}
