// Copyright 2026 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package offsetstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"golang.org/x/sync/singleflight"
)

const (
	partitionLeasePrefix   = "/secor/partition-leases"
	defaultLeaseTTLSeconds = 10
)

var (
	// ErrNotOwner is returned when this consumer does not hold the lease for
	// a (topic, kafkaPartition) it tried to write to.
	ErrNotOwner = errors.New("offsetstore: consumer does not own this partition")

	// ErrShuttingDown is returned when Acquire is attempted after ReleaseAll.
	ErrShuttingDown = errors.New("offsetstore: lease manager is shut down")
)

// PartitionLeaseConfig configures the lease manager.
type PartitionLeaseConfig struct {
	// ConsumerID identifies this shipper instance in lease keys.
	ConsumerID string
	// LeaseTTLSeconds controls how long a lease persists after this
	// consumer stops refreshing (crash, network partition).
	LeaseTTLSeconds int
	Logger          *slog.Logger
}

// PartitionLease uses etcd leases to ensure at most one shipper instance
// archives a given (topic, kafkaPartition) at a time, even during a Kafka
// rebalance window where two consumers may briefly both believe they own
// it. All lease keys share one etcd session/lease so keepalive cost is O(1)
// regardless of partition count.
type PartitionLease struct {
	client     *clientv3.Client
	consumerID string
	ttl        int
	logger     *slog.Logger
	closed     atomic.Bool

	mu         sync.RWMutex
	partitions map[string]struct{} // key: "topic:partition"
	session    *concurrency.Session

	acquireFlight singleflight.Group
}

// NewPartitionLease creates a lease manager backed by the given etcd client.
func NewPartitionLease(client *clientv3.Client, cfg PartitionLeaseConfig) *PartitionLease {
	ttl := cfg.LeaseTTLSeconds
	if ttl <= 0 {
		ttl = defaultLeaseTTLSeconds
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PartitionLease{
		client:     client,
		consumerID: cfg.ConsumerID,
		ttl:        ttl,
		logger:     logger,
		partitions: make(map[string]struct{}),
	}
}

func partitionKey(topic string, partition int32) string {
	return fmt.Sprintf("%s:%d", topic, partition)
}

func partitionLeaseKey(topic string, partition int32) string {
	return fmt.Sprintf("%s/%s/%d", partitionLeasePrefix, topic, partition)
}

// Acquire tries to grab the partition lease. Returns nil if this consumer
// already owns it, ErrNotOwner if another instance does.
func (m *PartitionLease) Acquire(ctx context.Context, topic string, partition int32) error {
	if m.closed.Load() {
		return ErrShuttingDown
	}

	key := partitionKey(topic, partition)

	m.mu.RLock()
	if _, ok := m.partitions[key]; ok {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()

	// Deduplicate concurrent Acquire calls for the same partition so two
	// racing rebalance callbacks don't both create sessions and race on the CAS.
	_, err, _ := m.acquireFlight.Do(key, func() (interface{}, error) {
		return nil, m.doAcquire(ctx, topic, partition)
	})
	return err
}

func (m *PartitionLease) doAcquire(ctx context.Context, topic string, partition int32) error {
	key := partitionKey(topic, partition)

	m.mu.RLock()
	if _, ok := m.partitions[key]; ok {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()

	session, err := m.getOrCreateSession(ctx)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	leaseKey := partitionLeaseKey(topic, partition)

	txnCtx, txnCancel := context.WithTimeout(ctx, 5*time.Second)
	defer txnCancel()

	txnResp, err := m.client.Txn(txnCtx).
		If(clientv3.Compare(clientv3.CreateRevision(leaseKey), "=", 0)).
		Then(clientv3.OpPut(leaseKey, m.consumerID, clientv3.WithLease(session.Lease()))).
		Else(clientv3.OpGet(leaseKey)).
		Commit()
	if err != nil {
		return fmt.Errorf("partition lease txn: %w", err)
	}

	if !txnResp.Succeeded {
		if len(txnResp.Responses) > 0 {
			rangeResp := txnResp.Responses[0].GetResponseRange()
			if rangeResp != nil && len(rangeResp.Kvs) > 0 {
				owner := string(rangeResp.Kvs[0].Value)
				if owner == m.consumerID {
					return m.reacquire(ctx, topic, partition, leaseKey, session)
				}
			}
		}
		return ErrNotOwner
	}

	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		return fmt.Errorf("session changed during acquire")
	}
	m.partitions[key] = struct{}{}
	m.mu.Unlock()

	m.logger.Info("acquired partition lease", "topic", topic, "partition", partition, "consumer", m.consumerID)
	return nil
}

func (m *PartitionLease) reacquire(ctx context.Context, topic string, partition int32, leaseKey string, session *concurrency.Session) error {
	key := partitionKey(topic, partition)

	txnCtx, txnCancel := context.WithTimeout(ctx, 5*time.Second)
	defer txnCancel()

	txnResp, err := m.client.Txn(txnCtx).
		If(clientv3.Compare(clientv3.Value(leaseKey), "=", m.consumerID)).
		Then(clientv3.OpPut(leaseKey, m.consumerID, clientv3.WithLease(session.Lease()))).
		Commit()
	if err != nil {
		return fmt.Errorf("reacquire partition lease: %w", err)
	}
	if !txnResp.Succeeded {
		return ErrNotOwner
	}

	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		return fmt.Errorf("session changed during reacquire")
	}
	m.partitions[key] = struct{}{}
	m.mu.Unlock()

	m.logger.Info("reacquired partition lease", "topic", topic, "partition", partition, "consumer", m.consumerID)
	return nil
}

func (m *PartitionLease) getOrCreateSession(ctx context.Context) (*concurrency.Session, error) {
	m.mu.Lock()
	if m.session != nil {
		select {
		case <-m.session.Done():
			m.session = nil
			m.partitions = make(map[string]struct{})
		default:
			s := m.session
			m.mu.Unlock()
			return s, nil
		}
	}
	m.mu.Unlock()

	session, err := concurrency.NewSession(m.client, concurrency.WithTTL(m.ttl))
	if err != nil {
		return nil, fmt.Errorf("create etcd session: %w", err)
	}

	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		session.Close()
		return nil, ErrShuttingDown
	}
	if m.session != nil {
		select {
		case <-m.session.Done():
		default:
			s := m.session
			m.mu.Unlock()
			session.Close()
			return s, nil
		}
	}
	m.session = session
	go m.monitorSession(session)
	m.mu.Unlock()
	return session, nil
}

func (m *PartitionLease) monitorSession(session *concurrency.Session) {
	<-session.Done()

	m.mu.Lock()
	if m.session == session {
		m.session = nil
		count := len(m.partitions)
		m.partitions = make(map[string]struct{})
		m.mu.Unlock()
		m.logger.Warn("partition lease session expired, cleared all ownership", "consumer", m.consumerID, "count", count)
	} else {
		m.mu.Unlock()
	}
}

// Owns returns true if this consumer currently holds the lease.
func (m *PartitionLease) Owns(topic string, partition int32) bool {
	key := partitionKey(topic, partition)
	m.mu.RLock()
	_, ok := m.partitions[key]
	m.mu.RUnlock()
	return ok
}

// Release gives up ownership of a single partition, typically on Kafka
// rebalance revoke, after the partition's open files have been flushed.
func (m *PartitionLease) Release(topic string, partition int32) {
	key := partitionKey(topic, partition)
	m.mu.Lock()
	_, ok := m.partitions[key]
	if ok {
		delete(m.partitions, key)
	}
	m.mu.Unlock()

	if ok {
		leaseKey := partitionLeaseKey(topic, partition)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := m.client.Delete(ctx, leaseKey); err != nil {
			m.logger.Warn("failed to delete partition lease key", "key", leaseKey, "error", err)
		}
		m.logger.Info("released partition lease", "topic", topic, "partition", partition, "consumer", m.consumerID)
	}
}

// ReleaseAll releases every held lease. Called during graceful shutdown.
func (m *PartitionLease) ReleaseAll() {
	m.closed.Store(true)
	m.mu.Lock()
	count := len(m.partitions)
	m.partitions = make(map[string]struct{})
	session := m.session
	m.session = nil
	m.mu.Unlock()

	if session != nil {
		session.Close()
	}
	m.logger.Info("released all partition leases", "consumer", m.consumerID, "count", count)
}
