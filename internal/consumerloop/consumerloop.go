// Package consumerloop drives the IDLE -> CONSUMING -> FLUSHING state
// machine: poll a batch of messages, append each to its logical partition's
// open file, periodically sweep the uploader, and synchronously flush any
// partition a rebalance is about to take away before acknowledging it.
package consumerloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Thepunisher64344/sunbird-secor/internal/model"
	"github.com/Thepunisher64344/sunbird-secor/internal/offsetstore"
	"github.com/Thepunisher64344/sunbird-secor/internal/parser"
	"github.com/Thepunisher64344/sunbird-secor/internal/registry"
	"github.com/Thepunisher64344/sunbird-secor/internal/tracker"
	"github.com/Thepunisher64344/sunbird-secor/internal/uploader"
)

// State is the loop's current phase.
type State int

const (
	StateIdle State = iota
	StateConsuming
	StateFlushing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConsuming:
		return "consuming"
	case StateFlushing:
		return "flushing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TopicPartition identifies a Kafka topic-partition.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// Batch is one unit of work handed back by a MessageSource. Revoked lists
// partitions this consumer is about to lose ownership of (from a Kafka
// rebalance) and must flush before the source considers the revoke acked;
// Assigned lists partitions newly owned.
type Batch struct {
	Messages []model.Message
	Revoked  []TopicPartition
	Assigned []TopicPartition
}

// MessageSource abstracts the Kafka client so the loop is testable without
// a broker and swappable between client libraries.
type MessageSource interface {
	Poll(ctx context.Context) (Batch, error)
	Close() error
}

// PartitionLeaser gates which (topic, kafkaPartition) pairs this instance
// may write to, independent of Kafka's own rebalance protocol. Satisfied by
// *offsetstore.PartitionLease; nil means no additional gating (rely on
// Kafka's group protocol alone).
type PartitionLeaser interface {
	Acquire(ctx context.Context, topic string, partition int32) error
	Release(topic string, partition int32)
}

// Loop runs the consume-append-flush cycle for one consumer group instance.
type Loop struct {
	source  MessageSource
	parser  parser.MessageParser
	reg     *registry.FileRegistry
	tracker *tracker.PartitionTracker
	up      *uploader.Uploader
	offsets offsetstore.OffsetStore
	lease   PartitionLeaser
	group   string
	logger  *slog.Logger

	sweepInterval time.Duration

	mu    sync.RWMutex
	state State
}

// Config bundles Loop's constructor arguments.
type Config struct {
	Source        MessageSource
	Parser        parser.MessageParser
	Registry      *registry.FileRegistry
	Tracker       *tracker.PartitionTracker
	Uploader      *uploader.Uploader
	Offsets       offsetstore.OffsetStore
	Lease         PartitionLeaser
	Group         string
	SweepInterval time.Duration
	Logger        *slog.Logger
}

// New builds a Loop.
func New(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Loop{
		source:        cfg.Source,
		parser:        cfg.Parser,
		reg:           cfg.Registry,
		tracker:       cfg.Tracker,
		up:            cfg.Uploader,
		offsets:       cfg.Offsets,
		lease:         cfg.Lease,
		group:         cfg.Group,
		sweepInterval: interval,
		logger:        logger,
		state:         StateIdle,
	}
}

// State returns the loop's current phase.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run drives the loop until ctx is cancelled or a non-recoverable error
// occurs, in which case it transitions to StateFailed and returns the error.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.setState(StateIdle)
			return nil
		case <-ticker.C:
			l.setState(StateFlushing)
			if err := l.up.Sweep(ctx); err != nil {
				l.logger.Warn("periodic sweep failed", "error", err)
			}
			l.setState(StateIdle)
		default:
		}

		l.setState(StateConsuming)
		batch, err := l.source.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.setState(StateIdle)
				return nil
			}
			l.setState(StateFailed)
			return fmt.Errorf("consumerloop: poll: %w", err)
		}

		for _, tp := range batch.Revoked {
			if err := l.flushPartition(ctx, tp); err != nil {
				l.logger.Warn("flush on revoke failed", "topic", tp.Topic, "partition", tp.Partition, "error", err)
			}
			l.tracker.Forget(tp.Topic, tp.Partition)
			if l.lease != nil {
				l.lease.Release(tp.Topic, tp.Partition)
			}
		}

		for _, msg := range batch.Messages {
			if err := l.appendMessage(ctx, msg); err != nil {
				l.logger.Warn("dropping message that failed to append", "topic", msg.Topic, "partition", msg.KafkaPartition, "offset", msg.Offset, "error", err)
				continue
			}
		}
		l.setState(StateIdle)
	}
}

func (l *Loop) appendMessage(ctx context.Context, msg model.Message) error {
	if l.lease != nil {
		if err := l.lease.Acquire(ctx, msg.Topic, msg.KafkaPartition); err != nil {
			return fmt.Errorf("partition lease: %w", err)
		}
	}
	partitions, err := l.parser.ExtractPartitions(msg)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	key := registry.Key{
		Topic:            msg.Topic,
		KafkaPartition:   msg.KafkaPartition,
		LogicalPartition: joinPartitions(partitions),
	}
	entry, err := l.reg.GetOrOpen(key, msg.Offset, nil)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if err := entry.Append(msg); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	l.tracker.RecordWrite(msg.Topic, msg.KafkaPartition, time.Now())

	if l.offsets != nil {
		seen := offsetstore.Position{Offset: msg.Offset, TimestampMillis: msg.TimestampMillis}
		if err := l.offsets.RecordSeen(ctx, l.group, msg.Topic, msg.KafkaPartition, seen); err != nil {
			l.logger.Warn("failed to record last-seen offset", "topic", msg.Topic, "partition", msg.KafkaPartition, "offset", msg.Offset, "error", err)
		}
	}
	return nil
}

// flushPartition uploads every open entry for a partition synchronously,
// used on rebalance revoke so the next owner never sees offsets this
// consumer already appended but hasn't uploaded.
func (l *Loop) flushPartition(ctx context.Context, tp TopicPartition) error {
	return l.up.Upload(ctx, tp.Topic, tp.Partition)
}

func joinPartitions(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}
