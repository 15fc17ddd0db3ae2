package kafkasource

import (
	"context"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/consumerloop"
	"github.com/Thepunisher64344/sunbird-secor/internal/model"
)

// franzSource wraps a kgo.Client. Rebalance callbacks run synchronously
// inside the client's internal group management, so revoked/assigned
// partitions are buffered here and drained on the next Poll call rather
// than delivered via a separate callback the loop would have to
// synchronize against.
type franzSource struct {
	client *kgo.Client

	mu       sync.Mutex
	revoked  []consumerloop.TopicPartition
	assigned []consumerloop.TopicPartition
}

func newFranzSource(cfg config.KafkaConfig) (consumerloop.MessageSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafkasource: at least one broker required")
	}
	if cfg.Group == "" {
		return nil, fmt.Errorf("kafkasource: consumer group required")
	}

	fs := &franzSource{}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			fs.mu.Lock()
			for topic, partitions := range revoked {
				for _, p := range partitions {
					fs.revoked = append(fs.revoked, consumerloop.TopicPartition{Topic: topic, Partition: p})
				}
			}
			fs.mu.Unlock()
		}),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			fs.mu.Lock()
			for topic, partitions := range assigned {
				for _, p := range partitions {
					fs.assigned = append(fs.assigned, consumerloop.TopicPartition{Topic: topic, Partition: p})
				}
			}
			fs.mu.Unlock()
		}),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafkasource: new client: %w", err)
	}
	fs.client = client
	return fs, nil
}

func (s *franzSource) Poll(ctx context.Context) (consumerloop.Batch, error) {
	fetches := s.client.PollFetches(ctx)
	if err := ctx.Err(); err != nil {
		return consumerloop.Batch{}, err
	}
	if errs := fetches.Errors(); len(errs) > 0 {
		return consumerloop.Batch{}, fmt.Errorf("kafkasource: fetch error: %w", errs[0].Err)
	}

	var batch consumerloop.Batch
	fetches.EachRecord(func(r *kgo.Record) {
		batch.Messages = append(batch.Messages, model.Message{
			Topic:           r.Topic,
			KafkaPartition:  r.Partition,
			Offset:          r.Offset,
			Payload:         r.Value,
			TimestampMillis: r.Timestamp.UnixMilli(),
		})
	})

	s.mu.Lock()
	batch.Revoked, s.revoked = s.revoked, nil
	batch.Assigned, s.assigned = s.assigned, nil
	s.mu.Unlock()

	return batch, nil
}

func (s *franzSource) Close() error {
	s.client.Close()
	return nil
}
