package kafkasource

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/consumerloop"
	"github.com/Thepunisher64344/sunbird-secor/internal/model"
)

// saramaSource bridges Sarama's callback-driven ConsumerGroupHandler onto
// the pull-based MessageSource contract: a background goroutine runs
// group.Consume in a loop, feeding messages and rebalance events into
// buffered channels that Poll drains.
type saramaSource struct {
	group  sarama.ConsumerGroup
	topics []string

	messages chan model.Message
	revoked  chan consumerloop.TopicPartition
	assigned chan consumerloop.TopicPartition
	errs     chan error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newSaramaSource(cfg config.KafkaConfig) (consumerloop.MessageSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafkasource: at least one broker required")
	}
	if cfg.Group == "" {
		return nil, fmt.Errorf("kafkasource: consumer group required")
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V2_8_0_0
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Group, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("kafkasource: new consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &saramaSource{
		group:    group,
		topics:   cfg.Topics,
		messages: make(chan model.Message, 1024),
		revoked:  make(chan consumerloop.TopicPartition, 64),
		assigned: make(chan consumerloop.TopicPartition, 64),
		errs:     make(chan error, 1),
		cancel:   cancel,
	}

	s.wg.Add(2)
	go s.consumeLoop(ctx)
	go s.errorLoop()

	return s, nil
}

func (s *saramaSource) consumeLoop(ctx context.Context) {
	defer s.wg.Done()
	handler := &saramaHandler{source: s}
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.group.Consume(ctx, s.topics, handler); err != nil {
			select {
			case s.errs <- err:
			default:
			}
			return
		}
	}
}

func (s *saramaSource) errorLoop() {
	defer s.wg.Done()
	for err := range s.group.Errors() {
		select {
		case s.errs <- err:
		default:
		}
	}
}

func (s *saramaSource) Poll(ctx context.Context) (consumerloop.Batch, error) {
	var batch consumerloop.Batch
	select {
	case <-ctx.Done():
		return batch, ctx.Err()
	case err := <-s.errs:
		return batch, err
	case msg := <-s.messages:
		batch.Messages = append(batch.Messages, msg)
	}

	drain := true
	for drain {
		select {
		case msg := <-s.messages:
			batch.Messages = append(batch.Messages, msg)
		case tp := <-s.revoked:
			batch.Revoked = append(batch.Revoked, tp)
		case tp := <-s.assigned:
			batch.Assigned = append(batch.Assigned, tp)
		default:
			drain = false
		}
	}
	return batch, nil
}

func (s *saramaSource) Close() error {
	s.cancel()
	err := s.group.Close()
	s.wg.Wait()
	return err
}

// saramaHandler implements sarama.ConsumerGroupHandler, translating its
// Setup/Cleanup/ConsumeClaim callbacks into the source's buffered channels.
type saramaHandler struct {
	source *saramaSource
}

func (h *saramaHandler) Setup(session sarama.ConsumerGroupSession) error {
	for topic, partitions := range session.Claims() {
		for _, p := range partitions {
			h.source.assigned <- consumerloop.TopicPartition{Topic: topic, Partition: p}
		}
	}
	return nil
}

func (h *saramaHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	for topic, partitions := range session.Claims() {
		for _, p := range partitions {
			h.source.revoked <- consumerloop.TopicPartition{Topic: topic, Partition: p}
		}
	}
	return nil
}

func (h *saramaHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.source.messages <- model.Message{
				Topic:           msg.Topic,
				KafkaPartition:  msg.Partition,
				Offset:          msg.Offset,
				Payload:         msg.Value,
				TimestampMillis: msg.Timestamp.UnixMilli(),
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
