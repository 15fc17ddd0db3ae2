// Package kafkasource adapts real Kafka client libraries to the
// consumerloop.MessageSource contract. Two backends are wired: franz-go
// (the default) and Sarama, selected by config.KafkaConfig.ClientLibrary.
package kafkasource

import (
	"fmt"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/consumerloop"
)

// New builds the configured MessageSource.
func New(cfg config.KafkaConfig) (consumerloop.MessageSource, error) {
	switch cfg.ClientLibrary {
	case "", "franz":
		return newFranzSource(cfg)
	case "sarama":
		return newSaramaSource(cfg)
	default:
		return nil, fmt.Errorf("kafkasource: unknown client_library %q", cfg.ClientLibrary)
	}
}
