// Package model holds the wire-level and pipeline-level record types shared
// across the shipper: the raw Kafka message, the parser's enriched view of
// it, and the key/value unit a FileCodec persists.
package model

// Message is a raw record pulled from Kafka. Payload is the record's value
// bytes; parsing (key extraction, schema decoding) happens above this layer.
type Message struct {
	Topic         string
	KafkaPartition int32
	Offset        int64
	Payload       []byte
	// TimestampMillis is the broker- or producer-supplied record timestamp,
	// if any. Zero means "not present"; parsers fall back to other sources.
	TimestampMillis int64
}

// ParsedMessage is a Message enriched with the logical partitions a
// MessageParser derived from its content (e.g. ["dt=2024-01-02"]).
type ParsedMessage struct {
	Message
	Partitions []string
}

// KeyValue is the unit a FileCodec reads and writes: a Kafka offset paired
// with the raw record bytes at that offset.
type KeyValue struct {
	Offset int64
	Value  []byte
}
