// Package offsetstore implements OffsetStore: durable, per-(group, topic,
// kafkaPartition) tracking of the committed offset (the linearization point
// an upload crosses only after the object store confirms the write) and the
// last-seen offset (the newest offset handed to the registry).
package offsetstore

import "context"

// Position is the offset/timestamp pair stored per (group, topic, kafkaPartition).
type Position struct {
	Offset        int64
	TimestampMillis int64
}

// OffsetStore is the coordination-store capability set the uploader and
// consumer loop depend on.
type OffsetStore interface {
	// Committed returns the committed position (one past the last offset
	// successfully uploaded, i.e. the next offset to consume), and false if
	// none has ever been committed for this (group, topic, partition).
	Committed(ctx context.Context, group, topic string, kafkaPartition int32) (Position, bool, error)
	// CommitOffset durably records pos as committed. This must only be
	// called after the corresponding object has been confirmed written to
	// the blob store — it is the at-least-once linearization point.
	CommitOffset(ctx context.Context, group, topic string, kafkaPartition int32, pos Position) error

	// LastSeen returns the newest offset the registry has appended for this
	// partition, independent of whether it has been uploaded yet.
	LastSeen(ctx context.Context, group, topic string, kafkaPartition int32) (Position, bool, error)
	// RecordSeen durably records pos as the newest seen offset.
	RecordSeen(ctx context.Context, group, topic string, kafkaPartition int32, pos Position) error
}
