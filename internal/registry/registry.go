// Package registry implements FileRegistry: the set of local files
// currently open for append, one per (topic, kafkaPartition, logical
// partition) triple. It is the in-memory bookkeeping layer between the
// consumer loop (which appends messages as they arrive) and the uploader
// (which closes and ships files once a commit-policy trigger fires).
package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Thepunisher64344/sunbird-secor/internal/codec"
	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/model"
	"github.com/Thepunisher64344/sunbird-secor/internal/pathbuilder"
)

// Key identifies one open local file.
type Key struct {
	Topic            string
	KafkaPartition   int32
	LogicalPartition string // partitions joined with "/", e.g. "dt=2024-01-02"
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%s", k.Topic, k.KafkaPartition, k.LogicalPartition)
}

// Entry is one open local file plus the bookkeeping needed to decide when
// to flush it and how to name the eventual upload.
type Entry struct {
	Key         Key
	Path        *pathbuilder.LogFilePath
	FirstOffset int64
	LastOffset  int64
	Count       int64
	Bytes       int64
	CreatedAt   time.Time
	LastWriteAt time.Time

	mu     sync.Mutex
	file   *os.File
	writer codec.Writer
}

// Append writes one record and updates the entry's bookkeeping. It is safe
// to call concurrently with other Append calls on the same entry (only one
// goroutine appends to a partition at a time in practice, but the lock
// guards against the registry closing the entry out from under a writer).
func (e *Entry) Append(msg model.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer == nil {
		return fmt.Errorf("registry: entry %s is already closed", e.Key)
	}
	if err := e.writer.WriteRecord(model.KeyValue{Offset: msg.Offset, Value: msg.Payload}); err != nil {
		return fmt.Errorf("registry: append to %s: %w", e.Key, err)
	}
	e.LastOffset = msg.Offset
	e.Count++
	e.Bytes = e.writer.Length()
	e.LastWriteAt = time.Now()
	return nil
}

func (e *Entry) close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer == nil {
		return nil
	}
	err := e.writer.Close()
	e.writer = nil
	e.file = nil
	return err
}

// FileRegistry tracks every currently-open Entry, keyed by (topic,
// kafkaPartition, logical partition). Contiguous-offset-coverage is the
// caller's responsibility (the consumer loop only ever appends the next
// unseen offset); the registry itself just multiplexes writers.
type FileRegistry struct {
	localRoot  string
	pattern    string
	generation int
	codecCfg   config.CodecConfig
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[Key]*Entry
}

// New constructs an empty FileRegistry rooted at localRoot.
func New(localRoot string, pattern string, generation int, codecCfg config.CodecConfig, logger *slog.Logger) *FileRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileRegistry{
		localRoot:  localRoot,
		pattern:    pattern,
		generation: generation,
		codecCfg:   codecCfg,
		logger:     logger,
		entries:    make(map[Key]*Entry),
	}
}

// GetOrOpen returns the existing entry for key, or opens a new local file
// with firstOffset as its name's committed offset if none is open yet.
func (r *FileRegistry) GetOrOpen(key Key, firstOffset int64, channelID []string) (*Entry, error) {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		r.mu.Unlock()
		return e, nil
	}
	r.mu.Unlock()

	partitions := splitLogicalPartition(key.LogicalPartition)
	extension := extensionFor(r.codecCfg)
	lfp, err := pathbuilder.New(r.localRoot, key.Topic, partitions, r.generation, key.KafkaPartition, firstOffset, extension, channelID)
	if err != nil {
		return nil, fmt.Errorf("registry: build path: %w", err)
	}
	lfp.Pattern = r.pattern

	fullPath := lfp.Render()
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fmt.Errorf("registry: mkdir for %s: %w", fullPath, err)
	}
	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("registry: create %s: %w", fullPath, err)
	}

	fc, err := codec.New(r.codecCfg, key.Topic)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("registry: build codec: %w", err)
	}
	writer, err := fc.NewWriter(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("registry: build writer for %s: %w", fullPath, err)
	}

	entry := &Entry{
		Key:         key,
		Path:        lfp,
		FirstOffset: firstOffset,
		LastOffset:  firstOffset - 1,
		CreatedAt:   time.Now(),
		LastWriteAt: time.Now(),
		file:        file,
		writer:      writer,
	}

	r.mu.Lock()
	if existing, ok := r.entries[key]; ok {
		// Lost the race to open this key; discard ours and use theirs.
		r.mu.Unlock()
		entry.close()
		os.Remove(fullPath)
		return existing, nil
	}
	r.entries[key] = entry
	r.mu.Unlock()

	r.logger.Info("opened local file", "key", key.String(), "path", fullPath)
	return entry, nil
}

// Lookup returns the open entry for key without creating one.
func (r *FileRegistry) Lookup(key Key) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return e, ok
}

// EntriesFor returns a snapshot of open entries for a (topic, kafkaPartition).
func (r *FileRegistry) EntriesFor(topic string, kafkaPartition int32) []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Entry
	for k, e := range r.entries {
		if k.Topic == topic && k.KafkaPartition == kafkaPartition {
			out = append(out, e)
		}
	}
	return out
}

// All returns a snapshot of every open entry, used by age-triggered sweeps
// that scan across all partitions.
func (r *FileRegistry) All() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Close flushes and closes the entry's underlying writer/file, without
// removing it from the registry (the caller still needs Path/offsets to
// upload it).
func (r *FileRegistry) Close(key Key) error {
	r.mu.Lock()
	e, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return e.close()
}

// Drop removes key from the registry after its file has been uploaded (or
// discarded). Close must have been called first.
func (r *FileRegistry) Drop(key Key) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// ErrCorruptTail is returned by Adopt when a local file's final record is
// truncated or otherwise undecodable. Its bytes can't be trusted and
// there's no general way to cut a compressed stream back to a clean record
// boundary, so the caller should quarantine the file (per the
// MalformedPathError handling orphan scans already do) rather than resume
// appending into it; the Kafka offsets it held are still uncommitted and
// will be redelivered once the consumer resumes from the last commit.
var ErrCorruptTail = fmt.Errorf("registry: corrupt trailing record")

// Adopt reopens a file left behind by a previous process (found by an
// orphan scan) for append, re-deriving Count/LastOffset by replaying it
// through the codec's Reader. It fails with ErrCorruptTail if the file
// doesn't end on a clean record boundary.
func (r *FileRegistry) Adopt(key Key, lfp *pathbuilder.LogFilePath) (*Entry, error) {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		r.mu.Unlock()
		return e, nil
	}
	r.mu.Unlock()

	fullPath := lfp.Render()
	fc, err := codec.New(r.codecCfg, key.Topic)
	if err != nil {
		return nil, fmt.Errorf("registry: build codec for adopt %s: %w", fullPath, err)
	}

	count, lastGoodOffset, err := replayValidRecords(fc, fullPath, lfp.Offsets[0])
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("registry: reopen %s for append: %w", fullPath, err)
	}
	writer, err := fc.NewWriter(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("registry: build append writer for %s: %w", fullPath, err)
	}

	now := time.Now()
	entry := &Entry{
		Key:         key,
		Path:        lfp,
		FirstOffset: lfp.Offsets[0],
		LastOffset:  lastGoodOffset,
		Count:       count,
		CreatedAt:   now,
		LastWriteAt: now,
		file:        file,
		writer:      writer,
	}

	r.mu.Lock()
	if existing, ok := r.entries[key]; ok {
		r.mu.Unlock()
		entry.close()
		return existing, nil
	}
	r.entries[key] = entry
	r.mu.Unlock()

	r.logger.Info("adopted orphaned local file", "key", key.String(), "path", fullPath, "records", count)
	return entry, nil
}

// replayValidRecords reads fullPath's records through fc's Reader, failing
// with ErrCorruptTail unless every record up to a clean io.EOF decodes.
// firstOffset seeds the contiguous per-record Kafka offset sequence the
// consumer loop guarantees on write.
func replayValidRecords(fc codec.FileCodec, fullPath string, firstOffset int64) (count int64, lastOffset int64, err error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return 0, firstOffset - 1, err
	}
	defer f.Close()

	reader, err := fc.NewReader(f, firstOffset)
	if err != nil {
		return 0, firstOffset - 1, fmt.Errorf("registry: open reader for %s: %w", fullPath, err)
	}
	defer reader.Close()

	lastOffset = firstOffset - 1
	for {
		_, rerr := reader.ReadRecord()
		if errors.Is(rerr, io.EOF) {
			return count, lastOffset, nil
		}
		if rerr != nil {
			return count, lastOffset, fmt.Errorf("%w: %s: %v", ErrCorruptTail, fullPath, rerr)
		}
		count++
		lastOffset = firstOffset + count - 1
	}
}

func splitLogicalPartition(logical string) []string {
	if logical == "" {
		return nil
	}
	return strings.Split(logical, "/")
}

func extensionFor(cfg config.CodecConfig) string {
	switch cfg.Format {
	case "orc":
		return ".orc"
	case "sequencefile":
		return ".seq"
	default:
		switch cfg.Compression {
		case "gzip":
			return ".gz"
		case "snappy":
			return ".snappy"
		case "lz4":
			return ".lz4"
		default:
			return ""
		}
	}
}
