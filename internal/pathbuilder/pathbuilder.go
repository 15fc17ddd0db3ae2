// Package pathbuilder renders and parses log-file paths: the addressing
// primitive that makes uploads idempotent by encoding the first message
// offset (and, in the multi-partition merge case, a digest of every
// partition's first offset) into the object name itself. A retried upload overwrites the same key with
// identical bytes, provided the codec is deterministic over the same input.
package pathbuilder

import (
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand"
	"path"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedPath is returned by Parse when a path does not follow the
// generation_kafkaPartition_offset basename convention.
var ErrMalformedPath = errors.New("pathbuilder: malformed log file path")

// LogFilePath is the addressing primitive for one output file. Prefix and
// Partitions are immutable after construction; nothing here holds a
// back-reference to configuration — the caller resolves Pattern once, at
// construction time, and hands it in as a plain field.
type LogFilePath struct {
	Prefix                    string
	Topic                     string
	Partitions                []string
	Generation                int
	KafkaPartitions           []int32
	Offsets                   []int64
	Extension                 string
	MessageChannelIdentifier  []string
	// Pattern, if non-empty, overrides the default directory layout when
	// rendering. It is a plain field set by the caller (see design note:
	// LogFilePath never carries a config back-reference).
	Pattern string
}

// New constructs a single-Kafka-partition LogFilePath, the common case.
func New(prefix, topic string, partitions []string, generation int, kafkaPartition int32, offset int64, extension string, channelID []string) (*LogFilePath, error) {
	return NewMerged(prefix, topic, partitions, generation, []int32{kafkaPartition}, []int64{offset}, extension, channelID)
}

// NewMerged constructs a LogFilePath possibly spanning multiple consecutive
// Kafka partitions (the "merged" case), validating the invariants from the
// data model: len(kafkaPartitions) == len(offsets) >= 1 and the partitions
// are consecutive ascending integers.
func NewMerged(prefix, topic string, partitions []string, generation int, kafkaPartitions []int32, offsets []int64, extension string, channelID []string) (*LogFilePath, error) {
	if len(kafkaPartitions) == 0 || len(offsets) == 0 {
		return nil, fmt.Errorf("pathbuilder: at least one kafka partition and offset required")
	}
	if len(kafkaPartitions) != len(offsets) {
		return nil, fmt.Errorf("pathbuilder: kafkaPartitions and offsets length mismatch: %d != %d", len(kafkaPartitions), len(offsets))
	}
	for i := 1; i < len(kafkaPartitions); i++ {
		if kafkaPartitions[i] != kafkaPartitions[i-1]+1 {
			return nil, fmt.Errorf("pathbuilder: non-consecutive kafka partitions %d and %d", kafkaPartitions[i-1], kafkaPartitions[i])
		}
	}
	return &LogFilePath{
		Prefix:                   prefix,
		Topic:                    topic,
		Partitions:               append([]string(nil), partitions...),
		Generation:               generation,
		KafkaPartitions:          append([]int32(nil), kafkaPartitions...),
		Offsets:                  append([]int64(nil), offsets...),
		Extension:                extension,
		MessageChannelIdentifier: append([]string(nil), channelID...),
	}, nil
}

// WithPrefix returns a shallow copy of p with Prefix replaced, used to
// derive a remote object path from a local file's LogFilePath without
// re-deriving the topic/partitions/basename it already computed.
func (p *LogFilePath) WithPrefix(prefix string) *LogFilePath {
	cp := *p
	cp.Prefix = prefix
	return &cp
}

// dir returns prefix/topic/partition1/.../partitionN, joining only non-empty
// elements.
func (p *LogFilePath) dir() string {
	elems := make([]string, 0, 2+len(p.Partitions))
	if p.Prefix != "" {
		elems = append(elems, p.Prefix)
	}
	if p.Topic != "" {
		elems = append(elems, p.Topic)
	}
	elems = append(elems, p.Partitions...)
	return strings.Join(elems, "/")
}

// basename renders the compatibility-critical file basename (without
// extension): single-partition case is "{generation}_{kp}_{offset:020d}";
// the multi-partition merge case is
// "{generation}_{kpFirst}-{kpLast}_{base64url(md5(offsets))}".
func (p *LogFilePath) basename() string {
	parts := []string{strconv.Itoa(p.Generation)}
	if len(p.KafkaPartitions) > 1 {
		first := p.KafkaPartitions[0]
		last := p.KafkaPartitions[len(p.KafkaPartitions)-1]
		parts = append(parts, fmt.Sprintf("%d-%d", first, last))
		parts = append(parts, mergeDigest(p.Offsets))
	} else {
		parts = append(parts, strconv.FormatInt(int64(p.KafkaPartitions[0]), 10))
		parts = append(parts, fmt.Sprintf("%020d", p.Offsets[0]))
	}
	return strings.Join(parts, "_")
}

// mergeDigest computes the multi-partition basename suffix. Concatenating
// offsets as bare decimal strings before hashing is collision-prone (e.g.
// offsets [1, 23] and [12, 3] both concatenate to "123"), so each offset is
// length-prefixed before hashing to close that ambiguity. Parse still
// refuses to round-trip the multi-partition form at all.
func mergeDigest(offsets []int64) string {
	var sb strings.Builder
	for _, off := range offsets {
		s := strconv.FormatInt(off, 10)
		fmt.Fprintf(&sb, "%d:%s;", len(s), s)
	}
	sum := md5.Sum([]byte(sb.String()))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Render returns the full path for this LogFilePath. With no Pattern set it
// is "{prefix}/{topic}/{partitions...}/{basename}{extension}". With a
// Pattern set, the segments after "{prefix}/" are fully controlled by the
// pattern; recognized placeholders are substituted and unknown ones are
// left literal.
func (p *LogFilePath) Render() string {
	if p.Pattern != "" {
		return p.renderPattern()
	}
	return p.dir() + "/" + p.basename() + p.Extension
}

func (p *LogFilePath) renderPattern() string {
	now := time.Now()
	values := map[string]string{
		"topic":                      p.Topic,
		"partition":                  firstOr(p.Partitions, ""),
		"generation":                 strconv.Itoa(p.Generation),
		"kafkaPartition":             strconv.FormatInt(int64(p.KafkaPartitions[0]), 10),
		"fmOffset":                   fmt.Sprintf("%020d", p.Offsets[0]),
		"randomHex":                  randomHex(),
		"currentTimestamp":           strconv.FormatInt(now.UnixMilli(), 10),
		"currentTime":                now.Format("15-04"),
		"currentDate":                now.Format("20060102"),
		"message_channel_identifier": firstOr(p.MessageChannelIdentifier, ""),
	}
	substituted := substitute(p.Pattern, values)
	if p.Prefix == "" {
		return substituted + p.Extension
	}
	return p.Prefix + "/" + substituted + p.Extension
}

func firstOr(s []string, fallback string) string {
	if len(s) == 0 {
		return fallback
	}
	return s[0]
}

// substitute replaces every {name} in pattern found in values; unknown
// placeholders (not present in values) are left literal.
func substitute(pattern string, values map[string]string) string {
	var out strings.Builder
	i := 0
	for i < len(pattern) {
		if pattern[i] != '{' {
			out.WriteByte(pattern[i])
			i++
			continue
		}
		end := strings.IndexByte(pattern[i:], '}')
		if end < 0 {
			out.WriteString(pattern[i:])
			break
		}
		name := pattern[i+1 : i+end]
		if v, ok := values[name]; ok {
			out.WriteString(v)
		} else {
			out.WriteString(pattern[i : i+end+1])
		}
		i += end + 1
	}
	return out.String()
}

// randomHex returns 4 zero-padded lowercase hex characters, uniformly
// distributed. The original Java implementation truncated a signed int32's
// hex form to 4 characters without padding, which could occasionally emit
// fewer than 4 characters when the high nibble was zero; padding here keeps
// the field width constant.
func randomHex() string {
	return fmt.Sprintf("%04x", rand.Intn(1<<16))
}

// CrcPath returns the checksum sidecar path: same directory, basename
// prefixed with "." and suffixed with ".crc", no extension.
func (p *LogFilePath) CrcPath() string {
	return p.dir() + "/." + p.basename() + ".crc"
}

// Parse recovers a LogFilePath from a rendered default-layout path (no
// pattern). Per design note (b), only the single-partition basename form is
// round-trip safe; a multi-partition merge basename is rejected with
// ErrMalformedPath rather than silently mis-parsed.
func Parse(prefix, fullPath string) (*LogFilePath, error) {
	trimmedPrefix := strings.TrimSuffix(prefix, "/")
	if !strings.HasPrefix(fullPath, trimmedPrefix) {
		return nil, fmt.Errorf("%w: %q does not start with prefix %q", ErrMalformedPath, fullPath, prefix)
	}
	suffix := strings.TrimPrefix(fullPath[len(trimmedPrefix):], "/")
	elems := strings.Split(suffix, "/")
	if len(elems) < 3 {
		return nil, fmt.Errorf("%w: expected topic/partition.../basename, got %q", ErrMalformedPath, fullPath)
	}

	topic := elems[0]
	partitions := elems[1 : len(elems)-1]
	basename := elems[len(elems)-1]

	extension := ""
	if idx := strings.LastIndexByte(path.Base(basename), '.'); idx >= 0 {
		extension = basename[idx:]
		basename = basename[:idx]
	}

	fields := strings.Split(basename, "_")
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: basename %q does not split into 3 fields", ErrMalformedPath, basename)
	}
	generation, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: bad generation %q: %v", ErrMalformedPath, fields[0], err)
	}
	if strings.Contains(fields[1], "-") {
		return nil, fmt.Errorf("%w: multi-partition merge basename %q is not parseable", ErrMalformedPath, basename)
	}
	kafkaPartition, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: bad kafka partition %q: %v", ErrMalformedPath, fields[1], err)
	}
	offset, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad offset %q: %v", ErrMalformedPath, fields[2], err)
	}

	return &LogFilePath{
		Prefix:          prefix,
		Topic:           topic,
		Partitions:      append([]string(nil), partitions...),
		Generation:      generation,
		KafkaPartitions: []int32{int32(kafkaPartition)},
		Offsets:         []int64{offset},
		Extension:       extension,
	}, nil
}
