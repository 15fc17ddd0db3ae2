// Package parser implements the MessageParser capability set: extracting
// logical partitions and a timestamp from a raw message. Rather than the
// deep-inheritance hierarchy the original implementation used, each variant
// is a small struct implementing the same two-method interface, sharing
// date-formatting and prefix-lookup as free functions.
package parser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/model"
)

// MessageParser extracts logical partitions and a timestamp from a message.
// Implementations must not mutate shared state across concurrent calls;
// per-call formatting avoids the non-thread-safe date formatter problem the
// original implementation had.
type MessageParser interface {
	ExtractPartitions(msg model.Message) ([]string, error)
	ExtractTimestampMillis(msg model.Message) (int64, error)
}

// New builds the configured parser variant.
func New(cfg config.ParserConfig) (MessageParser, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("parser: bad time zone %q: %w", cfg.TimeZone, err)
	}
	goFormat, err := javaToGoLayout(cfg.OutputDtFormat)
	if err != nil {
		return nil, fmt.Errorf("parser: bad output_dt_format %q: %w", cfg.OutputDtFormat, err)
	}

	switch cfg.Class {
	case "timestamped":
		return &Timestamped{cfg: cfg, loc: loc, outputLayout: goFormat}, nil
	case "pattern_date":
		prefixMap, err := parsePrefixMapping(cfg.PrefixMapping)
		if err != nil {
			return nil, err
		}
		if _, ok := prefixMap["DEFAULT"]; cfg.PrefixEnable && !ok {
			return nil, fmt.Errorf("parser: prefix_mapping must contain a DEFAULT entry when prefix_enable is set")
		}
		inputLayout := ""
		if cfg.TimestampInputPattern != "" {
			inputLayout, err = javaToGoLayout(cfg.TimestampInputPattern)
			if err != nil {
				return nil, fmt.Errorf("parser: bad timestamp_input_pattern %q: %w", cfg.TimestampInputPattern, err)
			}
		}
		return &PatternDate{cfg: cfg, loc: loc, outputLayout: goFormat, inputLayout: inputLayout, prefixMap: prefixMap}, nil
	case "daily_offset":
		inner := &Timestamped{cfg: cfg, loc: loc, outputLayout: goFormat}
		return &DailyOffset{cfg: cfg, inner: inner}, nil
	default:
		return nil, fmt.Errorf("parser: unknown class %q", cfg.Class)
	}
}

// WithFallback wraps a MessageParser so that any error from
// ExtractPartitions is swallowed and the configured fallback partition is
// returned instead. This is the "parser failure never aborts the loop"
// availability policy: losing archival precision for a malformed record is
// preferable to stalling the whole partition.
func WithFallback(inner MessageParser, fallback string, logger *slog.Logger) MessageParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &fallbackParser{inner: inner, fallback: fallback, logger: logger}
}

type fallbackParser struct {
	inner    MessageParser
	fallback string
	logger   *slog.Logger
}

func (f *fallbackParser) ExtractPartitions(msg model.Message) ([]string, error) {
	partitions, err := f.inner.ExtractPartitions(msg)
	if err != nil {
		f.logger.Warn("parser: routing message to fallback partition",
			"topic", msg.Topic, "kafka_partition", msg.KafkaPartition, "offset", msg.Offset, "error", err)
		return []string{f.fallback}, nil
	}
	return partitions, nil
}

func (f *fallbackParser) ExtractTimestampMillis(msg model.Message) (int64, error) {
	ts, err := f.inner.ExtractTimestampMillis(msg)
	if err != nil {
		return time.Now().UnixMilli(), nil
	}
	return ts, nil
}

// formatPartitions renders the (date, optional hour, optional minute)
// partition path elements from a timestamp, shared by Timestamped and
// DailyOffset.
func formatPartitions(t time.Time, outputLayout string, usingHourly, usingMinutely bool) []string {
	parts := []string{t.Format(outputLayout)}
	if usingHourly {
		parts = append(parts, fmt.Sprintf("hr=%02d", t.Hour()))
	}
	if usingMinutely {
		parts = append(parts, fmt.Sprintf("min=%02d", t.Minute()))
	}
	return parts
}

// parsePrefixMapping parses the JSON identifier->folder map used by
// PatternDate. The map must contain a "DEFAULT" entry whenever prefixing is
// enabled; this is validated at parser construction, not at parse time.
func parsePrefixMapping(raw string) (map[string]string, error) {
	if raw == "" {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("parser: invalid prefix_mapping JSON: %w", err)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

// lookupPrefix resolves the folder prefix for an identifier value,
// following the original's fallback chain: exact match, else DEFAULT, else
// empty string.
func lookupPrefix(prefixMap map[string]string, identifier string) string {
	if v, ok := prefixMap[identifier]; ok {
		return v
	}
	if v, ok := prefixMap["DEFAULT"]; ok {
		return v
	}
	return ""
}

// extractJSONField reads a dotted field path (e.g. "a.b") from a JSON
// payload, descending through nested objects one path element at a time,
// and returns the value as a string and whether it was found. Only scalar
// values are supported; this is not a full JSONPath implementation.
func extractJSONField(payload []byte, field string) (string, bool) {
	if field == "" {
		return "", false
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(payload, &obj); err != nil {
		return "", false
	}
	cur := interface{}(obj)
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		v, ok := m[part]
		if !ok {
			return "", false
		}
		cur = v
	}
	switch v := cur.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// convertUnit normalizes a raw timestamp value to milliseconds given its
// configured unit.
func convertUnit(value int64, unit string) int64 {
	switch unit {
	case "s":
		return value * 1000
	case "ns":
		return value / int64(time.Millisecond)
	default: // "ms"
		return value
	}
}
