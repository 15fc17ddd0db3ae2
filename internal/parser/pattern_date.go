package parser

import (
	"errors"
	"strconv"
	"time"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/model"
)

// PatternDate is like Timestamped, except the input value is itself parsed
// with a date-parse pattern (rather than being a raw epoch value), and an
// optional per-record prefix mapping (identifier value -> folder, with a
// DEFAULT) is prepended to the output partition.
type PatternDate struct {
	cfg          config.ParserConfig
	loc          *time.Location
	outputLayout string
	inputLayout  string
	prefixMap    map[string]string
}

func (p *PatternDate) ExtractTimestampMillis(msg model.Message) (int64, error) {
	t, err := p.parseTimestamp(msg)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func (p *PatternDate) parseTimestamp(msg model.Message) (time.Time, error) {
	raw, ok := extractJSONField(msg.Payload, p.cfg.TimestampName)
	if !ok && p.cfg.FallbackTimestampName != "" {
		raw, ok = extractJSONField(msg.Payload, p.cfg.FallbackTimestampName)
	}
	if !ok {
		return time.Time{}, errNoTimestampField
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(convertUnit(n, p.cfg.TimestampUnit)).In(p.loc), nil
	}
	if p.inputLayout == "" {
		return time.Time{}, errNoInputPattern
	}
	return time.ParseInLocation(p.inputLayout, raw, p.loc)
}

func (p *PatternDate) ExtractPartitions(msg model.Message) ([]string, error) {
	t, err := p.parseTimestamp(msg)
	if err != nil {
		return []string{p.defaultPartition()}, nil
	}
	formatted := t.In(p.loc).Format(p.outputLayout)
	if !p.cfg.PrefixEnable {
		return []string{formatted}, nil
	}
	identifier, _ := extractJSONField(msg.Payload, p.cfg.PrefixIdentifier)
	prefix := lookupPrefix(p.prefixMap, identifier)
	if prefix == "" {
		return []string{formatted}, nil
	}
	return []string{prefix + "/" + formatted}, nil
}

func (p *PatternDate) defaultPartition() string {
	if !p.cfg.PrefixEnable {
		return "1970-01-01"
	}
	def, ok := p.prefixMap["DEFAULT"]
	if !ok || def == "" {
		return "1970-01-01"
	}
	return def + "/1970-01-01"
}

var (
	errNoTimestampField = errors.New("pattern_date: timestamp field not found")
	errNoInputPattern   = errors.New("pattern_date: no timestamp_input_pattern configured for non-numeric field")
)
