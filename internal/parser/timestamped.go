package parser

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/model"
)

// Timestamped parses a timestamp field out of the message payload
// (configurable name, optional fallback name, configurable unit), then
// formats it via a configurable output pattern in a configurable time zone.
// It typically produces a single partition like "dt=2024-01-02", optionally
// followed by "hr=HH" and/or "min=mm".
type Timestamped struct {
	cfg          config.ParserConfig
	loc          *time.Location
	outputLayout string
}

func (t *Timestamped) ExtractTimestampMillis(msg model.Message) (int64, error) {
	raw, ok := extractJSONField(msg.Payload, t.cfg.TimestampName)
	if !ok && t.cfg.FallbackTimestampName != "" {
		raw, ok = extractJSONField(msg.Payload, t.cfg.FallbackTimestampName)
	}
	if !ok {
		if msg.TimestampMillis != 0 {
			return msg.TimestampMillis, nil
		}
		return 0, fmt.Errorf("timestamped: field %q not found", t.cfg.TimestampName)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("timestamped: field %q is not numeric: %w", t.cfg.TimestampName, err)
	}
	return convertUnit(value, t.cfg.TimestampUnit), nil
}

func (t *Timestamped) ExtractPartitions(msg model.Message) ([]string, error) {
	millis, err := t.ExtractTimestampMillis(msg)
	if err != nil {
		return nil, err
	}
	ts := time.UnixMilli(millis).In(t.loc)
	return formatPartitions(ts, t.outputLayout, t.cfg.UsingHourly, t.cfg.UsingMinutely), nil
}
