package parser

import (
	"log/slog"
	"testing"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/model"
)

func TestTimestampedScenarioS1(t *testing.T) {
	p, err := New(config.ParserConfig{
		Class:         "timestamped",
		TimestampName: "ts",
		TimestampUnit: "ms",
		OutputDtFormat: "'dt='yyyy-MM-dd",
		TimeZone:       "UTC",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	msg1 := model.Message{Topic: "t", KafkaPartition: 3, Offset: 100, Payload: []byte(`{"ts":1400000000000}`)}
	parts, err := p.ExtractPartitions(msg1)
	if err != nil {
		t.Fatalf("ExtractPartitions: %v", err)
	}
	if len(parts) != 1 || parts[0] != "dt=2014-05-13" {
		t.Fatalf("unexpected partitions: %v", parts)
	}

	msg2 := model.Message{Topic: "t", KafkaPartition: 3, Offset: 101, Payload: []byte(`{"ts":1400086400000}`)}
	parts2, err := p.ExtractPartitions(msg2)
	if err != nil {
		t.Fatalf("ExtractPartitions: %v", err)
	}
	if len(parts2) != 1 || parts2[0] != "dt=2014-05-14" {
		t.Fatalf("unexpected partitions: %v", parts2)
	}
}

func TestTimestampedHourlyMinutely(t *testing.T) {
	p, err := New(config.ParserConfig{
		Class:          "timestamped",
		TimestampName:  "ts",
		TimestampUnit:  "ms",
		OutputDtFormat: "'dt='yyyy-MM-dd",
		TimeZone:       "UTC",
		UsingHourly:    true,
		UsingMinutely:  true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	msg := model.Message{Payload: []byte(`{"ts":1400000000000}`)}
	parts, err := p.ExtractPartitions(msg)
	if err != nil {
		t.Fatalf("ExtractPartitions: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 partition segments, got %v", parts)
	}
}

func TestDailyOffsetScenarioS3(t *testing.T) {
	p, err := New(config.ParserConfig{
		Class:               "daily_offset",
		OutputDtFormat:      "'dt='yyyy-MM-dd",
		TimeZone:            "UTC",
		OffsetsPerPartition: 10000,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	msg := model.Message{Offset: 23457}
	parts, err := p.ExtractPartitions(msg)
	if err != nil {
		t.Fatalf("ExtractPartitions: %v", err)
	}
	if len(parts) != 2 || parts[1] != "offset=20000" {
		t.Fatalf("unexpected partitions: %v", parts)
	}
}

func TestPatternDatePrefixMapping(t *testing.T) {
	p, err := New(config.ParserConfig{
		Class:                 "pattern_date",
		TimestampName:         "ts",
		TimestampInputPattern: "yyyy-MM-dd",
		OutputDtFormat:        "yyyy-MM-dd",
		TimeZone:              "UTC",
		PrefixEnable:          true,
		PrefixIdentifier:      "region",
		PrefixMapping:         `{"us":"US","DEFAULT":"OTHER"}`,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	msg := model.Message{Payload: []byte(`{"ts":"2024-01-02","region":"us"}`)}
	parts, err := p.ExtractPartitions(msg)
	if err != nil {
		t.Fatalf("ExtractPartitions: %v", err)
	}
	if len(parts) != 1 || parts[0] != "US/2024-01-02" {
		t.Fatalf("unexpected partitions: %v", parts)
	}

	unknownMsg := model.Message{Payload: []byte(`{"ts":"2024-01-02","region":"zz"}`)}
	parts2, err := p.ExtractPartitions(unknownMsg)
	if err != nil {
		t.Fatalf("ExtractPartitions: %v", err)
	}
	if len(parts2) != 1 || parts2[0] != "OTHER/2024-01-02" {
		t.Fatalf("unexpected partitions for unknown identifier: %v", parts2)
	}
}

func TestPatternDateMalformedFallsBackToDefault(t *testing.T) {
	p, err := New(config.ParserConfig{
		Class:                 "pattern_date",
		TimestampName:         "ts",
		TimestampInputPattern: "yyyy-MM-dd",
		OutputDtFormat:        "yyyy-MM-dd",
		TimeZone:              "UTC",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	msg := model.Message{Payload: []byte(`not json`)}
	parts, err := p.ExtractPartitions(msg)
	if err != nil {
		t.Fatalf("ExtractPartitions should not error, got %v", err)
	}
	if len(parts) != 1 || parts[0] != "1970-01-01" {
		t.Fatalf("unexpected fallback partitions: %v", parts)
	}
}

func TestWithFallbackRoutesParseFailures(t *testing.T) {
	inner, err := New(config.ParserConfig{
		Class:         "timestamped",
		TimestampName: "ts",
		TimestampUnit: "ms",
		OutputDtFormat: "'dt='yyyy-MM-dd",
		TimeZone:       "UTC",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wrapped := WithFallback(inner, "dt=1970-01-01", slog.Default())

	msg := model.Message{Payload: []byte(`{}`)}
	parts, err := wrapped.ExtractPartitions(msg)
	if err != nil {
		t.Fatalf("ExtractPartitions should not error: %v", err)
	}
	if len(parts) != 1 || parts[0] != "dt=1970-01-01" {
		t.Fatalf("unexpected fallback partitions: %v", parts)
	}
}
