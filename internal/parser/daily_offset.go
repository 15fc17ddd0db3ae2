package parser

import (
	"fmt"
	"time"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/model"
)

// DailyOffset always uses "now" as the timestamp and appends a second
// partition bucketing the Kafka offset into fixed-size ranges, e.g.
// "offset=20000" for offsetsPerPartition=10000 and offset 23457. It holds a
// Timestamped only to reuse its time zone and output layout for the
// date-formatting partition, not through inheritance.
type DailyOffset struct {
	cfg   config.ParserConfig
	inner *Timestamped
}

func (d *DailyOffset) ExtractTimestampMillis(model.Message) (int64, error) {
	return time.Now().UnixMilli(), nil
}

func (d *DailyOffset) ExtractPartitions(msg model.Message) ([]string, error) {
	dateParts := formatPartitions(time.Now().In(d.inner.loc), d.inner.outputLayout, d.cfg.UsingHourly, d.cfg.UsingMinutely)
	n := d.cfg.OffsetsPerPartition
	if n <= 0 {
		n = 1
	}
	bucket := (msg.Offset / n) * n
	return append(dateParts, fmt.Sprintf("offset=%d", bucket)), nil
}
