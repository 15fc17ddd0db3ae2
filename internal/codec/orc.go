package codec

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/model"
)

// orcColumn describes one column of a topic's schema: a name and a scalar
// type ("string", "long", "double", "bool"). Schemas are configured as
// "name:type" pairs separated by commas, e.g. "user_id:long,country:string".
type orcColumn struct {
	name string
	kind string
}

// orc is a minimal columnar FileCodec: records are buffered in memory as
// they're written, then flushed as one column-major stripe on Close, the way
// an ORC file groups values by column rather than by row. There is no
// pure-Go ORC library in the dependency graph this project draws from, so
// the stripe encoding is hand-rolled on encoding/binary; this trades ORC's
// real compression and predicate pushdown for a format that is at least
// genuinely columnar on disk.
type orc struct {
	topic       string
	columns     []orcColumn
	compression string
}

func newORC(cfg config.CodecConfig, topic string) (FileCodec, error) {
	schema, ok := cfg.Schemas[topic]
	if !ok {
		return nil, fmt.Errorf("codec: orc: no schema configured for topic %q", topic)
	}
	columns, err := parseORCSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("codec: orc: topic %q: %w", topic, err)
	}
	return &orc{topic: topic, columns: columns, compression: mapORCCompression(cfg.Compression)}, nil
}

// mapORCCompression translates the shipper's own compression setting into
// the corresponding compressWriter/decompressReader key. "flate" stands in
// for ORC's ZLIB kind, since compress/flate (used by ZLIB) is what the
// dependency graph offers rather than a dedicated zlib-in-orc kind.
func mapORCCompression(c string) string {
	switch c {
	case "lz4":
		return "lz4"
	case "snappy":
		return "snappy"
	case "gzip":
		return "flate" // ORC's ZLIB kind
	default:
		return "none"
	}
}

func parseORCSchema(schema string) ([]orcColumn, error) {
	var cols []orcColumn
	start := 0
	for i := 0; i <= len(schema); i++ {
		if i == len(schema) || schema[i] == ',' {
			part := schema[start:i]
			start = i + 1
			if part == "" {
				continue
			}
			sep := -1
			for j := 0; j < len(part); j++ {
				if part[j] == ':' {
					sep = j
					break
				}
			}
			if sep < 0 {
				return nil, fmt.Errorf("malformed column spec %q, want name:type", part)
			}
			name, kind := part[:sep], part[sep+1:]
			switch kind {
			case "string", "long", "double", "bool":
			default:
				return nil, fmt.Errorf("unsupported column type %q for %q", kind, name)
			}
			cols = append(cols, orcColumn{name: name, kind: kind})
		}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("empty schema")
	}
	return cols, nil
}

func (o *orc) NewWriter(w io.WriteCloser) (Writer, error) {
	return &orcWriter{file: w, orc: o}, nil
}

func (o *orc) NewReader(r io.ReadCloser, firstOffset int64) (Reader, error) {
	dr, err := decompressReader(r, o.compression)
	if err != nil {
		return nil, err
	}
	reader := &orcReader{file: r}
	if err := reader.decodeStripes(dr, o.columns); err != nil {
		return nil, err
	}
	return reader, nil
}

type orcRow struct {
	offset int64
	fields map[string]interface{}
}

type orcWriter struct {
	file         io.WriteCloser
	orc          *orc
	rows         []orcRow
	bufferedSize int64
}

func (w *orcWriter) WriteRecord(kv model.KeyValue) error {
	var fields map[string]interface{}
	if err := json.Unmarshal(kv.Value, &fields); err != nil {
		return fmt.Errorf("codec: orc: record at offset %d is not a JSON object: %w", kv.Offset, err)
	}
	w.rows = append(w.rows, orcRow{offset: kv.Offset, fields: fields})
	w.bufferedSize += int64(len(kv.Value))
	return nil
}

// Length reports the buffered, uncompressed row size accumulated so far.
// The stripe (and any compression) is only written out on Close, so the
// true on-disk footprint isn't knowable before then; this is an estimate a
// size-based commit policy can still act on, and the written stripe may be
// larger or smaller than it.
func (w *orcWriter) Length() int64 { return w.bufferedSize }

// Close writes the buffered rows as one stripe: a header (row count, column
// count), the offsets column, then one length-prefixed value per column per
// row, column-major.
func (w *orcWriter) Close() error {
	cw, err := compressWriter(w.file, w.orc.compression)
	if err != nil {
		w.file.Close()
		return err
	}
	if err := writeUint32(cw, uint32(len(w.rows))); err != nil {
		return closeBoth(cw, w.file, err)
	}
	if err := writeUint32(cw, uint32(len(w.orc.columns))); err != nil {
		return closeBoth(cw, w.file, err)
	}
	for _, row := range w.rows {
		if err := writeUint64(cw, uint64(row.offset)); err != nil {
			return closeBoth(cw, w.file, err)
		}
	}
	for _, col := range w.orc.columns {
		for _, row := range w.rows {
			raw, err := encodeORCValue(col.kind, row.fields[col.name])
			if err != nil {
				return closeBoth(cw, w.file, err)
			}
			if err := writeUint32(cw, uint32(len(raw))); err != nil {
				return closeBoth(cw, w.file, err)
			}
			if _, err := cw.Write(raw); err != nil {
				return closeBoth(cw, w.file, err)
			}
		}
	}
	if err := cw.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func closeBoth(cw io.Closer, f io.Closer, cause error) error {
	cw.Close()
	f.Close()
	return cause
}

func encodeORCValue(kind string, v interface{}) ([]byte, error) {
	switch kind {
	case "string":
		s, _ := v.(string)
		return []byte(s), nil
	case "bool":
		b, _ := v.(bool)
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case "long":
		n, _ := v.(float64)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(int64(n)))
		return buf, nil
	case "double":
		f, _ := v.(float64)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		return buf, nil
	default:
		return nil, fmt.Errorf("codec: orc: unsupported column type %q", kind)
	}
}

func decodeORCValue(kind string, raw []byte) interface{} {
	switch kind {
	case "string":
		return string(raw)
	case "bool":
		return len(raw) > 0 && raw[0] == 1
	case "long":
		if len(raw) < 8 {
			return int64(0)
		}
		return int64(binary.BigEndian.Uint64(raw))
	case "double":
		if len(raw) < 8 {
			return float64(0)
		}
		return math.Float64frombits(binary.BigEndian.Uint64(raw))
	default:
		return nil
	}
}

func writeUint32(w io.Writer, v uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	_, err := w.Write(buf)
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	_, err := w.Write(buf)
	return err
}

type orcReader struct {
	file io.Closer
	rows []orcRow
	next int
}

func (r *orcReader) decodeStripes(in io.Reader, columns []orcColumn) error {
	rowCount, err := readUint32(in)
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	colCount, err := readUint32(in)
	if err != nil {
		return ErrTruncatedRecord
	}
	if int(colCount) != len(columns) {
		return fmt.Errorf("codec: orc: schema has %d columns, file has %d", len(columns), colCount)
	}
	offsets := make([]int64, rowCount)
	for i := range offsets {
		v, err := readUint64(in)
		if err != nil {
			return ErrTruncatedRecord
		}
		offsets[i] = int64(v)
	}
	rows := make([]orcRow, rowCount)
	for i := range rows {
		rows[i] = orcRow{offset: offsets[i], fields: make(map[string]interface{}, len(columns))}
	}
	for _, col := range columns {
		for i := 0; i < int(rowCount); i++ {
			length, err := readUint32(in)
			if err != nil {
				return ErrTruncatedRecord
			}
			raw := make([]byte, length)
			if _, err := io.ReadFull(in, raw); err != nil {
				return ErrTruncatedRecord
			}
			rows[i].fields[col.name] = decodeORCValue(col.kind, raw)
		}
	}
	r.rows = rows
	return nil
}

func readUint32(r io.Reader) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

func readUint64(r io.Reader) (uint64, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf), nil
}

func (r *orcReader) ReadRecord() (model.KeyValue, error) {
	if r.next >= len(r.rows) {
		return model.KeyValue{}, io.EOF
	}
	row := r.rows[r.next]
	r.next++
	value, err := json.Marshal(row.fields)
	if err != nil {
		return model.KeyValue{}, err
	}
	return model.KeyValue{Offset: row.offset, Value: value}, nil
}

func (r *orcReader) Close() error { return r.file.Close() }
