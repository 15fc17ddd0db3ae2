// Package codec implements the FileCodec capability set: writing message
// values to a local file in one of several on-disk formats, and reading them
// back in the same order for re-verification or reprocessing. Compression is
// a cross-cutting concern layered underneath any of the formats rather than
// a format of its own.
package codec

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
	"github.com/pierrec/lz4/v4"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/model"
)

// Writer appends message values to a local file in a codec-specific format.
type Writer interface {
	WriteRecord(kv model.KeyValue) error
	// Length reports the number of bytes actually written to the
	// underlying file so far — post-compression, not the sum of the
	// uncompressed payload lengths handed to WriteRecord — so a
	// size-based commit policy sees the real on-disk footprint.
	Length() int64
	Close() error
}

// Reader replays message values from a local file previously produced by the
// matching Writer, in the order they were written.
type Reader interface {
	// ReadRecord returns io.EOF once every record has been consumed. A
	// truncated final record (a non-empty partial write left by a crash
	// mid-append) is reported as ErrTruncatedRecord rather than folded into
	// io.EOF, so callers can tell "file ends cleanly" from "file ends mid-write".
	ReadRecord() (model.KeyValue, error)
	Close() error
}

// FileCodec constructs Readers and Writers over an already-open file handle.
type FileCodec interface {
	NewWriter(w io.WriteCloser) (Writer, error)
	// NewReader builds a Reader over r. firstOffset is the Kafka offset the
	// file's first record was written at (encoded in the file's path); codecs
	// that don't carry a true per-record offset in-band (delimited) seed
	// their running offset counter from it, so replayed records report
	// correct absolute offsets. Codecs that do store per-record offsets
	// (sequencefile, orc) ignore it.
	NewReader(r io.ReadCloser, firstOffset int64) (Reader, error)
}

// ErrTruncatedRecord is returned by Reader.ReadRecord when the file ends in
// the middle of a record rather than cleanly between records.
var ErrTruncatedRecord = fmt.Errorf("codec: truncated record at end of file")

// New builds the configured FileCodec for the given topic. Only the "orc"
// format consults topic (to look up its schema); the other formats ignore it.
func New(cfg config.CodecConfig, topic string) (FileCodec, error) {
	switch cfg.Format {
	case "", "delimited":
		return newDelimited(cfg)
	case "sequencefile":
		return newSequenceFile(cfg)
	case "orc":
		return newORC(cfg, topic)
	default:
		return nil, fmt.Errorf("codec: unknown format %q", cfg.Format)
	}
}

// compressWriter wraps w with the configured compression scheme. The
// returned io.WriteCloser must be closed to flush any buffered compressed
// output before the underlying file is closed.
func compressWriter(w io.Writer, compression string) (io.WriteCloser, error) {
	switch compression {
	case "", "none":
		return nopWriteCloser{w}, nil
	case "gzip":
		return gzip.NewWriter(w), nil
	case "snappy":
		return &snappyWriteCloser{w: snappy.NewBufferedWriter(w)}, nil
	case "lz4":
		return lz4.NewWriter(w), nil
	case "flate":
		fw, err := flate.NewWriter(w, flate.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("codec: flate writer: %w", err)
		}
		return fw, nil
	default:
		return nil, fmt.Errorf("codec: unknown compression %q", compression)
	}
}

// decompressReader wraps r with the configured decompression scheme.
func decompressReader(r io.Reader, compression string) (io.Reader, error) {
	switch compression {
	case "", "none":
		return r, nil
	case "gzip":
		return gzip.NewReader(r)
	case "snappy":
		return snappy.NewReader(r), nil
	case "lz4":
		return lz4.NewReader(r), nil
	case "flate":
		return flate.NewReader(r), nil
	default:
		return nil, fmt.Errorf("codec: unknown compression %q", compression)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// countingWriteCloser wraps the destination file below the compression
// layer, so its running count reflects bytes actually written to disk
// rather than the uncompressed bytes handed to the compressor. Compressors
// that buffer internally (gzip, snappy's buffered writer) mean the count
// can lag behind what's logically been written until the next flush or
// Close — that lag is inherent to on-disk size not being knowable any
// earlier.
type countingWriteCloser struct {
	w io.WriteCloser
	n int64
}

func newCountingWriteCloser(w io.WriteCloser) *countingWriteCloser {
	return &countingWriteCloser{w: w}
}

func (c *countingWriteCloser) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *countingWriteCloser) Close() error  { return c.w.Close() }
func (c *countingWriteCloser) Length() int64 { return c.n }

// snappyWriteCloser adapts snappy's BufferedWriter (Close flushes and closes
// the underlying stream framing) to io.WriteCloser.
type snappyWriteCloser struct {
	w *snappy.Writer
}

func (s *snappyWriteCloser) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *snappyWriteCloser) Close() error                { return s.w.Close() }

// bufferedReadCloser lets a decompressed bufio.Reader be paired with the
// original file's Close, since gzip.Reader/lz4.Reader/etc. don't all expose
// a Close that also closes the wrapped file.
type bufferedReadCloser struct {
	*bufio.Reader
	closer io.Closer
}

func (b *bufferedReadCloser) Close() error { return b.closer.Close() }
