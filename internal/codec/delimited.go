package codec

import (
	"bufio"
	"errors"
	"io"

	"github.com/Thepunisher64344/sunbird-secor/internal/config"
	"github.com/Thepunisher64344/sunbird-secor/internal/model"
)

// delimited is the plain-text FileCodec: each record is the raw message
// value followed by a delimiter byte (default '\n'). It carries no
// per-record offset in the file itself — offsets are reconstructed as a
// running count from the file's first-offset, which the caller already
// knows from the file's path.
type delimited struct {
	readerDelim byte
	writerDelim []byte // empty means the writer appends nothing
	compression string
}

func newDelimited(cfg config.CodecConfig) (FileCodec, error) {
	readerDelim := byte('\n')
	if cfg.ReaderDelimiter != "" {
		readerDelim = cfg.ReaderDelimiter[0]
	}
	var writerDelim []byte
	if cfg.WriterDelimiter != "" {
		writerDelim = []byte(cfg.WriterDelimiter)
	} else if cfg.ReaderDelimiter == "" {
		// default: symmetric read/write on '\n' when neither delimiter is
		// configured; a reader delimiter alone leaves the writer appending none.
		writerDelim = []byte{'\n'}
	}
	return &delimited{readerDelim: readerDelim, writerDelim: writerDelim, compression: cfg.Compression}, nil
}

func (d *delimited) NewWriter(w io.WriteCloser) (Writer, error) {
	counter := newCountingWriteCloser(w)
	cw, err := compressWriter(counter, d.compression)
	if err != nil {
		return nil, err
	}
	return &delimitedWriter{file: w, out: cw, delim: d.writerDelim, counter: counter}, nil
}

func (d *delimited) NewReader(r io.ReadCloser, firstOffset int64) (Reader, error) {
	dr, err := decompressReader(r, d.compression)
	if err != nil {
		return nil, err
	}
	return &delimitedReader{file: r, br: bufio.NewReader(dr), delim: d.readerDelim, next: firstOffset}, nil
}

type delimitedWriter struct {
	file    io.Closer
	out     io.WriteCloser
	delim   []byte
	counter *countingWriteCloser
}

func (w *delimitedWriter) Length() int64 { return w.counter.Length() }

func (w *delimitedWriter) WriteRecord(kv model.KeyValue) error {
	if _, err := w.out.Write(kv.Value); err != nil {
		return err
	}
	if len(w.delim) > 0 {
		if _, err := w.out.Write(w.delim); err != nil {
			return err
		}
	}
	return nil
}

func (w *delimitedWriter) Close() error {
	if err := w.out.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

type delimitedReader struct {
	file  io.Closer
	br    *bufio.Reader
	delim byte
	next  int64
}

func (r *delimitedReader) ReadRecord() (model.KeyValue, error) {
	line, err := r.br.ReadBytes(r.delim)
	if err != nil {
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return model.KeyValue{}, io.EOF
			}
			return model.KeyValue{}, ErrTruncatedRecord
		}
		return model.KeyValue{}, err
	}
	value := line[:len(line)-1]
	kv := model.KeyValue{Offset: r.next, Value: value}
	r.next++
	return kv, nil
}

func (r *delimitedReader) Close() error { return r.file.Close() }
