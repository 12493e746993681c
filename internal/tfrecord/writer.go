package tfrecord

import (
	"bufio"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Writer appends records to a TFRecord stream.
// Close must be called to flush buffered and compressed data.
type Writer struct {
	buf    *bufio.Writer
	zw     *zlib.Writer
	out    io.Writer
	file   io.Closer
	header [12]byte
	footer [4]byte
	count  int
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.Writer, c Compression) (*Writer, error) {
	wr := &Writer{buf: bufio.NewWriterSize(w, 1<<16)}
	switch c {
	case None:
		wr.out = wr.buf
	case Zlib:
		wr.zw = zlib.NewWriter(wr.buf)
		wr.out = wr.zw
	default:
		return nil, fmt.Errorf("tfrecord: unsupported compression %v", c)
	}
	return wr, nil
}

// Create creates (or truncates) the named file for writing.
func Create(path string, c Compression) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	wr, err := NewWriter(f, c)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	wr.file = f
	return wr, nil
}

// Write appends one record.
func (w *Writer) Write(data []byte) error {
	binary.LittleEndian.PutUint64(w.header[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(w.header[8:], maskedCRC(w.header[:8]))
	binary.LittleEndian.PutUint32(w.footer[:], maskedCRC(data))

	if _, err := w.out.Write(w.header[:]); err != nil {
		return err
	}
	if _, err := w.out.Write(data); err != nil {
		return err
	}
	if _, err := w.out.Write(w.footer[:]); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes all data and closes the file opened by Create.
func (w *Writer) Close() error {
	var err error
	if w.zw != nil {
		err = w.zw.Close()
		w.zw = nil
	}
	if ferr := w.buf.Flush(); err == nil {
		err = ferr
	}
	if w.file != nil {
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
		w.file = nil
	}
	return err
}
