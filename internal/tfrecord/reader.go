package tfrecord

import (
	"bufio"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Reader reads records sequentially from a TFRecord stream.
type Reader struct {
	r       *bufio.Reader
	closers []io.Closer
	header  [12]byte
	count   int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader, c Compression) (*Reader, error) {
	rd := &Reader{}
	switch c {
	case None:
	case Zlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("tfrecord: open zlib stream: %w", err)
		}
		r = zr
		rd.closers = append(rd.closers, zr)
	default:
		return nil, fmt.Errorf("tfrecord: unsupported compression %v", c)
	}
	rd.r = bufio.NewReaderSize(r, 1<<16)
	return rd, nil
}

// Open opens the named file for reading.
func Open(path string, c Compression) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rd, err := NewReader(f, c)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rd.closers = append(rd.closers, f)
	return rd, nil
}

// Next returns the next record payload. It returns io.EOF after the last
// record. The returned slice is owned by the caller.
func (r *Reader) Next() ([]byte, error) {
	if _, err := io.ReadFull(r.r, r.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: record %d: header: %v", ErrCorrupt, r.count, err)
	}

	lenBytes := r.header[:8]
	if maskedCRC(lenBytes) != binary.LittleEndian.Uint32(r.header[8:]) {
		return nil, fmt.Errorf("%w: record %d: length checksum mismatch", ErrCorrupt, r.count)
	}
	length := binary.LittleEndian.Uint64(lenBytes)
	if length > maxRecordSize {
		return nil, fmt.Errorf("%w: record %d: length %d too large", ErrCorrupt, r.count, length)
	}

	buf := make([]byte, length+4)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, fmt.Errorf("%w: record %d: payload: %v", ErrCorrupt, r.count, err)
	}
	data := buf[:length]
	if maskedCRC(data) != binary.LittleEndian.Uint32(buf[length:]) {
		return nil, fmt.Errorf("%w: record %d: data checksum mismatch", ErrCorrupt, r.count)
	}

	r.count++
	return data, nil
}

// Count returns the number of records read so far.
func (r *Reader) Count() int {
	return r.count
}

// Close releases the decompressor and the underlying file, if any.
func (r *Reader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}
