package tfrecord

import (
	"errors"
	"fmt"
	"strings"
)

// Compression selects the stream codec wrapped around the records.
type Compression int

const (
	// None stores records uncompressed.
	None Compression = iota
	// Zlib wraps the whole file in one ZLIB stream.
	Zlib
)

// String returns the TensorFlow name of the compression type.
func (c Compression) String() string {
	switch c {
	case None:
		return "NONE"
	case Zlib:
		return "ZLIB"
	default:
		return fmt.Sprintf("Compression(%d)", int(c))
	}
}

// ParseCompression parses a compression name such as "ZLIB".
// The empty string means None.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToUpper(name) {
	case "", "NONE":
		return None, nil
	case "ZLIB":
		return Zlib, nil
	default:
		return None, fmt.Errorf("tfrecord: unknown compression %q", name)
	}
}

// maxRecordSize bounds a single record. Anything larger is treated as
// a corrupt length field.
const maxRecordSize = 1 << 30

// Errors returned by Reader.
var (
	// ErrCorrupt reports a checksum mismatch or a truncated record.
	ErrCorrupt = errors.New("tfrecord: corrupt record")
)
