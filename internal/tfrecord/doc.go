// Package tfrecord reads and writes TFRecord container files.
//
// Each record is framed as:
//
//	uint64 length            (little endian)
//	uint32 masked crc32c     (of the 8 length bytes)
//	byte   data[length]
//	uint32 masked crc32c     (of data)
//
// A file may additionally be wrapped in a single ZLIB stream.
package tfrecord
