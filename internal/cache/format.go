package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/lxgc/enginecore/internal/errs"
)

var magicBytes = [4]byte{'L', 'X', 'G', 'C'}

const (
	versionMajor = 1
	versionMinor = 0

	endiannessProbe = 0x01020304

	// headerFixedSize is everything in the header before the custom
	// header block: magic+version+endianness+6 u64 fields+flags.
	headerFixedSize = 4 + 4 + 4 + 8*6 + 1
	customHeaderSize = 32
	// totalHeaderSize is the full on-disk header, including the custom
	// header block.
	totalHeaderSize = headerFixedSize + customHeaderSize

	// clusterOverhead is the trailing 8-byte next-cluster link appended
	// after every cluster's cluster_size payload region (at cluster_base +
	// cluster_size), keeping each cluster's full cluster_size usable for
	// payload bytes.
	clusterOverhead = 8

	// sequenceOverhead is the fixed header written into the first cluster
	// of every sequence: sequence_length[8] | datestamp[13] |
	// uncompressed_size[8].
	sequenceOverhead = 8 + 13 + 8
)

func entrySerializedSize(keySize int) int {
	return 8*4 + keySize + 1 // left, right, parent, offset, key, flags
}

func packFlagByte(color rbColor, inh inheritance, toBeDeleted bool) byte {
	var b byte
	b |= byte(color) & 0x3
	b |= (byte(inh) & 0x3) << 2
	if toBeDeleted {
		b |= 1 << 4
	}
	return b
}

func unpackFlagByte(b byte) (rbColor, inheritance, bool) {
	color := rbColor(b & 0x3)
	inh := inheritance((b >> 2) & 0x3)
	toBeDeleted := (b>>4)&0x1 != 0
	return color, inh, toBeDeleted
}

func serializeIndexEntry[K Key](e entry[K]) []byte {
	kb := e.key.Bytes()
	out := make([]byte, 0, entrySerializedSize(len(kb)))
	var u [8]byte
	binary.LittleEndian.PutUint64(u[:], e.left)
	out = append(out, u[:]...)
	binary.LittleEndian.PutUint64(u[:], e.right)
	out = append(out, u[:]...)
	binary.LittleEndian.PutUint64(u[:], e.parent)
	out = append(out, u[:]...)
	binary.LittleEndian.PutUint64(u[:], e.offset)
	out = append(out, u[:]...)
	out = append(out, kb...)
	out = append(out, packFlagByte(e.color, e.inh, e.toBeDeleted))
	return out
}

func deserializeIndexEntry[K Key](b []byte, codec KeyCodec[K]) entry[K] {
	left := binary.LittleEndian.Uint64(b[0:8])
	right := binary.LittleEndian.Uint64(b[8:16])
	parent := binary.LittleEndian.Uint64(b[16:24])
	offset := binary.LittleEndian.Uint64(b[24:32])
	keySize := codec.Size()
	key := codec.Decode(b[32 : 32+keySize])
	color, inh, toBeDeleted := unpackFlagByte(b[32+keySize])
	return entry[K]{
		offset: offset, key: key, color: color, inh: inh,
		toBeDeleted: toBeDeleted, parent: parent, left: left, right: right,
	}
}

// deflate compresses data at the given zlib level (0 disables compression
// at the call site, never reaching here). Failures are wrapped as
// errs.ErrCompressionFailure.
func deflate(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("%w: zlib init: %v", errs.ErrCompressionFailure, err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%w: zlib write: %v", errs.ErrCompressionFailure, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: zlib close: %v", errs.ErrCompressionFailure, err)
	}
	return buf.Bytes(), nil
}

// inflate decompresses data, expecting exactly uncompressedSize output
// bytes.
func inflate(data []byte, uncompressedSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib init: %v", errs.ErrCompressionFailure, err)
	}
	defer r.Close()
	out := make([]byte, uncompressedSize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w: zlib read: %v", errs.ErrCompressionFailure, err)
	}
	return out, nil
}

func alignTo(v, granularity uint64) uint64 {
	if granularity == 0 {
		return v
	}
	return (v + granularity - 1) / granularity * granularity
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
