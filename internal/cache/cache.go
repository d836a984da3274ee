// Package cache implements the on-disk streamed cluster cache used to
// persist converted textures and compiled shaders between engine runs.
package cache

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/lxgc/enginecore/internal/errs"
	"github.com/lxgc/enginecore/pkg/logging"
	"github.com/lxgc/enginecore/pkg/metrics"
)

// Option configures a Cache at construction time.
type Option func(*cacheOptions)

type cacheOptions struct {
	compressionLevel int
	allowOverwrites  bool
	maxRedundancy    uint64
	logger           *logging.Logger
	metrics          *metrics.CacheMetrics
}

func defaultOptions() cacheOptions {
	return cacheOptions{
		compressionLevel: 0,
		allowOverwrites:  false,
		maxRedundancy:    64,
	}
}

func WithCompressionLevel(level int) Option {
	return func(o *cacheOptions) { o.compressionLevel = level }
}

func WithAllowOverwrites(allow bool) Option {
	return func(o *cacheOptions) { o.allowOverwrites = allow }
}

func WithMaxIndexRedundancy(n uint64) Option {
	return func(o *cacheOptions) { o.maxRedundancy = n }
}

func WithLogger(l *logging.Logger) Option {
	return func(o *cacheOptions) { o.logger = l }
}

func WithMetrics(m *metrics.CacheMetrics) Option {
	return func(o *cacheOptions) { o.metrics = m }
}

// Cache is a fixed-capacity, cluster-allocated, content-addressed store
// persisted to an arbitrary io.ReadWriteSeeker. Entries are optionally
// zlib-compressed and indexed by an in-memory red-black tree that is
// flushed to the stream on Close.
type Cache[K Key] struct {
	stream io.ReadWriteSeeker
	codec  KeyCodec[K]

	clusterSize      int64
	compressionLevel int
	allowOverwrites  bool

	maxCacheSize  uint64
	cacheBodySize uint64

	idx  *index[K]
	eclt []uint64

	customHeader [32]byte

	readOnly  bool
	finalized bool

	logger  *logging.Logger
	metrics *metrics.CacheMetrics
}

// NewCache creates a fresh cache backed by stream, sized to at least
// capacity bytes once rounded up to whole clusters.
func NewCache[K Key](stream io.ReadWriteSeeker, codec KeyCodec[K], clusterSize int64, capacity uint64, opts ...Option) (*Cache[K], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	stride := uint64(clusterSize + clusterOverhead)
	numClusters := alignTo(capacity, uint64(clusterSize)) / uint64(clusterSize)
	if numClusters == 0 {
		numClusters = 1
	}
	maxCacheSize := numClusters*stride + sequenceOverhead + uint64(entrySerializedSize(codec.Size()))

	c := &Cache[K]{
		stream:           stream,
		codec:            codec,
		clusterSize:      clusterSize,
		compressionLevel: o.compressionLevel,
		allowOverwrites:  o.allowOverwrites,
		maxCacheSize:     maxCacheSize,
		idx:              newIndex[K](o.maxRedundancy),
		logger:           o.logger,
		metrics:          o.metrics,
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	return c, nil
}

// Open reopens a cache previously written by Finalize/Close, validating the
// magic, endianness probe, and a backward-compatible version gate before
// loading the index and evicted-cluster list.
func Open[K Key](stream io.ReadWriteSeeker, codec KeyCodec[K], readOnly bool, opts ...Option) (*Cache[K], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache[K]{
		stream:   stream,
		codec:    codec,
		readOnly: readOnly,
		logger:   o.logger,
		metrics:  o.metrics,
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	if err := c.loadServiceData(o.maxRedundancy); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache[K]) loadServiceData(maxRedundancy uint64) error {
	hdr := make([]byte, headerFixedSize)
	if err := c.readAt(0, hdr); err != nil {
		return fmt.Errorf("%w: header read: %v", errs.ErrCorrupt, err)
	}
	if string(hdr[0:4]) != string(magicBytes[:]) {
		return fmt.Errorf("%w: bad magic", errs.ErrCorrupt)
	}
	loadedMajor := binary.LittleEndian.Uint16(hdr[4:6])
	loadedMinor := binary.LittleEndian.Uint16(hdr[6:8])
	if versionMajor < int(loadedMajor) ||
		(versionMajor == int(loadedMajor) && versionMinor < int(loadedMinor)) {
		return fmt.Errorf("%w: cache written by a newer, incompatible version", errs.ErrCorrupt)
	}
	probe := binary.LittleEndian.Uint32(hdr[8:12])
	if probe != endiannessProbe {
		return fmt.Errorf("%w: endianness mismatch", errs.ErrCorrupt)
	}

	off := 12
	c.maxCacheSize = binary.LittleEndian.Uint64(hdr[off : off+8])
	off += 8
	c.cacheBodySize = binary.LittleEndian.Uint64(hdr[off : off+8])
	off += 8
	indexSize := binary.LittleEndian.Uint64(hdr[off : off+8])
	off += 8
	currentRedundancy := binary.LittleEndian.Uint64(hdr[off : off+8])
	off += 8
	_ = currentRedundancy
	off += 8 // max_redundancy, superseded below by the caller's maxRedundancy
	ecltSize := binary.LittleEndian.Uint64(hdr[off : off+8])
	off += 8
	flags := hdr[off]
	c.compressionLevel = int(flags & 0xF)
	c.allowOverwrites = (flags>>4)&0x1 != 0

	custom := make([]byte, customHeaderSize)
	if err := c.readAt(headerFixedSize, custom); err != nil {
		return fmt.Errorf("%w: custom header read: %v", errs.ErrCorrupt, err)
	}
	copy(c.customHeader[:], custom)

	c.idx = newIndex[K](maxRedundancy)
	entrySize := entrySerializedSize(c.codec.Size())
	if indexSize > 0 {
		numEntries := indexSize / uint64(entrySize)
		buf := make([]byte, indexSize)
		if err := c.readAt(int64(totalHeaderSize)+int64(c.cacheBodySize), buf); err != nil {
			return fmt.Errorf("%w: index read: %v", errs.ErrCorrupt, err)
		}
		entries := make([]entry[K], 0, numEntries)
		for i := uint64(0); i < numEntries; i++ {
			e := deserializeIndexEntry[K](buf[i*uint64(entrySize):(i+1)*uint64(entrySize)], c.codec)
			if !e.toBeDeleted {
				c.idx.numLive++
			} else {
				c.idx.currentRedundancy++
			}
			entries = append(entries, e)
		}
		c.idx.entries = entries
	}

	if ecltSize > 0 {
		numOffsets := ecltSize / 8
		buf := make([]byte, ecltSize)
		if err := c.readAt(int64(totalHeaderSize)+int64(c.cacheBodySize)+int64(indexSize), buf); err != nil {
			return fmt.Errorf("%w: eclt read: %v", errs.ErrCorrupt, err)
		}
		c.eclt = make([]uint64, numOffsets)
		for i := range c.eclt {
			c.eclt[i] = binary.LittleEndian.Uint64(buf[i*8 : (i+1)*8])
		}
	}
	return nil
}

// clusterStride returns the on-disk distance between two consecutively
// allocated clusters in a fresh (non-reused) sequence.
func (c *Cache[K]) clusterStride() uint64 { return uint64(c.clusterSize + clusterOverhead) }

func (c *Cache[K]) writeClusterChain(seq clusterSequence, header [21]byte, payload []byte) error {
	if err := c.writeAt(int64(seq.base)+8, header[:]); err != nil {
		return err
	}
	remaining := payload
	cur := seq.base
	firstUsable := int(c.clusterSize) - sequenceOverhead
	for i := uint64(0); i < seq.length; i++ {
		usable := int(c.clusterSize)
		var offsetInCluster int64
		if i == 0 {
			usable = firstUsable
			offsetInCluster = sequenceOverhead
		}
		n := usable
		if n > len(remaining) {
			n = len(remaining)
		}
		if n > 0 {
			if err := c.writeAt(int64(cur)+offsetInCluster, remaining[:n]); err != nil {
				return err
			}
			remaining = remaining[n:]
		}
		if i < seq.length-1 {
			next, err := c.readUint64At(int64(cur) + int64(c.clusterSize))
			if err != nil {
				return err
			}
			cur = next
		}
	}
	return nil
}

func (c *Cache[K]) readClusterChain(base uint64, length uint64) ([]byte, error) {
	firstUsable := int(c.clusterSize) - sequenceOverhead
	total := firstUsable
	if length > 1 {
		total += int(length-1) * int(c.clusterSize)
	}
	out := make([]byte, 0, total)
	cur := base
	for i := uint64(0); i < length; i++ {
		usable := int(c.clusterSize)
		var offsetInCluster int64
		if i == 0 {
			usable = firstUsable
			offsetInCluster = sequenceOverhead
		}
		buf := make([]byte, usable)
		if err := c.readAt(int64(cur)+offsetInCluster, buf); err != nil {
			return nil, err
		}
		out = append(out, buf...)
		if i < length-1 {
			next, err := c.readUint64At(int64(cur) + int64(c.clusterSize))
			if err != nil {
				return nil, err
			}
			cur = next
		}
	}
	return out, nil
}

// AddEntry stores blob under key, compressing it first if a compression
// level was configured. A pre-existing key is rejected unless
// forceOverwrite or the cache-wide allow-overwrites option is set.
func (c *Cache[K]) AddEntry(key K, blob []byte, forceOverwrite bool) error {
	if c.finalized {
		return errs.ErrCacheClosed
	}
	if c.readOnly {
		return errs.ErrReadOnly
	}

	if existingOffset, exists := c.idx.Lookup(key); exists {
		if !forceOverwrite && !c.allowOverwrites {
			return errs.ErrDuplicateKey
		}
		c.eclt = append(c.eclt, existingOffset)
	}

	payload := blob
	if c.compressionLevel > 0 {
		compressed, err := deflate(blob, c.compressionLevel)
		if err != nil {
			return err
		}
		payload = compressed
	}

	seq, err := c.allocateSpaceInCache(uint64(len(payload)))
	if err != nil {
		return err
	}

	var header [21]byte
	ds := packDateStamp(time.Now())
	copy(header[0:13], ds[:])
	binary.LittleEndian.PutUint64(header[13:21], uint64(len(blob)))

	if err := c.writeClusterChain(seq, header, payload); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIOFailure, err)
	}

	c.idx.Insert(key, seq.base)
	if c.metrics != nil {
		c.metrics.SetUsedBytes(c.UsedSpace())
	}
	return nil
}

// RetrieveEntry reads back the blob stored under key, decompressing it if
// the cache is configured with compression.
func (c *Cache[K]) RetrieveEntry(key K) ([]byte, error) {
	offset, ok := c.idx.Lookup(key)
	if !ok {
		if c.metrics != nil {
			c.metrics.ObserveMiss()
		}
		return nil, errs.ErrNotFound
	}
	length, err := c.readUint64At(int64(offset))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIOFailure, err)
	}
	uncompressedSize, err := c.readUint64At(int64(offset) + 21)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIOFailure, err)
	}
	raw, err := c.readClusterChain(offset, length)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIOFailure, err)
	}

	if c.metrics != nil {
		c.metrics.ObserveHit()
	}
	if c.compressionLevel > 0 {
		return inflate(raw, int(uncompressedSize))
	}
	if uint64(len(raw)) < uncompressedSize {
		return nil, fmt.Errorf("%w: truncated entry", errs.ErrCorrupt)
	}
	return raw[:uncompressedSize], nil
}

// RemoveEntry deletes key from the cache, freeing its cluster sequence for
// reuse. It reports whether the key was present.
func (c *Cache[K]) RemoveEntry(key K) bool {
	offset, ok := c.idx.Lookup(key)
	if !ok {
		return false
	}
	c.idx.Remove(key)
	c.eclt = append(c.eclt, offset)
	return true
}

// DoesEntryExist reports whether key currently has a live entry.
func (c *Cache[K]) DoesEntryExist(key K) bool {
	_, ok := c.idx.Lookup(key)
	return ok
}

// GetEntryTimestamp returns the write time recorded for key's entry.
func (c *Cache[K]) GetEntryTimestamp(key K) (time.Time, error) {
	offset, ok := c.idx.Lookup(key)
	if !ok {
		return time.Time{}, errs.ErrNotFound
	}
	var ds [13]byte
	if err := c.readAt(int64(offset)+8, ds[:]); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", errs.ErrIOFailure, err)
	}
	return unpackDateStamp(ds), nil
}

// GetEntrySize returns the uncompressed size recorded for key's entry.
func (c *Cache[K]) GetEntrySize(key K) (uint64, error) {
	offset, ok := c.idx.Lookup(key)
	if !ok {
		return 0, errs.ErrNotFound
	}
	return c.readUint64At(int64(offset) + 21)
}

// WriteCustomHeader stores an arbitrary 32-byte application header,
// persisted alongside the cache's own bookkeeping fields.
func (c *Cache[K]) WriteCustomHeader(h [32]byte) { c.customHeader = h }

// CustomHeader returns the cache's 32-byte application header.
func (c *Cache[K]) CustomHeader() [32]byte { return c.customHeader }

// FreeSpace returns the number of bytes still available for new entries.
func (c *Cache[K]) FreeSpace() uint64 {
	total := c.TotalSpace()
	used := c.UsedSpace()
	if used >= total {
		return 0
	}
	return total - used
}

// UsedSpace returns the number of bytes currently occupied by live entries.
func (c *Cache[K]) UsedSpace() uint64 {
	reservation := c.cacheBodySize
	var freed uint64
	for _, base := range c.eclt {
		length, err := c.readUint64At(int64(base))
		if err != nil {
			continue
		}
		freed += length * c.clusterStride()
	}
	if freed >= reservation {
		return 0
	}
	return reservation - freed
}

// TotalSpace returns the cache's usable capacity, net of fixed per-cluster
// and per-sequence overhead.
func (c *Cache[K]) TotalSpace() uint64 {
	reservationOverhead := c.maxCacheSize / c.clusterStride() * clusterOverhead
	fixed := reservationOverhead + sequenceOverhead + uint64(entrySerializedSize(c.codec.Size()))
	if fixed >= c.maxCacheSize {
		return 0
	}
	return c.maxCacheSize - fixed
}

// HardSizeLimit returns the absolute on-disk ceiling the cache will grow to,
// including all per-cluster and per-entry overhead.
func (c *Cache[K]) HardSizeLimit() uint64 {
	return c.maxCacheSize + c.maxCacheSize/c.clusterStride()*uint64(entrySerializedSize(c.codec.Size()))
}

// Finalize flushes the header, index, and evicted-cluster list to the
// stream. It is idempotent.
func (c *Cache[K]) Finalize() error {
	if c.finalized {
		return nil
	}

	entrySize := entrySerializedSize(c.codec.Size())
	indexBuf := make([]byte, 0, len(c.idx.entries)*entrySize)
	for _, e := range c.idx.entries {
		indexBuf = append(indexBuf, serializeIndexEntry(e)...)
	}

	ecltBuf := make([]byte, len(c.eclt)*8)
	for i, base := range c.eclt {
		binary.LittleEndian.PutUint64(ecltBuf[i*8:(i+1)*8], base)
	}

	hdr := make([]byte, headerFixedSize)
	copy(hdr[0:4], magicBytes[:])
	binary.LittleEndian.PutUint16(hdr[4:6], versionMajor)
	binary.LittleEndian.PutUint16(hdr[6:8], versionMinor)
	binary.LittleEndian.PutUint32(hdr[8:12], endiannessProbe)
	off := 12
	binary.LittleEndian.PutUint64(hdr[off:off+8], c.maxCacheSize)
	off += 8
	binary.LittleEndian.PutUint64(hdr[off:off+8], c.cacheBodySize)
	off += 8
	binary.LittleEndian.PutUint64(hdr[off:off+8], uint64(len(indexBuf)))
	off += 8
	binary.LittleEndian.PutUint64(hdr[off:off+8], c.idx.currentRedundancy)
	off += 8
	binary.LittleEndian.PutUint64(hdr[off:off+8], c.idx.maxRedundancy)
	off += 8
	binary.LittleEndian.PutUint64(hdr[off:off+8], uint64(len(ecltBuf)))
	off += 8
	hdr[off] = byte(c.compressionLevel&0xF) | boolBit(c.allowOverwrites)<<4

	if err := c.writeAt(0, hdr); err != nil {
		return fmt.Errorf("%w: header write: %v", errs.ErrIOFailure, err)
	}
	if err := c.writeAt(headerFixedSize, c.customHeader[:]); err != nil {
		return fmt.Errorf("%w: custom header write: %v", errs.ErrIOFailure, err)
	}
	indexOffset := int64(totalHeaderSize) + int64(c.cacheBodySize)
	if len(indexBuf) > 0 {
		if err := c.writeAt(indexOffset, indexBuf); err != nil {
			return fmt.Errorf("%w: index write: %v", errs.ErrIOFailure, err)
		}
	}
	if len(ecltBuf) > 0 {
		if err := c.writeAt(indexOffset+int64(len(indexBuf)), ecltBuf); err != nil {
			return fmt.Errorf("%w: eclt write: %v", errs.ErrIOFailure, err)
		}
	}

	if f, ok := c.stream.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("%w: flush: %v", errs.ErrIOFailure, err)
		}
	}
	c.finalized = true
	return nil
}

// Close finalizes the cache, matching the destructor semantics of the
// original streamed cache: writing out service data exactly once.
func (c *Cache[K]) Close() error {
	if c.readOnly {
		c.finalized = true
		return nil
	}
	return c.Finalize()
}

func boolBit(b bool) byte {
	if b {
		return 1
	}
	return 0
}
