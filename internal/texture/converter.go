package texture

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lxgc/enginecore/internal/cache"
	"github.com/lxgc/enginecore/pkg/hashutil"
	"github.com/lxgc/enginecore/pkg/logging"
)

// namespaceUUID seeds the SHA-1 UUID derivation so every artifact's
// identity is a deterministic function of its source URI, independent of
// where (or whether) it lands in the cache.
var namespaceUUID = uuid.MustParse("6f1a9e0c-6b2b-4f77-9e2a-9f4a0b7d1c21")

// Converter converts SourceImages into compressed texture artifacts,
// persisting results in a streamed cache keyed by source path.
type Converter struct {
	cache      *cache.Cache[cache.TexturePathKey]
	compressor Compressor
	hasher     hashutil.Hasher
	logger     *logging.Logger

	mu sync.Mutex
}

// NewConverter builds a Converter over an already-open texture cache.
func NewConverter(c *cache.Cache[cache.TexturePathKey], compressor Compressor, logger *logging.Logger) *Converter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Converter{
		cache:      c,
		compressor: compressor,
		hasher:     hashutil.New(),
		logger:     logger.With("component", "texture"),
	}
}

// ConvertOne converts a single image, skipping the work entirely if the
// cache already holds an up-to-date, content-identical artifact.
func (cv *Converter) ConvertOne(img SourceImage) error {
	key := cache.NewTexturePathKey(img.URI())

	cv.mu.Lock()
	defer cv.mu.Unlock()

	exists := cv.cache.DoesEntryExist(key)
	if exists {
		cachedAt, err := cv.cache.GetEntryTimestamp(key)
		if err == nil && !cachedAt.Before(img.Timestamp()) {
			return nil
		}
	}

	raw, err := img.Bytes()
	if err != nil {
		return fmt.Errorf("texture: reading %s: %w", img.URI(), err)
	}
	sum := cv.hasher.Sum(raw)

	if exists {
		cached, err := cv.cache.RetrieveEntry(key)
		if err == nil && len(cached) >= 32 {
			var cachedSum [32]byte
			copy(cachedSum[:], cached[:32])
			if cachedSum == sum {
				return nil
			}
		}
	}

	payload, err := cv.buildPayload(img, sum)
	if err != nil {
		return fmt.Errorf("texture: converting %s: %w", img.URI(), err)
	}
	if err := cv.cache.AddEntry(key, payload, true); err != nil {
		return fmt.Errorf("texture: caching %s: %w", img.URI(), err)
	}
	cv.logger.Infof("converted %s (%d bytes)", img.URI(), len(payload))
	return nil
}

func (cv *Converter) buildPayload(img SourceImage, sum [32]byte) ([]byte, error) {
	subs, err := img.Subresources()
	if err != nil {
		return nil, err
	}
	format := ChooseFormat(img.Channels(), img.ColorSpace())
	id := uuid.NewSHA1(namespaceUUID, []byte(img.URI()))
	idBytes, _ := id.MarshalBinary()

	payload := make([]byte, 0, 32+8+8+8)
	payload = append(payload, sum[:]...)
	payload = append(payload, idBytes[0:8]...)
	payload = append(payload, idBytes[8:16]...)

	var fmtBuf [8]byte
	binary.LittleEndian.PutUint64(fmtBuf[:], uint64(format))
	payload = append(payload, fmtBuf[:]...)

	for _, sub := range subs {
		compressed, err := cv.compressor.Compress(format, sub)
		if err != nil {
			return nil, err
		}
		var hdr [24]byte
		binary.LittleEndian.PutUint64(hdr[0:8], uint64(len(compressed)))
		binary.LittleEndian.PutUint64(hdr[8:16], uint64(sub.RowPitch))
		binary.LittleEndian.PutUint64(hdr[16:24], uint64(sub.SlicePitch))
		payload = append(payload, hdr[:]...)
		payload = append(payload, compressed...)
	}
	return payload, nil
}

// ConvertTextures partitions images into threadCount contiguous buckets and
// converts each bucket on its own goroutine, returning the first error from
// any bucket (the rest run to completion or stop early via ctx).
func (cv *Converter) ConvertTextures(ctx context.Context, images []SourceImage, threadCount int) error {
	if threadCount <= 0 {
		threadCount = 1
	}
	n := len(images)
	if n == 0 {
		return nil
	}
	bucketSize := (n + threadCount - 1) / threadCount

	eg, egCtx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += bucketSize {
		end := start + bucketSize
		if end > n {
			end = n
		}
		batch := images[start:end]
		eg.Go(func() error {
			for _, img := range batch {
				select {
				case <-egCtx.Done():
					return egCtx.Err()
				default:
				}
				if err := cv.ConvertOne(img); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return eg.Wait()
}
