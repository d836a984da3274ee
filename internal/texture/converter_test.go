package texture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lxgc/enginecore/internal/cache"
)

type fakeImage struct {
	uri        string
	ts         time.Time
	channels   int
	colorSpace ColorSpace
	content    []byte
}

func (f *fakeImage) URI() string            { return f.uri }
func (f *fakeImage) Timestamp() time.Time   { return f.ts }
func (f *fakeImage) Channels() int          { return f.channels }
func (f *fakeImage) ColorSpace() ColorSpace { return f.colorSpace }
func (f *fakeImage) Bytes() ([]byte, error) { return f.content, nil }
func (f *fakeImage) Subresources() ([]Subresource, error) {
	return []Subresource{{RowPitch: 256, SlicePitch: 256 * 256, Raw: f.content}}, nil
}

type passthroughCompressor struct{ calls int }

func (p *passthroughCompressor) Compress(format Format, sub Subresource) ([]byte, error) {
	p.calls++
	out := make([]byte, len(sub.Raw))
	copy(out, sub.Raw)
	return out, nil
}

func newTestCache(t *testing.T) *cache.Cache[cache.TexturePathKey] {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "textures.cache"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	c, err := cache.NewCache[cache.TexturePathKey](f, cache.TexturePathKeyCodec{}, 8192, 4<<20,
		cache.WithAllowOverwrites(true))
	require.NoError(t, err)
	return c
}

func TestConvertOneSkipsUpToDateCacheHit(t *testing.T) {
	c := newTestCache(t)
	comp := &passthroughCompressor{}
	cv := NewConverter(c, comp, nil)

	img := &fakeImage{uri: "t/rock.png", ts: time.Now().Add(-time.Hour), channels: 4, colorSpace: Linear, content: []byte("hello world")}
	require.NoError(t, cv.ConvertOne(img))
	require.Equal(t, 1, comp.calls)

	require.NoError(t, cv.ConvertOne(img))
	require.Equal(t, 1, comp.calls, "second call with an older timestamp should not reconvert")
}

func TestConvertOneReconvertsOnContentChange(t *testing.T) {
	c := newTestCache(t)
	comp := &passthroughCompressor{}
	cv := NewConverter(c, comp, nil)

	img := &fakeImage{uri: "t/rock.png", ts: time.Now().Add(-time.Hour), channels: 4, colorSpace: Linear, content: []byte("v1")}
	require.NoError(t, cv.ConvertOne(img))
	require.Equal(t, 1, comp.calls)

	img.ts = time.Now().Add(time.Hour)
	img.content = []byte("v2, totally different bytes")
	require.NoError(t, cv.ConvertOne(img))
	require.Equal(t, 2, comp.calls)
}

func TestConvertOneSkipsStaleTimestampSameContent(t *testing.T) {
	c := newTestCache(t)
	comp := &passthroughCompressor{}
	cv := NewConverter(c, comp, nil)

	img := &fakeImage{uri: "t/rock.png", ts: time.Now().Add(-time.Hour), channels: 4, colorSpace: Linear, content: []byte("same bytes")}
	require.NoError(t, cv.ConvertOne(img))
	require.Equal(t, 1, comp.calls)

	img.ts = time.Now().Add(time.Hour)
	require.NoError(t, cv.ConvertOne(img))
	require.Equal(t, 1, comp.calls, "unchanged content behind a newer timestamp should still skip")
}

func TestConvertTexturesParallelFanOut(t *testing.T) {
	c := newTestCache(t)
	comp := &passthroughCompressor{}
	cv := NewConverter(c, comp, nil)

	var images []SourceImage
	for i := 0; i < 20; i++ {
		images = append(images, &fakeImage{
			uri:        fmt.Sprintf("t/img_%d.png", i),
			ts:         time.Now().Add(-time.Hour),
			channels:   4,
			colorSpace: Linear,
			content:    []byte(fmt.Sprintf("content-%d", i)),
		})
	}

	require.NoError(t, cv.ConvertTextures(context.Background(), images, 4))
	require.Equal(t, 20, comp.calls)
	for _, img := range images {
		require.True(t, c.DoesEntryExist(cache.NewTexturePathKey(img.URI())))
	}
}

func TestChooseFormat(t *testing.T) {
	require.Equal(t, FormatBC4, ChooseFormat(1, Linear))
	require.Equal(t, FormatBC5, ChooseFormat(2, Linear))
	require.Equal(t, FormatBC7, ChooseFormat(4, Linear))
	require.Equal(t, FormatBC7SRGB, ChooseFormat(4, SRGB))
	require.Equal(t, FormatBC6H, ChooseFormat(3, HDR))
}
