package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lxgc/enginecore/internal/errs"
)

func openTempFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "cache.bin"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestAddRetrieveRoundTrip(t *testing.T) {
	f := openTempFile(t)
	c, err := NewCache[TexturePathKey](f, TexturePathKeyCodec{}, 4096, 1<<20)
	require.NoError(t, err)

	k := NewTexturePathKey("textures/rock_albedo.dds")
	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	require.NoError(t, c.AddEntry(k, payload, false))
	require.True(t, c.DoesEntryExist(k))

	got, err := c.RetrieveEntry(k)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	size, err := c.GetEntrySize(k)
	require.NoError(t, err)
	require.EqualValues(t, len(payload), size)

	require.NoError(t, c.Close())
}

func TestAddEntryDuplicateKeyRejected(t *testing.T) {
	f := openTempFile(t)
	c, err := NewCache[TexturePathKey](f, TexturePathKeyCodec{}, 4096, 1<<20)
	require.NoError(t, err)

	k := NewTexturePathKey("shaders/pbr.dxil")
	require.NoError(t, c.AddEntry(k, []byte("v1"), false))
	err = c.AddEntry(k, []byte("v2"), false)
	require.ErrorIs(t, err, errs.ErrDuplicateKey)
}

func TestCompressedOverwriteRoundTrip(t *testing.T) {
	f := openTempFile(t)
	c, err := NewCache[TexturePathKey](f, TexturePathKeyCodec{}, 4096, 1<<20,
		WithCompressionLevel(6), WithAllowOverwrites(true))
	require.NoError(t, err)

	k := NewTexturePathKey("textures/sky.dds")
	v1 := make([]byte, 20000)
	for i := range v1 {
		v1[i] = byte(i % 251)
	}
	require.NoError(t, c.AddEntry(k, v1, false))

	v2 := make([]byte, 5000)
	for i := range v2 {
		v2[i] = byte(255 - i%251)
	}
	require.NoError(t, c.AddEntry(k, v2, true))

	got, err := c.RetrieveEntry(k)
	require.NoError(t, err)
	require.Equal(t, v2, got)
}

func TestEvictionUnderPressure(t *testing.T) {
	f := openTempFile(t)
	c, err := NewCache[TexturePathKey](f, TexturePathKeyCodec{}, 512, 4096,
		WithAllowOverwrites(true))
	require.NoError(t, err)

	blob := make([]byte, 400)
	var keys []TexturePathKey
	for i := 0; i < 40; i++ {
		k := NewTexturePathKey(filepath.Join("t", string(rune('a'+i%26)), string(rune('0'+i%10))))
		keys = append(keys, k)
		require.NoError(t, c.AddEntry(k, blob, false))
	}

	live := 0
	for _, k := range keys {
		if c.DoesEntryExist(k) {
			live++
		}
	}
	require.Less(t, live, len(keys), "expected eviction to have reclaimed some entries")
	require.True(t, c.DoesEntryExist(keys[len(keys)-1]), "most recently written entry should survive")
}

func TestCustomHeaderRoundTrip(t *testing.T) {
	f := openTempFile(t)
	c, err := NewCache[TexturePathKey](f, TexturePathKeyCodec{}, 4096, 1<<20)
	require.NoError(t, err)

	var h [32]byte
	copy(h[:], "enginecore-v1")
	c.WriteCustomHeader(h)
	require.NoError(t, c.Finalize())
	require.Equal(t, h, c.CustomHeader())
}

func TestReopenPreservesEntries(t *testing.T) {
	f := openTempFile(t)
	c, err := NewCache[TexturePathKey](f, TexturePathKeyCodec{}, 4096, 1<<20)
	require.NoError(t, err)

	k := NewTexturePathKey("materials/brick.mat")
	require.NoError(t, c.AddEntry(k, []byte("payload-data"), false))
	require.NoError(t, c.Finalize())

	reopened, err := Open[TexturePathKey](f, TexturePathKeyCodec{}, true)
	require.NoError(t, err)
	require.True(t, reopened.DoesEntryExist(k))
	got, err := reopened.RetrieveEntry(k)
	require.NoError(t, err)
	require.Equal(t, []byte("payload-data"), got)
}
