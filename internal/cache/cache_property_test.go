package cache

import (
	"fmt"
	"os"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func newPropCacheFile(t *testing.T) (*os.File, func()) {
	t.Helper()
	f, err := os.CreateTemp("", "cache-prop-*.bin")
	if err != nil {
		t.Fatal(err)
	}
	return f, func() {
		f.Close()
		os.Remove(f.Name())
	}
}

// TestCacheEvictionMonotonicity is a gopter property test covering the
// eviction path exercised by removeOldestEntryRecord: for any run of N
// sequential writes into a cache too small to hold them all, used space
// never exceeds the cache's hard size limit and the most recently written
// entry is never the one evicted to make room for it.
func TestCacheEvictionMonotonicity(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 30
	properties := gopter.NewProperties(params)

	properties.Property("used space stays within the hard limit and the newest write always survives", prop.ForAll(
		func(n int) bool {
			f, cleanup := newPropCacheFile(t)
			defer cleanup()

			c, err := NewCache[TexturePathKey](f, TexturePathKeyCodec{}, 512, 4096, WithAllowOverwrites(true))
			if err != nil {
				return false
			}

			blob := make([]byte, 300)
			var lastKey TexturePathKey
			for i := 0; i < n; i++ {
				lastKey = NewTexturePathKey(fmt.Sprintf("prop/evict/%06d", i))
				if err := c.AddEntry(lastKey, blob, false); err != nil {
					return false
				}
				if c.UsedSpace() > c.HardSizeLimit() {
					return false
				}
			}
			return n == 0 || c.DoesEntryExist(lastKey)
		},
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}
