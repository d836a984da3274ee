package cache

import (
	"fmt"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// rbInvariantsHold checks the classic red-black properties on ix: the root
// is black, no red entry has a red child, and every root-to-nil path carries
// the same black-height. Tombstoned entries are still structural tree
// members and are checked like any other.
func rbInvariantsHold[K Key](ix *index[K]) bool {
	if ix.empty() {
		return true
	}
	if ix.entries[0].color != black {
		return false
	}
	_, ok := blackHeight(ix, 0)
	return ok
}

func blackHeight[K Key](ix *index[K], i uint64) (int, bool) {
	if i == noIndex {
		return 1, true
	}
	e := ix.entries[i]
	if e.color == red && (ix.color(e.left) == red || ix.color(e.right) == red) {
		return 0, false
	}
	lh, ok := blackHeight(ix, e.left)
	if !ok {
		return 0, false
	}
	rh, ok := blackHeight(ix, e.right)
	if !ok {
		return 0, false
	}
	if lh != rh {
		return 0, false
	}
	if e.color == black {
		return lh + 1, true
	}
	return lh, true
}

// indexOpKey maps a property-generated int to a distinct TexturePathKey.
// Negative values encode a removal of the key with id (-n-1); non-negative
// values encode an insertion of the key with id n.
func indexOpKey(n int) TexturePathKey {
	if n < 0 {
		n = -n - 1
	}
	return NewTexturePathKey(fmt.Sprintf("prop/index/%06d", n))
}

// TestIndexRedBlackInvariants is a gopter property test: after any sequence
// of inserts and removals, the index's red-black balance invariants hold and
// Live's in-order walk matches the set of keys that were inserted and not
// subsequently removed.
func TestIndexRedBlackInvariants(t *testing.T) {
	params := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(params)

	properties.Property("red-black balance and live-set fidelity survive any insert/remove sequence", prop.ForAll(
		func(ops []int) bool {
			// A small maxRedundancy forces compact() to run repeatedly
			// across the sequence rather than only once at the end.
			ix := newIndex[TexturePathKey](4)
			live := make(map[int]bool)

			for _, op := range ops {
				if op >= 0 {
					ix.Insert(indexOpKey(op), uint64(op))
					live[op] = true
				} else {
					n := -op - 1
					ix.Remove(indexOpKey(op))
					delete(live, n)
				}
				if !rbInvariantsHold(ix) {
					return false
				}
			}

			var got []int
			ix.Live(func(key TexturePathKey, offset uint64) {
				var n int
				fmt.Sscanf(key.String(), "prop/index/%d", &n)
				got = append(got, n)
			})
			if len(got) != len(live) {
				return false
			}
			for _, n := range got {
				if !live[n] {
					return false
				}
			}
			return sort.IntsAreSorted(got)
		},
		gen.SliceOfN(80, gen.IntRange(-40, 39)),
	))

	properties.TestingRun(t)
}
