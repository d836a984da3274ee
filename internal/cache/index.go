package cache

// noIndex is the sentinel meaning "no parent/child", analogous to the
// queue package's null cell index but scoped to the index array.
const noIndex = ^uint64(0)

type rbColor uint8

const (
	red   rbColor = 0
	black rbColor = 1
	// doubleBlack is reserved for delete-rebalancing; this implementation
	// never produces it because deletions are lazy tombstones rather than
	// structural RB deletions, so the colour/black-height invariants are
	// preserved by construction once established by insertion.
	doubleBlack rbColor = 2
)

// inheritance records which child slot an entry occupies in its parent.
// The fourth two-bit value is deliberately left unused and reserved.
type inheritance uint8

const (
	inheritRoot  inheritance = 0
	inheritLeft  inheritance = 1
	inheritRight inheritance = 2
)

type entry[K Key] struct {
	offset      uint64
	key         K
	color       rbColor
	inh         inheritance
	toBeDeleted bool
	parent      uint64
	left        uint64
	right       uint64
}

// index is an array-backed red-black tree with a fixed invariant: slot 0 is
// always the root. Rotations through the root swap the payload
// ({toBeDeleted, offset, key, color}, here folded into a full entry swap
// with reference remapping — see swapEntries) between slot 0 and the
// rotating child instead of relocating the root out of slot 0.
type index[K Key] struct {
	entries []entry[K]

	numLive           uint64
	maxRedundancy     uint64
	currentRedundancy uint64
}

func newIndex[K Key](maxRedundancy uint64) *index[K] {
	return &index[K]{maxRedundancy: maxRedundancy}
}

func (ix *index[K]) empty() bool { return len(ix.entries) == 0 }

func (ix *index[K]) color(i uint64) rbColor {
	if i == noIndex {
		return black
	}
	return ix.entries[i].color
}

// search returns the slot index holding key and whether it is a live
// (non-tombstoned) entry.
func (ix *index[K]) search(key K) (idx uint64, found bool) {
	if ix.empty() {
		return 0, false
	}
	cur := uint64(0)
	for {
		e := &ix.entries[cur]
		switch {
		case key.Less(e.key):
			if e.left == noIndex {
				return 0, false
			}
			cur = e.left
		case e.key.Less(key):
			if e.right == noIndex {
				return 0, false
			}
			cur = e.right
		default:
			return cur, !e.toBeDeleted
		}
	}
}

// Lookup returns the stored byte offset for key, mirroring
// get_cache_entry_data_offset_from_key.
func (ix *index[K]) Lookup(key K) (offset uint64, ok bool) {
	i, found := ix.search(key)
	if !found {
		return 0, false
	}
	return ix.entries[i].offset, true
}

// Insert adds or updates key -> offset, resurrecting a tombstone in place
// if one exists at that key's slot.
func (ix *index[K]) Insert(key K, offset uint64) {
	if ix.empty() {
		ix.entries = append(ix.entries, entry[K]{
			offset: offset, key: key, color: black, inh: inheritRoot,
			parent: noIndex, left: noIndex, right: noIndex,
		})
		ix.numLive++
		return
	}

	cur := uint64(0)
	for {
		e := &ix.entries[cur]
		switch {
		case key.Less(e.key):
			if e.left == noIndex {
				z := ix.append(entry[K]{
					offset: offset, key: key, color: red, inh: inheritLeft,
					parent: cur, left: noIndex, right: noIndex,
				})
				ix.entries[cur].left = z
				ix.fixupInsert(z)
				ix.numLive++
				return
			}
			cur = e.left
		case e.key.Less(key):
			if e.right == noIndex {
				z := ix.append(entry[K]{
					offset: offset, key: key, color: red, inh: inheritRight,
					parent: cur, left: noIndex, right: noIndex,
				})
				ix.entries[cur].right = z
				ix.fixupInsert(z)
				ix.numLive++
				return
			}
			cur = e.right
		default:
			if e.toBeDeleted {
				e.toBeDeleted = false
				ix.numLive++
				ix.currentRedundancy--
			}
			e.offset = offset
			return
		}
	}
}

func (ix *index[K]) append(e entry[K]) uint64 {
	ix.entries = append(ix.entries, e)
	return uint64(len(ix.entries) - 1)
}

// fixupInsert is the CLRS red-black insert fixup translated to index
// operations; rotateLeft/rotateRight return the slot that the pivot's
// content ends up occupying so the walk stays correct across a
// root-rotation payload swap.
func (ix *index[K]) fixupInsert(z uint64) {
	for {
		p := ix.entries[z].parent
		if p == noIndex || ix.entries[p].color != red {
			break
		}
		gp := ix.entries[p].parent
		if gp == noIndex {
			break
		}
		if p == ix.entries[gp].left {
			u := ix.entries[gp].right
			if ix.color(u) == red {
				ix.entries[p].color = black
				ix.entries[u].color = black
				ix.entries[gp].color = red
				z = gp
				continue
			}
			if z == ix.entries[p].right {
				z = p
				z = ix.rotateLeft(z)
			}
			p = ix.entries[z].parent
			gp = ix.entries[p].parent
			ix.entries[p].color = black
			ix.entries[gp].color = red
			ix.rotateRight(gp)
		} else {
			u := ix.entries[gp].left
			if ix.color(u) == red {
				ix.entries[p].color = black
				if u != noIndex {
					ix.entries[u].color = black
				}
				ix.entries[gp].color = red
				z = gp
				continue
			}
			if z == ix.entries[p].left {
				z = p
				z = ix.rotateRight(z)
			}
			p = ix.entries[z].parent
			gp = ix.entries[p].parent
			ix.entries[p].color = black
			ix.entries[gp].color = red
			ix.rotateLeft(gp)
		}
	}
	ix.entries[0].color = black
}

// rotateLeft performs a standard left rotation pivoting on x and returns
// the slot where x's content resides afterward. If x was the root
// (slot 0), swapEntries relocates the new subtree root's content back to
// slot 0 and x's content to the rotation partner's former slot.
func (ix *index[K]) rotateLeft(x uint64) uint64 {
	y := ix.entries[x].right
	t2 := ix.entries[y].left

	ix.entries[x].right = t2
	if t2 != noIndex {
		ix.entries[t2].parent = x
	}

	g := ix.entries[x].parent
	ix.entries[y].parent = g
	if g != noIndex {
		if ix.entries[g].left == x {
			ix.entries[g].left = y
		} else {
			ix.entries[g].right = y
		}
	}

	ix.entries[y].left = x
	ix.entries[x].parent = y

	if x == 0 {
		ix.swapEntries(0, y)
		return y
	}
	return x
}

// rotateRight is the mirror image of rotateLeft.
func (ix *index[K]) rotateRight(x uint64) uint64 {
	y := ix.entries[x].left
	t2 := ix.entries[y].right

	ix.entries[x].left = t2
	if t2 != noIndex {
		ix.entries[t2].parent = x
	}

	g := ix.entries[x].parent
	ix.entries[y].parent = g
	if g != noIndex {
		if ix.entries[g].left == x {
			ix.entries[g].left = y
		} else {
			ix.entries[g].right = y
		}
	}

	ix.entries[y].right = x
	ix.entries[x].parent = y

	if x == 0 {
		ix.swapEntries(0, y)
		return y
	}
	return x
}

// swapEntries exchanges the full content of slots i and j (including
// structural links), remapping any parent/child reference that pointed at
// i or j so the tree shape is preserved while the two slots' logical
// identities trade places. This is how the root-rotation payload swap is
// realised over a plain index-addressed array: whichever node must become
// the root ends up physically in slot 0.
func (ix *index[K]) swapEntries(i, j uint64) {
	if i == j {
		return
	}
	ei := ix.entries[i]
	ej := ix.entries[j]

	remap := func(ref uint64) uint64 {
		switch ref {
		case i:
			return j
		case j:
			return i
		default:
			return ref
		}
	}

	if ei.left != noIndex && ei.left != i && ei.left != j {
		ix.entries[ei.left].parent = j
	}
	if ei.right != noIndex && ei.right != i && ei.right != j {
		ix.entries[ei.right].parent = j
	}
	if ej.left != noIndex && ej.left != i && ej.left != j {
		ix.entries[ej.left].parent = i
	}
	if ej.right != noIndex && ej.right != i && ej.right != j {
		ix.entries[ej.right].parent = i
	}
	if ei.parent != noIndex && ei.parent != i && ei.parent != j {
		p := ei.parent
		if ix.entries[p].left == i {
			ix.entries[p].left = j
		} else if ix.entries[p].right == i {
			ix.entries[p].right = j
		}
	}
	if ej.parent != noIndex && ej.parent != i && ej.parent != j {
		p := ej.parent
		if ix.entries[p].left == j {
			ix.entries[p].left = i
		} else if ix.entries[p].right == j {
			ix.entries[p].right = i
		}
	}

	newEi := ej
	newEi.parent = remap(ej.parent)
	newEi.left = remap(ej.left)
	newEi.right = remap(ej.right)

	newEj := ei
	newEj.parent = remap(ei.parent)
	newEj.left = remap(ei.left)
	newEj.right = remap(ei.right)

	ix.entries[i] = newEi
	ix.entries[j] = newEj
}

// Remove marks key's entry as a tombstone and bumps the redundancy
// counter. It compacts immediately if the removed entry was the root slot,
// or if the redundancy counter has now reached the threshold.
func (ix *index[K]) Remove(key K) bool {
	i, found := ix.search(key)
	if !found {
		return false
	}
	ix.entries[i].toBeDeleted = true
	ix.numLive--
	ix.currentRedundancy++

	if i == 0 || ix.currentRedundancy >= ix.maxRedundancy {
		ix.compact()
	}
	return true
}

// compact rebuilds the tree from its live, in-order entries. This is a
// behavioural simplification of an in-place hole-patching compaction: both
// approaches produce a compacted array holding only live entries with the
// redundancy counter reset to zero; this one gets there by full
// reinsertion, which is simpler to reason about without sacrificing the
// tree's balance (fixupInsert runs for every reinserted key).
func (ix *index[K]) compact() {
	type kv struct {
		key    K
		offset uint64
	}
	var live []kv
	ix.walkInOrder(func(e *entry[K]) {
		if !e.toBeDeleted {
			live = append(live, kv{e.key, e.offset})
		}
	})

	ix.entries = ix.entries[:0]
	ix.numLive = 0
	ix.currentRedundancy = 0
	for _, p := range live {
		ix.Insert(p.key, p.offset)
	}
}

// walkInOrder visits every entry (including tombstones) in ascending key
// order; live-entry iteration skips tombstones, so callers filter
// themselves here, letting compact see tombstones too.
func (ix *index[K]) walkInOrder(visit func(e *entry[K])) {
	if ix.empty() {
		return
	}
	var recurse func(i uint64)
	recurse = func(i uint64) {
		if i == noIndex {
			return
		}
		recurse(ix.entries[i].left)
		visit(&ix.entries[i])
		recurse(ix.entries[i].right)
	}
	recurse(0)
}

// Live calls visit for every non-tombstoned entry in ascending key order.
func (ix *index[K]) Live(visit func(key K, offset uint64)) {
	ix.walkInOrder(func(e *entry[K]) {
		if !e.toBeDeleted {
			visit(e.key, e.offset)
		}
	})
}

// NumLive returns the number of live (non-tombstoned) entries.
func (ix *index[K]) NumLive() uint64 { return ix.numLive }
