package cache

import (
	"encoding/binary"
	"io"

	"github.com/lxgc/enginecore/internal/errs"
)

type clusterSequence struct {
	base   uint64
	length uint64
}

func (c *Cache[K]) readUint64At(offset int64) (uint64, error) {
	b := make([]byte, 8)
	if err := c.readAt(offset, b); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *Cache[K]) writeUint64At(offset int64, v uint64) error {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return c.writeAt(offset, b)
}

func (c *Cache[K]) readAt(offset int64, b []byte) error {
	if _, err := c.stream.Seek(offset, 0); err != nil {
		return err
	}
	_, err := io.ReadFull(c.stream, b)
	return err
}

func (c *Cache[K]) writeAt(offset int64, b []byte) error {
	if _, err := c.stream.Seek(offset, 0); err != nil {
		return err
	}
	_, err := c.stream.Write(b)
	return err
}

// reserveAvailableClusterSequence hands back one run of linked clusters
// sized to cover sizeHint. It prefers a previously-freed run from the
// evicted-cluster list before carving a fresh one from the unpartitioned
// tail of the body, growing maxCacheSize if the fresh run would overshoot
// the hint.
func (c *Cache[K]) reserveAvailableClusterSequence(sizeHint uint64) (clusterSequence, error) {
	if n := len(c.eclt); n > 0 {
		base := c.eclt[n-1]
		c.eclt = c.eclt[:n-1]
		length, err := c.readUint64At(int64(base))
		if err != nil {
			return clusterSequence{}, err
		}
		return clusterSequence{base: base, length: length}, nil
	}

	stride := uint64(c.clusterSize + clusterOverhead)
	numUnpartitioned := (c.maxCacheSize - c.cacheBodySize) / stride
	if numUnpartitioned == 0 {
		return clusterSequence{}, nil
	}

	newBase := uint64(totalHeaderSize) + c.cacheBodySize
	wantClusters := alignTo(sizeHint, uint64(c.clusterSize)) / uint64(c.clusterSize)
	if wantClusters == 0 {
		wantClusters = 1
	}
	newLen := minU64(numUnpartitioned, wantClusters)
	newRealCapacity := newLen * stride
	if newRealCapacity > sizeHint {
		c.maxCacheSize += stride
	}

	if err := c.writeUint64At(int64(newBase), newLen); err != nil {
		return clusterSequence{}, err
	}
	cur := newBase
	for i := uint64(0); i < newLen-1; i++ {
		next := cur + stride
		if err := c.writeUint64At(int64(cur)+int64(c.clusterSize), next); err != nil {
			return clusterSequence{}, err
		}
		cur = next
	}
	c.cacheBodySize += newRealCapacity

	return clusterSequence{base: newBase, length: newLen}, nil
}

// allocateSpaceInCache reserves one or more cluster sequences, evicting the
// oldest live entry when overwrites are allowed and space runs out, then
// stitches the reservations together via optimizeReservation.
func (c *Cache[K]) allocateSpaceInCache(size uint64) (clusterSequence, error) {
	requested := size + sequenceOverhead
	stride := uint64(c.clusterSize + clusterOverhead)
	maxAllocSize := alignTo(requested, uint64(c.clusterSize)) / uint64(c.clusterSize) * stride
	if maxAllocSize > c.maxCacheSize {
		return clusterSequence{}, errs.ErrOutOfSpace
	}

	var reserved []clusterSequence
	var allocated uint64
	for allocated < requested {
		seq, err := c.reserveAvailableClusterSequence(requested - allocated)
		if err != nil {
			return clusterSequence{}, err
		}
		if seq.length == 0 {
			if !c.allowOverwrites {
				break
			}
			if err := c.removeOldestEntryRecord(); err != nil {
				break
			}
			continue
		}
		allocated += seq.length * uint64(c.clusterSize)
		reserved = append(reserved, seq)
	}
	if allocated < requested {
		for _, seq := range reserved {
			c.eclt = append(c.eclt, seq.base)
		}
		return clusterSequence{}, errs.ErrOutOfSpace
	}
	return c.optimizeReservation(reserved, requested)
}

// getClusterBaseAddress walks clusterIdx next-cluster links from seq's base.
func (c *Cache[K]) getClusterBaseAddress(seq clusterSequence, clusterIdx uint64) (uint64, error) {
	cur := seq.base
	for i := uint64(0); i < clusterIdx; i++ {
		next, err := c.readUint64At(int64(cur) + int64(c.clusterSize))
		if err != nil {
			return 0, err
		}
		cur = next
	}
	return cur, nil
}

// optimizeReservation links consecutively reserved sequences into one
// chain and trims the tail sequence's overshoot (beyond sizeHint) back into
// the evicted-cluster list, returning the resulting single sequence.
func (c *Cache[K]) optimizeReservation(reserved []clusterSequence, sizeHint uint64) (clusterSequence, error) {
	var total uint64
	for i, seq := range reserved {
		var nextBase uint64
		if i+1 < len(reserved) {
			nextBase = reserved[i+1].base
		}
		lastClusterBase, err := c.getClusterBaseAddress(seq, seq.length-1)
		if err != nil {
			return clusterSequence{}, err
		}
		if err := c.writeUint64At(int64(lastClusterBase)+int64(c.clusterSize), nextBase); err != nil {
			return clusterSequence{}, err
		}
		total += seq.length
	}

	totalCapacity := total * uint64(c.clusterSize)
	if totalCapacity > sizeHint {
		redundantLen := (totalCapacity - sizeHint) / uint64(c.clusterSize)
		if redundantLen > 0 && redundantLen < total {
			last := reserved[len(reserved)-1]
			contractedLen := last.length - redundantLen
			cutBase, err := c.getClusterBaseAddress(last, contractedLen)
			if err != nil {
				return clusterSequence{}, err
			}
			if err := c.writeUint64At(int64(cutBase), redundantLen); err != nil {
				return clusterSequence{}, err
			}
			c.eclt = append(c.eclt, cutBase)
			total -= redundantLen
		}
	}

	if err := c.writeUint64At(int64(reserved[0].base), total); err != nil {
		return clusterSequence{}, err
	}
	return clusterSequence{base: reserved[0].base, length: total}, nil
}

// removeOldestEntryRecord evicts the live entry with the smallest recorded
// datestamp, freeing its cluster sequence into the evicted-cluster list.
func (c *Cache[K]) removeOldestEntryRecord() error {
	var (
		found       bool
		oldestKey   K
		oldestTime  = int64(1<<63 - 1)
		oldestBase  uint64
		readErr     error
	)
	c.idx.Live(func(key K, offset uint64) {
		if readErr != nil {
			return
		}
		var ds [13]byte
		if err := c.readAt(int64(offset)+8, ds[:]); err != nil {
			readErr = err
			return
		}
		t := unpackDateStamp(ds).UnixNano()
		if !found || t <= oldestTime {
			found = true
			oldestKey = key
			oldestTime = t
			oldestBase = offset
		}
	})
	if readErr != nil {
		return readErr
	}
	if !found {
		return errs.ErrOutOfSpace
	}
	c.idx.Remove(oldestKey)
	c.eclt = append(c.eclt, oldestBase)
	if c.metrics != nil {
		c.metrics.ObserveEviction()
	}
	return nil
}
