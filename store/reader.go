package store

import (
	"errors"
	"fmt"
	"io"
)

// Reader streams a stored entity back out of storage, chunk by chunk.
type Reader struct {
	db  Storage
	ent *StoredEntity
	// part selects a single part. If 0, all the parts are read sequentially
	part int
	i, j int

	cache cachedChunks
}

// NewReader loads the entity and selects which part Read will read,
// starting from 1. If part is 0, Read reads the entire serialized entity.
func NewReader(db Storage, ent *StoredEntity, part int) (*Reader, error) {
	r := new(Reader)
	r.db = db
	if ent == nil {
		return nil, errors.New("nil entity")
	}
	r.ent = ent
	r.cache = cachedChunks{
		db: db,
	}
	if err := r.SeekPart(part); err != nil {
		return nil, err
	}
	return r, nil
}

// SeekPart resets the reader. The part argument chooses which part Read
// will return: 1 selects the first part, and so on. 0 selects the entire
// entity.
func (r *Reader) SeekPart(part int) error {
	if parts := len(r.ent.info.Parts); parts == 0 {
		return errors.New("entity has no stored parts")
	} else if part > parts || part < 0 {
		return errors.New("no such part available")
	}
	r.part = part
	r.i = 0
	if part > 0 {
		r.i = part - 1
	}
	r.j = 0
	r.cache.empty()
	return nil
}

const chunkCachePreload = 2

// cachedChunks pulls chunks from storage a few at a time, keeping the ones
// just ahead of the read position and dropping the ones behind it.
type cachedChunks struct {
	chunks    []*Chunk
	hashIndex map[int]HashKey
	db        Storage
}

// warm allocates the chunk cache for one part and pre-loads the first few
func (c *cachedChunks) warm(hashes ...HashKey) (int, error) {
	if c.hashIndex == nil {
		c.hashIndex = make(map[int]HashKey, len(hashes))
	}
	if len(c.chunks) > 0 {
		// already been filled
		return len(c.chunks), nil
	}
	preload := chunkCachePreload
	if len(hashes) < preload {
		preload = len(hashes)
	}
	chunks, err := c.db.GetChunks(hashes[0:preload]...)
	if err != nil {
		return 0, err
	}
	for i := range hashes {
		c.hashIndex[i] = hashes[i]
		if i < preload {
			c.chunks = append(c.chunks, chunks[i])
		} else {
			// nil is a placeholder, filled in on demand
			c.chunks = append(c.chunks, nil)
		}
	}
	return len(c.chunks), nil
}

// get returns chunk i, fetching it plus the next few when it isn't cached,
// and dropping the chunks that have become stale behind it
func (c *cachedChunks) get(i int) (*Chunk, error) {
	if i >= len(c.chunks) {
		return nil, errors.New("not enough chunks")
	}
	if c.chunks[i] != nil {
		// cache hit
		return c.chunks[i], nil
	}
	key, ok := c.hashIndex[i]
	if !ok {
		return nil, fmt.Errorf("hash for chunk %d not found", i)
	}
	toGet := []HashKey{key}
	for to := i + 1; to < len(c.chunks) && to <= i+chunkCachePreload && c.chunks[to] == nil; to++ {
		if k, ok := c.hashIndex[to]; ok {
			toGet = append(toGet, k)
		} else {
			break
		}
	}
	chunks, err := c.db.GetChunks(toGet...)
	if err != nil {
		return nil, err
	}
	for j := 0; j < len(chunks) && i+j < len(c.chunks); j++ {
		c.chunks[i+j] = chunks[j]
	}
	// walk back, removing any stale ones
	for j := i - 1; j >= 0; j-- {
		if c.chunks[j] == nil {
			break
		}
		c.chunks[j] = nil
	}
	return chunks[0], nil
}

func (c *cachedChunks) empty() {
	c.chunks = c.chunks[:0]
	for key := range c.hashIndex {
		delete(c.hashIndex, key)
	}
}

// Read implements the io.Reader interface
func (r *Reader) Read(p []byte) (n int, err error) {
	for r.i < len(r.ent.info.Parts) {
		length, err := r.cache.warm(r.ent.info.Parts[r.i].Chunks...)
		if err != nil {
			return 0, err
		}
		for r.j < length {
			chunk, err := r.cache.get(r.j)
			if err != nil {
				return 0, err
			}
			n, err = chunk.data.Read(p)
			if err == io.EOF {
				// this chunk is drained
				if closer, ok := chunk.data.(io.ReadCloser); ok {
					if cerr := closer.Close(); cerr != nil {
						return n, cerr
					}
				}
				r.j++
				err = nil
				if r.j == length {
					// last chunk of the part, advance to the next part
					r.j = 0
					r.i++
					r.cache.empty()
					if r.part > 0 {
						// a single part was selected, don't spill into the next
						r.i = len(r.ent.info.Parts)
					}
					if r.i == len(r.ent.info.Parts) {
						err = io.EOF
					}
				}
			}
			// unless there's an error, the next call reads the next chunk
			return n, err
		}
		// a part with no chunks, move past it
		r.j = 0
		r.i++
		r.cache.empty()
		if r.part > 0 {
			r.i = len(r.ent.info.Parts)
			return 0, io.EOF
		}
	}
	return 0, io.EOF
}
