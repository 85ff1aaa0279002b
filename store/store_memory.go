package store

import (
	"bytes"
	"compress/zlib"
	"errors"
	"time"
)

// StoreMemory implements the Storage interface. Chunks are held in memory,
// zlib-compressed when a compression level is configured.
type StoreMemory struct {
	chunks        map[HashKey]*memoryChunk
	entities      []*memoryEntity
	nextID        uint64
	IDOffset      uint64
	CompressLevel int
}

type memoryEntity struct {
	id          uint64
	createdAt   time.Time
	size        int64
	name        string
	contentType string
	info        []byte
}

type memoryChunk struct {
	modifiedAt     time.Time
	referenceCount uint
	data           []byte
}

// OpenEntity implements the Storage interface
func (m *StoreMemory) OpenEntity(name string, contentType string) (uint64, error) {
	entity := memoryEntity{
		id:          m.nextID,
		createdAt:   time.Now(),
		name:        name,
		contentType: contentType,
	}
	m.entities = append(m.entities, &entity)
	m.nextID++
	return entity.id, nil
}

// CloseEntity implements the Storage interface
func (m *StoreMemory) CloseEntity(id uint64, size int64, info *EntityInfo) error {
	entity, err := m.lookup(id)
	if err != nil {
		return err
	}
	entity.size = size
	compressed, err := info.MarshalJSONZlib()
	if err != nil {
		return err
	}
	entity.info = compressed
	return nil
}

// AddChunk implements the Storage interface
func (m *StoreMemory) AddChunk(data []byte, hash []byte) error {
	if len(hash) != hashByteSize {
		return errors.New("invalid hash")
	}
	var key HashKey
	key.Pack(hash)
	if chunk, ok := m.chunks[key]; ok {
		// only update the counters and update time
		chunk.referenceCount++
		chunk.modifiedAt = time.Now()
		return nil
	}
	var compressed bytes.Buffer
	zlibw, err := zlib.NewWriterLevel(&compressed, m.CompressLevel)
	if err != nil {
		return err
	}
	if _, err := zlibw.Write(data); err != nil {
		return err
	}
	if err := zlibw.Close(); err != nil {
		return err
	}
	// add a new chunk
	m.chunks[key] = &memoryChunk{
		modifiedAt:     time.Now(),
		referenceCount: 1,
		data:           compressed.Bytes(),
	}
	return nil
}

// GetEntity implements the Storage interface
func (m *StoreMemory) GetEntity(id uint64) (*StoredEntity, error) {
	entity, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	info := NewEntityInfo()
	if err := info.UnmarshalJSONZlib(entity.info); err != nil {
		return nil, err
	}
	return &StoredEntity{
		id:          entity.id,
		createdAt:   entity.createdAt,
		size:        entity.size,
		name:        entity.name,
		contentType: entity.contentType,
		info:        *info,
	}, nil
}

// GetChunks implements the Storage interface
func (m *StoreMemory) GetChunks(hash ...HashKey) ([]*Chunk, error) {
	result := make([]*Chunk, 0, len(hash))
	for i := range hash {
		c, ok := m.chunks[hash[i]]
		if !ok {
			return nil, errors.New("chunk not found: " + hash[i].String())
		}
		zwr, err := zlib.NewReader(bytes.NewReader(c.data))
		if err != nil {
			return nil, err
		}
		result = append(result, &Chunk{
			modifiedAt:     c.modifiedAt,
			referenceCount: c.referenceCount,
			data:           zwr,
		})
	}
	return result, nil
}

// Initialize implements the Storage interface
func (m *StoreMemory) Initialize(cfg Config) error {
	m.IDOffset = 1
	m.nextID = m.IDOffset
	m.entities = make([]*memoryEntity, 0, 100)
	m.chunks = make(map[HashKey]*memoryChunk, 1000)
	m.CompressLevel = cfg.CompressLevel
	if m.CompressLevel > zlib.BestCompression || m.CompressLevel < 0 {
		m.CompressLevel = zlib.BestCompression
	}
	return nil
}

// Shutdown implements the Storage interface
func (m *StoreMemory) Shutdown() (err error) {
	m.entities = nil
	m.chunks = nil
	return nil
}

func (m *StoreMemory) lookup(id uint64) (*memoryEntity, error) {
	index := id - m.IDOffset
	if id < m.IDOffset || index >= uint64(len(m.entities)) {
		return nil, errors.New("entity not found")
	}
	return m.entities[index], nil
}
