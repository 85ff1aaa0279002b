// Package store persists serialized MIME entities as content-addressed,
// reference-counted chunks, so a body shared by many messages is stored
// once. A Chunker cuts the serialized entity at part edges while writing,
// a Reader streams a stored entity (or a single part of it) back out.
// Storage engines: in-memory, SQL and Redis.
package store

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ChunkMaxBytes is the default chunk size. Chunks are cut at part edges or
// at this size, whichever comes first.
const ChunkMaxBytes = 1024 * 16

const hashByteSize = 16

// HashKey is the md5 digest of a chunk, the key it is stored under.
type HashKey [hashByteSize]byte

// Pack takes a slice and copies each byte to HashKey internal representation
func (h *HashKey) Pack(b []byte) {
	if len(b) < hashByteSize {
		return
	}
	copy(h[:], b[0:hashByteSize])
}

// String implements the Stringer interface from fmt.Stringer
func (h HashKey) String() string {
	return base64.RawStdEncoding.EncodeToString(h[0:hashByteSize])
}

// Hex returns the hash, encoded in hexadecimal
func (h HashKey) Hex() string {
	return fmt.Sprintf("%x", h[:])
}

// UnmarshalJSON implements the Unmarshaler interface from encoding/json
func (h *HashKey) UnmarshalJSON(b []byte) error {
	if len(b) < 2 {
		return errors.New("hash key json too short")
	}
	dbuf := make([]byte, base64.RawStdEncoding.DecodedLen(len(b[1:len(b)-1])))
	_, err := base64.RawStdEncoding.Decode(dbuf, b[1:len(b)-1])
	if err != nil {
		return err
	}
	h.Pack(dbuf)
	return nil
}

// MarshalJSON implements the Marshaler interface from encoding/json
// The value is marshaled as raw base64 to save some bytes
// eg. instead of typically using hex, de17038001170380011703ff01170380 would be represented as 3hcDgAEXA4ABFwP/ARcDgA
func (h HashKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// StoredPart describes one entity of the stored tree: where it sits in the
// tree, the chunks holding its serialized bytes, and the header properties
// a consumer needs before deciding to fetch the content.
type StoredPart struct {
	Path               string    `json:"i"`
	Size               uint      `json:"s"`
	Chunks             []HashKey `json:"h"` // sequence of hashes the data is stored at
	ContentType        string    `json:"t"`
	Charset            string    `json:"c"`
	TransferEncoding   string    `json:"e"`
	ContentDisposition string    `json:"d"`
	Boundary           int       `json:"cb"` // index to the Boundaries list in EntityInfo
}

// EntityInfo summarizes a stored entity tree
type EntityInfo struct {
	Count      uint32       `json:"c"`   // number of parts
	TextPart   int          `json:"tp"`  // index of the main text part to display
	HTMLPart   int          `json:"hp"`  // index of the main html part to display (if any)
	HasAttach  bool         `json:"a"`   // is there an attachment?
	Parts      []StoredPart `json:"p"`   // info describing each part
	Boundaries []string     `json:"cbl"` // content boundaries list
}

func NewEntityInfo() *EntityInfo {
	info := new(EntityInfo)
	info.TextPart = -1
	info.HTMLPart = -1
	return info
}

// boundary takes a string and returns its index in the info.Boundaries slice
func (info *EntityInfo) boundary(cb string) int {
	for i := range info.Boundaries {
		if info.Boundaries[i] == cb {
			return i
		}
	}
	info.Boundaries = append(info.Boundaries, cb)
	return len(info.Boundaries) - 1
}

// bytes.buffer pool used when compressing parts info
var bp = sync.Pool{
	New: func() interface{} {
		var b bytes.Buffer
		return &b
	},
}

// MarshalJSONZlib marshals the info and compresses the bytes using zlib
func (info *EntityInfo) MarshalJSONZlib() ([]byte, error) {
	if len(info.Parts) == 0 {
		return nil, errors.New("entity contains no parts")
	}
	buf, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	// borrow a buffer from the pool
	compressed := bp.Get().(*bytes.Buffer)
	// put back in the pool
	defer func() {
		compressed.Reset()
		bp.Put(compressed)
	}()
	zlibw, err := zlib.NewWriterLevel(compressed, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zlibw.Write(buf); err != nil {
		return nil, err
	}
	if err := zlibw.Close(); err != nil {
		return nil, err
	}
	out := make([]byte, compressed.Len())
	copy(out, compressed.Bytes())
	return out, nil
}

// UnmarshalJSONZlib decompresses the bytes using zlib and unmarshals the JSON
func (info *EntityInfo) UnmarshalJSONZlib(b []byte) error {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return err
	}
	all, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(all, info)
}

// StoredEntity is the stored record of one entity tree
type StoredEntity struct {
	id          uint64
	createdAt   time.Time
	size        int64
	name        string
	contentType string
	info        EntityInfo
}

func (e *StoredEntity) ID() uint64 {
	return e.id
}

func (e *StoredEntity) CreatedAt() time.Time {
	return e.createdAt
}

// Size is the total serialized size in bytes
func (e *StoredEntity) Size() int64 {
	return e.size
}

func (e *StoredEntity) Name() string {
	return e.name
}

func (e *StoredEntity) ContentType() string {
	return e.contentType
}

func (e *StoredEntity) Info() *EntityInfo {
	return &e.info
}

// Chunk is one stored piece of payload with its bookkeeping
type Chunk struct {
	modifiedAt     time.Time
	referenceCount uint // referenceCount counts how many entities reference this chunk
	data           io.Reader
}

// Config selects and tunes a storage engine
type Config struct {
	// Engine is one of memory, sql or redis
	Engine string `json:"storage_engine"`
	// ChunkMaxBytes caps the chunk payload size, 16KB when 0
	ChunkMaxBytes int `json:"chunk_max_bytes"`
	// CompressLevel is the zlib level the memory engine compresses chunks
	// with, 0 stores them uncompressed
	CompressLevel int `json:"compress_level"`

	SQLDriver   string `json:"sql_driver"`
	SQLDSN      string `json:"sql_dsn"`
	EntityTable string `json:"sql_entity_table"`
	ChunkTable  string `json:"sql_chunk_table"`

	RedisInterface     string `json:"redis_interface"`
	RedisExpireSeconds int    `json:"redis_expire_seconds"`
}

// Storage defines an interface to the storage layer (the database)
type Storage interface {
	// OpenEntity is used to begin saving an entity. An id is returned and used to call CloseEntity later
	OpenEntity(name string, contentType string) (id uint64, err error)
	// CloseEntity finalizes the entity, recording its total size and the info collected while chunking
	CloseEntity(id uint64, size int64, info *EntityInfo) error
	// AddChunk saves a chunk of bytes under the given hash key, bumping the reference count when it is already there
	AddChunk(data []byte, hash []byte) error
	// GetEntity returns an entity that's been saved
	GetEntity(id uint64) (*StoredEntity, error)
	// GetChunks loads the specified chunks from storage, in the order asked for
	GetChunks(hash ...HashKey) ([]*Chunk, error)
	// Initialize is called when the storage is started
	Initialize(cfg Config) error
	// Shutdown is called when the storage gets shutdown
	Shutdown() (err error)
}

// New opens the storage engine selected by cfg.Engine
func New(cfg Config) (Storage, error) {
	var s Storage
	switch cfg.Engine {
	case "", "memory":
		s = new(StoreMemory)
	case "sql":
		s = new(StoreSQL)
	case "redis":
		s = new(StoreRedis)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
	}
	if err := s.Initialize(cfg); err != nil {
		return nil, err
	}
	return s, nil
}
