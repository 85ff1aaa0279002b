package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

const (
	redisEntityIDKey = "mime:entity:id"
	redisEntityKey   = "mime:entity:"
	redisChunkKey    = "mime:chunk:"
	redisChunkRefKey = "mime:chunkref:"
)

// StoreRedis implements the Storage interface. Entities are stored as JSON
// records, chunks under their hash, with an optional expiry on every key.
// The connection is made via RedisDialer, import the redigo sub-package to
// use a real driver.
type StoreRedis struct {
	config Config

	isConnected bool
	conn        RedisConn

	// entities that have been opened but not yet finalized by CloseEntity
	pending map[uint64]*redisEntity
}

type redisEntity struct {
	Name        string `json:"n"`
	ContentType string `json:"t"`
	CreatedAt   int64  `json:"c"`
	Size        int64  `json:"s"`
	Info        []byte `json:"i"`
}

func (r *StoreRedis) redisConnection() (err error) {
	if !r.isConnected {
		r.conn, err = RedisDialer("tcp", r.config.RedisInterface)
		if err != nil {
			return err
		}
		r.isConnected = true
	}
	return nil
}

// OpenEntity implements the Storage interface
func (r *StoreRedis) OpenEntity(name string, contentType string) (uint64, error) {
	if err := r.redisConnection(); err != nil {
		return 0, err
	}
	reply, err := r.conn.Do("INCR", redisEntityIDKey)
	if err != nil {
		return 0, err
	}
	id, ok := replyInt(reply)
	if !ok {
		return 0, errors.New("unexpected reply to INCR")
	}
	r.pending[uint64(id)] = &redisEntity{
		Name:        name,
		ContentType: contentType,
		CreatedAt:   time.Now().Unix(),
	}
	return uint64(id), nil
}

// CloseEntity implements the Storage interface
func (r *StoreRedis) CloseEntity(id uint64, size int64, info *EntityInfo) error {
	entity, ok := r.pending[id]
	if !ok {
		return errors.New("entity not open")
	}
	compressed, err := info.MarshalJSONZlib()
	if err != nil {
		return err
	}
	entity.Size = size
	entity.Info = compressed
	record, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	if err := r.set(redisEntityKey+strconv.FormatUint(id, 10), record); err != nil {
		return err
	}
	delete(r.pending, id)
	return nil
}

// AddChunk implements the Storage interface
func (r *StoreRedis) AddChunk(data []byte, hash []byte) error {
	if len(hash) != hashByteSize {
		return errors.New("invalid hash")
	}
	if err := r.redisConnection(); err != nil {
		return err
	}
	var key HashKey
	key.Pack(hash)
	reply, err := r.conn.Do("INCR", redisChunkRefKey+key.String())
	if err != nil {
		return err
	}
	count, ok := replyInt(reply)
	if !ok {
		return errors.New("unexpected reply to INCR")
	}
	if count > 1 {
		// chunk is already stored, refresh its expiry
		if r.config.RedisExpireSeconds > 0 {
			_, err = r.conn.Do("EXPIRE", redisChunkKey+key.String(), r.config.RedisExpireSeconds)
		}
		return err
	}
	return r.set(redisChunkKey+key.String(), data)
}

// GetEntity implements the Storage interface
func (r *StoreRedis) GetEntity(id uint64) (*StoredEntity, error) {
	if err := r.redisConnection(); err != nil {
		return nil, err
	}
	reply, err := r.conn.Do("GET", redisEntityKey+strconv.FormatUint(id, 10))
	if err != nil {
		return nil, err
	}
	record, ok := replyBytes(reply)
	if !ok {
		return nil, errors.New("entity not found")
	}
	entity := redisEntity{}
	if err := json.Unmarshal(record, &entity); err != nil {
		return nil, err
	}
	info := NewEntityInfo()
	if err := info.UnmarshalJSONZlib(entity.Info); err != nil {
		return nil, err
	}
	return &StoredEntity{
		id:          id,
		createdAt:   time.Unix(entity.CreatedAt, 0),
		size:        entity.Size,
		name:        entity.Name,
		contentType: entity.ContentType,
		info:        *info,
	}, nil
}

// GetChunks implements the Storage interface
func (r *StoreRedis) GetChunks(hash ...HashKey) ([]*Chunk, error) {
	if err := r.redisConnection(); err != nil {
		return nil, err
	}
	result := make([]*Chunk, 0, len(hash))
	for i := range hash {
		reply, err := r.conn.Do("GET", redisChunkKey+hash[i].String())
		if err != nil {
			return nil, err
		}
		data, ok := replyBytes(reply)
		if !ok {
			return nil, errors.New("chunk not found: " + hash[i].String())
		}
		chunk := Chunk{data: bytes.NewReader(data)}
		if reply, err = r.conn.Do("GET", redisChunkRefKey+hash[i].String()); err == nil {
			if count, ok := replyInt(reply); ok {
				chunk.referenceCount = uint(count)
			}
		}
		result = append(result, &chunk)
	}
	return result, nil
}

// Initialize implements the Storage interface
func (r *StoreRedis) Initialize(cfg Config) error {
	r.config = cfg
	if r.config.RedisInterface == "" {
		r.config.RedisInterface = "127.0.0.1:6379"
	}
	r.pending = make(map[uint64]*redisEntity)
	return nil
}

// Shutdown implements the Storage interface
func (r *StoreRedis) Shutdown() error {
	r.pending = nil
	if r.isConnected {
		r.isConnected = false
		return r.conn.Close()
	}
	return nil
}

func (r *StoreRedis) set(key string, value []byte) (err error) {
	if r.config.RedisExpireSeconds > 0 {
		_, err = r.conn.Do("SETEX", key, r.config.RedisExpireSeconds, value)
	} else {
		_, err = r.conn.Do("SET", key, value)
	}
	return err
}

// replyInt interprets a Redis reply as an integer
func replyInt(reply interface{}) (int64, bool) {
	switch v := reply.(type) {
	case int64:
		return v, true
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// replyBytes interprets a Redis reply as a bulk string, a nil reply
// means the key does not exist
func replyBytes(reply interface{}) ([]byte, bool) {
	switch v := reply.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	case nil:
		return nil, false
	}
	return nil, false
}
