package store

import (
	"bytes"
	"database/sql"
	"errors"
	"time"
)

// StoreSQL implements the Storage interface using database/sql. Tested with
// MySQL, the queries are standard enough for most drivers. Timestamps are
// stored as unix seconds so the driver needs no special time handling.
type StoreSQL struct {
	config     Config
	statements map[string]*sql.Stmt
	db         *sql.DB
}

func (s *StoreSQL) connect() (*sql.DB, error) {
	var err error
	if s.db, err = sql.Open(s.config.SQLDriver, s.config.SQLDSN); err != nil {
		return nil, err
	}
	// do we have permission to access the table?
	rows, err := s.db.Query("SELECT id FROM " + s.config.EntityTable + " LIMIT 1")
	if err != nil {
		return nil, err
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}
	return s.db, err
}

func (s *StoreSQL) prepareSql() error {
	if s.statements == nil {
		s.statements = make(map[string]*sql.Stmt)
	}

	// begin inserting an entity (before saving chunks)
	if stmt, err := s.db.Prepare(`INSERT INTO ` +
		s.config.EntityTable +
		` (created_at, name, content_type)
 VALUES(?, ?, ?)`); err != nil {
		return err
	} else {
		s.statements["insertEntity"] = stmt
	}

	// insert a chunk of the entity's data
	if stmt, err := s.db.Prepare(`INSERT INTO ` +
		s.config.ChunkTable +
		` (data, hash, modified_at, reference_count)
 VALUES(?, ?, ?, 1)`); err != nil {
		return err
	} else {
		s.statements["insertChunk"] = stmt
	}

	// finalize the entity (all chunks saved)
	if stmt, err := s.db.Prepare(`
		UPDATE ` + s.config.EntityTable + `
			SET size = ?, info = ?
		WHERE id = ? `); err != nil {
		return err
	} else {
		s.statements["finalizeEntity"] = stmt
	}

	// Check the existence of a chunk (the reference_count col is incremented if it exists)
	// This means we can avoid re-inserting an existing chunk, only update its reference_count
	// check the "affected rows" count after executing query
	if stmt, err := s.db.Prepare(`
		UPDATE ` + s.config.ChunkTable + `
			SET reference_count=reference_count+1, modified_at = ?
		WHERE hash = ? `); err != nil {
		return err
	} else {
		s.statements["chunkReferenceIncr"] = stmt
	}

	// If the reference_count is 0 then it means the chunk has been deleted
	// Chunks are soft-deleted for now, hard-deleted by another sweeper query as they become stale.
	if stmt, err := s.db.Prepare(`
		UPDATE ` + s.config.ChunkTable + `
			SET reference_count=reference_count-1
		WHERE hash = ? AND reference_count > 0`); err != nil {
		return err
	} else {
		s.statements["chunkReferenceDecr"] = stmt
	}

	// fetch an entity
	if stmt, err := s.db.Prepare(`
		SELECT created_at, size, name, content_type, info
		from ` + s.config.EntityTable + `
		where id=?`); err != nil {
		return err
	} else {
		s.statements["selectEntity"] = stmt
	}

	// fetch a chunk
	if stmt, err := s.db.Prepare(`
		SELECT modified_at, reference_count, data
		from ` + s.config.ChunkTable + `
		where hash=?`); err != nil {
		return err
	} else {
		s.statements["selectChunk"] = stmt
	}

	// TODO sweep chunks whose reference_count dropped to 0

	return nil
}

// OpenEntity implements the Storage interface
func (s *StoreSQL) OpenEntity(name string, contentType string) (uint64, error) {
	r, err := s.statements["insertEntity"].Exec(time.Now().Unix(), name, contentType)
	if err != nil {
		return 0, err
	}
	id, err := r.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), err
}

// AddChunk implements the Storage interface
func (s *StoreSQL) AddChunk(data []byte, hash []byte) error {
	// attempt to increment the reference_count (it means the chunk is already in there)
	r, err := s.statements["chunkReferenceIncr"].Exec(time.Now().Unix(), hash)
	if err != nil {
		return err
	}
	affected, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// chunk isn't in there, let's insert it
		_, err := s.statements["insertChunk"].Exec(data, hash, time.Now().Unix())
		if err != nil {
			return err
		}
	}
	return nil
}

// CloseEntity implements the Storage interface
func (s *StoreSQL) CloseEntity(id uint64, size int64, info *EntityInfo) error {
	compressed, err := info.MarshalJSONZlib()
	if err != nil {
		return err
	}
	_, err = s.statements["finalizeEntity"].Exec(size, compressed, id)
	if err != nil {
		return err
	}
	return nil
}

// GetEntity implements the Storage interface
func (s *StoreSQL) GetEntity(id uint64) (*StoredEntity, error) {
	entity := StoredEntity{id: id}
	var createdAt int64
	var compressed []byte
	row := s.statements["selectEntity"].QueryRow(id)
	err := row.Scan(&createdAt, &entity.size, &entity.name, &entity.contentType, &compressed)
	if err == sql.ErrNoRows {
		return nil, errors.New("entity not found")
	}
	if err != nil {
		return nil, err
	}
	entity.createdAt = time.Unix(createdAt, 0)
	info := NewEntityInfo()
	if err := info.UnmarshalJSONZlib(compressed); err != nil {
		return nil, err
	}
	entity.info = *info
	return &entity, nil
}

// GetChunks implements the Storage interface
func (s *StoreSQL) GetChunks(hash ...HashKey) ([]*Chunk, error) {
	result := make([]*Chunk, 0, len(hash))
	for i := range hash {
		var modifiedAt int64
		chunk := Chunk{}
		var data []byte
		row := s.statements["selectChunk"].QueryRow(hash[i][:])
		err := row.Scan(&modifiedAt, &chunk.referenceCount, &data)
		if err == sql.ErrNoRows {
			return nil, errors.New("chunk not found: " + hash[i].String())
		}
		if err != nil {
			return nil, err
		}
		chunk.modifiedAt = time.Unix(modifiedAt, 0)
		chunk.data = bytes.NewReader(data)
		result = append(result, &chunk)
	}
	return result, nil
}

// Initialize connects to the database and prepares the statements
func (s *StoreSQL) Initialize(cfg Config) error {
	s.config = cfg
	if s.config.SQLDriver == "" || s.config.SQLDSN == "" {
		return errors.New("sql storage requires sql_driver and sql_dsn settings")
	}
	if s.config.EntityTable == "" {
		s.config.EntityTable = "mime_entities"
	}
	if s.config.ChunkTable == "" {
		s.config.ChunkTable = "mime_chunks"
	}
	var err error
	s.db, err = s.connect()
	if err != nil {
		return err
	}
	err = s.prepareSql()
	if err != nil {
		return err
	}
	return nil
}

// Shutdown implements the Storage interface
func (s *StoreSQL) Shutdown() (err error) {
	if s.db == nil {
		return nil
	}
	defer func() {
		closeErr := s.db.Close()
		if err == nil {
			err = closeErr
		}
	}()
	for i := range s.statements {
		if closeErr := s.statements[i].Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
