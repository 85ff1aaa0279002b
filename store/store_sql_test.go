package store

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"strings"
	"testing"

	mime "github.com/flashmob/go-mime"

	_ "github.com/go-sql-driver/mysql" // activate the mysql driver
)

// This test requires that you pass the -sql-dsn flag,
// eg: go test -run ^TestSQLStore$ -sql-dsn 'user:pass@tcp(127.0.0.1:3306)/dbname?readTimeout=10s&writeTimeout=10s'
//
// The tables are expected to exist:
//
//	CREATE TABLE mime_entities (
//	    id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
//	    created_at BIGINT NOT NULL,
//	    size BIGINT NOT NULL DEFAULT 0,
//	    name VARCHAR(255) NOT NULL,
//	    content_type VARCHAR(255) NOT NULL,
//	    info BLOB,
//	    PRIMARY KEY (id)
//	);
//	CREATE TABLE mime_chunks (
//	    hash VARBINARY(16) NOT NULL,
//	    modified_at BIGINT NOT NULL,
//	    reference_count INT UNSIGNED NOT NULL DEFAULT 1,
//	    data MEDIUMBLOB,
//	    PRIMARY KEY (hash)
//	);

var (
	entityTableFlag = flag.String("sql-entity-table", "mime_entities", "Table to use for testing the SQL backend")
	chunkTableFlag  = flag.String("sql-chunk-table", "mime_chunks", "Chunk table to use for testing the SQL backend")
	sqlDSNFlag      = flag.String("sql-dsn", "", "DSN to use for testing the SQL backend")
	sqlDriverFlag   = flag.String("sql-driver", "mysql", "Driver to use for testing the SQL backend")
)

func TestSQLStore(t *testing.T) {
	if *sqlDSNFlag == "" {
		t.Skip("requires -sql-dsn to run")
	}
	db, err := New(Config{
		Engine:      "sql",
		SQLDriver:   *sqlDriverFlag,
		SQLDSN:      *sqlDSNFlag,
		EntityTable: *entityTableFlag,
		ChunkTable:  *chunkTableFlag,
	})
	if err != nil {
		t.Error(err)
		return
	}
	storeSql := db.(*StoreSQL)
	defer func() {
		storeSql.zap() // purge everything from the db before exiting the test
		_ = storeSql.Shutdown()
	}()

	ent, err := mime.ReadEntity(strings.NewReader(msg))
	if err != nil {
		t.Fatal(err)
	}
	c := NewChunker(db, 150)
	id, err := c.WriteEntity("statement.eml", ent)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := db.GetEntity(id)
	if err != nil {
		t.Error("entity not found")
		return
	}
	if len(stored.Info().Parts) != 5 {
		t.Fatal("expecting 5 parts, got:", len(stored.Info().Parts))
	}

	// this should read all parts
	var out bytes.Buffer
	r, err := NewReader(db, stored, 0)
	if err != nil {
		t.Fatal(err)
	}
	if w, err := io.Copy(&out, r); err != nil {
		t.Error(err)
	} else if w != stored.Size() {
		t.Error("size != number of bytes copied from the reader", w, stored.Size())
	}
	if !strings.Contains(out.String(), "JVBERi0") {
		t.Error("attachment data is missing from the read")
	}
	out.Reset()

	// test the seek feature
	// we start from 1 because starting from 0 reads all the parts
	for i := 1; i <= len(stored.Info().Parts); i++ {
		fmt.Println("seeking to", i)
		if err := r.SeekPart(i); err != nil {
			t.Error(err)
		}
		w, err := io.Copy(&out, r)
		if err != nil {
			t.Error(err)
		}
		if w != int64(stored.Info().Parts[i-1].Size) {
			t.Error(i, "incorrect size, expecting", stored.Info().Parts[i-1].Size, "but read:", w)
		}
		out.Reset()
	}

	// writing the same entity again must only bump the reference counts
	if _, err := c.WriteEntity("statement-copy.eml", ent); err != nil {
		t.Fatal(err)
	}
	chunks, err := db.GetChunks(stored.Info().Parts[0].Chunks[0])
	if err != nil {
		t.Fatal(err)
	}
	if chunks[0].referenceCount != 2 {
		t.Error("expecting a reference count of 2, got:", chunks[0].referenceCount)
	}
}

// zap purges the test rows so the test can be re-run on the same database
func (s *StoreSQL) zap() {
	if s.db == nil {
		return
	}
	if _, err := s.db.Exec("DELETE FROM " + s.config.EntityTable); err != nil {
		fmt.Println("zap:", err)
	}
	if _, err := s.db.Exec("DELETE FROM " + s.config.ChunkTable); err != nil {
		fmt.Println("zap:", err)
	}
}
