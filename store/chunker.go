package store

import (
	"crypto/md5"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	mime "github.com/flashmob/go-mime"
)

// Chunker walks an entity tree and writes its serialized form to storage,
// cut into chunks. A fresh chunk starts at every part edge, so a part can
// be read back without touching its siblings; within a part, chunks are
// cut at the configured size. The serialized bytes are exactly what
// Entity.WriteTo produces.
type Chunker struct {
	chunkingBuffer
	md5     hash.Hash
	db      Storage
	info    *EntityInfo
	cur     int // index into info.Parts of the part being written, -1 for none
	written int64
}

// NewChunker writes through to db, cutting chunks of at most chunkSize
// bytes (ChunkMaxBytes when 0).
func NewChunker(db Storage, chunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = ChunkMaxBytes
	}
	c := new(Chunker)
	c.md5 = md5.New()
	c.db = db
	c.cur = -1
	c.CapTo(chunkSize)
	c.chunkingBuffer.flushTrigger = func() error {
		return c.onFlush()
	}
	return c
}

// Write feeds bytes to the current part, cutting chunks as the buffer
// fills. The byte count survives into CloseEntity.
func (c *Chunker) Write(p []byte) (int, error) {
	n, err := c.chunkingBuffer.Write(p)
	c.written += int64(n)
	return n, err
}

// onFlush hashes the pending chunk, records it on the current part and
// hands it to storage.
func (c *Chunker) onFlush() error {
	if c.cur < 0 || c.cur >= len(c.info.Parts) {
		return errors.New("no current part")
	}
	c.md5.Reset()
	c.md5.Write(c.buf)
	var key HashKey
	key.Pack(c.md5.Sum(nil))
	part := &c.info.Parts[c.cur]
	part.Chunks = append(part.Chunks, key)
	part.Size += uint(len(c.buf))
	return c.db.AddChunk(c.buf, key[:])
}

// startPart cuts the pending chunk and begins a new stored part described
// by e. boundary is the content boundary in effect for the part.
func (c *Chunker) startPart(path string, e *mime.Entity, boundary string) (int, error) {
	if err := c.Flush(); err != nil {
		return 0, err
	}
	part := StoredPart{
		Path:        path,
		Boundary:    c.info.boundary(boundary),
		ContentType: e.ContentType(),
	}
	if mt, err := e.MediaType(); err == nil {
		part.Charset = mt.Charset()
	}
	if v, err := e.GetHeader(mime.HeaderContentTransferEncoding); err == nil {
		part.TransferEncoding = v
	}
	if v, err := e.GetHeader(mime.HeaderContentDisposition); err == nil {
		part.ContentDisposition = v
		if strings.Contains(v, "attach") {
			c.info.HasAttach = true
		}
	}
	index := len(c.info.Parts)
	if part.ContentType != "" {
		if c.info.TextPart == -1 && strings.Contains(part.ContentType, "text/plain") {
			c.info.TextPart = index
		} else if c.info.HTMLPart == -1 && strings.Contains(part.ContentType, "text/html") {
			c.info.HTMLPart = index
		}
	}
	c.info.Parts = append(c.info.Parts, part)
	c.info.Count++
	c.cur = index
	return index, nil
}

// WriteEntity serializes e and stores it under name, returning the id the
// storage assigned. Stream bodies are materialized along the way.
func (c *Chunker) WriteEntity(name string, e *mime.Entity) (uint64, error) {
	if c.db == nil {
		return 0, errors.New("no storage set")
	}
	id, err := c.db.OpenEntity(name, e.ContentType())
	if err != nil {
		return 0, err
	}
	c.info = NewEntityInfo()
	c.written = 0
	c.cur = -1
	c.Reset()
	if err := c.writeEntity(e, "1", ""); err != nil {
		return id, err
	}
	if err := c.Flush(); err != nil {
		return id, err
	}
	if err := c.db.CloseEntity(id, c.written, c.info); err != nil {
		return id, err
	}
	return id, nil
}

func (c *Chunker) writeEntity(e *mime.Entity, path string, parent string) error {
	boundary := parent
	var parts []*mime.Entity
	if splittable(e) {
		var err error
		if parts, err = e.Parts(); err != nil {
			return err
		}
		if boundary, err = multipartBoundary(e); err != nil {
			return err
		}
	}
	idx, err := c.startPart(path, e, boundary)
	if err != nil {
		return err
	}
	if _, err := e.Header().WriteTo(c); err != nil {
		return err
	}
	if _, err := io.WriteString(c, "\r\n"); err != nil {
		return err
	}
	if parts == nil {
		b, err := e.Bytes()
		if err != nil {
			return err
		}
		_, err = c.Write(b)
		return err
	}
	for i := range parts {
		if _, err := io.WriteString(c, "\r\n--"+boundary+"\r\n"); err != nil {
			return err
		}
		if err := c.writeEntity(parts[i], fmt.Sprintf("%s.%d", path, i+1), boundary); err != nil {
			return err
		}
		if err := c.Flush(); err != nil {
			return err
		}
		// the delimiters belong to the enclosing part
		c.cur = idx
	}
	_, err = io.WriteString(c, "\r\n--"+boundary+"--")
	return err
}

// splittable reports whether e is stored as a container part. A raw body
// with a multipart content type gets split on first use.
func splittable(e *mime.Entity) bool {
	if e.IsMultipart() {
		return true
	}
	mt, err := e.MediaType()
	if err != nil {
		return false
	}
	return mt.Primary == "multipart" && mt.Boundary() != ""
}

// multipartBoundary returns the boundary of a multipart entity, adding a
// generated one to its content type header first when it is missing. The
// header has to carry the boundary before it is serialized.
func multipartBoundary(e *mime.Entity) (string, error) {
	mt, err := e.MediaType()
	if err != nil {
		return "", err
	}
	if b := mt.Boundary(); b != "" {
		return b, nil
	}
	b := mime.GenerateBoundary()
	mt.Params = append(mt.Params, mime.Param{Name: "boundary", Value: b})
	if err := e.SetContentType(mt.String()); err != nil {
		return "", err
	}
	return b, nil
}
