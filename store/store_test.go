package store

import (
	"bytes"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	mime "github.com/flashmob/go-mime"
)

func TestChunkingBuffer(t *testing.T) {
	// the data to write is over-aligned
	var buf chunkingBuffer
	buf.CapTo(64)
	in := strings.Repeat("0123456789", 13) // len == 130
	i, _ := buf.Write([]byte(in))
	if i != len(in) {
		t.Error("did not write", len(in), "bytes")
	}

	// the data to write is aligned
	var buf2 chunkingBuffer
	buf2.CapTo(64)
	i, _ = buf2.Write([]byte(in[:128]))
	if i != 128 {
		t.Error("did not write", 128, "bytes")
	}

	// the data to write is under-aligned
	var buf3 chunkingBuffer
	buf3.CapTo(64)
	i, _ = buf3.Write([]byte(in[:126]))
	if i != 126 {
		t.Error("did not write", 126, "bytes")
	}

	// the data to write is smaller than the buffer
	var buf4 chunkingBuffer
	buf4.CapTo(64)
	i, _ = buf4.Write([]byte(in[:10]))
	if i != 10 {
		t.Error("did not write", 10, "bytes")
	}

	// the buffer already contains bytes before Write is called and its cap
	// is smaller than the slice being written, the trigger must fire once
	// per full buffer
	var flushed int
	var buf5 chunkingBuffer
	buf5.CapTo(5)
	buf5.flushTrigger = func() error {
		flushed++
		return nil
	}
	buf5.buf = append(buf5.buf, 'a', 'b', 'c')
	i, _ = buf5.Write([]byte(in[:10]))
	if i != 10 {
		t.Error("did not write", 10, "bytes")
	}
	if flushed != 2 {
		t.Error("expecting 2 flushes, got:", flushed)
	}
}

var msg = `From: Accounts <accounts@example.com>
To: Jo Smith <jo@example.com>
Subject: Your February statement
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer-7cd0430f"

This is a multi-part message in MIME format.
--outer-7cd0430f
Content-Type: multipart/alternative; boundary="inner-22d1fda1"

--inner-22d1fda1
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: 7bit

Your February statement is attached.

Thanks,
Accounts
--inner-22d1fda1
Content-Type: text/html; charset=utf-8
Content-Transfer-Encoding: 7bit

<html><body><p>Your February statement is attached.</p></body></html>
--inner-22d1fda1--

--outer-7cd0430f
Content-Type: application/pdf; name="statement.pdf"
Content-Transfer-Encoding: base64
Content-Disposition: attachment; filename="statement.pdf"

JVBERi0xLjQKJcTl8uXrp/Og0MTGCjEgMCBvYmoKPDwgL1R5cGUgL0NhdGFsb2cgL1BhZ2VzIDIg
MCBSID4+CmVuZG9iagp0cmFpbGVyCjw8IC9Sb290IDEgMCBSID4+CiUlRU9G
--outer-7cd0430f--
`

func TestHashKey(t *testing.T) {
	var h HashKey
	h.Pack([]byte{202, 254, 18, 52, 0, 77, 255, 1, 9, 64, 128, 200, 33, 7, 250, 66})
	if h.String() != "yv4SNABN/wEJQIDIIQf6Qg" {
		t.Error("expecting yv4SNABN/wEJQIDIIQf6Qg got", h.String())
	}
	if h.Hex() != "cafe1234004dff01094080c82107fa42" {
		t.Error("unexpected hex:", h.Hex())
	}
	j, err := json.Marshal(h)
	if err != nil {
		t.Error(err)
	}
	if string(j) != `"yv4SNABN/wEJQIDIIQf6Qg"` {
		t.Error("unexpected json:", string(j))
	}
	var back HashKey
	if err := json.Unmarshal(j, &back); err != nil {
		t.Error(err)
	}
	if back != h {
		t.Error("hash changed after a json round trip")
	}
}

func TestEntityInfoZlib(t *testing.T) {
	info := NewEntityInfo()
	if _, err := info.MarshalJSONZlib(); err == nil {
		t.Error("expecting an error when there are no parts to marshal")
	}
	sum := md5.Sum([]byte("some chunk payload"))
	var h HashKey
	h.Pack(sum[:])
	info.Count = 1
	info.Parts = append(info.Parts, StoredPart{
		Path:        "1",
		Size:        42,
		Chunks:      []HashKey{h},
		ContentType: "text/plain",
		Charset:     "utf-8",
		Boundary:    info.boundary("deadbeef"),
	})
	compressed, err := info.MarshalJSONZlib()
	if err != nil {
		t.Error(err)
	}
	got := NewEntityInfo()
	if err := got.UnmarshalJSONZlib(compressed); err != nil {
		t.Error(err)
	}
	if got.Count != 1 || len(got.Parts) != 1 {
		t.Error("parts did not survive the round trip")
	}
	if got.Parts[0].Path != "1" || got.Parts[0].Size != 42 || got.Parts[0].Chunks[0] != h {
		t.Error("part fields did not survive the round trip")
	}
	if len(got.Boundaries) != 1 || got.Boundaries[0] != "deadbeef" {
		t.Error("boundary list did not survive the round trip")
	}
	if got.TextPart != -1 || got.HTMLPart != -1 {
		t.Error("expecting no text or html part recorded")
	}
}

func TestChunkerStore(t *testing.T) {
	db, err := New(Config{Engine: "memory", CompressLevel: 9})
	if err != nil {
		t.Fatal(err)
	}
	ent, err := mime.ReadEntity(strings.NewReader(msg))
	if err != nil {
		t.Fatal(err)
	}
	c := NewChunker(db, 64)
	id, err := c.WriteEntity("statement.eml", ent)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := db.GetEntity(id)
	if err != nil {
		t.Error("entity not found")
		return
	}
	if stored.ID() != id || stored.Name() != "statement.eml" {
		t.Error("unexpected id or name:", stored.ID(), stored.Name())
	}
	if !strings.Contains(stored.ContentType(), "multipart/mixed") {
		t.Error("unexpected content type:", stored.ContentType())
	}
	if stored.CreatedAt().IsZero() {
		t.Error("created at was not set")
	}

	info := stored.Info()
	paths := []string{"1", "1.1", "1.1.1", "1.1.2", "1.2"}
	if len(info.Parts) != len(paths) {
		t.Fatal("expecting", len(paths), "parts, got:", len(info.Parts))
	}
	for i := range paths {
		if info.Parts[i].Path != paths[i] {
			t.Error("part", i, "has path", info.Parts[i].Path, "expecting", paths[i])
		}
	}
	if info.Count != 5 {
		t.Error("expecting a count of 5, got:", info.Count)
	}
	if info.TextPart != 2 {
		t.Error("expecting the text part at 2, got:", info.TextPart)
	}
	if info.HTMLPart != 3 {
		t.Error("expecting the html part at 3, got:", info.HTMLPart)
	}
	if !info.HasAttach {
		t.Error("the attachment was not flagged")
	}
	if len(info.Boundaries) != 2 {
		t.Fatal("expecting 2 boundaries, got:", len(info.Boundaries))
	}
	if info.Boundaries[0] != "outer-7cd0430f" || info.Boundaries[1] != "inner-22d1fda1" {
		t.Error("unexpected boundaries:", info.Boundaries)
	}
	bounds := []int{0, 1, 1, 1, 0}
	for i := range bounds {
		if info.Parts[i].Boundary != bounds[i] {
			t.Error("part", i, "has boundary index", info.Parts[i].Boundary, "expecting", bounds[i])
		}
	}
	if info.Parts[2].Charset != "utf-8" {
		t.Error("unexpected charset on the text part:", info.Parts[2].Charset)
	}
	if !strings.Contains(info.Parts[4].TransferEncoding, "base64") {
		t.Error("unexpected transfer encoding on the attachment:", info.Parts[4].TransferEncoding)
	}
	if len(info.Parts[0].Chunks) < 2 {
		t.Error("expecting the root part to span multiple chunks")
	}

	m := db.(*StoreMemory)
	total := 0
	for _, chunk := range m.chunks {
		total += len(chunk.data)
	}
	fmt.Println("compressed", total, "saved:", stored.Size()-int64(total))

	// reading the whole entity back must produce its serialized form
	var want bytes.Buffer
	if _, err := ent.WriteTo(&want); err != nil {
		t.Fatal(err)
	}
	if stored.Size() != int64(want.Len()) {
		t.Error("expecting size", want.Len(), "got:", stored.Size())
	}
	r, err := NewReader(db, stored, 0)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	buf := make([]byte, 64)
	if w, err := io.CopyBuffer(&out, r, buf); err != nil {
		t.Error(err)
	} else if w != stored.Size() {
		t.Error("size != number of bytes copied from the reader", w, stored.Size())
	}
	if out.String() != want.String() {
		t.Error("the stored entity reads back different to its serialized form")
	}
	if !strings.Contains(out.String(), "JVBERi0") {
		t.Error("attachment data is missing from the read")
	}
	if !strings.Contains(out.String(), "</body></html>") {
		t.Error("html part is missing from the read")
	}
}

func saveTestMsg(t *testing.T) (Storage, *StoredEntity) {
	db, err := New(Config{Engine: "memory", CompressLevel: 9})
	if err != nil {
		t.Fatal(err)
	}
	ent, err := mime.ReadEntity(strings.NewReader(msg))
	if err != nil {
		t.Fatal(err)
	}
	id, err := NewChunker(db, 64).WriteEntity("statement.eml", ent)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := db.GetEntity(id)
	if err != nil {
		t.Fatal(err)
	}
	return db, stored
}

func TestReaderSeekPart(t *testing.T) {
	db, stored := saveTestMsg(t)
	r, err := NewReader(db, stored, 0)
	if err != nil {
		t.Fatal(err)
	}
	var whole bytes.Buffer
	if _, err := io.Copy(&whole, r); err != nil {
		t.Fatal(err)
	}

	// seek each part, the sizes must match what the chunker recorded and
	// the parts in order must concatenate back to the whole entity
	var out, cat bytes.Buffer
	var sum int64
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
		sum += w
		cat.Write(out.Bytes())
		out.Reset()
	}
	if sum != stored.Size() {
		t.Error("part sizes don't add up to the entity size:", sum, stored.Size())
	}
	if !bytes.Equal(cat.Bytes(), whole.Bytes()) {
		t.Error("concatenated parts differ from the whole entity")
	}

	if err := r.SeekPart(len(stored.Info().Parts) + 1); err == nil {
		t.Error("expecting an error seeking past the last part")
	}
	if err := r.SeekPart(-1); err == nil {
		t.Error("expecting an error seeking to a negative part")
	}

	// a reader opened on a single part stays on that part
	r2, err := NewReader(db, stored, 3)
	if err != nil {
		t.Fatal(err)
	}
	w, err := io.Copy(&out, r2)
	if err != nil {
		t.Error(err)
	}
	if w != int64(stored.Info().Parts[2].Size) {
		t.Error("incorrect size for part 3, expecting", stored.Info().Parts[2].Size, "but read:", w)
	}
	if n, _ := r2.Read(make([]byte, 16)); n != 0 {
		t.Error("expecting no more data after the part was read")
	}
}

func TestChunkDedup(t *testing.T) {
	db, err := New(Config{CompressLevel: 9})
	if err != nil {
		t.Fatal(err)
	}
	m := db.(*StoreMemory)
	ent, err := mime.ReadEntity(strings.NewReader(msg))
	if err != nil {
		t.Fatal(err)
	}
	c := NewChunker(db, 64)
	id1, err := c.WriteEntity("a.eml", ent)
	if err != nil {
		t.Fatal(err)
	}
	count := len(m.chunks)
	id2, err := c.WriteEntity("b.eml", ent)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.chunks) != count {
		t.Error("expecting no new chunks on the second write, got", len(m.chunks)-count, "more")
	}
	for _, chunk := range m.chunks {
		if chunk.referenceCount != 2 {
			t.Error("expecting a reference count of 2, got:", chunk.referenceCount)
			break
		}
	}
	for _, id := range []uint64{id1, id2} {
		stored, err := db.GetEntity(id)
		if err != nil {
			t.Fatal(err)
		}
		r, err := NewReader(db, stored, 0)
		if err != nil {
			t.Fatal(err)
		}
		w, err := io.Copy(io.Discard, r)
		if err != nil {
			t.Error(err)
		}
		if w != stored.Size() {
			t.Error("entity", id, "read back", w, "bytes, expecting", stored.Size())
		}
	}
}

func TestReaderEmptyPart(t *testing.T) {
	db, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	id, err := db.OpenEntity("manual", "text/plain")
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("some chunk payload")
	sum := md5.Sum(payload)
	var h HashKey
	h.Pack(sum[:])
	if err := db.AddChunk(payload, sum[:]); err != nil {
		t.Fatal(err)
	}
	info := NewEntityInfo()
	info.Count = 3
	info.Parts = []StoredPart{
		{Path: "1", Size: uint(len(payload)), Chunks: []HashKey{h}},
		{Path: "1.1"},
		{Path: "1.2", Size: uint(len(payload)), Chunks: []HashKey{h}},
	}
	if err := db.CloseEntity(id, int64(2*len(payload)), info); err != nil {
		t.Fatal(err)
	}
	stored, err := db.GetEntity(id)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewReader(db, stored, 0)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	w, err := io.Copy(&out, r)
	if err != nil {
		t.Error(err)
	}
	if w != int64(2*len(payload)) {
		t.Error("expecting", 2*len(payload), "bytes, got:", w)
	}
	if out.String() != string(payload)+string(payload) {
		t.Error("unexpected data around the empty part:", out.String())
	}
	// seeking to the empty part reads nothing
	if err := r.SeekPart(2); err != nil {
		t.Error(err)
	}
	if w, _ := io.Copy(io.Discard, r); w != 0 {
		t.Error("expecting the empty part to read 0 bytes, got:", w)
	}
}

func TestChunkerGeneratesBoundary(t *testing.T) {
	text := mime.NewEntity()
	if err := text.SetText("hello from the plain half"); err != nil {
		t.Fatal(err)
	}
	html := mime.NewEntity()
	if err := html.SetBytes([]byte("<p>hello from the html half</p>"), "text/html"); err != nil {
		t.Fatal(err)
	}
	root := mime.NewEntity()
	if err := root.SetParts([]*mime.Entity{text, html}); err != nil {
		t.Fatal(err)
	}
	// drop the boundary SetParts put in, the chunker has to make one
	if err := root.SetContentType("multipart/mixed"); err != nil {
		t.Fatal(err)
	}

	db, err := New(Config{CompressLevel: 9})
	if err != nil {
		t.Fatal(err)
	}
	id, err := NewChunker(db, 256).WriteEntity("built.eml", root)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := db.GetEntity(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Info().Boundaries) != 1 {
		t.Fatal("expecting 1 boundary, got:", len(stored.Info().Boundaries))
	}
	b := stored.Info().Boundaries[0]
	if b == "" {
		t.Fatal("no boundary was generated")
	}
	r, err := NewReader(db, stored, 0)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "--"+b+"--") {
		t.Error("terminal delimiter missing from the serialized entity")
	}
	// and it must parse back into the same shape
	back, err := mime.ReadEntity(&out)
	if err != nil {
		t.Fatal(err)
	}
	parts, err := back.Parts()
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 2 {
		t.Error("expecting 2 parts, got:", len(parts))
	}
}

func TestNewUnknownEngine(t *testing.T) {
	if _, err := New(Config{Engine: "filing-cabinet"}); err == nil {
		t.Error("expecting an error for an unknown engine")
	}
	if _, err := New(Config{Engine: "sql"}); err == nil {
		t.Error("expecting an error when sql is selected without a dsn")
	}
}

func TestMemoryMissingChunk(t *testing.T) {
	db, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	var h HashKey
	h.Pack([]byte("0123456789abcdef"))
	if _, err := db.GetChunks(h); err == nil {
		t.Error("expecting an error for a chunk that was never stored")
	}
	if _, err := db.GetEntity(99); err == nil {
		t.Error("expecting an error for an entity that was never stored")
	}
}
