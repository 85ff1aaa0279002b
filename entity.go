// Package mime models MIME entities: a header block plus a body stored as
// one of several typed representations (text, structured data, raw bytes,
// a byte stream, or child entities for multipart content). It parses and
// serializes Content-Type and Content-Disposition values, splits and
// assembles multipart bodies, and streams large bodies in bounded chunks.
package mime

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
)

// Default content types applied by the body setters.
const (
	TextPlain         = "text/plain"
	ApplicationJSON   = "application/json"
	ApplicationXML    = "application/xml"
	OctetStream       = "application/octet-stream"
	MultipartFormData = "multipart/form-data"
)

// Well-known header names. Lookups are case-insensitive, these spellings
// are what gets written out.
const (
	HeaderContentType             = "Content-Type"
	HeaderContentDisposition      = "Content-Disposition"
	HeaderContentID               = "Content-ID"
	HeaderContentLength           = "Content-Length"
	HeaderContentTransferEncoding = "Content-Transfer-Encoding"
)

// bodyKind tags which body variant an Entity currently holds
type bodyKind int

const (
	bodyNone bodyKind = iota
	bodyText
	bodyData // json or xml, kept in serialized form
	bodyBytes
	bodyStream
	bodyParts
)

// Entity is a MIME entity. The zero value is an empty entity with no
// headers and no body. An Entity holds exactly one body variant at a time;
// every setter discards the previous one. Getters that do not match the
// stored variant convert when they can and return a *ParserError when they
// cannot. Not safe for concurrent mutation.
type Entity struct {
	header *Header

	kind  bodyKind
	text  string
	buf   []byte
	src   io.Reader
	parts []*Entity

	// parsed header caches, dropped whenever the backing header changes
	mediaType   *MediaType
	disposition *ContentDisposition
}

func NewEntity() *Entity {
	return &Entity{header: NewHeader()}
}

// Header returns the entity's header store.
func (e *Entity) Header() *Header {
	if e.header == nil {
		e.header = NewHeader()
	}
	return e.header
}

// checkContentType resolves the effective content type for a setter: the
// explicit one when given, which must parse, otherwise the default. The
// parsed form is returned when parsing happened.
func checkContentType(def string, explicit []string) (string, *MediaType, error) {
	if len(explicit) > 0 && explicit[0] != "" {
		mt, err := ParseMediaType(explicit[0])
		if err != nil {
			return "", nil, err
		}
		return explicit[0], mt, nil
	}
	return def, nil, nil
}

// setBody installs a new body: the previous variant is discarded and the
// content type header is overwritten. Callers set the variant fields after.
func (e *Entity) setBody(contentType string, mt *MediaType) {
	e.kind = bodyNone
	e.text = ""
	e.buf = nil
	e.src = nil
	e.parts = nil
	e.Header().Set(HeaderContentType, contentType)
	e.mediaType = mt
}

// SetText stores a text body. The content type defaults to text/plain; an
// explicit one must parse or the entity is left unchanged.
func (e *Entity) SetText(text string, contentType ...string) error {
	ct, mt, err := checkContentType(TextPlain, contentType)
	if err != nil {
		return err
	}
	e.setBody(ct, mt)
	e.kind = bodyText
	e.text = text
	return nil
}

// SetJSON serializes v and stores it as the body, defaulting the content
// type to application/json.
func (e *Entity) SetJSON(v interface{}, contentType ...string) error {
	ct, mt, err := checkContentType(ApplicationJSON, contentType)
	if err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return parseError("json", err)
	}
	e.setBody(ct, mt)
	e.kind = bodyData
	e.buf = b
	return nil
}

// SetXML serializes v and stores it as the body, defaulting the content
// type to application/xml.
func (e *Entity) SetXML(v interface{}, contentType ...string) error {
	ct, mt, err := checkContentType(ApplicationXML, contentType)
	if err != nil {
		return err
	}
	b, err := xml.Marshal(v)
	if err != nil {
		return parseError("xml", err)
	}
	e.setBody(ct, mt)
	e.kind = bodyData
	e.buf = b
	return nil
}

// SetBytes stores a raw byte body, defaulting the content type to
// application/octet-stream. The slice is not copied.
func (e *Entity) SetBytes(b []byte, contentType ...string) error {
	ct, mt, err := checkContentType(OctetStream, contentType)
	if err != nil {
		return err
	}
	e.setBody(ct, mt)
	e.kind = bodyBytes
	e.buf = b
	return nil
}

// SetStream stores a not-yet-materialized body read from r, defaulting the
// content type to application/octet-stream. The stream is consumed the
// first time the body is read and cannot be rewound.
func (e *Entity) SetStream(r io.Reader, contentType ...string) error {
	ct, mt, err := checkContentType(OctetStream, contentType)
	if err != nil {
		return err
	}
	if r == nil {
		r = bytes.NewReader(nil)
	}
	e.setBody(ct, mt)
	e.kind = bodyStream
	e.src = r
	return nil
}

// SetParts stores child entities as a multipart body. The content type
// defaults to multipart/form-data; either way a boundary parameter is
// generated and added unless the content type already carries one.
func (e *Entity) SetParts(parts []*Entity, contentType ...string) error {
	ct, mt, err := checkContentType(MultipartFormData, contentType)
	if err != nil {
		return err
	}
	if mt == nil {
		if mt, err = ParseMediaType(ct); err != nil {
			return err
		}
	}
	if mt.Boundary() == "" {
		mt.setParam("boundary", pickBoundary(parts))
	}
	e.setBody(mt.String(), mt)
	e.kind = bodyParts
	e.parts = parts
	return nil
}

// Text returns the body as a string. Byte and stream bodies are decoded to
// UTF-8 using the charset declared in the content type; a multipart body
// cannot be read as text.
func (e *Entity) Text() (string, error) {
	switch e.kind {
	case bodyNone:
		return "", nil
	case bodyText:
		return e.text, nil
	case bodyData, bodyBytes, bodyStream:
		b, err := e.Bytes()
		if err != nil {
			return "", err
		}
		out, err := DecodeCharset(b, e.charset())
		if err != nil {
			return "", parseError("text", err)
		}
		return string(out), nil
	}
	return "", parseErrorf("text", "body is multipart, read the parts instead")
}

// JSON parses the body into out.
func (e *Entity) JSON(out interface{}) error {
	if e.kind == bodyParts {
		return parseErrorf("json", "body is multipart")
	}
	b, err := e.Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return parseError("json", err)
	}
	return nil
}

// XML parses the body into out. Non UTF-8 documents are converted through
// CharsetReader when one is installed.
func (e *Entity) XML(out interface{}) error {
	if e.kind == bodyParts {
		return parseErrorf("xml", "body is multipart")
	}
	b, err := e.Bytes()
	if err != nil {
		return err
	}
	dec := xml.NewDecoder(bytes.NewReader(b))
	dec.CharsetReader = CharsetReader
	if err := dec.Decode(out); err != nil {
		return parseError("xml", err)
	}
	return nil
}

// Bytes returns the raw body bytes. A stream body is materialized on the
// first call and kept, so further reads see the same bytes. The returned
// slice is not a copy.
func (e *Entity) Bytes() ([]byte, error) {
	switch e.kind {
	case bodyNone:
		return nil, nil
	case bodyText:
		return []byte(e.text), nil
	case bodyData, bodyBytes:
		return e.buf, nil
	case bodyStream:
		b, err := io.ReadAll(e.src)
		if err != nil {
			return nil, parseError("bytes", err)
		}
		e.kind = bodyBytes
		e.buf = b
		e.src = nil
		return b, nil
	}
	return nil, parseErrorf("bytes", "body is multipart, serialize it with WriteTo")
}

// Parts returns the child entities of a multipart body. A byte or stream
// body whose content type carries a boundary is split on first access and
// the resulting parts are kept.
func (e *Entity) Parts() ([]*Entity, error) {
	switch e.kind {
	case bodyParts:
		return e.parts, nil
	case bodyData, bodyBytes, bodyStream:
		mt, err := e.MediaType()
		if err != nil {
			return nil, parseError("parts", err)
		}
		boundary := mt.Boundary()
		if boundary == "" {
			return nil, parseErrorf("parts", "content type %q has no boundary", mt.String())
		}
		b, err := e.Bytes()
		if err != nil {
			return nil, err
		}
		parts, err := SplitMultipart(b, boundary)
		if err != nil {
			return nil, err
		}
		e.kind = bodyParts
		e.parts = parts
		e.buf = nil
		return parts, nil
	}
	return nil, parseErrorf("parts", "body has no parts")
}

// IsMultipart reports whether the body holds child entities.
func (e *Entity) IsMultipart() bool {
	return e.kind == bodyParts
}

func (e *Entity) charset() string {
	mt, err := e.MediaType()
	if err != nil {
		return ""
	}
	return mt.Charset()
}

// Reader returns the body as a lazy chunked stream, reading at most
// chunkSize bytes per chunk (DefaultChunkSize when omitted). Multipart
// bodies stream through PartsReader instead.
func (e *Entity) Reader(chunkSize ...int) (*ChunkedReader, error) {
	size := chunkSizeOrDefault(chunkSize)
	switch e.kind {
	case bodyNone:
		return NewChunkedReader(bytes.NewReader(nil), size), nil
	case bodyText:
		return NewChunkedReader(strings.NewReader(e.text), size), nil
	case bodyData, bodyBytes:
		return NewChunkedReader(bytes.NewReader(e.buf), size), nil
	case bodyStream:
		return NewChunkedReader(e.src, size), nil
	}
	return nil, parseErrorf("stream", "body is multipart, use PartsReader")
}

// PartsReader returns the assembled multipart body as a lazy chunked
// stream. Boundary lines, part headers and part bodies are produced
// incrementally, the full serialized form is never held in memory.
func (e *Entity) PartsReader(chunkSize ...int) (*ChunkedReader, error) {
	size := chunkSizeOrDefault(chunkSize)
	parts, err := e.Parts()
	if err != nil {
		return nil, err
	}
	boundary, err := e.ensureBoundary()
	if err != nil {
		return nil, err
	}
	return NewChunkedReader(newMultipartReader(parts, boundary), size), nil
}

// ensureBoundary returns the boundary of a multipart body, generating one
// and updating the content type header when it is missing.
func (e *Entity) ensureBoundary() (string, error) {
	mt, err := e.MediaType()
	if err != nil {
		// no usable content type, fall back to the default
		if mt, err = ParseMediaType(MultipartFormData); err != nil {
			return "", err
		}
	}
	if b := mt.Boundary(); b != "" {
		return b, nil
	}
	b := pickBoundary(e.parts)
	mt.setParam("boundary", b)
	e.Header().Set(HeaderContentType, mt.String())
	e.mediaType = mt
	return b, nil
}

// bodyReader returns a reader over the serialized body, used when
// assembling multipart output and by WriteTo.
func (e *Entity) bodyReader() (io.Reader, error) {
	switch e.kind {
	case bodyNone:
		return bytes.NewReader(nil), nil
	case bodyText:
		return strings.NewReader(e.text), nil
	case bodyData, bodyBytes:
		return bytes.NewReader(e.buf), nil
	case bodyStream:
		return e.src, nil
	case bodyParts:
		boundary, err := e.ensureBoundary()
		if err != nil {
			return nil, err
		}
		return newMultipartReader(e.parts, boundary), nil
	}
	return nil, parseErrorf("stream", "unknown body kind")
}

// ContentType returns the raw content type header value, "" when absent.
func (e *Entity) ContentType() string {
	v, _ := e.Header().Get(HeaderContentType)
	return v
}

// SetContentType stores contentType after validating it against the media
// type grammar. On failure the previous header value is retained.
func (e *Entity) SetContentType(contentType string) error {
	mt, err := ParseMediaType(contentType)
	if err != nil {
		return err
	}
	e.Header().Set(HeaderContentType, contentType)
	e.mediaType = mt
	return nil
}

// MediaType returns the parsed content type. The result is cached until
// the header changes. ErrHeaderNotFound is returned when no content type
// header is present.
func (e *Entity) MediaType() (*MediaType, error) {
	if e.mediaType != nil {
		return e.mediaType, nil
	}
	v, ok := e.Header().Get(HeaderContentType)
	if !ok {
		return nil, ErrHeaderNotFound
	}
	mt, err := ParseMediaType(v)
	if err != nil {
		return nil, err
	}
	e.mediaType = mt
	return mt, nil
}

// ContentID returns the content id header value, "" when absent.
func (e *Entity) ContentID() string {
	v, _ := e.Header().Get(HeaderContentID)
	return v
}

func (e *Entity) SetContentID(id string) {
	e.Header().Set(HeaderContentID, id)
}

// ContentLength returns the content length header as an integer, -1 when
// the header is absent. A header that is present but not a number is an
// error.
func (e *Entity) ContentLength() (int64, error) {
	v, ok := e.Header().Get(HeaderContentLength)
	if !ok {
		return -1, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return -1, parseError("content length", err)
	}
	return n, nil
}

func (e *Entity) SetContentLength(n int64) {
	e.Header().Set(HeaderContentLength, strconv.FormatInt(n, 10))
}

// ContentDisposition returns the parsed content disposition. Parsing never
// fails; an absent or damaged header yields empty fields. The result is
// cached until the header changes.
func (e *Entity) ContentDisposition() *ContentDisposition {
	if e.disposition != nil {
		return e.disposition
	}
	v, _ := e.Header().Get(HeaderContentDisposition)
	e.disposition = ParseContentDisposition(v)
	return e.disposition
}

func (e *Entity) SetContentDisposition(d *ContentDisposition) {
	e.Header().Set(HeaderContentDisposition, d.String())
	e.disposition = d
}

// GetHeader returns the first value of name, or ErrHeaderNotFound.
func (e *Entity) GetHeader(name string) (string, error) {
	v, ok := e.Header().Get(name)
	if !ok {
		return "", ErrHeaderNotFound
	}
	return v, nil
}

// GetHeaders returns all values of name, or ErrHeaderNotFound.
func (e *Entity) GetHeaders(name string) ([]string, error) {
	v := e.Header().GetAll(name)
	if len(v) == 0 {
		return nil, ErrHeaderNotFound
	}
	return v, nil
}

func (e *Entity) SetHeader(name, value string) {
	e.Header().Set(name, value)
	e.invalidate(name)
}

func (e *Entity) AddHeader(name, value string) {
	e.Header().Add(name, value)
	e.invalidate(name)
}

func (e *Entity) RemoveHeader(name string) {
	e.Header().Remove(name)
	e.invalidate(name)
}

func (e *Entity) RemoveAllHeaders() {
	e.Header().RemoveAll()
	e.mediaType = nil
	e.disposition = nil
}

func (e *Entity) HasHeader(name string) bool {
	return e.Header().Has(name)
}

func (e *Entity) HeaderNames() []string {
	return e.Header().Names()
}

// invalidate drops a parsed cache when its backing header is touched
func (e *Entity) invalidate(name string) {
	switch strings.ToLower(name) {
	case "content-type":
		e.mediaType = nil
	case "content-disposition":
		e.disposition = nil
	}
}

// WriteTo serializes the entity: header block, blank line, body. A stream
// body is drained, a multipart body is assembled with its boundary.
func (e *Entity) WriteTo(w io.Writer) (int64, error) {
	var total int64
	if e.kind == bodyParts {
		if _, err := e.ensureBoundary(); err != nil {
			return 0, err
		}
	}
	n, err := e.Header().WriteTo(w)
	total += n
	if err != nil {
		return total, err
	}
	m, err := io.WriteString(w, "\r\n")
	total += int64(m)
	if err != nil {
		return total, err
	}
	r, err := e.bodyReader()
	if err != nil {
		return total, err
	}
	c, err := io.Copy(w, r)
	total += c
	return total, err
}

// ReadEntity parses a serialized entity from r: a header block up to the
// first blank line, then the rest as a raw byte body. A multipart body
// stays unsplit until Parts is called.
func ReadEntity(r io.Reader) (*Entity, error) {
	br := bufio.NewReader(r)
	h, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return nil, parseError("entity", err)
	}
	return &Entity{header: h, kind: bodyBytes, buf: body}, nil
}

func chunkSizeOrDefault(sizes []int) int {
	if len(sizes) > 0 && sizes[0] > 0 {
		return sizes[0]
	}
	return DefaultChunkSize
}
