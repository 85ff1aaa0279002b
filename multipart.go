package mime

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"
)

// maxNestDepth bounds how deeply multipart bodies may nest. Hostile input
// can otherwise recurse until the stack gives out.
const maxNestDepth = 32

// SplitMultipart splits body at the given boundary into child entities.
// Delimiter lines are "--" boundary, optionally padded with whitespace,
// terminated by "--" boundary "--". Preamble bytes before the first
// delimiter and epilogue bytes after the terminal one are discarded. Each
// part's header block is parsed into its own header store; a part whose
// content type is itself multipart with a different boundary is split
// recursively. A body with no opening delimiter, or one that never reaches
// the terminal delimiter, is a *ParserError.
func SplitMultipart(body []byte, boundary string) ([]*Entity, error) {
	return splitMultipart(body, boundary, 0)
}

func splitMultipart(body []byte, boundary string, depth int) ([]*Entity, error) {
	if boundary == "" {
		return nil, parseErrorf("multipart", "no boundary defined")
	}
	if depth > maxNestDepth {
		return nil, parseErrorf("multipart", "more than %d nested parts", maxNestDepth)
	}
	var (
		delim    = "--" + boundary
		closing  = delim + "--"
		raw      [][]byte
		cur      []byte
		started  bool
		finished bool
	)
	rest := body
	for len(rest) > 0 && !finished {
		var line []byte
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			line, rest = rest[:i+1], rest[i+1:]
		} else {
			line, rest = rest, nil
		}
		switch string(trimBoundaryLine(line)) {
		case closing:
			if !started {
				return nil, parseErrorf("multipart", "boundary %q not found", boundary)
			}
			raw = append(raw, chompLine(cur))
			finished = true
		case delim:
			if started {
				raw = append(raw, chompLine(cur))
			}
			started = true
			cur = nil
		default:
			if started {
				cur = append(cur, line...)
			}
			// otherwise preamble, discard
		}
	}
	if !started {
		return nil, parseErrorf("multipart", "boundary %q not found", boundary)
	}
	if !finished {
		return nil, parseErrorf("multipart", "terminating boundary %q not found", boundary)
	}
	parts := make([]*Entity, 0, len(raw))
	for _, r := range raw {
		part, err := parsePart(r, boundary, depth)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// trimBoundaryLine strips the line terminator and any transport padding so
// the line can be compared against the delimiters.
func trimBoundaryLine(line []byte) []byte {
	return bytes.TrimRight(line, " \t\r\n")
}

// chompLine removes the final line break of a part's raw bytes. That break
// belongs to the delimiter that follows, not to the part.
func chompLine(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
		if n := len(b); n > 0 && b[n-1] == '\r' {
			b = b[:n-1]
		}
	}
	return b
}

// parsePart builds an Entity from one raw part: header block, blank line,
// body. A nested multipart body is split in turn, unless it claims the
// same boundary as its parent, which cannot occur in well-formed input and
// is treated as opaque bytes.
func parsePart(raw []byte, parent string, depth int) (*Entity, error) {
	head, body := splitHeaderBlock(raw)
	h := NewHeader()
	if len(head) > 0 {
		var err error
		if h, err = ReadHeader(bufio.NewReader(bytes.NewReader(head))); err != nil {
			return nil, err
		}
	}
	e := &Entity{header: h, kind: bodyBytes, buf: body}
	if ct, ok := h.Get(HeaderContentType); ok {
		if mt, err := ParseMediaType(ct); err == nil && mt.Primary == "multipart" {
			if b := mt.Boundary(); b != "" && b != parent {
				children, err := splitMultipart(body, b, depth+1)
				if err != nil {
					return nil, err
				}
				e.kind = bodyParts
				e.buf = nil
				e.parts = children
				e.mediaType = mt
			}
		}
	}
	return e, nil
}

// splitHeaderBlock cuts a raw part at its first blank line. A part that
// opens with a blank line has no headers; a part with no blank line at all
// is all headers if its first line looks like one, otherwise all body.
func splitHeaderBlock(raw []byte) (head, body []byte) {
	if bytes.HasPrefix(raw, []byte("\r\n")) {
		return nil, raw[2:]
	}
	if len(raw) > 0 && raw[0] == '\n' {
		return nil, raw[1:]
	}
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return raw[:i+2], raw[i+4:]
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return raw[:i+1], raw[i+2:]
	}
	firstLine := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		firstLine = raw[:i]
	}
	if bytes.IndexByte(firstLine, ':') > 0 {
		return raw, nil
	}
	return nil, raw
}

// WriteMultipart assembles parts into a boundary-delimited body on w: for
// each part a CRLF "--" boundary CRLF delimiter line, the part's headers,
// a blank line and its body, then the terminal CRLF "--" boundary "--".
// Stream bodies are drained as they are reached, nested multipart parts
// are assembled with their own boundary.
func WriteMultipart(w io.Writer, parts []*Entity, boundary string) (int64, error) {
	return io.Copy(w, newMultipartReader(parts, boundary))
}

// GenerateBoundary returns a random boundary token, unguessable enough
// that it will not occur in any body by accident.
func GenerateBoundary() string {
	var b [24]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// pickBoundary generates a boundary and verifies it against the parts'
// materialized content, retrying on the astronomically unlikely collision.
// A boundary that appears inside a part would corrupt the assembled body.
func pickBoundary(parts []*Entity) string {
	for {
		b := GenerateBoundary()
		if !boundaryInParts(parts, b) {
			return b
		}
	}
}

func boundaryInParts(parts []*Entity, boundary string) bool {
	needle := []byte("--" + boundary)
	for _, p := range parts {
		if p == nil {
			continue
		}
		if bytes.Contains([]byte(p.Header().String()), needle) {
			return true
		}
		switch p.kind {
		case bodyText:
			if strings.Contains(p.text, string(needle)) {
				return true
			}
		case bodyData, bodyBytes:
			if bytes.Contains(p.buf, needle) {
				return true
			}
		case bodyParts:
			if boundaryInParts(p.parts, boundary) {
				return true
			}
		case bodyStream:
			// cannot scan without draining, the randomness has to carry it
		}
	}
	return false
}

// multipartReader produces the assembled multipart body incrementally:
// delimiter and header bytes for one part, then that part's body, then the
// next part, then the terminal delimiter. Nothing is buffered beyond the
// current segment, so a tree of stream-backed parts is serialized without
// ever materializing the whole output.
type multipartReader struct {
	parts    []*Entity
	boundary string
	cur      io.Reader
	idx      int
	inBody   bool
	closed   bool
	err      error
}

func newMultipartReader(parts []*Entity, boundary string) *multipartReader {
	return &multipartReader{parts: parts, boundary: boundary}
}

func (m *multipartReader) Read(p []byte) (int, error) {
	for {
		if m.err != nil {
			return 0, m.err
		}
		if m.cur == nil {
			if err := m.advance(); err != nil {
				m.err = err
				return 0, err
			}
			if m.cur == nil {
				m.err = io.EOF
				return 0, io.EOF
			}
		}
		n, err := m.cur.Read(p)
		if err == io.EOF {
			m.cur = nil
			if n == 0 {
				continue
			}
			return n, nil
		}
		if err != nil {
			m.err = err
		}
		return n, err
	}
}

// advance builds the next segment reader, leaving cur nil when the stream
// is complete.
func (m *multipartReader) advance() error {
	if m.inBody {
		// headers of parts[idx] are out, its body is next
		part := m.parts[m.idx]
		m.idx++
		m.inBody = false
		r, err := part.bodyReader()
		if err != nil {
			return err
		}
		m.cur = r
		return nil
	}
	if m.idx < len(m.parts) {
		part := m.parts[m.idx]
		if part.kind == bodyParts {
			// the boundary has to be in the header before it is written
			if _, err := part.ensureBoundary(); err != nil {
				return err
			}
		}
		var buf bytes.Buffer
		buf.WriteString("\r\n--" + m.boundary + "\r\n")
		if _, err := part.Header().WriteTo(&buf); err != nil {
			return err
		}
		buf.WriteString("\r\n")
		m.cur = &buf
		m.inBody = true
		return nil
	}
	if !m.closed {
		m.closed = true
		m.cur = strings.NewReader("\r\n--" + m.boundary + "--")
	}
	return nil
}
