package mime

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// maxHeaderBytes caps how much of a header block readHeader will consume
// before giving up. Real-world header blocks are a few KB at most.
const maxHeaderBytes = 1024 * 1024

// Header stores the header fields of an entity. Lookups are case-insensitive
// while enumeration preserves the spelling a name was first seen with, in
// insertion order. This needs two coupled containers: a map keyed by the
// lowercased name, and a list of original spellings.
// Not safe for concurrent mutation, callers must serialize writers.
type Header struct {
	values map[string][]string
	names  []string
}

func NewHeader() *Header {
	return &Header{values: make(map[string][]string)}
}

func (h *Header) lazyInit() {
	if h.values == nil {
		h.values = make(map[string][]string)
	}
}

// Get returns the first value stored for name. The lookup ignores case.
func (h *Header) Get(name string) (string, bool) {
	v, ok := h.values[strings.ToLower(name)]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// GetAll returns all values stored for name, in the order they were added,
// or nil when the header is absent. The returned slice is not a copy.
func (h *Header) GetAll(name string) []string {
	return h.values[strings.ToLower(name)]
}

// Set replaces all values of name with value. If the name was never seen
// before, its spelling is recorded for enumeration; an existing name keeps
// the spelling it was first added with.
func (h *Header) Set(name, value string) {
	h.lazyInit()
	k := strings.ToLower(name)
	if _, seen := h.values[k]; !seen {
		h.names = append(h.names, name)
	}
	h.values[k] = []string{value}
}

// Add appends value to the values of name, keeping any existing ones.
func (h *Header) Add(name, value string) {
	h.lazyInit()
	k := strings.ToLower(name)
	if _, seen := h.values[k]; !seen {
		h.names = append(h.names, name)
	}
	h.values[k] = append(h.values[k], value)
}

// Remove deletes all values of name. Removing an absent name is a no-op.
func (h *Header) Remove(name string) {
	k := strings.ToLower(name)
	if _, seen := h.values[k]; !seen {
		return
	}
	delete(h.values, k)
	for i := range h.names {
		if strings.ToLower(h.names[i]) == k {
			h.names = append(h.names[:i], h.names[i+1:]...)
			break
		}
	}
}

// RemoveAll deletes every header field.
func (h *Header) RemoveAll() {
	h.values = make(map[string][]string)
	h.names = nil
}

// Has reports whether at least one value is stored for name.
func (h *Header) Has(name string) bool {
	return len(h.values[strings.ToLower(name)]) > 0
}

// Names returns a copy of the header names in the order they were first
// added, with their original spelling.
func (h *Header) Names() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// Len returns the number of distinct header names.
func (h *Header) Len() int {
	return len(h.names)
}

// WriteTo serializes the header block as Name: value CRLF lines, one line
// per value, in enumeration order. It does not write the blank line that
// separates headers from the body.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, name := range h.names {
		for _, value := range h.values[strings.ToLower(name)] {
			n, err := io.WriteString(w, name+": "+value+"\r\n")
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (h *Header) String() string {
	var buf bytes.Buffer
	h.WriteTo(&buf)
	return buf.String()
}

// ReadHeader parses a wire-format header block from r, stopping at the
// first blank line or at EOF. Folded continuation lines are unfolded with a
// single space. Lines with no colon are skipped rather than failing the
// whole block, mirroring how tolerant mail software treats damaged headers.
func ReadHeader(r *bufio.Reader) (*Header, error) {
	h := NewHeader()
	var (
		lastName string
		read     int
	)
	for {
		line, err := r.ReadString('\n')
		read += len(line)
		if read > maxHeaderBytes {
			return h, parseErrorf("header", "header block exceeds %d bytes", maxHeaderBytes)
		}
		s := strings.TrimRight(line, "\r\n")
		if s == "" {
			if err == io.EOF && line == "" {
				return h, nil
			}
			if err != nil && err != io.EOF {
				return h, parseError("header", err)
			}
			// blank line ends the block; EOF with a final bare line too
			return h, nil
		}
		if s[0] == ' ' || s[0] == '\t' {
			// folded continuation of the previous field
			if lastName != "" {
				k := strings.ToLower(lastName)
				v := h.values[k]
				v[len(v)-1] += " " + strings.TrimLeft(s, " \t")
			}
		} else if i := strings.IndexByte(s, ':'); i > 0 {
			name := strings.TrimSpace(s[:i])
			value := strings.TrimLeft(s[i+1:], " \t")
			h.Add(name, value)
			lastName = name
		} else {
			lastName = ""
		}
		if err == io.EOF {
			return h, nil
		}
		if err != nil {
			return h, parseError("header", err)
		}
	}
}
