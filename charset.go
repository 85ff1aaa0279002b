package mime

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// CharsetReader, when set, produces readers that convert text from the
// given charset to UTF-8. It is nil by default; importing the encoding or
// iconv subpackage for side-effects installs an implementation.
var CharsetReader func(charset string, input io.Reader) (io.Reader, error)

// CharsetWriter, when set, produces writers that convert UTF-8 text to the
// given charset. Only the iconv subpackage installs one; the pure Go
// converter can only read.
var CharsetWriter func(charset string, output io.Writer) (io.WriteCloser, error)

// IsUTF8 reports whether charset names UTF-8 or a subset of it, i.e. text
// that needs no conversion. An empty charset counts, UTF-8 is the default.
func IsUTF8(charset string) bool {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return true
	}
	return false
}

// DecodeCharset converts b from the given charset to UTF-8 through
// CharsetReader. UTF-8 input is returned as-is; any other charset without
// an installed CharsetReader is an error.
func DecodeCharset(b []byte, charset string) ([]byte, error) {
	if IsUTF8(charset) {
		return b, nil
	}
	if CharsetReader == nil {
		return nil, fmt.Errorf("unhandled charset %q", charset)
	}
	r, err := CharsetReader(strings.ToLower(charset), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// EncodeCharset converts UTF-8 b to the given charset through
// CharsetWriter.
func EncodeCharset(b []byte, charset string) ([]byte, error) {
	if IsUTF8(charset) {
		return b, nil
	}
	if CharsetWriter == nil {
		return nil, fmt.Errorf("unhandled charset %q", charset)
	}
	var out bytes.Buffer
	w, err := CharsetWriter(strings.ToLower(charset), &out)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
