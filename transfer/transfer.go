// Package transfer implements the MIME base64 transfer encoding for the
// three shapes a body comes in: strings, byte slices and streams. Decoding
// tolerates line-wrapped input, encoding produces the unwrapped form; wrap
// output with a LineBreaker when the canonical 76 column form is needed.
package transfer

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	mime "github.com/flashmob/go-mime"
)

// Encoding identifies a content transfer encoding.
type Encoding int

const (
	// None leaves bytes as they are (7bit, 8bit, binary)
	None Encoding = iota
	// Base64 is the standard MIME base64 alphabet
	Base64
)

var encodingNames = [...]string{
	"none",
	"base64",
}

func (e Encoding) String() string {
	if e < 0 || int(e) >= len(encodingNames) {
		return "unknown"
	}
	return encodingNames[e]
}

// ParseEncoding maps a Content-Transfer-Encoding header value to an
// Encoding. Anything that is not base64 comes back as None: 7bit, 8bit
// and binary need no decoding, and quoted-printable is not supported.
func ParseEncoding(v string) Encoding {
	if strings.ToLower(strings.TrimSpace(v)) == "base64" {
		return Base64
	}
	return None
}

// EncodeError wraps a failure while encoding.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return "transfer: encode: " + e.Err.Error()
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// DecodeError wraps a failure while decoding.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "transfer: decode: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeBytes returns src base64-encoded, unwrapped.
func EncodeBytes(src []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(src)))
	base64.StdEncoding.Encode(out, src)
	return out
}

// DecodeBytes decodes base64 src. CR and LF anywhere in the input are
// ignored, so wrapped and unwrapped forms both decode.
func DecodeBytes(src []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.DecodedLen(len(src)))
	n, err := base64.StdEncoding.Decode(out, src)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return out[:n], nil
}

// EncodeString base64-encodes s. A charset argument converts the text
// from UTF-8 to that charset before encoding, which needs a CharsetWriter
// installed (see the iconv subpackage).
func EncodeString(s string, charset ...string) (string, error) {
	b := []byte(s)
	if len(charset) > 0 && !mime.IsUTF8(charset[0]) {
		conv, err := mime.EncodeCharset(b, charset[0])
		if err != nil {
			return "", &EncodeError{Err: err}
		}
		b = conv
	}
	return string(EncodeBytes(b)), nil
}

// DecodeString decodes base64 s. A charset argument converts the decoded
// bytes from that charset to UTF-8 through the installed CharsetReader.
func DecodeString(s string, charset ...string) (string, error) {
	b, err := DecodeBytes([]byte(s))
	if err != nil {
		return "", err
	}
	if len(charset) > 0 && !mime.IsUTF8(charset[0]) {
		if b, err = mime.DecodeCharset(b, charset[0]); err != nil {
			return "", &DecodeError{Err: err}
		}
	}
	return string(b), nil
}

// NewEncoder returns a streaming base64 encoder writing to w. Close must
// be called to flush the final partial quantum.
func NewEncoder(w io.Writer) io.WriteCloser {
	return base64.NewEncoder(base64.StdEncoding, w)
}

// NewDecoder returns a streaming base64 decoder reading from r. Corrupt
// input surfaces as a *DecodeError on the failing Read; I/O errors from r
// pass through untouched.
func NewDecoder(r io.Reader) io.Reader {
	return &decodeReader{r: base64.NewDecoder(base64.StdEncoding, r)}
}

type decodeReader struct {
	r io.Reader
}

func (d *decodeReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil && err != io.EOF {
		if _, ok := err.(base64.CorruptInputError); ok {
			err = &DecodeError{Err: err}
		}
	}
	return n, err
}

// NewTransferDecoder wraps r according to the transfer encoding and
// charset declared on a part: base64 is decoded, None passes through, and
// a non UTF-8 charset is converted through the installed CharsetReader.
func NewTransferDecoder(r io.Reader, enc Encoding, charset string) (io.Reader, error) {
	switch enc {
	case Base64:
		r = NewDecoder(r)
	case None:
	default:
		return nil, &DecodeError{Err: fmt.Errorf("unsupported transfer encoding %q", enc)}
	}
	if !mime.IsUTF8(charset) {
		if mime.CharsetReader == nil {
			return nil, &DecodeError{Err: fmt.Errorf("unhandled charset %q", charset)}
		}
		cr, err := mime.CharsetReader(strings.ToLower(charset), r)
		if err != nil {
			return nil, &DecodeError{Err: err}
		}
		r = cr
	}
	return r, nil
}
