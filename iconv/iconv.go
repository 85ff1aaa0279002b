//go:build cgo

// iconv enables using GNU iconv for converting text in legacy charsets to
// UTF-8, and back when encoding. It supports a larger range of encodings.
// It's a cgo package, the build system needs to have the iconv library
// headers available.
// when importing, place an underscore _ in front to import for side-effects
package iconv

import (
	"fmt"
	"io"

	mime "github.com/flashmob/go-mime"
	ico "gopkg.in/iconv.v1"
)

func init() {
	mime.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		if cd, err := ico.Open("UTF-8", charset); err == nil {
			r := ico.NewReader(cd, input, 32)
			return r, nil
		}
		return nil, fmt.Errorf("unhandled charset %q", charset)
	}
	mime.CharsetWriter = func(charset string, output io.Writer) (io.WriteCloser, error) {
		if cd, err := ico.Open(charset, "UTF-8"); err == nil {
			w := ico.NewWriter(cd, output, 32, false)
			return &syncOnClose{w: w}, nil
		}
		return nil, fmt.Errorf("unhandled charset %q", charset)
	}
}

// syncOnClose flushes the iconv writer when the conversion is done, the
// underlying writer stays open.
type syncOnClose struct {
	w *ico.Writer
}

func (s *syncOnClose) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *syncOnClose) Close() error {
	return s.w.Sync()
}
