// encoding enables using golang.org/x/net/html/charset for converting text
// in legacy charsets to UTF-8. It covers a larger range of encodings than
// the built-in ones.
// when importing, place an underscore _ in front to import for side-effects

package encoding

import (
	"io"

	mime "github.com/flashmob/go-mime"
	cs "golang.org/x/net/html/charset"
)

func init() {

	mime.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return cs.NewReaderLabel(charset, input)
	}

}
