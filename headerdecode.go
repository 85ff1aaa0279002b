package mime

import (
	"fmt"
	"io"
	stdmime "mime"
	"strings"
)

// wordDecoder decodes RFC 2047 encoded-words. It hands any charset beyond
// the built-in utf-8, us-ascii and iso-8859-1 to the CharsetReader hook,
// so importing the encoding or iconv subpackage widens the range.
var wordDecoder = stdmime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		if CharsetReader == nil {
			return nil, fmt.Errorf("unhandled charset %q", charset)
		}
		return CharsetReader(charset, input)
	},
}

// HeaderDecode converts a header value carrying RFC 2047 encoded-words to
// UTF-8. Words that fail to decode stay as they are, plain text in between
// passes through, and whitespace separating two adjacent encoded words is
// dropped. The input comes back unchanged when nothing was decoded.
func HeaderDecode(str string) string {
	var out []byte
	pos := 0
	for i := 0; i < len(str); {
		start := strings.Index(str[i:], "=?")
		if start == -1 {
			break
		}
		start += i
		end := encodedWordEnd(str, start)
		if end == -1 {
			i = start + 2
			continue
		}
		decoded, err := wordDecoder.Decode(str[start:end])
		if err != nil {
			// keep the word in its encoded form
			i = end
			continue
		}
		out = headerAppend(out, len(str), str[pos:start])
		out = headerAppend(out, len(str), decoded)
		if skip := encodedWordAhead(str, end); skip != -1 {
			end = skip
		}
		pos = end
		i = end
	}
	if out == nil {
		return str
	}
	return string(headerAppend(out, len(str), str[pos:]))
}

func headerAppend(out []byte, size int, in string) []byte {
	if out == nil {
		out = make([]byte, 0, size)
	}
	return append(out, in...)
}

// encodedWordEnd scans an encoded word starting at the =? found at i and
// returns the position just past its closing ?=, or -1 when the word is
// malformed.
func encodedWordEnd(str string, i int) int {
	j := i + 2
	for ; j < len(str); j++ {
		c := str[j]
		if c == '?' {
			break
		}
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
			c >= '0' && c <= '9' || c == '-') {
			return -1
		}
	}
	if j == i+2 || j >= len(str) {
		return -1
	}
	j++
	if j >= len(str) || (str[j] != 'Q' && str[j] != 'q' && str[j] != 'B' && str[j] != 'b') {
		return -1
	}
	j++
	if j >= len(str) || str[j] != '?' {
		return -1
	}
	j++
	for ; j+1 < len(str); j++ {
		if str[j] == '?' {
			if str[j+1] == '=' {
				return j + 2
			}
			return -1
		}
	}
	return -1
}

// encodedWordAhead reports where the next encoded word starts when only
// whitespace separates it from position i, or -1.
func encodedWordAhead(str string, i int) int {
	for ; i+1 < len(str); i++ {
		if str[i] != ' ' && str[i] != '\t' {
			return -1
		}
		if str[i+1] == '=' && i+2 < len(str) && str[i+2] == '?' {
			return i + 1
		}
	}
	return -1
}
