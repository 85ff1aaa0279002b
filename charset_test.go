package mime

import (
	"io"
	"testing"
)

type upperReader struct {
	r io.Reader
}

func (u upperReader) Read(p []byte) (int, error) {
	n, err := u.r.Read(p)
	for i := 0; i < n; i++ {
		if p[i] >= 'a' && p[i] <= 'z' {
			p[i] -= 32
		}
	}
	return n, err
}

type lowerWriter struct {
	w io.Writer
}

func (l lowerWriter) Write(p []byte) (int, error) {
	out := make([]byte, len(p))
	for i := range p {
		c := p[i]
		if c >= 'A' && c <= 'Z' {
			c += 32
		}
		out[i] = c
	}
	return l.w.Write(out)
}

func (l lowerWriter) Close() error {
	return nil
}

// installTestConverters wires fake converters so charset plumbing can be
// tested without a real conversion library
func installTestConverters(t *testing.T) {
	t.Helper()
	CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return upperReader{r: input}, nil
	}
	CharsetWriter = func(charset string, output io.Writer) (io.WriteCloser, error) {
		return lowerWriter{w: output}, nil
	}
	t.Cleanup(func() {
		CharsetReader = nil
		CharsetWriter = nil
	})
}

func TestIsUTF8(t *testing.T) {
	for _, cs := range []string{"", "utf-8", "UTF-8", " Utf-8 ", "utf8", "us-ascii", "ASCII"} {
		if !IsUTF8(cs) {
			t.Errorf("%q should count as UTF-8", cs)
		}
	}
	for _, cs := range []string{"iso-8859-1", "koi8-r", "shift_jis"} {
		if IsUTF8(cs) {
			t.Errorf("%q should not count as UTF-8", cs)
		}
	}
}

func TestDecodeCharsetPassthrough(t *testing.T) {
	b, err := DecodeCharset([]byte("plain"), "utf-8")
	if err != nil {
		t.Error(err)
	}
	if string(b) != "plain" {
		t.Error("expecting plain, got:", string(b))
	}
}

func TestDecodeCharsetNoReader(t *testing.T) {
	if _, err := DecodeCharset([]byte("x"), "iso-8859-1"); err == nil {
		t.Error("expecting a failure without an installed CharsetReader")
	}
}

func TestDecodeCharsetWithReader(t *testing.T) {
	installTestConverters(t)
	b, err := DecodeCharset([]byte("abc"), "x-fake")
	if err != nil {
		t.Error(err)
	}
	if string(b) != "ABC" {
		t.Error("expecting ABC, got:", string(b))
	}
}

func TestEncodeCharsetWithWriter(t *testing.T) {
	installTestConverters(t)
	b, err := EncodeCharset([]byte("ABC"), "x-fake")
	if err != nil {
		t.Error(err)
	}
	if string(b) != "abc" {
		t.Error("expecting abc, got:", string(b))
	}
}

func TestEntityTextCharset(t *testing.T) {
	installTestConverters(t)
	e := NewEntity()
	if err := e.SetBytes([]byte("abc"), "text/plain; charset=x-fake"); err != nil {
		t.Error(err)
	}
	s, err := e.Text()
	if err != nil {
		t.Error(err)
	}
	if s != "ABC" {
		t.Error("the declared charset should drive decoding, got:", s)
	}
}
