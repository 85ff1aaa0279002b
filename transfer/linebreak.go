package transfer

import (
	"io"
)

// MaxLineLength is the canonical MIME line length for wrapped base64.
const MaxLineLength = 76

var crlf = []byte("\r\n")

// LineBreaker folds everything written through it into CRLF-terminated
// lines of at most MaxLineLength bytes. Chain it under NewEncoder to
// produce the wrapped form mail bodies carry. Close flushes the final
// partial line.
type LineBreaker struct {
	Out  io.Writer
	line [MaxLineLength]byte
	used int
}

func (l *LineBreaker) Write(p []byte) (int, error) {
	if l.used+len(p) < MaxLineLength {
		copy(l.line[l.used:], p)
		l.used += len(p)
		return len(p), nil
	}
	if _, err := l.Out.Write(l.line[:l.used]); err != nil {
		return 0, err
	}
	excess := MaxLineLength - l.used
	l.used = 0
	if _, err := l.Out.Write(p[:excess]); err != nil {
		return 0, err
	}
	if _, err := l.Out.Write(crlf); err != nil {
		return 0, err
	}
	n, err := l.Write(p[excess:])
	if err != nil {
		return 0, err
	}
	return excess + n, nil
}

func (l *LineBreaker) Close() error {
	if l.used == 0 {
		return nil
	}
	if _, err := l.Out.Write(l.line[:l.used]); err != nil {
		return err
	}
	l.used = 0
	_, err := l.Out.Write(crlf)
	return err
}
