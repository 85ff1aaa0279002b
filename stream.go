package mime

import (
	"io"
)

// DefaultChunkSize is the chunk length used when the caller does not
// supply one.
const DefaultChunkSize = 8192

// ChunkedReader pulls a body out of an underlying reader in chunks of at
// most a fixed size. It is finite and not restartable: once io.EOF is
// returned the stream is spent and a fresh reader must be constructed to
// read again. Errors from the underlying reader fail the current pull and
// stick; chunks delivered before the failure remain valid.
//
// ChunkedReader also implements io.Reader for callers that want plain
// byte access instead of whole chunks.
type ChunkedReader struct {
	src   io.Reader
	chunk []byte
	err   error
}

// NewChunkedReader wraps r in a ChunkedReader producing chunks of at most
// size bytes, DefaultChunkSize when size is not positive.
func NewChunkedReader(r io.Reader, size int) *ChunkedReader {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &ChunkedReader{src: r, chunk: make([]byte, size)}
}

// Next returns the next chunk, blocking until the underlying reader
// produces data. Chunks are full-size except possibly the last. The
// returned slice is reused by the following Next call, the caller must
// copy it to keep it. At the end of the stream Next returns nil, io.EOF.
func (c *ChunkedReader) Next() ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	n, err := io.ReadFull(c.src, c.chunk)
	if err == io.ErrUnexpectedEOF {
		c.err = io.EOF
		return c.chunk[:n], nil
	}
	if err != nil {
		c.err = err
		return nil, err
	}
	return c.chunk, nil
}

// Read implements io.Reader over the same stream.
func (c *ChunkedReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.src.Read(p)
	if err != nil {
		c.err = err
	}
	return n, err
}

// Close releases the underlying reader when it holds resources. Closing
// is how a consumer cancels: stop pulling and close.
func (c *ChunkedReader) Close() error {
	c.err = io.EOF
	if closer, ok := c.src.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
