package store

type flushEvent func() error

// chunkingBuffer accumulates what is written to it up to a fixed capacity,
// firing the flush trigger each time it fills. It never grows.
type chunkingBuffer struct {
	buf          []byte
	flushTrigger flushEvent
}

// Flush signals that it's time to write the buffer out to storage
func (c *chunkingBuffer) Flush() error {
	if len(c.buf) == 0 {
		return nil
	}
	if c.flushTrigger != nil {
		if err := c.flushTrigger(); err != nil {
			return err
		}
	}
	c.Reset()
	return nil
}

// Reset sets the length back to 0, making it re-usable
func (c *chunkingBuffer) Reset() {
	c.buf = c.buf[:0] // set the length back to 0
}

// Write takes a p slice of bytes and writes it to the buffer.
// It will never grow the buffer, flushing it as soon as it's full.
func (c *chunkingBuffer) Write(p []byte) (i int, err error) {
	remaining := len(p) // number of bytes remaining to write
	bufCap := cap(c.buf)
	for {
		free := bufCap - len(c.buf)
		if free > remaining {
			// enough of room in the buffer
			c.buf = append(c.buf, p[i:i+remaining]...)
			i += remaining
			return
		} else {
			// fill the buffer to the 'brim' with a slice from p
			c.buf = append(c.buf, p[i:i+free]...)
			remaining -= free
			i += free
			err = c.Flush()
			if err != nil {
				return i, err
			}
			if remaining == 0 {
				return
			}
		}
	}
}

// CapTo caps the internal buffer to specified number of bytes, sets the length back to 0
func (c *chunkingBuffer) CapTo(n int) {
	if cap(c.buf) == n {
		return
	}
	c.buf = make([]byte, 0, n)
}
