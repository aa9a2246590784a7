package traffic

import "io"

// CountingReader wraps an io.ReadCloser and tracks how many bytes have
// been read through it, so the proxy engine can report bytes_out even
// when the client aborts mid-stream.
type CountingReader struct {
	io.ReadCloser
	n int64
}

// NewCountingReader wraps rc.
func NewCountingReader(rc io.ReadCloser) *CountingReader {
	return &CountingReader{ReadCloser: rc}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (c *CountingReader) BytesRead() int64 {
	return c.n
}
