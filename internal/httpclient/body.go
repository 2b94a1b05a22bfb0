package httpclient

import (
	"context"
	"io"
)

// cancelOnClose releases a request context once the response body is closed
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
