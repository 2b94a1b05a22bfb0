package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newClient returns a client closed at cleanup. A nil cfg uses the defaults.
func newClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	c := New(cfg)
	t.Cleanup(c.Close)
	return c
}

// serve starts an httptest server for handler, closed at cleanup
func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// drain reads and closes a response body so the connection can be reused
func drain(t *testing.T, resp *http.Response) {
	t.Helper()
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		t.Errorf("closing response body: %v", err)
	}
}
