package connection_test

import (
	"context"
	"errors"
	"sync"

	"cipherchat/internal/connection"
)

type fakeConn struct {
	inbound chan []byte
	closeCh chan error

	mu      sync.Mutex
	written [][]byte
	closed  []int
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), closeCh: make(chan error, 1)}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.inbound:
		return b, nil
	case err := <-c.closeCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), b...))
	return nil
}

func (c *fakeConn) Close(code int, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, code)
	return nil
}

func (c *fakeConn) writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, b := range c.written {
		out[i] = string(b)
	}
	return out
}

func (c *fakeConn) closeCodes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.closed...)
}

// peerClose simulates the server ending the connection.
func (c *fakeConn) peerClose(code int) {
	c.closeCh <- &connection.CloseError{Code: code}
}

// fakeDialer hands out the queued conns in order, then fails.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	urls  []string
}

var errRefused = errors.New("connection refused")

func (d *fakeDialer) Dial(_ context.Context, url string) (connection.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if len(d.conns) == 0 {
		return nil, errRefused
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) push(c *fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns = append(d.conns, c)
}

type recorder struct {
	mu       sync.Mutex
	statuses []connection.Status
	messages []string
	errors   []error
}

func (r *recorder) handlers() connection.Handlers {
	return connection.Handlers{
		OnStatus: func(s connection.Status) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.statuses = append(r.statuses, s)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errors = append(r.errors, err)
		},
	}
}

func (r *recorder) count(s connection.Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.statuses {
		if got == s {
			n++
		}
	}
	return n
}

func (r *recorder) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}
