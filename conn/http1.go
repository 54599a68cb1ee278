// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package conn

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTP1Builder serves HTTP/1.1 on a single byte-stream connection.
type HTTP1Builder struct {
	// MaxHeaderBytes bounds the request header size. Zero means the
	// net/http default.
	MaxHeaderBytes int

	// ReadHeaderTimeout bounds how long reading a request's headers
	// may take. Zero means no bound.
	ReadHeaderTimeout time.Duration
}

// Serve implements the Protocol interface. It drives the connection
// with a per-connection http.Server so keep-alive, idle timeouts and
// framing validation behave exactly as net/http defines them. Framing
// violations terminate only this connection.
func (b *HTTP1Builder) Serve(ctx context.Context, accepted Accepted, handler http.Handler, idleTimeout time.Duration) error {
	if accepted.Conn == nil {
		return ErrUnsupportedConn
	}

	done := make(chan struct{})
	var once sync.Once

	srv := &http.Server{
		Handler:           handler,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    b.MaxHeaderBytes,
		ReadHeaderTimeout: b.ReadHeaderTimeout,
		ConnState: func(c net.Conn, state http.ConnState) {
			switch state {
			case http.StateClosed, http.StateHijacked:
				once.Do(func() { close(done) })
			}
		},
	}

	// Serve returns almost immediately once the single connection has
	// been handed off; completion is signalled through ConnState.
	go srv.Serve(newOneShotListener(accepted.Conn))

	select {
	case <-done:
	case <-ctx.Done():
	}
	srv.Close()
	return nil
}

// oneShotListener yields exactly one connection and then blocks until
// closed, letting http.Server drive a connection we already accepted.
type oneShotListener struct {
	conn net.Conn

	mu        sync.Mutex
	delivered bool
	closed    chan struct{}
}

func newOneShotListener(c net.Conn) *oneShotListener {
	return &oneShotListener{
		conn:   c,
		closed: make(chan struct{}),
	}
}

// Accept implements the net.Listener interface.
func (l *oneShotListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	delivered := l.delivered
	l.delivered = true
	l.mu.Unlock()

	if !delivered {
		return l.conn, nil
	}

	<-l.closed
	return nil, net.ErrClosed
}

// Close implements the net.Listener interface.
func (l *oneShotListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}

// Addr implements the net.Listener interface.
func (l *oneShotListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}
