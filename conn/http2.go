// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package conn

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// HTTP2Builder serves HTTP/2 on a single byte-stream connection,
// typically one whose TLS handshake negotiated the h2 ALPN token.
type HTTP2Builder struct {
	// MaxConcurrentStreams bounds the streams a peer may open at once.
	// Zero means the http2 package default.
	MaxConcurrentStreams uint32

	// MaxHeaderBytes bounds the request header size. Zero means the
	// net/http default.
	MaxHeaderBytes int
}

// Serve implements the Protocol interface. Stream-level errors are
// isolated to their stream by the http2 framing layer; only
// connection-level errors end the connection.
func (b *HTTP2Builder) Serve(ctx context.Context, accepted Accepted, handler http.Handler, idleTimeout time.Duration) error {
	if accepted.Conn == nil {
		return ErrUnsupportedConn
	}

	srv := &http2.Server{
		MaxConcurrentStreams: b.MaxConcurrentStreams,
		IdleTimeout:          idleTimeout,
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			accepted.Conn.Close()
		case <-done:
		}
	}()

	srv.ServeConn(accepted.Conn, &http2.ServeConnOpts{
		Context: ctx,
		Handler: handler,
		BaseConfig: &http.Server{
			MaxHeaderBytes: b.MaxHeaderBytes,
		},
	})
	return nil
}
