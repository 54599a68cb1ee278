// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package conn

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// webTransportProtocol is the extended CONNECT protocol token used to
// establish WebTransport sessions over HTTP/3.
const webTransportProtocol = "webtransport"

// HTTP3Builder serves HTTP/3 on one QUIC connection. Each request
// stream is handled independently: a stream-level failure aborts only
// that exchange while the connection keeps accepting further streams,
// and a connection-level failure ends them all.
type HTTP3Builder struct {
	// UpgradeWebTransport, when set, receives CONNECT requests carrying
	// the webtransport protocol token instead of the ordinary handler.
	// Session semantics beyond the diversion are the caller's concern.
	// When nil such requests are answered with 501 Not Implemented.
	UpgradeWebTransport http.Handler
}

// Serve implements the Protocol interface.
func (b *HTTP3Builder) Serve(ctx context.Context, accepted Accepted, handler http.Handler, _ time.Duration) error {
	if accepted.QUIC == nil {
		return ErrUnsupportedConn
	}

	srv := &http3.Server{
		Handler:         b.dispatch(handler),
		EnableDatagrams: true,
	}

	// ServeQUICConn only returns once the connection is done, so the
	// cancellation watcher is scoped to this call.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		<-watchCtx.Done()
		accepted.QUIC.CloseWithError(quic.ApplicationErrorCode(quic.NoError), "server shutting down")
	}()

	err := srv.ServeQUICConn(accepted.QUIC)
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *HTTP3Builder) dispatch(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodConnect && r.Proto == webTransportProtocol {
			if b.UpgradeWebTransport == nil {
				w.WriteHeader(http.StatusNotImplemented)
				return
			}
			b.UpgradeWebTransport.ServeHTTP(w, r)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
