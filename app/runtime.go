// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"net/http"
	"time"

	"github.com/harbornet/harbor"
)

// ServerRuntimeOption configures the Runtime returned by Server.
type ServerRuntimeOption func(*serverRuntime)

// DrainTimeout bounds how long the server waits for in-flight
// connections once the run context is cancelled. Zero, the default,
// waits indefinitely.
func DrainTimeout(d time.Duration) ServerRuntimeOption {
	return func(sr *serverRuntime) {
		sr.drainTimeout = d
	}
}

type serverRuntime struct {
	srv          *harbor.Server
	handler      http.Handler
	drainTimeout time.Duration
}

// Server adapts a harbor.Server into a Runtime. Cancellation of the
// run context, e.g. from an OS interrupt, becomes a graceful stop.
func Server(srv *harbor.Server, handler http.Handler, opts ...ServerRuntimeOption) Runtime {
	sr := &serverRuntime{
		srv:     srv,
		handler: handler,
	}
	for _, opt := range opts {
		opt(sr)
	}
	return sr
}

// Run implements the Runtime interface.
func (sr *serverRuntime) Run(ctx context.Context) error {
	if sr.drainTimeout > 0 {
		stop := context.AfterFunc(ctx, func() {
			sr.srv.StopGraceful(sr.drainTimeout)
		})
		defer stop()

		// Detach from ctx so the bounded graceful stop, not the bare
		// cancellation, decides when serving ends.
		return sr.srv.Serve(context.WithoutCancel(ctx), sr.handler)
	}
	return sr.srv.Serve(ctx, sr.handler)
}
