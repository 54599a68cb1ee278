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
)

// ErrUnsupportedConn occurs when a protocol builder is handed an
// Accepted whose connection kind it cannot drive, for example a QUIC
// connection given to the HTTP/1.1 builder.
var ErrUnsupportedConn = errors.New("conn: connection kind not supported by this protocol")

// Protocol drives one accepted connection to completion, invoking the
// handler once per HTTP exchange. Implementations must observe ctx
// cancellation as a cooperative checkpoint: when ctx is done the
// connection is abandoned rather than waiting for natural completion.
//
// idleTimeout, when positive, tears down a connection with no in-flight
// exchange for longer than that duration. It applies to HTTP/1.1 and
// HTTP/2; HTTP/3 idle handling is a QUIC transport parameter configured
// on the listener.
type Protocol interface {
	Serve(ctx context.Context, accepted Accepted, handler http.Handler, idleTimeout time.Duration) error
}
