// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package conn turns raw transport endpoints into a uniform stream of
// accepted, protocol negotiated connections.
//
// A Listener binds one endpoint and produces an Acceptor. Listeners
// compose: a wrapping Listener, such as the TLS terminating one, holds
// an inner Listener and contributes behavior before delegating, so any
// transport can be secured or otherwise decorated without the server
// loop knowing.
package conn

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/quic-go/quic-go"
)

// Version identifies the HTTP protocol version spoken on a connection.
type Version int

const (
	// VersionUnset marks a connection whose version is negotiated via
	// TLS ALPN once the handshake completes.
	VersionUnset Version = iota

	// VersionHTTP11 is HTTP/1.1 over a byte stream.
	VersionHTTP11

	// VersionHTTP2 is HTTP/2 over a byte stream.
	VersionHTTP2

	// VersionHTTP3 is HTTP/3 over QUIC.
	VersionHTTP3
)

// String implements the fmt.Stringer interface.
func (v Version) String() string {
	switch v {
	case VersionHTTP11:
		return "HTTP/1.1"
	case VersionHTTP2:
		return "HTTP/2"
	case VersionHTTP3:
		return "HTTP/3"
	default:
		return "negotiated"
	}
}

// Scheme is the URI scheme requests on a connection are addressed with.
type Scheme string

const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
)

// Holding describes one bound endpoint: its address, the protocol
// versions it can speak and the scheme it serves. Holdings are
// immutable once an Acceptor is constructed.
type Holding struct {
	Addr     net.Addr
	Versions []Version
	Scheme   Scheme
}

// String implements the fmt.Stringer interface.
func (h Holding) String() string {
	versions := make([]string, len(h.Versions))
	for i, v := range h.Versions {
		versions[i] = v.String()
	}
	return fmt.Sprintf("%s://%s [%s]", h.Scheme, h.Addr, strings.Join(versions, ", "))
}

// Accepted is one successfully accepted connection along with the
// metadata the server needs to dispatch it. Ownership of the underlying
// connection transfers to whoever receives the value.
//
// Exactly one of Conn and QUIC is set: Conn for stream transports,
// QUIC for HTTP/3 connections.
type Accepted struct {
	Conn       net.Conn
	QUIC       quic.Connection
	LocalAddr  net.Addr
	RemoteAddr net.Addr
	Version    Version
	Scheme     Scheme
}

// Close releases the underlying connection.
func (a Accepted) Close() error {
	if a.Conn != nil {
		return a.Conn.Close()
	}
	if a.QUIC != nil {
		return a.QUIC.CloseWithError(quic.ApplicationErrorCode(quic.NoError), "")
	}
	return nil
}

// Listener binds one transport endpoint, producing an Acceptor. Bind
// failures are fatal and returned synchronously; they are never retried.
type Listener interface {
	Bind(ctx context.Context) (Acceptor, error)
}

// Acceptor yields accepted connections one at a time and reports the
// endpoints it holds. Accept unblocks with an error once the Acceptor
// is closed.
type Acceptor interface {
	Holdings() []Holding
	Accept(ctx context.Context) (Accepted, error)
	Close() error
}
