// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package conn

import (
	"context"
	"net"
)

// TCPListener binds a TCP endpoint.
type TCPListener struct {
	addr string
}

// NewTCPListener returns a TCPListener for the given address, e.g. ":8080".
func NewTCPListener(addr string) *TCPListener {
	return &TCPListener{addr: addr}
}

// Bind implements the Listener interface.
func (l *TCPListener) Bind(ctx context.Context) (Acceptor, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return nil, err
	}
	return &streamAcceptor{
		ln: ln,
		holdings: []Holding{{
			Addr:     ln.Addr(),
			Versions: []Version{VersionHTTP11},
			Scheme:   SchemeHTTP,
		}},
	}, nil
}

// streamAcceptor accepts from any net.Listener. Cancellation is
// delivered by closing the acceptor, which unblocks Accept.
type streamAcceptor struct {
	ln       net.Listener
	holdings []Holding
}

// Holdings implements the Acceptor interface.
func (a *streamAcceptor) Holdings() []Holding {
	return a.holdings
}

// Accept implements the Acceptor interface.
func (a *streamAcceptor) Accept(ctx context.Context) (Accepted, error) {
	if err := ctx.Err(); err != nil {
		return Accepted{}, err
	}

	c, err := a.ln.Accept()
	if err != nil {
		return Accepted{}, err
	}
	return Accepted{
		Conn:       c,
		LocalAddr:  a.ln.Addr(),
		RemoteAddr: c.RemoteAddr(),
		Version:    VersionHTTP11,
		Scheme:     SchemeHTTP,
	}, nil
}

// Close implements the Acceptor interface.
func (a *streamAcceptor) Close() error {
	return a.ln.Close()
}
