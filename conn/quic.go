// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package conn

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

type quicOptions struct {
	maxIdleTimeout time.Duration
}

// QUICOption configures a QUICListener.
type QUICOption func(*quicOptions)

// MaxIdleTimeout sets the QUIC idle timeout. Connections with no
// activity for longer than this are closed by the transport.
func MaxIdleTimeout(d time.Duration) QUICOption {
	return func(o *quicOptions) {
		o.maxIdleTimeout = d
	}
}

// QUICListener binds a UDP endpoint for HTTP/3 over QUIC.
type QUICListener struct {
	addr    string
	tlsConf *tls.Config
	opts    quicOptions
}

// NewQUICListener returns a QUICListener for the given UDP address.
// The tls.Config must carry a server identity; its ALPN is forced to
// the HTTP/3 token. Use identity.Store.GetCertificate to share a
// hot-swappable identity with a TLS listener on the same port.
func NewQUICListener(addr string, tlsConf *tls.Config, opts ...QUICOption) *QUICListener {
	qo := quicOptions{
		maxIdleTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&qo)
	}
	return &QUICListener{
		addr:    addr,
		tlsConf: tlsConf,
		opts:    qo,
	}
}

// Bind implements the Listener interface.
func (l *QUICListener) Bind(ctx context.Context) (Acceptor, error) {
	tlsConf := l.tlsConf.Clone()
	tlsConf.NextProtos = []string{http3.NextProtoH3}

	ln, err := quic.ListenAddr(l.addr, tlsConf, &quic.Config{
		MaxIdleTimeout:  l.opts.maxIdleTimeout,
		EnableDatagrams: true,
	})
	if err != nil {
		return nil, err
	}

	return &quicAcceptor{
		ln: ln,
		holdings: []Holding{{
			Addr:     ln.Addr(),
			Versions: []Version{VersionHTTP3},
			Scheme:   SchemeHTTPS,
		}},
	}, nil
}

type quicAcceptor struct {
	ln       *quic.Listener
	holdings []Holding
}

// Holdings implements the Acceptor interface.
func (a *quicAcceptor) Holdings() []Holding {
	return a.holdings
}

// Accept implements the Acceptor interface. The QUIC handshake has
// already completed by the time a connection is yielded here; stream
// demultiplexing happens later, in the HTTP/3 protocol builder.
func (a *quicAcceptor) Accept(ctx context.Context) (Accepted, error) {
	qc, err := a.ln.Accept(ctx)
	if err != nil {
		return Accepted{}, err
	}
	return Accepted{
		QUIC:       qc,
		LocalAddr:  qc.LocalAddr(),
		RemoteAddr: qc.RemoteAddr(),
		Version:    VersionHTTP3,
		Scheme:     SchemeHTTPS,
	}, nil
}

// Close implements the Acceptor interface.
func (a *quicAcceptor) Close() error {
	return a.ln.Close()
}
