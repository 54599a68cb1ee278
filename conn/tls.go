// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package conn

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/harbornet/harbor/identity"
)

// ErrIdentityNotReady occurs when a TLS acceptor is asked to accept
// before any identity has been successfully loaded from its source.
var ErrIdentityNotReady = errors.New("conn: no tls identity has been loaded")

type tlsOptions struct {
	logHandler slog.Handler
	store      *identity.Store
}

// TLSOption configures a TLSListener.
type TLSOption func(*tlsOptions)

// TLSLogHandler configures the underlying slog.Handler.
func TLSLogHandler(h slog.Handler) TLSOption {
	return func(o *tlsOptions) {
		o.logHandler = h
	}
}

// ShareIdentity publishes every applied identity to the given store so
// other listeners, for example a QUIC endpoint on the same port, serve
// the same certificate.
func ShareIdentity(store *identity.Store) TLSOption {
	return func(o *tlsOptions) {
		o.store = store
	}
}

// TLSListener wraps an inner Listener with TLS termination whose
// identity can be swapped at runtime. It composes with any transport:
// TCP, Unix sockets, or further wrapping layers.
type TLSListener struct {
	inner  Listener
	source identity.Source
	opts   tlsOptions
}

// NewTLSListener returns a TLSListener terminating TLS over inner with
// identities delivered by source.
func NewTLSListener(inner Listener, source identity.Source, opts ...TLSOption) *TLSListener {
	to := tlsOptions{
		logHandler: noopLogHandler{},
	}
	for _, opt := range opts {
		opt(&to)
	}
	return &TLSListener{
		inner:  inner,
		source: source,
		opts:   to,
	}
}

// Bind implements the Listener interface. It binds the inner Listener
// first; the returned Acceptor reports the inner holdings with the
// scheme replaced by https and HTTP/2 added, since ALPN makes it
// negotiable on any TLS endpoint.
func (l *TLSListener) Bind(ctx context.Context) (Acceptor, error) {
	inner, err := l.inner.Bind(ctx)
	if err != nil {
		return nil, err
	}

	holdings := make([]Holding, 0, len(inner.Holdings()))
	for _, h := range inner.Holdings() {
		versions := make([]Version, len(h.Versions))
		copy(versions, h.Versions)
		if !containsVersion(versions, VersionHTTP2) {
			versions = append(versions, VersionHTTP2)
		}
		holdings = append(holdings, Holding{
			Addr:     h.Addr,
			Versions: versions,
			Scheme:   SchemeHTTPS,
		})
	}

	return &tlsAcceptor{
		inner:    inner,
		updates:  l.source.Updates(),
		holdings: holdings,
		log:      slog.New(l.opts.logHandler),
		store:    l.opts.store,
	}, nil
}

type tlsAcceptor struct {
	inner    Acceptor
	updates  <-chan identity.Loader
	holdings []Holding
	log      *slog.Logger
	store    *identity.Store

	active atomic.Pointer[tls.Config]
}

// Holdings implements the Acceptor interface.
func (a *tlsAcceptor) Holdings() []Holding {
	return a.holdings
}

// Accept implements the Acceptor interface. Before accepting it drains
// all immediately available identity updates, applying only the most
// recent one; the accept path never suspends waiting for configuration.
// The TLS handshake itself is deferred to the serving task: the
// returned connection is a *tls.Conn which has not yet shaken hands,
// so a slow or malicious peer cannot stall subsequent accepts.
func (a *tlsAcceptor) Accept(ctx context.Context) (Accepted, error) {
	a.drainUpdates(ctx)

	config := a.active.Load()
	if config == nil {
		return Accepted{}, ErrIdentityNotReady
	}

	accepted, err := a.inner.Accept(ctx)
	if err != nil {
		return Accepted{}, err
	}

	accepted.Conn = tls.Server(accepted.Conn, config)
	accepted.Scheme = SchemeHTTPS
	accepted.Version = VersionUnset
	return accepted, nil
}

// drainUpdates performs a non-blocking, exhaustive drain of the update
// channel, keeping only the last value observed. A conversion failure
// is logged and the previous identity stays active; a failed reload
// must never cost the ability to accept connections.
func (a *tlsAcceptor) drainUpdates(ctx context.Context) {
	var last identity.Loader
drain:
	for a.updates != nil {
		select {
		case loader, ok := <-a.updates:
			if !ok {
				a.updates = nil
				break drain
			}
			last = loader
		default:
			break drain
		}
	}
	if last == nil {
		return
	}

	id, err := last.Load()
	if err != nil {
		a.log.ErrorContext(ctx, "invalid tls identity update", slog.Any("error", err))
		return
	}

	if a.active.Load() == nil {
		a.log.InfoContext(ctx, "tls identity loaded")
	} else {
		a.log.InfoContext(ctx, "tls identity changed")
	}
	a.active.Store(id.Config())
	if a.store != nil {
		a.store.Swap(id)
	}
}

// Close implements the Acceptor interface.
func (a *tlsAcceptor) Close() error {
	return a.inner.Close()
}

func containsVersion(versions []Version, v Version) bool {
	for _, existing := range versions {
		if existing == v {
			return true
		}
	}
	return false
}

type noopLogHandler struct{}

func (noopLogHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (noopLogHandler) Handle(context.Context, slog.Record) error { return nil }
func (h noopLogHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h noopLogHandler) WithGroup(string) slog.Handler           { return h }
