// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package harbor

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/harbornet/harbor/conn"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrAlreadyServing occurs when Serve is called more than once on the
// same Server.
var ErrAlreadyServing = errors.New("harbor: server is already serving")

const alpnHTTP2 = "h2"

type serverOptions struct {
	logHandler     slog.Handler
	idleTimeout    time.Duration
	registerer     prometheus.Registerer
	disableTracing bool
	http1          conn.Protocol
	http2          conn.Protocol
	http3          conn.Protocol
	upgradeHandler http.Handler
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

// LogHandler configures the underlying slog.Handler.
func LogHandler(h slog.Handler) ServerOption {
	return func(so *serverOptions) {
		so.logHandler = h
	}
}

// ConnIdleTimeout terminates connections with no in-flight exchange
// for longer than the given duration. Applies to HTTP/1.1 and HTTP/2;
// HTTP/3 idle handling is configured on the QUIC listener.
func ConnIdleTimeout(d time.Duration) ServerOption {
	return func(so *serverOptions) {
		so.idleTimeout = d
	}
}

// RegisterMetrics registers the server's connection metrics with the
// given registerer.
func RegisterMetrics(reg prometheus.Registerer) ServerOption {
	return func(so *serverOptions) {
		so.registerer = reg
	}
}

// DisableTracing turns off the otel handler instrumentation and
// per-connection spans.
func DisableTracing() ServerOption {
	return func(so *serverOptions) {
		so.disableTracing = true
	}
}

// WithHTTP1 overrides the HTTP/1.1 protocol builder.
func WithHTTP1(p conn.Protocol) ServerOption {
	return func(so *serverOptions) {
		so.http1 = p
	}
}

// WithHTTP2 overrides the HTTP/2 protocol builder.
func WithHTTP2(p conn.Protocol) ServerOption {
	return func(so *serverOptions) {
		so.http2 = p
	}
}

// WithHTTP3 overrides the HTTP/3 protocol builder.
func WithHTTP3(p conn.Protocol) ServerOption {
	return func(so *serverOptions) {
		so.http3 = p
	}
}

// WebTransportUpgrade diverts CONNECT requests carrying the
// webtransport protocol token on HTTP/3 connections to the given
// handler. Ignored when WithHTTP3 overrides the default builder.
func WebTransportUpgrade(h http.Handler) ServerOption {
	return func(so *serverOptions) {
		so.upgradeHandler = h
	}
}

// Server owns one Acceptor and drives every connection it yields to
// completion on its own goroutine.
type Server struct {
	acceptor conn.Acceptor

	http1 conn.Protocol
	http2 conn.Protocol
	http3 conn.Protocol

	idleTimeout    time.Duration
	disableTracing bool

	log     *slog.Logger
	metrics *serverMetrics

	cmds    chan serverCommand
	live    atomic.Int64
	drained chan struct{}
	serving atomic.Bool
}

// NewServer returns a fully initialized Server serving connections
// from the given Acceptor.
func NewServer(acceptor conn.Acceptor, opts ...ServerOption) *Server {
	so := &serverOptions{
		logHandler: noopLogHandler{},
		http1:      &conn.HTTP1Builder{},
		http2:      &conn.HTTP2Builder{},
		http3:      &conn.HTTP3Builder{},
	}
	for _, opt := range opts {
		opt(so)
	}

	if h3, ok := so.http3.(*conn.HTTP3Builder); ok && so.upgradeHandler != nil {
		h3.UpgradeWebTransport = so.upgradeHandler
	}

	metrics := newServerMetrics()
	if so.registerer != nil {
		metrics.register(so.registerer)
	}

	return &Server{
		acceptor:       acceptor,
		http1:          so.http1,
		http2:          so.http2,
		http3:          so.http3,
		idleTimeout:    so.idleTimeout,
		disableTracing: so.disableTracing,
		log:            slog.New(so.logHandler),
		metrics:        metrics,
		cmds:           make(chan serverCommand, 8),
		drained:        make(chan struct{}, 1),
	}
}

// Handle returns a ServerHandle for stopping this server.
func (s *Server) Handle() ServerHandle {
	return ServerHandle{cmds: s.cmds}
}

// StopForcible stops the server immediately. See ServerHandle.StopForcible.
func (s *Server) StopForcible() {
	s.Handle().StopForcible()
}

// StopGraceful stops the server after in-flight connections drain.
// See ServerHandle.StopGraceful.
func (s *Server) StopGraceful(timeout time.Duration) {
	s.Handle().StopGraceful(timeout)
}

// Holdings reports the endpoints held by the server's acceptor.
func (s *Server) Holdings() []conn.Holding {
	return s.acceptor.Holdings()
}

// Serve accepts connections until stopped, invoking handler once per
// HTTP exchange on every connection. Cancelling ctx behaves like an
// unbounded graceful stop. Serve returns only once every in-flight
// connection has been retired.
func (s *Server) Serve(ctx context.Context, handler http.Handler) error {
	if !s.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}

	holdings := s.acceptor.Holdings()
	for _, h := range holdings {
		s.log.InfoContext(ctx, "listening", slog.String("endpoint", h.String()))
	}

	if !s.disableTracing {
		handler = otelhttp.NewHandler(
			handler,
			"server",
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
	}
	// The Alt-Svc upgrade hint only makes sense on connections which
	// are not already HTTP/3.
	streamHandler := altSvcHandler(handler, altSvcValue(holdings))

	// cancelCtx is the shutdown token shared by every serving task. It
	// deliberately does not descend from ctx: cancelling ctx means
	// "stop accepting and drain", not "abandon in-flight connections".
	cancelCtx, cancelToken := context.WithCancel(context.Background())
	defer cancelToken()

	acceptCtx, stopAccept := context.WithCancel(ctx)
	defer stopAccept()

	acceptedCh := make(chan conn.Accepted)
	go s.acceptLoop(acceptCtx, acceptedCh)

loop:
	for {
		select {
		case cmd := <-s.cmds:
			if cmd.forcible {
				s.log.InfoContext(ctx, "force stopping server")
				cancelToken()
				break loop
			}
			if cmd.timeout > 0 {
				s.log.InfoContext(ctx, "gracefully stopping server", slog.Duration("timeout", cmd.timeout))
				go func() {
					select {
					case <-time.After(cmd.timeout):
						cancelToken()
					case <-cancelCtx.Done():
					}
				}()
				break loop
			}
			s.log.InfoContext(ctx, "gracefully stopping server")
			break loop
		case <-ctx.Done():
			s.log.Info("gracefully stopping server")
			break loop
		case accepted := <-acceptedCh:
			s.spawn(cancelCtx, accepted, streamHandler, handler)
		}
	}

	stopAccept()
	s.acceptor.Close()

	if s.live.Load() > 0 {
		s.log.Info("waiting for connections to drain", slog.Int64("live_connections", s.live.Load()))
	}
	for s.live.Load() > 0 {
		select {
		case <-s.drained:
		case cmd := <-s.cmds:
			// A forcible stop during a graceful drain accelerates it.
			if cmd.forcible {
				cancelToken()
			}
		}
	}

	s.log.Info("server stopped")
	return nil
}

// acceptLoop pulls connections from the acceptor and hands them to the
// serve loop. Transient accept failures are logged and the loop
// continues; a single failed accept never terminates the server.
func (s *Server) acceptLoop(ctx context.Context, out chan<- conn.Accepted) {
	for {
		accepted, err := s.acceptor.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.ErrorContext(ctx, "failed to accept connection", slog.Any("error", err))
			if errors.Is(err, conn.ErrIdentityNotReady) {
				// Nothing to secure connections with yet; back off so
				// the error does not spin the loop.
				select {
				case <-time.After(100 * time.Millisecond):
				case <-ctx.Done():
					return
				}
			}
			continue
		}

		select {
		case out <- accepted:
		case <-ctx.Done():
			accepted.Close()
			return
		}
	}
}

func (s *Server) spawn(ctx context.Context, accepted conn.Accepted, streamHandler, h3Handler http.Handler) {
	s.live.Add(1)
	s.metrics.accepted.Inc()
	s.metrics.active.Inc()

	go func() {
		defer func() {
			s.metrics.active.Dec()
			if s.live.Add(-1) == 0 {
				select {
				case s.drained <- struct{}{}:
				default:
				}
			}
		}()

		s.serveConn(ctx, accepted, streamHandler, h3Handler)
	}()
}

func (s *Server) serveConn(ctx context.Context, accepted conn.Accepted, streamHandler, h3Handler http.Handler) {
	spanCtx := ctx
	if !s.disableTracing {
		var span trace.Span
		spanCtx, span = otel.Tracer("harbor").Start(ctx, "Server.serveConn", trace.WithAttributes(
			attribute.String("conn.id", uuid.NewString()),
			attribute.String("conn.remote_addr", accepted.RemoteAddr.String()),
			attribute.String("conn.scheme", string(accepted.Scheme)),
		))
		defer span.End()
	}
	defer accepted.Close()

	version := accepted.Version
	if version == conn.VersionUnset {
		version = s.negotiate(spanCtx, &accepted)
		if version == conn.VersionUnset {
			return
		}
	}

	var protocol conn.Protocol
	handler := streamHandler
	switch version {
	case conn.VersionHTTP11:
		protocol = s.http1
	case conn.VersionHTTP2:
		protocol = s.http2
	case conn.VersionHTTP3:
		protocol = s.http3
		handler = h3Handler
	default:
		s.log.ErrorContext(spanCtx, "no protocol builder for connection", slog.String("version", version.String()))
		return
	}

	err := protocol.Serve(spanCtx, accepted, handler, s.idleTimeout)
	if err != nil {
		s.log.WarnContext(spanCtx, "connection terminated with error",
			slog.String("version", version.String()),
			slog.String("remote_addr", accepted.RemoteAddr.String()),
			slog.Any("error", err),
		)
	}
}

// negotiate completes a deferred TLS handshake and maps the ALPN
// outcome to a protocol version. Absence of a recognized token
// defaults to HTTP/1.1. The handshake runs here, off the accept loop,
// so it is raced against the shutdown token like any other connection
// work; a failure costs only this connection.
func (s *Server) negotiate(ctx context.Context, accepted *conn.Accepted) conn.Version {
	tlsConn, ok := accepted.Conn.(*tls.Conn)
	if !ok {
		return conn.VersionHTTP11
	}

	err := tlsConn.HandshakeContext(ctx)
	if err != nil {
		s.metrics.handshakeFailures.Inc()
		s.log.DebugContext(ctx, "tls handshake failed",
			slog.String("remote_addr", accepted.RemoteAddr.String()),
			slog.Any("error", err),
		)
		return conn.VersionUnset
	}

	if tlsConn.ConnectionState().NegotiatedProtocol == alpnHTTP2 {
		return conn.VersionHTTP2
	}
	return conn.VersionHTTP11
}

type noopLogHandler struct{}

func (noopLogHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (noopLogHandler) Handle(context.Context, slog.Record) error { return nil }
func (h noopLogHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h noopLogHandler) WithGroup(string) slog.Handler           { return h }
