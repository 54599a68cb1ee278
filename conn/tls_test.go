// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package conn

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync/atomic"
	"testing"

	"github.com/harbornet/harbor/identity"

	"github.com/stretchr/testify/require"
)

// chanListener feeds pre-made connections to whatever wraps it.
type chanListener struct {
	conns chan net.Conn
}

func newChanListener(n int) *chanListener {
	return &chanListener{conns: make(chan net.Conn, n)}
}

func (l *chanListener) Bind(ctx context.Context) (Acceptor, error) {
	return l, nil
}

func (l *chanListener) Holdings() []Holding {
	return []Holding{{
		Addr:     &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4321},
		Versions: []Version{VersionHTTP11},
		Scheme:   SchemeHTTP,
	}}
}

func (l *chanListener) Accept(ctx context.Context) (Accepted, error) {
	select {
	case <-ctx.Done():
		return Accepted{}, ctx.Err()
	case c := <-l.conns:
		return Accepted{
			Conn:       c,
			LocalAddr:  c.LocalAddr(),
			RemoteAddr: c.RemoteAddr(),
			Version:    VersionHTTP11,
			Scheme:     SchemeHTTP,
		}, nil
	}
}

func (l *chanListener) Close() error {
	return nil
}

func queueConn(t *testing.T, l *chanListener) net.Conn {
	t.Helper()

	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	l.conns <- server
	return client
}

func TestTLSListener_Bind(t *testing.T) {
	t.Run("derives https holdings with http2 added", func(t *testing.T) {
		inner := newChanListener(0)
		src := identity.Static(testIdentity(t))

		acceptor, err := NewTLSListener(inner, src).Bind(context.Background())
		require.NoError(t, err)
		defer acceptor.Close()

		holdings := acceptor.Holdings()
		require.Len(t, holdings, 1)
		require.Equal(t, SchemeHTTPS, holdings[0].Scheme)
		require.Equal(t, []Version{VersionHTTP11, VersionHTTP2}, holdings[0].Versions)
	})
}

func TestTLSListener_Accept(t *testing.T) {
	t.Run("fails before any identity has loaded", func(t *testing.T) {
		inner := newChanListener(1)
		updates := make(chan identity.Loader)

		acceptor, err := NewTLSListener(inner, identity.FromChan(updates)).Bind(context.Background())
		require.NoError(t, err)
		defer acceptor.Close()

		queueConn(t, inner)

		_, err = acceptor.Accept(context.Background())
		require.ErrorIs(t, err, ErrIdentityNotReady)
	})

	t.Run("wraps the connection without handshaking", func(t *testing.T) {
		inner := newChanListener(1)

		acceptor, err := NewTLSListener(inner, identity.Static(testIdentity(t))).Bind(context.Background())
		require.NoError(t, err)
		defer acceptor.Close()

		queueConn(t, inner)

		accepted, err := acceptor.Accept(context.Background())
		require.NoError(t, err)
		defer accepted.Close()

		require.Equal(t, VersionUnset, accepted.Version)
		require.Equal(t, SchemeHTTPS, accepted.Scheme)

		_, ok := accepted.Conn.(*tls.Conn)
		require.True(t, ok)
	})

	t.Run("drains to the latest queued update", func(t *testing.T) {
		inner := newChanListener(1)
		updates := make(chan identity.Loader, 4)

		var loadedFirst, loadedSecond, loadedThird atomic.Bool
		id := testIdentity(t)

		updates <- identity.LoaderFunc(func() (identity.Identity, error) {
			loadedFirst.Store(true)
			return id, nil
		})
		updates <- identity.LoaderFunc(func() (identity.Identity, error) {
			loadedSecond.Store(true)
			return id, nil
		})
		updates <- identity.LoaderFunc(func() (identity.Identity, error) {
			loadedThird.Store(true)
			return id, nil
		})

		acceptor, err := NewTLSListener(inner, identity.FromChan(updates)).Bind(context.Background())
		require.NoError(t, err)
		defer acceptor.Close()

		queueConn(t, inner)

		_, err = acceptor.Accept(context.Background())
		require.NoError(t, err)

		require.False(t, loadedFirst.Load())
		require.False(t, loadedSecond.Load())
		require.True(t, loadedThird.Load())
	})

	t.Run("failed load keeps the previous identity active", func(t *testing.T) {
		inner := newChanListener(2)
		updates := make(chan identity.Loader, 2)
		updates <- testIdentity(t)

		acceptor, err := NewTLSListener(inner, identity.FromChan(updates)).Bind(context.Background())
		require.NoError(t, err)
		defer acceptor.Close()

		queueConn(t, inner)
		_, err = acceptor.Accept(context.Background())
		require.NoError(t, err)

		updates <- identity.LoaderFunc(func() (identity.Identity, error) {
			return identity.Identity{}, errors.New("corrupt material")
		})

		queueConn(t, inner)
		_, err = acceptor.Accept(context.Background())
		require.NoError(t, err)
	})

	t.Run("publishes applied identities to a shared store", func(t *testing.T) {
		inner := newChanListener(1)

		var store identity.Store
		listener := NewTLSListener(
			inner,
			identity.Static(testIdentity(t)),
			ShareIdentity(&store),
		)

		acceptor, err := listener.Bind(context.Background())
		require.NoError(t, err)
		defer acceptor.Close()

		_, ok := store.Latest()
		require.False(t, ok)

		queueConn(t, inner)
		_, err = acceptor.Accept(context.Background())
		require.NoError(t, err)

		_, ok = store.Latest()
		require.True(t, ok)
	})

	t.Run("full handshake succeeds against the served certificate", func(t *testing.T) {
		tcp := NewTCPListener("127.0.0.1:0")
		acceptor, err := NewTLSListener(tcp, identity.Static(testIdentity(t))).Bind(context.Background())
		require.NoError(t, err)
		defer acceptor.Close()

		addr := acceptor.Holdings()[0].Addr.String()

		dialDone := make(chan error, 1)
		go func() {
			client, err := tls.Dial("tcp", addr, &tls.Config{
				ServerName:         "localhost",
				InsecureSkipVerify: true,
				NextProtos:         []string{"h2", "http/1.1"},
			})
			if err == nil {
				err = client.Handshake()
				client.Close()
			}
			dialDone <- err
		}()

		accepted, err := acceptor.Accept(context.Background())
		require.NoError(t, err)
		defer accepted.Close()

		tlsConn := accepted.Conn.(*tls.Conn)
		require.NoError(t, tlsConn.HandshakeContext(context.Background()))
		require.Equal(t, "h2", tlsConn.ConnectionState().NegotiatedProtocol)

		require.NoError(t, <-dialDone)
	})
}
