// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package conn

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/stretchr/testify/require"
)

func TestHTTP3Builder_Serve(t *testing.T) {
	t.Run("rejects a non quic accept", func(t *testing.T) {
		b := &HTTP3Builder{}
		err := b.Serve(context.Background(), Accepted{}, http.NotFoundHandler(), 0)
		require.ErrorIs(t, err, ErrUnsupportedConn)
	})

	t.Run("a failing stream does not disturb its siblings", func(t *testing.T) {
		acceptor, err := NewQUICListener("127.0.0.1:0", testIdentity(t).Config()).Bind(context.Background())
		require.NoError(t, err)
		defer acceptor.Close()

		addr := acceptor.Holdings()[0].Addr.String()

		serveCtx, stopServe := context.WithCancel(context.Background())
		defer stopServe()

		go func() {
			accepted, err := acceptor.Accept(serveCtx)
			if err != nil {
				return
			}

			b := &HTTP3Builder{}
			b.Serve(serveCtx, accepted, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/fail" {
					http.Error(w, "stream failed", http.StatusInternalServerError)
					return
				}
				io.WriteString(w, "ok")
			}), 0)
		}()

		transport := &http3.Transport{
			TLSClientConfig: &tls.Config{
				ServerName:         "localhost",
				InsecureSkipVerify: true,
			},
		}
		defer transport.Close()

		client := &http.Client{
			Transport: transport,
			Timeout:   5 * time.Second,
		}

		paths := []string{"/first", "/fail", "/third"}
		codes := make([]int, len(paths))

		var wg sync.WaitGroup
		for i, path := range paths {
			wg.Add(1)
			go func() {
				defer wg.Done()

				resp, err := client.Get("https://" + addr + path)
				if err != nil {
					return
				}
				defer resp.Body.Close()

				io.Copy(io.Discard, resp.Body)
				codes[i] = resp.StatusCode
			}()
		}
		wg.Wait()

		require.Equal(t, http.StatusOK, codes[0])
		require.Equal(t, http.StatusInternalServerError, codes[1])
		require.Equal(t, http.StatusOK, codes[2])
	})
}

func TestHTTP3Builder_dispatch(t *testing.T) {
	t.Run("ordinary requests reach the handler", func(t *testing.T) {
		b := &HTTP3Builder{}
		h := b.dispatch(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "handled")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "https://test/", nil))

		require.Equal(t, "handled", rec.Body.String())
	})

	t.Run("webtransport connect without an upgrade handler gets 501", func(t *testing.T) {
		b := &HTTP3Builder{}
		h := b.dispatch(http.NotFoundHandler())

		req := httptest.NewRequest(http.MethodConnect, "https://test/", nil)
		req.Proto = webTransportProtocol

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotImplemented, rec.Code)
	})

	t.Run("webtransport connect is diverted to the upgrade handler", func(t *testing.T) {
		upgraded := false
		b := &HTTP3Builder{
			UpgradeWebTransport: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				upgraded = true
				w.WriteHeader(http.StatusOK)
			}),
		}
		h := b.dispatch(http.NotFoundHandler())

		req := httptest.NewRequest(http.MethodConnect, "https://test/", nil)
		req.Proto = webTransportProtocol

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.True(t, upgraded)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}
