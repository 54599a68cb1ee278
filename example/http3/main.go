// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Serves HTTP/1.1 and HTTP/2 over TLS on TCP :8443 alongside HTTP/3
// over QUIC on UDP :8443. Responses on the TCP side carry an Alt-Svc
// header advertising the QUIC endpoint.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/harbornet/harbor"
	"github.com/harbornet/harbor/app"
	"github.com/harbornet/harbor/conn"
	"github.com/harbornet/harbor/identity"
)

func initRuntime(ctx context.Context) (app.Runtime, error) {
	logHandler := slog.NewJSONHandler(os.Stderr, nil)

	id, err := identity.FromFiles("testdata/server.crt", "testdata/server.key")
	if err != nil {
		return nil, err
	}

	// Both endpoints resolve their certificate through the store so a
	// future hot swap applies to TCP and QUIC together.
	var store identity.Store
	store.Swap(id)

	listener := conn.JoinListeners(
		conn.NewTLSListener(
			conn.NewTCPListener(":8443"),
			identity.Static(id),
			conn.TLSLogHandler(logHandler),
			conn.ShareIdentity(&store),
		),
		conn.NewQUICListener(":8443", &tls.Config{
			GetCertificate: store.GetCertificate,
		}),
	)

	acceptor, err := listener.Bind(ctx)
	if err != nil {
		return nil, err
	}

	srv := harbor.NewServer(
		acceptor,
		harbor.LogHandler(logHandler),
	)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "hello over", r.Proto)
	})

	return app.Server(srv, handler), nil
}

func main() {
	err := app.New(
		app.Name("http3"),
		app.WithRuntimeBuilderFunc(initRuntime),
	).Run()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
