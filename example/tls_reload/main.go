// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Serves HTTPS with a certificate pair reloaded from disk whenever
// either file changes, e.g. after a certbot renewal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/harbornet/harbor"
	"github.com/harbornet/harbor/app"
	"github.com/harbornet/harbor/conn"
	"github.com/harbornet/harbor/identity"

	"golang.org/x/sync/errgroup"
)

func initRuntime(ctx context.Context) (app.Runtime, error) {
	logHandler := slog.NewJSONHandler(os.Stderr, nil)

	source := identity.NewFileSource(
		"testdata/server.crt",
		"testdata/server.key",
		identity.FileSourceLogHandler(logHandler),
	)

	listener := conn.NewTLSListener(
		conn.NewTCPListener(":8443"),
		source,
		conn.TLSLogHandler(logHandler),
	)

	acceptor, err := listener.Bind(ctx)
	if err != nil {
		return nil, err
	}

	srv := harbor.NewServer(
		acceptor,
		harbor.LogHandler(logHandler),
		harbor.ConnIdleTimeout(time.Minute),
	)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "hello over", r.Proto)
	})

	return runtimeFunc(func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return source.Watch(gctx)
		})
		g.Go(func() error {
			return srv.Serve(gctx, handler)
		})
		return g.Wait()
	}), nil
}

type runtimeFunc func(context.Context) error

func (f runtimeFunc) Run(ctx context.Context) error {
	return f(ctx)
}

func main() {
	err := app.New(
		app.Name("tls_reload"),
		app.WithRuntimeBuilderFunc(initRuntime),
	).Run()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
