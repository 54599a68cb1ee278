// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/harbornet/harbor"
	"github.com/harbornet/harbor/app"
	"github.com/harbornet/harbor/conn"
)

func initRuntime(ctx context.Context) (app.Runtime, error) {
	logHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{AddSource: true})

	acceptor, err := conn.NewTCPListener(":8080").Bind(ctx)
	if err != nil {
		return nil, err
	}

	srv := harbor.NewServer(
		acceptor,
		harbor.LogHandler(logHandler),
	)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "hello")
	})

	return app.Server(srv, handler), nil
}

func main() {
	err := app.New(
		app.Name("simple_http"),
		app.WithRuntimeBuilderFunc(initRuntime),
	).Run()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
