// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package observe

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestNoop(t *testing.T) {
	t.Run("returns the globally registered provider", func(t *testing.T) {
		tp, err := Noop().Init(context.Background())
		require.NoError(t, err)
		require.Equal(t, otel.GetTracerProvider(), tp)
	})
}

func TestStdout(t *testing.T) {
	t.Run("exports ended spans on shutdown", func(t *testing.T) {
		var buf bytes.Buffer

		shutdown, err := Register(context.Background(), Stdout(&buf, ServiceName("observe-test")))
		require.NoError(t, err)

		_, span := otel.Tracer("observe").Start(context.Background(), "test-span")
		span.End()

		require.NoError(t, shutdown(context.Background()))
		require.Contains(t, buf.String(), "test-span")
	})
}

func TestRegister(t *testing.T) {
	t.Run("noop provider yields a no-op shutdown", func(t *testing.T) {
		shutdown, err := Register(context.Background(), Noop())
		require.NoError(t, err)
		require.NoError(t, shutdown(context.Background()))
	})
}
