// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	t.Run("no sources yields an empty manager", func(t *testing.T) {
		m, err := Read()
		require.NoError(t, err)

		var cfg struct {
			Addr string `harbor:"addr"`
		}
		require.NoError(t, m.Unmarshal(&cfg))
		require.Empty(t, cfg.Addr)
	})

	t.Run("later sources override earlier ones", func(t *testing.T) {
		m, err := Read(
			Map{"addr": ":8080", "name": "first"},
			Map{"addr": ":9090"},
		)
		require.NoError(t, err)

		var cfg struct {
			Addr string `harbor:"addr"`
			Name string `harbor:"name"`
		}
		require.NoError(t, m.Unmarshal(&cfg))
		require.Equal(t, ":9090", cfg.Addr)
		require.Equal(t, "first", cfg.Name)
	})
}

func TestManager_Unmarshal(t *testing.T) {
	t.Run("nested keys map to nested structs", func(t *testing.T) {
		m, err := Read(FromYaml(strings.NewReader(`
server:
  addr: ":8443"
  drain_timeout: 30s
`)))
		require.NoError(t, err)

		var cfg struct {
			Server struct {
				Addr         string        `harbor:"addr"`
				DrainTimeout time.Duration `harbor:"drain_timeout"`
			} `harbor:"server"`
		}
		require.NoError(t, m.Unmarshal(&cfg))
		require.Equal(t, ":8443", cfg.Server.Addr)
		require.Equal(t, 30*time.Second, cfg.Server.DrainTimeout)
	})

	t.Run("duration accepts integer nanoseconds", func(t *testing.T) {
		m, err := Read(Map{"timeout": int(time.Minute)})
		require.NoError(t, err)

		var cfg struct {
			Timeout time.Duration `harbor:"timeout"`
		}
		require.NoError(t, m.Unmarshal(&cfg))
		require.Equal(t, time.Minute, cfg.Timeout)
	})

	t.Run("string decodes into a TextUnmarshaler", func(t *testing.T) {
		m, err := Read(Map{"started_at": "2026-01-02T15:04:05Z"})
		require.NoError(t, err)

		var cfg struct {
			StartedAt time.Time `harbor:"started_at"`
		}
		require.NoError(t, m.Unmarshal(&cfg))
		require.Equal(t, time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC), cfg.StartedAt)
	})

	t.Run("uncoercible value fails with a TypeCoercionError", func(t *testing.T) {
		m, err := Read(Map{"timeout": "not a duration"})
		require.NoError(t, err)

		var cfg struct {
			Timeout time.Duration `harbor:"timeout"`
		}
		err = m.Unmarshal(&cfg)
		require.Error(t, err)

		var tce TypeCoercionError
		require.ErrorAs(t, err, &tce)
	})
}
