// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"testing"

	"github.com/harbornet/harbor/config/key"

	"github.com/stretchr/testify/require"
)

func TestMap_Set(t *testing.T) {
	testCases := []struct {
		name     string
		key      key.Keyer
		value    any
		expected Map
	}{
		{
			name:     "single name key",
			key:      key.Name("addr"),
			value:    ":8080",
			expected: Map{"addr": ":8080"},
		},
		{
			name:  "key chain creates nested maps",
			key:   key.Chain{key.Name("server"), key.Name("addr")},
			value: ":8080",
			expected: Map{
				"server": map[string]any{"addr": ":8080"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := make(Map)
			require.NoError(t, m.Set(tc.key, tc.value))
			require.Equal(t, tc.expected, m)
		})
	}

	t.Run("empty chain fails", func(t *testing.T) {
		m := make(Map)
		err := m.Set(key.Chain{}, "value")

		var ekce EmptyKeyChainError
		require.ErrorAs(t, err, &ekce)
	})

	t.Run("chaining through a scalar fails", func(t *testing.T) {
		m := Map{"server": ":8080"}
		err := m.Set(key.Chain{key.Name("server"), key.Name("addr")}, ":9090")

		var ukvte UnexpectedKeyValueTypeError
		require.ErrorAs(t, err, &ukvte)
	})
}

func TestMap_Apply(t *testing.T) {
	t.Run("nested maps walk into key chains", func(t *testing.T) {
		src := Map{
			"server": map[string]any{
				"tls": map[string]any{
					"cert_file": "server.crt",
				},
			},
		}

		store := make(Map)
		require.NoError(t, src.Apply(store))
		require.Equal(t, Map{
			"server": map[string]any{
				"tls": map[string]any{
					"cert_file": "server.crt",
				},
			},
		}, store)
	})
}
