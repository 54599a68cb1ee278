// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package try

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecover(t *testing.T) {
	t.Run("no panic leaves the error untouched", func(t *testing.T) {
		var err error
		func() {
			defer Recover(&err)
		}()
		require.NoError(t, err)
	})

	t.Run("panic value is wrapped in a PanicError", func(t *testing.T) {
		var err error
		func() {
			defer Recover(&err)
			panic("boom")
		}()

		var perr PanicError
		require.ErrorAs(t, err, &perr)
		require.Equal(t, "boom", perr.Value)
	})

	t.Run("panic with an error value unwraps to it", func(t *testing.T) {
		cause := errors.New("underlying")

		var err error
		func() {
			defer Recover(&err)
			panic(cause)
		}()

		require.ErrorIs(t, err, cause)
	})

	t.Run("panic joins with an already returned error", func(t *testing.T) {
		alreadyFailed := errors.New("already failed")

		var err error
		func() {
			defer Recover(&err)
			err = alreadyFailed
			panic("boom")
		}()

		require.ErrorIs(t, err, alreadyFailed)

		var perr PanicError
		require.ErrorAs(t, err, &perr)
	})
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

func TestClose(t *testing.T) {
	t.Run("non closer values are ignored", func(t *testing.T) {
		var err error
		Close(&err, "not a closer")
		require.NoError(t, err)
	})

	t.Run("close error is propagated", func(t *testing.T) {
		closeErr := errors.New("close failed")

		var err error
		Close(&err, closerFunc(func() error {
			return closeErr
		}))
		require.ErrorIs(t, err, closeErr)
	})

	t.Run("close error joins an existing error", func(t *testing.T) {
		closeErr := errors.New("close failed")
		existing := errors.New("existing")

		err := existing
		Close(&err, closerFunc(func() error {
			return closeErr
		}))
		require.ErrorIs(t, err, existing)
		require.ErrorIs(t, err, closeErr)
	})
}
