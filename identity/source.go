// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package identity

import (
	"crypto/tls"
	"sync/atomic"
)

// Loader is anything convertible into an Identity. Conversion is
// deferred until the consumer observes the update so that superseded
// updates are never parsed at all.
type Loader interface {
	Load() (Identity, error)
}

// LoaderFunc is a func variant of the Loader interface.
type LoaderFunc func() (Identity, error)

// Load implements the Loader interface.
func (f LoaderFunc) Load() (Identity, error) {
	return f()
}

// Source is an asynchronous, possibly infinite sequence of identity
// updates. Receiving from Updates must never block the producer and
// consumers are expected to drain it without suspending, keeping only
// the most recent value.
type Source interface {
	Updates() <-chan Loader
}

type staticSource struct {
	ch chan Loader
}

// Static returns a Source which delivers the given Loader once
// and then never updates again.
func Static(l Loader) Source {
	ch := make(chan Loader, 1)
	ch <- l
	close(ch)
	return staticSource{ch: ch}
}

// Updates implements the Source interface.
func (s staticSource) Updates() <-chan Loader {
	return s.ch
}

type chanSource <-chan Loader

// FromChan adapts a plain channel into a Source. The caller owns the
// channel and may close it to signal that no further updates will arrive.
func FromChan(ch <-chan Loader) Source {
	return chanSource(ch)
}

// Updates implements the Source interface.
func (s chanSource) Updates() <-chan Loader {
	return s
}

// Store shares the active identity between the accept path, which
// replaces it, and connection serving tasks, which read it. Replacement
// is a single atomic pointer swap.
type Store struct {
	v atomic.Pointer[Identity]
}

// Swap replaces the active identity.
func (s *Store) Swap(id Identity) {
	s.v.Store(&id)
}

// Latest returns the active identity, if one has ever been stored.
func (s *Store) Latest() (Identity, bool) {
	p := s.v.Load()
	if p == nil {
		return Identity{}, false
	}
	return *p, true
}

// GetCertificate implements the tls.Config.GetCertificate contract,
// allowing a QUIC or TLS listener to pick up identity swaps without
// rebuilding its config.
func (s *Store) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	id, ok := s.Latest()
	if !ok {
		return nil, InvalidMaterialError{Cause: errNoIdentity}
	}
	cert := id.Certificate()
	return &cert, nil
}

type notReadyError struct{}

func (notReadyError) Error() string { return "no identity has been loaded" }

var errNoIdentity = notReadyError{}
