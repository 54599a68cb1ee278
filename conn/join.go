// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package conn

import (
	"context"
	"errors"
	"net"
	"sync"
)

// JoinListeners combines multiple Listeners into one whose Acceptor
// yields connections from all of them. The usual pairing is a TLS
// wrapped TCP listener with a QUIC listener on the same port so one
// server serves HTTP/1.1, HTTP/2 and HTTP/3 together.
func JoinListeners(listeners ...Listener) Listener {
	return joinedListener{listeners: listeners}
}

type joinedListener struct {
	listeners []Listener
}

// Bind implements the Listener interface. A failure binding any
// member unbinds the ones already bound.
func (l joinedListener) Bind(ctx context.Context) (Acceptor, error) {
	inners := make([]Acceptor, 0, len(l.listeners))
	var holdings []Holding
	for _, lis := range l.listeners {
		inner, err := lis.Bind(ctx)
		if err != nil {
			for _, bound := range inners {
				bound.Close()
			}
			return nil, err
		}
		inners = append(inners, inner)
		holdings = append(holdings, inner.Holdings()...)
	}

	pumpCtx, stop := context.WithCancel(context.Background())
	return &joinedAcceptor{
		inners:   inners,
		holdings: holdings,
		results:  make(chan acceptResult),
		pumpCtx:  pumpCtx,
		stop:     stop,
	}, nil
}

type acceptResult struct {
	accepted Accepted
	err      error
}

type joinedAcceptor struct {
	inners   []Acceptor
	holdings []Holding
	results  chan acceptResult
	pumpCtx  context.Context
	stop     context.CancelFunc
	once     sync.Once
}

// Holdings implements the Acceptor interface.
func (a *joinedAcceptor) Holdings() []Holding {
	return a.holdings
}

// Accept implements the Acceptor interface. Each member acceptor is
// pumped on its own goroutine; transient member errors surface here
// one at a time, just as they would from the member directly.
func (a *joinedAcceptor) Accept(ctx context.Context) (Accepted, error) {
	a.once.Do(func() {
		for _, inner := range a.inners {
			go a.pump(inner)
		}
	})

	select {
	case <-ctx.Done():
		return Accepted{}, ctx.Err()
	case res := <-a.results:
		return res.accepted, res.err
	}
}

func (a *joinedAcceptor) pump(inner Acceptor) {
	for {
		accepted, err := inner.Accept(a.pumpCtx)
		if err != nil && (a.pumpCtx.Err() != nil || errors.Is(err, net.ErrClosed)) {
			return
		}

		select {
		case a.results <- acceptResult{accepted: accepted, err: err}:
		case <-a.pumpCtx.Done():
			if err == nil {
				accepted.Close()
			}
			return
		}
	}
}

// Close implements the Acceptor interface, closing every member.
func (a *joinedAcceptor) Close() error {
	a.stop()

	var errs []error
	for _, inner := range a.inners {
		err := inner.Close()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
