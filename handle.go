// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package harbor

import "time"

type serverCommand struct {
	forcible bool
	timeout  time.Duration
}

// ServerHandle stops a running Server from the outside. Handles may be
// freely copied and shared; every operation is a fire-and-forget send
// which becomes a no-op once the server has stopped.
type ServerHandle struct {
	cmds chan<- serverCommand
}

// StopForcible stops the server immediately. In-flight connections are
// abandoned at their next cooperative checkpoint.
func (h ServerHandle) StopForcible() {
	h.send(serverCommand{forcible: true})
}

// StopGraceful stops accepting new connections and waits for in-flight
// ones to finish. A positive timeout bounds the wait, after which
// remaining connections are forcibly abandoned; zero waits indefinitely.
func (h ServerHandle) StopGraceful(timeout time.Duration) {
	h.send(serverCommand{timeout: timeout})
}

func (h ServerHandle) send(cmd serverCommand) {
	select {
	case h.cmds <- cmd:
	default:
	}
}
