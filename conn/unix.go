// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

//go:build unix

package conn

import (
	"context"
	"io/fs"
	"net"
	"os"
)

type unixOptions struct {
	mode  *fs.FileMode
	owner *struct{ uid, gid int }
}

// UnixOption configures a UnixListener.
type UnixOption func(*unixOptions)

// SocketPermissions sets the file mode applied to the socket path after bind.
func SocketPermissions(mode fs.FileMode) UnixOption {
	return func(o *unixOptions) {
		o.mode = &mode
	}
}

// SocketOwner sets the uid and gid applied to the socket path after
// bind. Pass -1 to leave either unchanged.
func SocketOwner(uid, gid int) UnixOption {
	return func(o *unixOptions) {
		o.owner = &struct{ uid, gid int }{uid: uid, gid: gid}
	}
}

// UnixListener binds a Unix domain socket.
type UnixListener struct {
	path string
	opts unixOptions
}

// NewUnixListener returns a UnixListener for the given socket path.
func NewUnixListener(path string, opts ...UnixOption) *UnixListener {
	uo := unixOptions{}
	for _, opt := range opts {
		opt(&uo)
	}
	return &UnixListener{path: path, opts: uo}
}

// Bind implements the Listener interface. Permission and ownership
// bits, when configured, are applied to the socket path after bind;
// a failure to apply them closes the listener and fails the bind.
func (l *UnixListener) Bind(ctx context.Context) (Acceptor, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", l.path)
	if err != nil {
		return nil, err
	}

	if l.opts.mode != nil {
		err = os.Chmod(l.path, *l.opts.mode)
		if err != nil {
			ln.Close()
			return nil, err
		}
	}
	if l.opts.owner != nil {
		err = os.Chown(l.path, l.opts.owner.uid, l.opts.owner.gid)
		if err != nil {
			ln.Close()
			return nil, err
		}
	}

	return &streamAcceptor{
		ln: ln,
		holdings: []Holding{{
			Addr:     ln.Addr(),
			Versions: []Version{VersionHTTP11},
			Scheme:   SchemeHTTP,
		}},
	}, nil
}
