//go:build !linux

package base

import (
	"errors"
	"net"

	"github.com/ValentinKolb/marines/rpc/transport"
)

// reactor is not available on this platform
type reactor struct{}

func newReactor(_ net.Listener, _ transport.ServerHandleFunc, _ reactorOptions) (*reactor, error) {
	return nil, errors.New("the server event loop requires linux (epoll)")
}

func (r *reactor) run() error { return nil }

func (r *reactor) shutdown() {}

func (r *reactor) cleanup() {}
