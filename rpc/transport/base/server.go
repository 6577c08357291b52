package base

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/ValentinKolb/marines/rpc/transport"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// SocketOption is a single integer socket option (setsockopt)
type SocketOption struct {
	Level int
	Name  int
	Value int
}

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// SocketOptions returns the options applied to every accepted connection
	SocketOptions(config common.ServerConfig) []SocketOption
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// reactorOptions are the limits of one event loop
type reactorOptions struct {
	workers    int
	maxPending int
	maxMessage int
	sockOpts   []SocketOption
}

// serverTransport implements the core server transport functionality.
// The event loop itself lives in the platform specific reactor.
type serverTransport struct {
	connector IServerConnector
	handler   transport.ServerHandleFunc

	mu      sync.Mutex
	reactor *reactor
	closed  bool

	addr atomic.Pointer[net.Addr]
}

// ErrClosed is returned by Listen if the transport was closed before it started
var ErrClosed = errors.New("transport closed")

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new server transport for the given connector
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{connector: connector}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return errors.New("no handler registered")
	}
	opts := reactorOptions{
		workers:    config.Transport.Workers,
		maxPending: config.Transport.MaxPendingPerConn,
		maxMessage: config.Transport.MaxMessageSize,
		sockOpts:   t.connector.SocketOptions(config),
	}
	if opts.workers <= 0 {
		opts.workers = runtime.NumCPU() * 2
	}
	if opts.maxPending <= 0 {
		opts.maxPending = common.DefaultMaxPendingPerConn
	}
	if opts.maxMessage <= 0 {
		opts.maxMessage = common.DefaultMaxMessageSize
	}

	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	addr := listener.Addr()

	r, err := newReactor(listener, t.handler, opts)
	if err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to start %s reactor: %w", t.connector.GetName(), err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		r.cleanup()
		return ErrClosed
	}
	t.reactor = r
	t.addr.Store(&addr)
	t.mu.Unlock()

	Logger.Infof("Starting %s server on %s with %d workers", t.connector.GetName(), addr, opts.workers)
	return r.run()
}

func (t *serverTransport) Addr() net.Addr {
	if a := t.addr.Load(); a != nil {
		return *a
	}
	return nil
}

func (t *serverTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.reactor != nil {
		t.reactor.shutdown()
	}
	return nil
}
