package base

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/ValentinKolb/marines/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

// ErrNotConnected is returned by Send before Connect or after Close
var ErrNotConnected = errors.New("client transport is not connected")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.).
//
// The server answers the requests of one connection in order, so a single
// connection with one request in flight needs no request ids.
type clientTransport struct {
	connector IClientConnector
	config    common.ClientConfig

	mu     sync.Mutex // serializes requests and guards conn
	conn   net.Conn
	closed bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{connector: connector}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if config.Transport.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.config = config
	t.closed = false
	t.dropLocked()

	if err := t.dialLocked(); err != nil {
		return err
	}
	Logger.Infof("Connected to %s using %s transport", config.Transport.Endpoint, t.connector.GetName())
	return nil
}

func (t *clientTransport) Send(req []byte) (transport.Response, error) {
	frame, err := EncodeRequest(req)
	if err != nil {
		return transport.Response{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.config.Transport.Endpoint == "" {
		return transport.Response{}, ErrNotConnected
	}

	// We always try at least once, and up to RetryCount times
	maxRetries := t.config.Transport.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}

		if t.conn == nil {
			if err := t.dialLocked(); err != nil {
				lastErr = err
				Logger.Debugf("Reconnect attempt %d/%d failed: %v", i+1, maxRetries, err)
				continue
			}
		}

		t.deadlineLocked()
		if _, err := t.conn.Write(frame); err != nil {
			// the server closes connections with a broken frame, so a
			// partly written request was never executed and can be retried
			lastErr = err
			t.dropLocked()
			Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, err)
			continue
		}

		resp, err := ReadResponse(t.conn)
		if err != nil {
			// the request might have been executed, do not send it twice
			t.dropLocked()
			return transport.Response{}, fmt.Errorf("error reading response: %w", err)
		}
		return resp, nil
	}

	return transport.Response{}, fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, lastErr)
}

func (t *clientTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.dropLocked()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods (callers hold t.mu)
// --------------------------------------------------------------------------

// dialLocked establishes and upgrades a new connection
func (t *clientTransport) dialLocked() error {
	endpoint := t.config.Transport.Endpoint
	conn, err := t.connector.Connect(endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %w", endpoint, err)
	}

	t.conn = conn
	return nil
}

// dropLocked closes the current connection; the next Send reconnects
func (t *clientTransport) dropLocked() {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}

// deadlineLocked bounds the next request by the configured timeout
func (t *clientTransport) deadlineLocked() {
	if t.config.TimeoutSecond <= 0 {
		_ = t.conn.SetDeadline(time.Time{})
		return
	}
	timeout := time.Duration(t.config.TimeoutSecond) * time.Second
	_ = t.conn.SetDeadline(time.Now().Add(timeout))
}
