package transport

import (
	"net"

	"github.com/ValentinKolb/marines/rpc/common"
)

// Response is the decoded form of a response frame
type Response struct {
	// Ok is false only if the credentials of the request were rejected
	Ok bool
	// Body is UTF-8 text, one line per entry
	Body []byte
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests.
// It is called by the server transport for every complete request payload,
// possibly from many goroutines at once. A returned error means the payload
// could not be understood and the connection is closed without a response.
type ServerHandleFunc func(req []byte) (resp Response, err error)

// IRPCServerTransport is the interface for the RPC transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers the handler that executes requests
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport and serves connections until Close is called.
	// It blocks and returns nil after a regular Close.
	Listen(config common.ServerConfig) error
	// Addr returns the listening address, nil until the transport listens
	Addr() net.Addr
	// Close stops the transport and closes all connections
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request payload and waits for its response
	Send(req []byte) (resp Response, err error)
	// Close closes the transport connection
	Close() error
}
