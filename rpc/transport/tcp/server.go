package tcp

import (
	"fmt"
	"net"
	"syscall"

	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/ValentinKolb/marines/rpc/transport"
	"github.com/ValentinKolb/marines/rpc/transport/base"
)

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %v", err)
	}
	return listener, nil
}

// SocketOptions translates the tcp settings of the config into socket options
func (c *serverConnector) SocketOptions(config common.ServerConfig) []base.SocketOption {
	opts := []base.SocketOption{
		{Level: syscall.IPPROTO_TCP, Name: syscall.TCP_NODELAY, Value: boolToInt(config.Transport.TCPNoDelay)},
	}
	if config.Transport.TCPKeepAlive {
		opts = append(opts, base.SocketOption{Level: syscall.SOL_SOCKET, Name: syscall.SO_KEEPALIVE, Value: 1})
	}
	return opts
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPServerTransport creates a new TCP server transport
func NewTCPServerTransport() transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
