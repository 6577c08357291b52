package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Defaults shared by the cli and the tests
const (
	DefaultEndpoint          = "0.0.0.0:3345"
	DefaultMaxPendingPerConn = 32
	DefaultMaxMessageSize    = 4 << 20 // 4 MiB
	DefaultDBTimeout         = 5 * time.Second
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerTransportConfig holds the network settings of the server
type ServerTransportConfig struct {
	// Endpoint is the address (tcp) or socket path (unix) to listen on
	Endpoint string
	// Workers is the number of goroutines executing requests
	Workers int
	// MaxPendingPerConn is the number of unanswered requests after which the
	// server stops reading from a connection
	MaxPendingPerConn int
	// MaxMessageSize is the largest request payload accepted
	MaxMessageSize int
	// TCPNoDelay disables Nagle's algorithm on accepted tcp connections
	TCPNoDelay bool
	// TCPKeepAlive enables tcp keep-alive packets on accepted connections
	TCPKeepAlive bool
}

// BackendConfig selects and configures the durable store
type BackendConfig struct {
	// Type is one of memory, sqlite, postgres
	Type string
	// Path is the database file for sqlite
	Path string
	// DSN is the connection string for postgres
	DSN string
	// Timeout bounds every backend call
	Timeout time.Duration
}

// ServerConfig holds all configuration parameters of a server process.
type ServerConfig struct {
	Transport  ServerTransportConfig
	Serializer string
	Backend    BackendConfig

	// MetricsEndpoint serves prometheus metrics over http if not empty
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Serializer", c.Serializer)
	addField("Workers", fmt.Sprintf("%d", c.Transport.Workers))
	addField("Max Pending / Conn", fmt.Sprintf("%d", c.Transport.MaxPendingPerConn))
	addField("Max Message Size", humanize.IBytes(uint64(c.Transport.MaxMessageSize)))
	addField("TCP No Delay", fmt.Sprintf("%t", c.Transport.TCPNoDelay))
	addField("TCP Keep Alive", fmt.Sprintf("%t", c.Transport.TCPKeepAlive))

	addSection("Backend")
	addField("Type", c.Backend.Type)
	switch c.Backend.Type {
	case "sqlite":
		addField("Path", c.Backend.Path)
	case "postgres":
		addField("DSN", redactDSN(c.Backend.DSN))
	}
	addField("Timeout", c.Backend.Timeout.String())

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	if c.MetricsEndpoint != "" {
		addField("Metrics", c.MetricsEndpoint)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the network settings of a client
type ClientTransportConfig struct {
	Endpoint   string
	RetryCount int
	TCPNoDelay bool
}

type ClientConfig struct {
	Transport     ClientTransportConfig
	Serializer    string
	TimeoutSecond int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Serializer", c.Serializer)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", fmt.Sprintf("%d", c.Transport.RetryCount))

	return sb.String()
}

// redactDSN hides the password of a postgres url
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		return dsn[:scheme+3] + creds[:i] + ":***" + dsn[at:]
	}
	return dsn
}
