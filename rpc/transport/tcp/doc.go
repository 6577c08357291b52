// Package tcp implements the TCP transport of the marines server and client.
// It only provides connectors for the base package, which owns framing, the
// event loop and the client logic.
//
// Key Components:
//
//   - clientConnector: dials the server and applies TCP_NODELAY if configured
//
//   - serverConnector: creates the listener and translates the tcp settings
//     (no delay, keep-alive) into socket options for accepted connections
package tcp
