// Package transport defines the interfaces for moving request payloads and
// responses between client and server. It is independent of the payload
// encoding (see package serializer) and of the socket type.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Enabling multiple socket types (TCP, Unix sockets)
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and hands them to the registered handler.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
//   - Response: a success flag, which only reflects the credential check, and
//     a text body.
package transport
