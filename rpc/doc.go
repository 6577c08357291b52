// Package rpc is the communication layer of the marines server. Clients send
// one request per frame, every request carries the credentials of its user,
// and the server answers with a success flag and a text body.
//
// The package is organized into several subpackages:
//
//   - common: The Request and Command types with their factories, server and
//     client configuration, loggers and metrics.
//
//   - transport: Network communication abstractions with pluggable listeners
//     (TCP, Unix sockets). The server side runs a single epoll event loop
//     feeding a worker pool.
//
//   - serializer: Request serialization with multiple format options (JSON, GOB, Binary)
//     for converting between Request objects and byte arrays.
//
//   - client: A typed client with one method per command and the password
//     digest used for authentication.
//
//   - server: Authentication, command dispatch against the marine store and
//     rendering of the response lines.
package rpc
