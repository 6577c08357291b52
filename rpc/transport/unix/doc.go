// Package unix implements a transport for the marines server and client over
// Unix domain sockets, for clients running on the same machine. Like the tcp
// package it only provides connectors; everything else is inherited from the
// base package.
//
// The server removes a stale socket file before listening and deletes the
// socket file again on shutdown.
package unix
