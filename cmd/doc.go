// Package cmd implements the command-line interface of marines. It provides
// a hierarchical command structure with operations for running the server
// and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - marine: Commands sent to a running server (insert, show, info, etc.) and a benchmark
//   - serve: Commands for starting and configuring the server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set with an environment variable named
// MARINES_<FLAG> (e.g. MARINES_ENDPOINT=localhost:3345), .env and .env.local
// files in the working directory are loaded as well.
//
// See marines -help for a list of all commands.
package cmd
