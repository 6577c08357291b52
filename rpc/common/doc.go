// Package common provides the data structures shared by the server, the
// client and the transports of the marine service.
//
// The package focuses on:
//   - Request protocol definition (request kinds and the command union)
//   - Configuration structures for client and server components
//   - Custom logging implementation on top of the dragonboat logger package
//   - Process wide metrics
//
// Key Components:
//
//   - Request: payload of every request frame. It carries the credentials of
//     the caller and, for normal requests, one Command. Factory functions
//     build every request and command variant.
//
//   - CommandType / RequestKind: closed enumerations of the supported
//     commands and request kinds, serialized by name in JSON.
//
//   - ServerConfig / ClientConfig: settings of the processes, printable as a
//     table via String().
//
//   - Logger: InitLoggers installs a factory that formats every line as
//     "LEVEL | logger name | message" and sets the level of all named loggers.
//
//   - Metrics: VictoriaMetrics counters exported in prometheus format and
//     go-metrics timers measuring the latency of each command.
package common
