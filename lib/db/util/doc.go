// Package util provides concurrency utilities shared by the storage and
// transport layers.
//
// The package contains:
//   - lockfreempsc: a lock-free multi-producer queue that delivers its items
//     through a channel. The server transport uses it as the task feed of its
//     worker pool: the reactor goroutine pushes one task per decoded request,
//     the workers range over Recv().
package util
