// Package rpc implements the link between kBridge callers and the backend.
// Callers send framed binary commands, the backend answers each one with a
// frame carrying the same request id.
//
// The package is organized into several subpackages:
//
//   - common: Command and field types, result codes, configuration structures
//     and logging.
//
//   - codec: The Command type and its binary frame encoding.
//
//   - transport: Link abstractions with pluggable implementations
//     (Unix sockets, TCP, in-process memory).
//
//   - dispatcher: Request ids, bounded send retries, liveness probes and the
//     routing of received frames to processors.
//
//   - correlator: Matches responses to waiting callers within a bounded pool
//     of waiter slots.
//
//   - client: Typed calls for storage, crypto and certificate commands.
//
//   - server: The backend. It routes every request to the processor of its
//     command type.
package rpc
