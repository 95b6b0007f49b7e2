// Package transport defines the link abstraction the dispatcher of a kBridge
// caller or backend exchanges encoded frames over.
//
// The package focuses on:
//   - A frame preserving, bidirectional link (ITransport) with a receive callback
//   - A listener (IListener) that hands the backend one link per caller
//
// Implementations live in sub packages: base (framing over any net.Conn),
// unix and tcp (connectors for base) and memory (in-process links for tests
// and for a backend embedded in the caller's process).
package transport
