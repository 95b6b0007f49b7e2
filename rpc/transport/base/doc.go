// Package base implements the stream framing shared by the kBridge
// transports, independent of the medium (unix socket, tcp, in-process pipe).
//
// Every frame is written with a 4 byte little endian length prefix in front
// of the encoded command. Header and frame leave in a single write
// (net.Buffers) under a per-link write lock; a single goroutine per link
// reads frames and hands them to the receiver.
//
// Key Components:
//
//   - IConnector: medium specific dial/listen/upgrade operations, implemented
//     by the unix and tcp packages.
//
//   - NewConnTransport: wraps any net.Conn into a transport.ITransport.
//
//   - Dial / Listen: caller and backend entry points using a connector.
package base
