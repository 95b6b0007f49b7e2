// Package tcp links a caller and a backend over TCP, e.g. when the backend
// runs in a separate container or on a separate host.
//
// Accepted and dialed connections are upgraded with the TCP options of the
// transport configuration (TCP_NODELAY, keep-alive period).
package tcp
