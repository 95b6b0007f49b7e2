// Package unix links a caller and a backend on the same machine over a Unix
// domain socket. The backend owns the socket file and replaces a stale one
// left behind by a previous run.
package unix
