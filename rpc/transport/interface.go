package transport

// --------------------------------------------------------------------------
// Link Transport
// --------------------------------------------------------------------------

// ReceiveFunc is called by a transport for every frame received from the
// peer. Frames are handed over in arrival order from a single goroutine; the
// callee owns the slice.
type ReceiveFunc func(frame []byte)

// ITransport is one end of a bidirectional, frame preserving link between a
// caller and the backend. Delivery is best effort: a frame handed to Send may
// still be lost if the peer goes away.
type ITransport interface {
	// Send writes one frame to the peer. It reports whether the transport
	// accepted the frame; a false result is the retryable "send failed".
	Send(frame []byte) bool
	// SetReceiver installs the callback for received frames and starts
	// reading. It must be called exactly once.
	SetReceiver(fn ReceiveFunc)
	// Done is closed once the link is broken or closed
	Done() <-chan struct{}
	// Close closes the link. Further sends fail.
	Close() error
}

// --------------------------------------------------------------------------
// Listener
// --------------------------------------------------------------------------

// IListener accepts links initiated by callers on the backend side.
type IListener interface {
	// Accept blocks until a caller connects and returns the backend end of
	// the new link
	Accept() (ITransport, error)
	// Addr returns the endpoint the listener is bound to
	Addr() string
	// Close stops accepting. Links already accepted stay open.
	Close() error
}
