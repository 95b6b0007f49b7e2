// Package memory provides in-process links. They use the same framing as the
// socket transports over a synchronous net.Pipe, so a backend embedded in the
// caller's process behaves like a remote one.
package memory

import (
	"net"
	"sync"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/ValentinKolb/kBridge/rpc/transport"
	"github.com/ValentinKolb/kBridge/rpc/transport/base"
)

const name = "memory"

// NewPair returns the two connected ends of a new in-process link.
func NewPair() (transport.ITransport, transport.ITransport) {
	config := common.TransportConfig{Type: common.TransportMemory}
	a, b := net.Pipe()
	return base.NewConnTransport(a, name, config), base.NewConnTransport(b, name, config)
}

// Listener hands out the backend ends of links created by Dial.
type Listener struct {
	conns     chan transport.ITransport
	done      chan struct{}
	closeOnce sync.Once
}

// NewListener creates an in-process listener.
func NewListener() *Listener {
	return &Listener{
		conns: make(chan transport.ITransport),
		done:  make(chan struct{}),
	}
}

// Dial creates a link and returns the caller end once the backend end was
// accepted.
func (l *Listener) Dial() (transport.ITransport, error) {
	caller, backend := NewPair()
	select {
	case l.conns <- backend:
		return caller, nil
	case <-l.done:
		caller.Close()
		backend.Close()
		return nil, errs.Transportf("memory listener is closed")
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IListener)
// --------------------------------------------------------------------------

func (l *Listener) Accept() (transport.ITransport, error) {
	select {
	case t := <-l.conns:
		return t, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *Listener) Addr() string {
	return name
}

func (l *Listener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}
