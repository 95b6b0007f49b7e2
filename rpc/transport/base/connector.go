package base

import (
	"net"
	"time"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/ValentinKolb/kBridge/rpc/transport"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IConnector defines the medium specific operations of a stream transport
type IConnector interface {
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// Dial establishes a single connection to the endpoint
	Dial(endpoint string, timeout time.Duration) (net.Conn, error)

	// Listen creates a listener on the endpoint
	Listen(endpoint string) (net.Listener, error)

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.TransportConfig) error
}

// -----------------------------------------------------------
// Caller side
// -----------------------------------------------------------

// Dial connects to the backend at config.Endpoint using the connector.
func Dial(connector IConnector, config common.TransportConfig) (transport.ITransport, error) {
	timeout := time.Duration(config.TimeoutSecond) * time.Second

	conn, err := connector.Dial(config.Endpoint, timeout)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrTransport, err, "failed to connect to %s", config.Endpoint)
	}

	if err := connector.UpgradeConnection(conn, config); err != nil {
		conn.Close()
		return nil, errs.Wrapf(errs.ErrTransport, err, "failed to upgrade connection to %s", config.Endpoint)
	}

	Logger.Infof("Connected to %s using %s transport", config.Endpoint, connector.GetName())
	return NewConnTransport(conn, connector.GetName(), config), nil
}

// -----------------------------------------------------------
// Backend side
// -----------------------------------------------------------

// listener turns accepted connections into transports
type listener struct {
	connector IConnector
	config    common.TransportConfig
	inner     net.Listener
}

// Listen binds config.Endpoint using the connector.
func Listen(connector IConnector, config common.TransportConfig) (transport.IListener, error) {
	inner, err := connector.Listen(config.Endpoint)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransport, err, "failed to create listener")
	}

	Logger.Infof("Listening for %s connections on %s", connector.GetName(), inner.Addr())
	return &listener{
		connector: connector,
		config:    config,
		inner:     inner,
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IListener)
// --------------------------------------------------------------------------

func (l *listener) Accept() (transport.ITransport, error) {
	for {
		conn, err := l.inner.Accept()
		if err != nil {
			return nil, err
		}

		if err := l.connector.UpgradeConnection(conn, l.config); err != nil {
			Logger.Errorf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			conn.Close()
			continue
		}

		return NewConnTransport(conn, l.connector.GetName(), l.config), nil
	}
}

func (l *listener) Addr() string {
	return l.inner.Addr().String()
}

func (l *listener) Close() error {
	return l.inner.Close()
}
