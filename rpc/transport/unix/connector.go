package unix

import (
	"net"
	"os"
	"time"

	"github.com/ValentinKolb/kBridge/lib/errs"
	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/ValentinKolb/kBridge/rpc/transport"
	"github.com/ValentinKolb/kBridge/rpc/transport/base"
)

// connector implements the IConnector interface for Unix sockets
type connector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IConnector)
// --------------------------------------------------------------------------

func (c *connector) GetName() string {
	return "unix"
}

func (c *connector) Dial(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", endpoint, timeout)
}

func (c *connector) Listen(socketPath string) (net.Listener, error) {
	// Remove a stale socket file of a previous backend
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, errs.Wrap(errs.ErrTransport, err, "failed to remove existing socket")
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransport, err, "failed to create Unix socket")
	}

	return listener, nil
}

func (c *connector) UpgradeConnection(net.Conn, common.TransportConfig) error {
	return nil
}

// --------------------------------------------------------------------------
// Factory Methods
// --------------------------------------------------------------------------

// Dial connects to the backend socket at config.Endpoint
func Dial(config common.TransportConfig) (transport.ITransport, error) {
	return base.Dial(&connector{}, config)
}

// Listen creates the backend socket at config.Endpoint
func Listen(config common.TransportConfig) (transport.IListener, error) {
	return base.Listen(&connector{}, config)
}
