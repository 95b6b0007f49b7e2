package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// TransportType names the medium frames are exchanged over
type TransportType string

const (
	TransportUnix   TransportType = "unix"
	TransportTCP    TransportType = "tcp"
	TransportMemory TransportType = "memory"
)

// TransportConfig holds the settings shared by both ends of a link
type TransportConfig struct {
	Type     TransportType
	Endpoint string

	// TimeoutSecond bounds dialing and writing a single frame
	TimeoutSecond int
	// MaxFrameSize limits the size of a received frame in bytes
	MaxFrameSize int

	// tcp only
	TCPNoDelay      bool
	TCPKeepAliveSec int
}

// DefaultMaxFrameSize fits 50 fields of one store record each
const DefaultMaxFrameSize = 1 << 20

// --------------------------------------------------------------------------
// Link configuration
// --------------------------------------------------------------------------

// LinkConfig controls the dispatcher of one end of a link
type LinkConfig struct {
	// SendAttempts is the number of transport sends before a frame is given up
	SendAttempts int
	// ProbeIntervalMillis is the period of the liveness probe
	ProbeIntervalMillis int
	// ProbeMisses is the number of silent probe intervals after which the peer
	// is reported lost
	ProbeMisses int
}

// ProbeInterval returns the probe period as a duration
func (c LinkConfig) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalMillis) * time.Millisecond
}

// --------------------------------------------------------------------------
// Backend (server) configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of the backend process.
type ServerConfig struct {
	Transport TransportConfig
	Link      LinkConfig

	// key store
	StorePath         string // permanent table image, empty keeps it in memory
	PermanentCapacity int
	TemporaryCapacity int

	// certificate authority
	CAName             string
	CAKeyPath          string // root key file, empty creates a new root on every start
	CertValidityDays   int
	CRLRefreshSecond   int
	CRLValiditySeconds int

	// Workers bounds the requests processed concurrently per link
	Workers int

	// MetricsEndpoint is the address of the prometheus endpoint, empty disables it
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// DefaultServerConfig returns the configuration the backend starts with when
// nothing is overridden.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Transport: TransportConfig{
			Type:            TransportUnix,
			Endpoint:        "/tmp/kbridge.sock",
			TimeoutSecond:   5,
			MaxFrameSize:    DefaultMaxFrameSize,
			TCPNoDelay:      true,
			TCPKeepAliveSec: 30,
		},
		Link: LinkConfig{
			SendAttempts:        3,
			ProbeIntervalMillis: 2000,
			ProbeMisses:         3,
		},
		StorePath:          "kbridge.store",
		PermanentCapacity:  30,
		TemporaryCapacity:  200,
		CAName:             "kBridge Root CA",
		CertValidityDays:   365,
		CRLRefreshSecond:   600,
		CRLValiditySeconds: 3600,
		Workers:            8,
		LogLevel:           "info",
	}
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	writeTransport(addSection, addField, c.Transport)
	writeLink(addSection, addField, c.Link)

	addSection("Key Store")
	store := c.StorePath
	if store == "" {
		store = "(in memory)"
	}
	addField("Permanent Image", store)
	addField("Permanent Capacity", strconv.Itoa(c.PermanentCapacity))
	addField("Temporary Capacity", strconv.Itoa(c.TemporaryCapacity))

	addSection("Certificate Authority")
	addField("Name", c.CAName)
	caKey := c.CAKeyPath
	if caKey == "" {
		caKey = "(ephemeral)"
	}
	addField("Root Key", caKey)
	addField("Validity", fmt.Sprintf("%d days", c.CertValidityDays))
	addField("CRL Refresh", fmt.Sprintf("%d sec", c.CRLRefreshSecond))
	addField("CRL Validity", fmt.Sprintf("%d sec", c.CRLValiditySeconds))

	addSection("Processing")
	addField("Workers per Link", strconv.Itoa(c.Workers))

	addSection("Metrics")
	metricsEndpoint := c.MetricsEndpoint
	if metricsEndpoint == "" {
		metricsEndpoint = "(disabled)"
	}
	addField("Endpoint", metricsEndpoint)

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Caller (client) configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds the configuration of the calling side.
type ClientConfig struct {
	Transport TransportConfig
	Link      LinkConfig

	// TimeoutSecond bounds a single call from send to response
	TimeoutSecond int
	// WaiterSlots is the number of calls that may be outstanding at once
	WaiterSlots int
}

// DefaultClientConfig returns the configuration of a caller connecting to a
// backend started with DefaultServerConfig.
func DefaultClientConfig() ClientConfig {
	server := DefaultServerConfig()
	return ClientConfig{
		Transport:     server.Transport,
		Link:          server.Link,
		TimeoutSecond: 15,
		WaiterSlots:   100,
	}
}

// CallTimeout returns the call timeout as a duration
func (c *ClientConfig) CallTimeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Call Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Waiter Slots", strconv.Itoa(c.WaiterSlots))

	writeTransport(addSection, addField, c.Transport)
	writeLink(addSection, addField, c.Link)

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func writeTransport(addSection func(string), addField func(string, string), t TransportConfig) {
	addSection("Transport")
	addField("Type", string(t.Type))
	addField("Endpoint", t.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", t.TimeoutSecond))
	addField("Max Frame Size", fmt.Sprintf("%d bytes", t.MaxFrameSize))
	if t.Type == TransportTCP {
		addField("TCP No Delay", strconv.FormatBool(t.TCPNoDelay))
		addField("TCP Keep Alive", fmt.Sprintf("%d sec", t.TCPKeepAliveSec))
	}
}

func writeLink(addSection func(string), addField func(string, string), l LinkConfig) {
	addSection("Link")
	addField("Send Attempts", strconv.Itoa(l.SendAttempts))
	addField("Probe Interval", l.ProbeInterval().String())
	addField("Probe Misses", strconv.Itoa(l.ProbeMisses))
}
