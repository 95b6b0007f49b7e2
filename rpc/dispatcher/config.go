package dispatcher

import (
	"time"

	"github.com/ValentinKolb/kBridge/rpc/common"
)

// Config controls retries and liveness of a dispatcher
type Config struct {
	// Name labels log lines and metrics of the dispatcher
	Name string
	// SendAttempts is the number of transport sends before a frame is given up
	SendAttempts int
	// RetryInterval is the pause before the first resend, it doubles per attempt
	RetryInterval time.Duration
	// ProbeInterval is the period of the liveness probe, zero disables probing
	ProbeInterval time.Duration
	// ProbeMisses is the number of silent probe intervals after which the
	// peer is reported lost
	ProbeMisses int
}

// DefaultConfig returns the configuration of a dispatcher named name
func DefaultConfig(name string) Config {
	return Config{
		Name:          name,
		SendAttempts:  3,
		RetryInterval: 10 * time.Millisecond,
		ProbeInterval: 2 * time.Second,
		ProbeMisses:   3,
	}
}

// ConfigFromLink converts the link section of a client or server configuration
func ConfigFromLink(name string, link common.LinkConfig) Config {
	config := DefaultConfig(name)
	if link.SendAttempts > 0 {
		config.SendAttempts = link.SendAttempts
	}
	if link.ProbeIntervalMillis >= 0 {
		config.ProbeInterval = link.ProbeInterval()
	}
	if link.ProbeMisses > 0 {
		config.ProbeMisses = link.ProbeMisses
	}
	return config
}
