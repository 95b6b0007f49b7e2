package util

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/ValentinKolb/kBridge/rpc/transport"
	"github.com/ValentinKolb/kBridge/rpc/transport/tcp"
	"github.com/ValentinKolb/kBridge/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables read by kbridge
	EnvPrefix = "kbridge"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig loads .env files and makes viper read KBRIDGE_* variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// SetupTransportFlags adds the flags of the transport and link sections
func SetupTransportFlags(cmd *cobra.Command, defaults common.TransportConfig, link common.LinkConfig) {
	key := "transport"
	cmd.PersistentFlags().String(key, string(defaults.Type), WrapString("Transport to use (unix, tcp, memory). memory runs an embedded backend inside the process"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, defaults.Endpoint, WrapString("Socket path (unix) or host:port (tcp) of the backend"))

	key = "transport-timeout"
	cmd.PersistentFlags().Int(key, defaults.TimeoutSecond, WrapString("Timeout in seconds for connecting and for writing a single frame"))

	key = "max-frame-size"
	cmd.PersistentFlags().Int(key, defaults.MaxFrameSize, WrapString("Largest frame accepted from the peer (in bytes)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, defaults.TCPNoDelay, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, defaults.TCPKeepAliveSec, WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "send-attempts"
	cmd.PersistentFlags().Int(key, link.SendAttempts, WrapString("How many times a frame is handed to the transport before it is given up"))

	key = "probe-interval"
	cmd.PersistentFlags().Int(key, link.ProbeIntervalMillis, WrapString("Period of the liveness probe (in milliseconds)"))

	key = "probe-misses"
	cmd.PersistentFlags().Int(key, link.ProbeMisses, WrapString("Silent probe intervals after which the peer is considered lost"))

}

// SetupLogFlag adds the log-level flag
func SetupLogFlag(cmd *cobra.Command, level string) {
	key := "log-level"
	cmd.PersistentFlags().String(key, level, WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// GetTransportConfig reads the transport section from viper
func GetTransportConfig() common.TransportConfig {
	return common.TransportConfig{
		Type:            common.TransportType(viper.GetString("transport")),
		Endpoint:        viper.GetString("endpoint"),
		TimeoutSecond:   viper.GetInt("transport-timeout"),
		MaxFrameSize:    viper.GetInt("max-frame-size"),
		TCPNoDelay:      viper.GetBool("tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
	}
}

// GetLinkConfig reads the link section from viper
func GetLinkConfig() common.LinkConfig {
	return common.LinkConfig{
		SendAttempts:        viper.GetInt("send-attempts"),
		ProbeIntervalMillis: viper.GetInt("probe-interval"),
		ProbeMisses:         viper.GetInt("probe-misses"),
	}
}

// SetupRPCClientFlags adds the flags of a caller to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	defaults := common.DefaultClientConfig()
	SetupTransportFlags(cmd, defaults.Transport, defaults.Link)
	SetupLogFlag(cmd, "warn")

	key := "timeout"
	cmd.PersistentFlags().Int(key, defaults.TimeoutSecond, WrapString("The timeout in seconds of a single call"))

	key = "waiter-slots"
	cmd.PersistentFlags().Int(key, defaults.WaiterSlots, WrapString("How many calls may be outstanding at once"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Transport:     GetTransportConfig(),
		Link:          GetLinkConfig(),
		TimeoutSecond: viper.GetInt("timeout"),
		WaiterSlots:   viper.GetInt("waiter-slots"),
	}
}

// --------------------------------------------------------------------------
// Transport factory
// --------------------------------------------------------------------------

// Dial connects to the backend with the configured socket transport
func Dial(config common.TransportConfig) (transport.ITransport, error) {
	switch config.Type {
	case common.TransportUnix:
		return unix.Dial(config)
	case common.TransportTCP:
		return tcp.Dial(config)
	default:
		return nil, fmt.Errorf("cannot dial transport %q (expected unix or tcp)", config.Type)
	}
}

// Listen binds the configured socket transport
func Listen(config common.TransportConfig) (transport.IListener, error) {
	switch config.Type {
	case common.TransportUnix:
		return unix.Listen(config)
	case common.TransportTCP:
		return tcp.Listen(config)
	default:
		return nil, fmt.Errorf("cannot listen on transport %q (expected unix or tcp)", config.Type)
	}
}

// --------------------------------------------------------------------------
// Input and output of binary values
// --------------------------------------------------------------------------

// ReadValue converts a command line argument to bytes: "@path" reads a file,
// "b64:..." decodes base64, anything else is taken literally.
func ReadValue(arg string) ([]byte, error) {
	switch {
	case strings.HasPrefix(arg, "@"):
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %v", arg[1:], err)
		}
		return data, nil
	case strings.HasPrefix(arg, "b64:"):
		data, err := base64.StdEncoding.DecodeString(arg[4:])
		if err != nil {
			return nil, fmt.Errorf("invalid base64 value: %v", err)
		}
		return data, nil
	default:
		return []byte(arg), nil
	}
}

// FormatBinary renders binary output so that ReadValue accepts it again
func FormatBinary(data []byte) string {
	return "b64:" + base64.StdEncoding.EncodeToString(data)
}
