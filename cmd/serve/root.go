package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/kBridge/cmd/util"
	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/ValentinKolb/kBridge/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the kBridge backend",
		Long:    `Start the kBridge backend with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is KBRIDGE_<flag> (e.g. KBRIDGE_STORE_PATH=/var/lib/kbridge.store)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	defaults := common.DefaultServerConfig()

	// transport and link flags are shared with the callers
	cmdUtil.SetupTransportFlags(ServeCmd, defaults.Transport, defaults.Link)
	cmdUtil.SetupLogFlag(ServeCmd, defaults.LogLevel)

	// add flags
	key := "store-path"
	ServeCmd.PersistentFlags().String(key, defaults.StorePath, cmdUtil.WrapString("File holding the image of the permanent key table. An empty path keeps the table in memory"))

	key = "permanent-capacity"
	ServeCmd.PersistentFlags().Int(key, defaults.PermanentCapacity, cmdUtil.WrapString("Number of records the permanent table holds before the oldest write is evicted"))

	key = "temporary-capacity"
	ServeCmd.PersistentFlags().Int(key, defaults.TemporaryCapacity, cmdUtil.WrapString("Number of records the temporary table holds before the oldest record is evicted"))

	key = "ca-name"
	ServeCmd.PersistentFlags().String(key, defaults.CAName, cmdUtil.WrapString("Common name of the root certificate"))

	key = "ca-key-path"
	ServeCmd.PersistentFlags().String(key, defaults.CAKeyPath, cmdUtil.WrapString("File holding the root key of the certificate authority. It is created if missing. An empty path creates a new root on every start"))

	key = "cert-validity"
	ServeCmd.PersistentFlags().Int(key, defaults.CertValidityDays, cmdUtil.WrapString("Validity of issued certificates (in days)"))

	key = "crl-refresh"
	ServeCmd.PersistentFlags().Int(key, defaults.CRLRefreshSecond, cmdUtil.WrapString("How often the revocation list is refreshed (in seconds)"))

	key = "crl-validity"
	ServeCmd.PersistentFlags().Int(key, defaults.CRLValiditySeconds, cmdUtil.WrapString("Validity of a published revocation list (in seconds)"))

	key = "workers"
	ServeCmd.PersistentFlags().Int(key, defaults.Workers, cmdUtil.WrapString("Number of requests processed concurrently per link"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, defaults.MetricsEndpoint, cmdUtil.WrapString("Address of the prometheus endpoint (e.g. localhost:9090). Empty disables it"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Transport = cmdUtil.GetTransportConfig()
	serveCmdConfig.Link = cmdUtil.GetLinkConfig()
	serveCmdConfig.StorePath = viper.GetString("store-path")
	serveCmdConfig.PermanentCapacity = viper.GetInt("permanent-capacity")
	serveCmdConfig.TemporaryCapacity = viper.GetInt("temporary-capacity")
	serveCmdConfig.CAName = viper.GetString("ca-name")
	serveCmdConfig.CAKeyPath = viper.GetString("ca-key-path")
	serveCmdConfig.CertValidityDays = viper.GetInt("cert-validity")
	serveCmdConfig.CRLRefreshSecond = viper.GetInt("crl-refresh")
	serveCmdConfig.CRLValiditySeconds = viper.GetInt("crl-validity")
	serveCmdConfig.Workers = viper.GetInt("workers")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.Transport.Type == common.TransportMemory {
		return fmt.Errorf("the memory transport only exists inside one process, use unix or tcp to serve")
	}

	return nil
}

// run starts the kBridge backend and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	serv, err := server.NewRPCServer(*serveCmdConfig)
	if err != nil {
		return err
	}

	l, err := cmdUtil.Listen(serveCmdConfig.Transport)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serv.Serve(ctx, l)
}
