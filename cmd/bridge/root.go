package bridge

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/kBridge/cmd/util"
	"github.com/ValentinKolb/kBridge/rpc/client"
	"github.com/ValentinKolb/kBridge/rpc/common"
	"github.com/ValentinKolb/kBridge/rpc/server"
	"github.com/ValentinKolb/kBridge/rpc/transport"
	"github.com/ValentinKolb/kBridge/rpc/transport/memory"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcClient *client.Client

	// stopEmbedded shuts the in-process backend of the memory transport down
	stopEmbedded context.CancelFunc

	// StoreCommands represents the key store command group
	StoreCommands = &cobra.Command{
		Use:                "store",
		Short:              "Save, load and remove records of the backend key store",
		PersistentPreRunE:  setupClient,
		PersistentPostRunE: closeClient,
	}

	// CryptoCommands represents the crypto command group
	CryptoCommands = &cobra.Command{
		Use:                "crypto",
		Short:              "Run cryptographic operations on the backend",
		PersistentPreRunE:  setupClient,
		PersistentPostRunE: closeClient,
	}

	// CertCommands represents the certificate command group
	CertCommands = &cobra.Command{
		Use:                "cert",
		Short:              "Issue, verify and revoke certificates",
		PersistentPreRunE:  setupClient,
		PersistentPostRunE: closeClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	for _, group := range []*cobra.Command{StoreCommands, CryptoCommands, CertCommands, PingCmd, PerfCmd} {
		util.SetupRPCClientFlags(group)
	}

	// Add subcommands
	StoreCommands.AddCommand(saveCmd, loadCmd, removeCmd)
	CryptoCommands.AddCommand(keygenCmd, hashCmd, signCmd, verifyCmd, encryptCmd, decryptCmd, encryptPasswordCmd, decryptPasswordCmd)
	CertCommands.AddCommand(certCreateCmd, certGetCmd, certVerifyCmd, certParseCmd, certRevokeCmd, certCRLCmd, certIsRevokedCmd)
}

// setupClient connects the caller to the configured backend
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	config := util.GetClientConfig()

	var (
		t   transport.ITransport
		err error
	)
	if config.Transport.Type == common.TransportMemory {
		t, err = startEmbedded(config)
	} else {
		t, err = util.Dial(config.Transport)
	}
	if err != nil {
		return err
	}

	rpcClient = client.New(context.Background(), t, *config)
	return nil
}

// closeClient releases the link and the embedded backend
func closeClient(_ *cobra.Command, _ []string) error {
	if rpcClient != nil {
		_ = rpcClient.Close()
		rpcClient = nil
	}
	if stopEmbedded != nil {
		stopEmbedded()
		stopEmbedded = nil
	}
	return nil
}

// startEmbedded runs a backend with in-memory tables inside the process and
// returns the caller end of a link to it.
func startEmbedded(config *common.ClientConfig) (transport.ITransport, error) {
	serverConfig := common.DefaultServerConfig()
	serverConfig.Transport = config.Transport
	serverConfig.Link = config.Link
	serverConfig.StorePath = ""

	serv, err := server.NewRPCServer(serverConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := memory.NewListener()
	go func() {
		if err := serv.Serve(ctx, l); err != nil {
			fmt.Printf("embedded backend stopped: %v\n", err)
		}
	}()

	t, err := l.Dial()
	if err != nil {
		cancel()
		return nil, err
	}
	stopEmbedded = cancel
	return t, nil
}
