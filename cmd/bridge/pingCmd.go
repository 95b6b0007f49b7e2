package bridge

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/kBridge/cmd/util"
	libUtil "github.com/ValentinKolb/kBridge/lib/util"
	"github.com/spf13/cobra"
)

// PingCmd sends explicit pings and prints their round trip times
var PingCmd = &cobra.Command{
	Use:                "ping",
	Short:              "Checks that the backend answers",
	Args:               cobra.NoArgs,
	PersistentPreRunE:  setupClient,
	PersistentPostRunE: closeClient,
	RunE: func(cmd *cobra.Command, _ []string) error {
		count, _ := cmd.Flags().GetInt("count")
		samples := make([]time.Duration, 0, count)
		for i := 0; i < count; i++ {
			rtt, err := rpcClient.Ping(cmd.Context())
			if err != nil {
				return err
			}
			samples = append(samples, rtt)
			fmt.Printf("ping %d: %s\n", i+1, rtt)
		}
		stats := libUtil.NewLatencyStats(samples)
		fmt.Printf("min=%.3fms mean=%.3fms max=%.3fms\n", stats.Min, stats.Mean, stats.Max)
		return nil
	},
}

func init() {
	PingCmd.Flags().Int("count", 3, util.WrapString("Number of pings to send"))
}
