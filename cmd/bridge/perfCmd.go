package bridge

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/kBridge/cmd/util"
	"github.com/ValentinKolb/kBridge/lib/crypto"
	"github.com/ValentinKolb/kBridge/lib/store"
	libUtil "github.com/ValentinKolb/kBridge/lib/util"
	"github.com/ValentinKolb/kBridge/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// PerfCmd benchmarks a backend
	PerfCmd = &cobra.Command{
		Use:                "perf",
		Short:              "Performance testing tool for kBridge backends",
		Long:               "Runs every benchmark with parallel callers and prints ns/op, ops/sec and the latency percentiles of the calls.",
		PersistentPreRunE:  setupClient,
		PersistentPostRunE: closeClient,
		PreRunE:            processPerfConfig,
		RunE:               runPerf,
	}
	perfIDPrefix       = "__perf"
	perfLargeValueSize = store.MaxDataSize
	perfNumThreads     = 10
	perfIDSpread       = 20
	perfSkip           = make([]string, 0)
)

// benchmark is one named load of the perf command
type benchmark struct {
	name  string
	setup func(ctx context.Context) error
	call  func(ctx context.Context, i int) error
}

// perfResult is the outcome of one benchmark
type perfResult struct {
	result  testing.BenchmarkResult
	latency libUtil.Stats
	errors  int
}

func init() {
	// add flags
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. sign,encrypt-password)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of callers per CPU to use for the benchmark"))
	key = "large-value-size"
	PerfCmd.Flags().Int(key, store.MaxDataSize, util.WrapString("How large the value for the save-large test should be (in bytes)"))
	key = "ids"
	PerfCmd.Flags().Int(key, 20, util.WrapString("How many different ids to use for the storage tests (keep below the table capacities)"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSize = viper.GetInt("large-value-size")
	perfIDSpread = viper.GetInt("ids")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfIDSpread < 1 {
		return fmt.Errorf("ids must be at least 1")
	}
	return nil
}

func runPerf(cmd *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for kBridge backends")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	ctx := cmd.Context()
	results := make(map[string]perfResult)
	for _, bench := range benchmarks() {
		if shouldSkip(bench.name) {
			printResult(bench.name, perfResult{})
			continue
		}
		if bench.setup != nil {
			if err := bench.setup(ctx); err != nil {
				return fmt.Errorf("(%s) - setup failed: %v", bench.name, err)
			}
		}
		res := runBenchmark(ctx, bench)
		results[bench.name] = res
		printResult(bench.name, res)
	}

	cleanup(ctx)
	printTimers()

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// benchmarks lists the loads in the order they run
func benchmarks() []benchmark {
	value := []byte("test")
	largeValue := make([]byte, perfLargeValueSize)
	password := []byte("perf-password")

	var (
		privateKey []byte
		publicKey  []byte
		signature  []byte
		sealed     []byte
	)

	return []benchmark{
		{
			name: "ping",
			call: func(ctx context.Context, _ int) error {
				_, err := rpcClient.Ping(ctx)
				return err
			},
		},
		{
			name: "save",
			call: func(ctx context.Context, i int) error {
				return rpcClient.Save(ctx, store.StoreTypeTemporary, perfID("save", i), value, nil)
			},
		},
		{
			name: "save-large",
			call: func(ctx context.Context, i int) error {
				return rpcClient.Save(ctx, store.StoreTypeTemporary, perfID("save-large", i), largeValue, nil)
			},
		},
		{
			name: "load",
			setup: func(ctx context.Context) error {
				for i := 0; i < perfIDSpread; i++ {
					if err := rpcClient.Save(ctx, store.StoreTypeTemporary, perfID("load", i), value, nil); err != nil {
						return err
					}
				}
				return nil
			},
			call: func(ctx context.Context, i int) error {
				_, err := rpcClient.Load(ctx, perfID("load", i), nil)
				return err
			},
		},
		{
			name: "hash",
			call: func(ctx context.Context, _ int) error {
				_, err := rpcClient.Hash(ctx, crypto.HashSHA256, largeValue)
				return err
			},
		},
		{
			name: "sign",
			setup: func(ctx context.Context) (err error) {
				privateKey, publicKey, err = rpcClient.Keygen(ctx, crypto.CurveEd25519)
				return err
			},
			call: func(ctx context.Context, _ int) error {
				_, err := rpcClient.Sign(ctx, privateKey, value)
				return err
			},
		},
		{
			name: "verify",
			setup: func(ctx context.Context) (err error) {
				if privateKey == nil {
					if privateKey, publicKey, err = rpcClient.Keygen(ctx, crypto.CurveEd25519); err != nil {
						return err
					}
				}
				signature, err = rpcClient.Sign(ctx, privateKey, value)
				return err
			},
			call: func(ctx context.Context, _ int) error {
				ok, err := rpcClient.Verify(ctx, publicKey, value, signature)
				if err == nil && !ok {
					err = fmt.Errorf("signature rejected")
				}
				return err
			},
		},
		{
			name: "encrypt-password",
			call: func(ctx context.Context, _ int) error {
				_, err := rpcClient.EncryptPassword(ctx, password, value)
				return err
			},
		},
		{
			name: "decrypt-password",
			setup: func(ctx context.Context) (err error) {
				sealed, err = rpcClient.EncryptPassword(ctx, password, value)
				return err
			},
			call: func(ctx context.Context, _ int) error {
				_, err := rpcClient.DecryptPassword(ctx, password, sealed)
				return err
			},
		},
	}
}

// runBenchmark runs one load with parallel callers and records the latency
// of every call.
func runBenchmark(ctx context.Context, bench benchmark) perfResult {
	var (
		mu      sync.Mutex
		samples []time.Duration
		errors  int
	)

	result := testing.Benchmark(func(b *testing.B) {
		// only the samples of the final round are reported
		mu.Lock()
		samples, errors = samples[:0], 0
		mu.Unlock()

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			local := make([]time.Duration, 0, 64)
			failed := 0
			for pb.Next() {
				start := time.Now()
				if err := bench.call(ctx, counter); err != nil {
					if failed == 0 {
						log.Printf("(%s) - error: %v\n", bench.name, err)
					}
					failed++
				}
				local = append(local, time.Since(start))
				counter++
			}

			mu.Lock()
			samples = append(samples, local...)
			errors += failed
			mu.Unlock()
		})
	})

	return perfResult{
		result:  result,
		latency: libUtil.NewLatencyStats(samples),
		errors:  errors,
	}
}

// cleanup removes the records written by the storage benchmarks
func cleanup(ctx context.Context) {
	for _, prefix := range []string{"save", "save-large", "load"} {
		for i := 0; i < perfIDSpread; i++ {
			// ids a benchmark never reached are not found
			_ = rpcClient.Remove(ctx, perfID(prefix, i))
		}
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// perfID returns the i-th id of a benchmark (with wraparound)
func perfID(prefix string, i int) string {
	return fmt.Sprintf("%s-%s-%d", perfIDPrefix, prefix, i%perfIDSpread)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, res perfResult) {
	if res.result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(res.result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%.3fms p99=%.3fms\terrors=%d\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, res.latency.P50, res.latency.P99, res.errors)
}

// printTimers prints the per command timers the client collected
func printTimers() {
	fmt.Println()
	fmt.Println("Client timers:")
	rpcClient.Timers().Each(func(name string, i interface{}) {
		timer, ok := i.(gometrics.Timer)
		if !ok {
			return
		}
		snapshot := timer.Snapshot()
		fmt.Printf("  %-18s count=%d mean=%s p99=%s\n",
			name, snapshot.Count(), time.Duration(snapshot.Mean()), time.Duration(snapshot.Percentile(0.99)))
	})
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ms", "P99Ms", "Errors",
		"Transport", "Endpoint", "TimeoutSec", "WaiterSlots",
		"Threads", "LargeValueSize", "IDs",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, res := range results {
		nsPerOp := math.Max(float64(res.result.NsPerOp()), 1)
		opsPerSec := 1.0 / (nsPerOp / 1e9)

		row := []string{
			test,
			strconv.FormatFloat(nsPerOp, 'f', 0, 64),
			time.Duration(nsPerOp).String(),
			strconv.FormatFloat(opsPerSec, 'f', 0, 64),
			strconv.FormatFloat(res.latency.P50, 'f', 3, 64),
			strconv.FormatFloat(res.latency.P99, 'f', 3, 64),
			strconv.Itoa(res.errors),
			string(config.Transport.Type),
			config.Transport.Endpoint,
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.WaiterSlots),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSize),
			strconv.Itoa(perfIDSpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %v", err)
		}
	}

	return nil
}
