package marine

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/marines/cmd/util"
	"github.com/ValentinKolb/marines/lib/marine"
	"github.com/ValentinKolb/marines/rpc/client"
	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for marines servers",
		Long:    "Runs benchmarks against a server as the given user. Every thread uses its own connection. The records created by the benchmarks use keys starting at --key-base and are removed afterwards.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyBase    int64 = 1 << 40
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)

	// perfTests lists all benchmarks in execution order
	perfTests = []string{"insert", "info", "show", "print-ascending", "replace-if-lower", "remove-key"}
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. insert,show)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU to use for the benchmark, each with its own connection"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many records to create for the read benchmarks"))
	key = "key-base"
	perfTestCmd.Flags().Int64(key, 1<<40, util.WrapString("The first key used by the benchmarks"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfKeyBase = viper.GetInt64("key-base")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfNumThreads < 1 || perfKeySpread < 1 {
		return fmt.Errorf("threads and keys must be at least 1")
	}
	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for marines servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d per CPU (%d connections)\n", perfNumThreads, perfConnections())
	fmt.Println()

	// the shared client is only used to check the credentials
	if err := rpcClient.Ping(); err != nil {
		return wrapAuth(err)
	}

	pool, err := newClientPool(perfConnections())
	if err != nil {
		return err
	}
	defer pool.close()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	insertResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("insert") {
			return
		}

		var next atomic.Int64
		next.Store(perfKeyBase)

		// cleanup
		b.Cleanup(func() {
			pool.do(func(c *client.RPCClient) {
				for k := perfKeyBase; k < next.Load(); k++ {
					logFailure("insert", "removing key")(c.RemoveKey(k))
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			pool.do(func(c *client.RPCClient) {
				for pb.Next() {
					k := next.Add(1) - 1
					logFailure("insert", "inserting")(c.Insert(k, perfMarine(k)))
				}
			})
		})
	})

	results["insert"] = insertResult
	printResult("insert", insertResult)

	// read benchmarks share one prepared set of records
	iter := getKeys()
	prepared := false
	prepare := func() {
		if prepared {
			return
		}
		prepared = true
		pool.do(func(c *client.RPCClient) {
			iter(func(k int64) {
				logFailure("prepare", "inserting")(c.Insert(k, perfMarine(k)))
			})
		})
	}

	for _, test := range []struct {
		name string
		fn   func(c *client.RPCClient, k int64) (string, error)
	}{
		{name: "info", fn: func(c *client.RPCClient, _ int64) (string, error) { return c.Info() }},
		{name: "show", fn: func(c *client.RPCClient, _ int64) (string, error) { return c.Show() }},
		{name: "print-ascending", fn: func(c *client.RPCClient, _ int64) (string, error) { return c.PrintAscending() }},
		{name: "replace-if-lower", fn: func(c *client.RPCClient, k int64) (string, error) {
			// never lower, the stored records stay unchanged
			m := perfMarine(k)
			m.Health = math.MaxFloat64
			return c.ReplaceIfLower(k, m)
		}},
	} {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(test.name) {
				return
			}
			prepare()

			b.SetParallelism(perfNumThreads)

			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				pool.do(func(c *client.RPCClient) {
					counter := 0
					for pb.Next() {
						k := perfKeyBase + int64(counter%perfKeySpread)
						logFailure(test.name, "sending")(test.fn(c, k))
						counter++
					}
				})
			})
		})

		results[test.name] = result
		printResult(test.name, result)
	}

	removeResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("remove-key") {
			return
		}
		prepare()

		// cleanup
		b.Cleanup(func() {
			pool.do(func(c *client.RPCClient) {
				iter(func(k int64) {
					_, _ = c.RemoveKey(k)
				})
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			pool.do(func(c *client.RPCClient) {
				counter := 0
				for pb.Next() {
					// only the first removal of a key finds a record
					logFailure("remove-key", "removing key")(c.RemoveKey(perfKeyBase + int64(counter%perfKeySpread)))
					counter++
				}
			})
		})
	})

	results["remove-key"] = removeResult
	printResult("remove-key", removeResult)

	if prepared && shouldSkip("remove-key") {
		pool.do(func(c *client.RPCClient) {
			iter(func(k int64) {
				_, _ = c.RemoveKey(k)
			})
		})
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return err
		}
		fmt.Printf("results written to %s\n", csvPath)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// perfConnections is the number of goroutines b.RunParallel starts with
// b.SetParallelism(perfNumThreads), every one of them holds its own client
func perfConnections() int {
	return perfNumThreads * runtime.GOMAXPROCS(0)
}

// clientPool hands out one connected client per benchmark goroutine
type clientPool struct {
	clients chan *client.RPCClient
	all     []*client.RPCClient
}

func newClientPool(size int) (*clientPool, error) {
	p := &clientPool{clients: make(chan *client.RPCClient, size)}
	for i := 0; i < size; i++ {
		t, err := util.GetClientTransport()
		if err != nil {
			p.close()
			return nil, err
		}
		s, err := util.GetSerializer()
		if err != nil {
			p.close()
			return nil, err
		}
		c, err := client.NewRPCClient(*util.GetClientConfig(), t, s)
		if err != nil {
			p.close()
			return nil, err
		}
		c.Login(viper.GetString("user"), viper.GetString("password"))
		p.all = append(p.all, c)
		p.clients <- c
	}
	return p, nil
}

// do runs fn with a client taken from the pool
func (p *clientPool) do(fn func(c *client.RPCClient)) {
	c := <-p.clients
	defer func() { p.clients <- c }()
	fn(c)
}

func (p *clientPool) close() {
	for _, c := range p.all {
		_ = c.Close()
	}
}

// perfMarine returns the record used for key k
func perfMarine(k int64) marine.Marine {
	return marine.Marine{
		Name:        fmt.Sprintf("perf-%d", k),
		Coordinates: marine.Coordinates{X: float64(k % 1000), Y: 1},
		Health:      float64(k%100 + 1),
		Category:    marine.CategoryTactical,
		WeaponType:  marine.WeaponBoltRifle,
		MeleeWeapon: marine.MeleeChainSword,
	}
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// getKeys returns a function iterating over the keys of the prepared records
func getKeys() func(func(int64)) {
	return func(fn func(int64)) {
		for i := 0; i < perfKeySpread; i++ {
			fn(perfKeyBase + int64(i))
		}
	}
}

// logFailure logs transport errors. Error lines in the body are expected
// (e.g. when a key is removed twice) and are only logged at debug level.
func logFailure(test, action string) func(body string, err error) {
	return func(body string, err error) {
		if err != nil {
			Logger.Errorf("(%s) - error %s: %v", test, action, err)
			return
		}
		if body != "" {
			Logger.Debugf("(%s) - %s: %s", test, action, strings.TrimSpace(body))
		}
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoint", "TimeoutSec", "RetryCount", "Serializer", "Transport",
		"Threads", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results in execution order
	for _, test := range perfTests {
		result, ok := results[test]
		if !ok {
			continue
		}
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			config.Transport.Endpoint,
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
