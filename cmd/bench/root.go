package bench

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fkoehler/cellar/cmd/util"
	"github.com/fkoehler/cellar/lib/cell"
	"github.com/fkoehler/cellar/lib/colstore"
	"github.com/fkoehler/cellar/lib/memtable"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// BenchCmd represents the bench command
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Performance testing tool for the cellar cell store",
		Long:    "Runs in-process benchmarks against a memtable and reports per-operation throughput and latency.",
		RunE:    run,
		PreRunE: processBenchConfig,
	}

	benchNumThreads = 8
	benchBatchSize  = 32
	benchRowSpread  = 16
	benchValueSize  = 64
	benchSkip       = make([]string, 0)
	benchCSVPath    = ""
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	key := "threads"
	BenchCmd.Flags().Int(key, 8, util.WrapString("Number of goroutines to use for the concurrent benchmarks"))
	key = "batch-size"
	BenchCmd.Flags().Int(key, 32, util.WrapString("Number of cells per merged batch"))
	key = "rows"
	BenchCmd.Flags().Int(key, 16, util.WrapString("How many distinct rows to spread the load over"))
	key = "value-size"
	BenchCmd.Flags().Int(key, 64, util.WrapString("Size of each cell value in bytes"))
	key = "skip"
	BenchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. add,merge)"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "log-level"
	BenchCmd.Flags().String(key, "info", util.WrapString("Log level (debug, info, warn, error)"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	benchNumThreads = viper.GetInt("threads")
	benchBatchSize = viper.GetInt("batch-size")
	benchRowSpread = viper.GetInt("rows")
	benchValueSize = viper.GetInt("value-size")
	benchCSVPath = viper.GetString("csv")
	if s := viper.GetString("skip"); s != "" {
		benchSkip = strings.Split(s, ",")
	}

	util.InitLoggers(viper.GetString("log-level"))
	return nil
}

func shouldSkip(name string) bool {
	for _, s := range benchSkip {
		if strings.TrimSpace(s) == name {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Workloads
// --------------------------------------------------------------------------

func makeBatch(prefix string, seq int, ts int64) *colstore.Update {
	u := colstore.NewUpdate()
	value := make([]byte, benchValueSize)
	for i := 0; i < benchBatchSize; i++ {
		name := cell.SimpleName(fmt.Sprintf("%s-%08d-%04d", prefix, seq, i))
		u.Add(cell.New(name, value, ts))
	}
	return u
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for the cellar cell store")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Threads:    %d\n", benchNumThreads)
	fmt.Printf("Batch size: %d\n", benchBatchSize)
	fmt.Printf("Rows:       %d\n", benchRowSpread)
	fmt.Printf("Value size: %d bytes\n", benchValueSize)
	fmt.Println()

	fmt.Println("starting benchmarks...")

	registry := gometrics.NewRegistry()
	results := make(map[string]testing.BenchmarkResult)

	// single-cell adds on one contended row
	addResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("add") {
			return
		}
		store := colstore.New()
		timer := gometrics.GetOrRegisterTimer("add", registry)

		b.SetParallelism(benchNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				c := cell.New(cell.SimpleName(fmt.Sprintf("k-%08d", counter)), make([]byte, benchValueSize), int64(counter))
				start := time.Now()
				store.Add(c)
				timer.UpdateSince(start)
				counter++
			}
		})
	})
	results["add"] = addResult
	printResult("add", addResult, registry)

	// atomic batch merges spread over rows
	mergeResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("merge") {
			return
		}
		mt := memtable.New()
		timer := gometrics.GetOrRegisterTimer("merge", registry)

		b.SetParallelism(benchNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			id := time.Now().UnixNano()
			counter := 0
			for pb.Next() {
				row := fmt.Sprintf("row-%d", counter%benchRowSpread)
				batch := makeBatch(fmt.Sprintf("p%d", id), counter, int64(counter))
				start := time.Now()
				mt.Put(row, batch, nil)
				timer.UpdateSince(start)
				counter++
			}
		})
	})
	results["merge"] = mergeResult
	printResult("merge", mergeResult, registry)

	// snapshot reads racing a background writer
	getResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get") {
			return
		}
		store := colstore.New()
		names := make([]cell.Name, 1024)
		for i := range names {
			c := cell.New(cell.SimpleName(fmt.Sprintf("k-%08d", i)), make([]byte, benchValueSize), 1)
			names[i] = c.Name
			store.Add(c)
		}
		timer := gometrics.GetOrRegisterTimer("get", registry)

		b.SetParallelism(benchNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				_, _ = store.Get(names[counter%len(names)])
				timer.UpdateSince(start)
				counter++
			}
		})
	})
	results["get"] = getResult
	printResult("get", getResult, registry)

	// mixed usage: merges, point reads and row deletions
	mixedResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("mixed") {
			return
		}
		mt := memtable.New()
		timer := gometrics.GetOrRegisterTimer("mixed", registry)

		b.SetParallelism(benchNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			id := time.Now().UnixNano()
			counter := 0
			for pb.Next() {
				row := fmt.Sprintf("row-%d", counter%benchRowSpread)
				start := time.Now()
				switch counter % 10 {
				case 9:
					if store, ok := mt.Row(row); ok {
						store.Snapshot()
					}
				case 8:
					if store, ok := mt.Row(row); ok {
						store.Count()
					}
				default:
					mt.Put(row, makeBatch(fmt.Sprintf("m%d", id), counter, int64(counter)), nil)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})
	results["mixed"] = mixedResult
	printResult("mixed", mixedResult, registry)

	// save results if requested
	if benchCSVPath != "" {
		if err := saveCSV(benchCSVPath, results, registry); err != nil {
			return fmt.Errorf("failed to save results: %w", err)
		}
		fmt.Printf("\nresults saved to %s\n", benchCSVPath)
	}

	return nil
}

// --------------------------------------------------------------------------
// Reporting
// --------------------------------------------------------------------------

func printResult(name string, result testing.BenchmarkResult, registry gometrics.Registry) {
	if result.N == 0 {
		fmt.Printf("%-8s skipped\n", name)
		return
	}

	opsPerSec := float64(result.N) / result.T.Seconds()
	fmt.Printf("%-8s %12d ops %12.0f ops/s %12s/op", name, result.N, opsPerSec, result.T/time.Duration(result.N))

	if t := registry.Get(name); t != nil {
		timer := t.(gometrics.Timer)
		ps := timer.Percentiles([]float64{0.5, 0.99})
		fmt.Printf("    p50=%s p99=%s", time.Duration(int64(ps[0])), time.Duration(int64(ps[1])))
	}
	fmt.Println()
}

func saveCSV(path string, results map[string]testing.BenchmarkResult, registry gometrics.Registry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"benchmark", "ops", "ns_per_op", "p50_ns", "p99_ns"}); err != nil {
		return err
	}
	for name, result := range results {
		if result.N == 0 {
			continue
		}
		p50, p99 := "", ""
		if t := registry.Get(name); t != nil {
			ps := t.(gometrics.Timer).Percentiles([]float64{0.5, 0.99})
			p50 = strconv.FormatInt(int64(ps[0]), 10)
			p99 = strconv.FormatInt(int64(ps[1]), 10)
		}
		row := []string{
			name,
			strconv.Itoa(result.N),
			strconv.FormatInt(result.NsPerOp(), 10),
			p50,
			p99,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
