package param

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/rtparam/cmd/util"
	"github.com/ValentinKolb/rtparam/lib/params"
	"github.com/ValentinKolb/rtparam/lib/vhost"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Benchmarks the parameter operations against the configured store",
		Long: util.WrapString(`Benchmarks the parameter operations against the configured store.
All parameters are written below a fresh vhost and global prefix and removed afterwards.`),
		Args:    cobra.NoArgs,
		PreRunE: processBenchConfig,
		RunE:    runE(runBench),
	}
	benchThreads = 10
	benchKeys    = 100
	benchSkip    []string
)

// benchmark is one named benchmark body. It runs against a store that accepts every vhost.
type benchmark struct {
	name string
	fn   func(b *testing.B, p *params.Store, ns benchNamespace)
}

// benchNamespace keeps the keys of one benchmark run apart from real parameters
type benchNamespace struct {
	vhost  string
	prefix string
	keys   int
}

func (ns benchNamespace) name(i int) string {
	return fmt.Sprintf("%s-%d", ns.prefix, i%ns.keys)
}

var benchmarks = []benchmark{
	{"set-global", func(b *testing.B, p *params.Store, ns benchNamespace) {
		b.RunParallel(func(pb *testing.PB) {
			for i := 0; pb.Next(); i++ {
				if _, err := p.SetGlobal(ns.name(i), []byte("30s")); err != nil {
					log.Warningf("(set-global) %v", err)
				}
			}
		})
	}},
	{"set-scoped", func(b *testing.B, p *params.Store, ns benchNamespace) {
		b.RunParallel(func(pb *testing.PB) {
			for i := 0; pb.Next(); i++ {
				if _, err := p.SetScoped(ns.vhost, "bench", ns.name(i), []byte(`{"max":10}`)); err != nil {
					log.Warningf("(set-scoped) %v", err)
				}
			}
		})
	}},
	{"lookup", func(b *testing.B, p *params.Store, ns benchNamespace) {
		for i := 0; i < ns.keys; i++ {
			_, _ = p.SetScoped(ns.vhost, "bench", ns.name(i), []byte("v"))
		}
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for i := 0; pb.Next(); i++ {
				if _, _, err := p.Lookup(params.ScopedKey(ns.vhost, "bench", ns.name(i))); err != nil {
					log.Warningf("(lookup) %v", err)
				}
			}
		})
	}},
	{"lookup-or-set", func(b *testing.B, p *params.Store, ns benchNamespace) {
		b.RunParallel(func(pb *testing.PB) {
			for i := 0; pb.Next(); i++ {
				if _, err := p.LookupOrSet(params.ScopedKey(ns.vhost, "bench", ns.name(i)), []byte("default")); err != nil {
					log.Warningf("(lookup-or-set) %v", err)
				}
			}
		})
	}},
	{"get-all-scoped", func(b *testing.B, p *params.Store, ns benchNamespace) {
		for i := 0; i < ns.keys; i++ {
			_, _ = p.SetScoped(ns.vhost, "bench", ns.name(i), []byte("v"))
		}
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := p.GetAllScoped(params.Literal(ns.vhost), params.Literal("bench")); err != nil {
				log.Warningf("(get-all-scoped) %v", err)
			}
		}
	}},
	{"remove-matching", func(b *testing.B, p *params.Store, ns benchNamespace) {
		for i := 0; i < b.N; i++ {
			b.StopTimer()
			for j := 0; j < 10; j++ {
				_, _ = p.SetScoped(ns.vhost, "bench", ns.name(j), []byte("v"))
			}
			b.StartTimer()
			if _, err := p.RemoveMatching(params.Pattern{VHost: params.Literal(ns.vhost), Component: params.Any, Name: params.Any}); err != nil {
				log.Warningf("(remove-matching) %v", err)
			}
		}
	}},
}

func init() {
	benchCmd.Flags().Int("threads", 10, util.WrapString("Parallelism of the concurrent benchmarks (multiplied by GOMAXPROCS)"))
	benchCmd.Flags().Int("keys", 100, util.WrapString("How many different keys to use for the benchmarks"))
	benchCmd.Flags().String("skip", "", util.WrapString("Benchmarks to skip (comma separated, e.g. lookup,set-global)"))
	benchCmd.Flags().String("csv", "", util.WrapString("Optional path to save the results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	benchThreads = max(viper.GetInt("threads"), 1)
	benchKeys = max(viper.GetInt("keys"), 1)
	benchSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

func runBench(cmd *cobra.Command, _ []string) error {
	fmt.Println("Benchmarking runtime parameter operations")
	fmt.Println(cfg.String())
	fmt.Printf("Threads: %d, Keys: %d\n\n", benchThreads, benchKeys)

	// bench keys live in their own namespace, the configured vhost guard does not apply
	p := params.NewStore(session.Store, vhost.AllowAll)
	runID := uuid.NewString()

	results := make(map[string]testing.BenchmarkResult)
	var order []string
	for _, bm := range benchmarks {
		order = append(order, bm.name)
		if shouldSkip(bm.name) {
			results[bm.name] = testing.BenchmarkResult{}
			printResult(bm.name, results[bm.name])
			continue
		}

		ns := benchNamespace{
			vhost:  "bench-" + runID,
			prefix: fmt.Sprintf("bench-%s-%s", runID, bm.name),
			keys:   benchKeys,
		}
		results[bm.name] = testing.Benchmark(func(b *testing.B) {
			b.Cleanup(func() { cleanupNamespace(p, ns) })
			b.SetParallelism(benchThreads)
			bm.fn(b, p, ns)
		})
		printResult(bm.name, results[bm.name])
	}

	if path := viper.GetString("csv"); path != "" {
		if err := writeResultsToCSV(path, order, results); err != nil {
			return err
		}
		fmt.Printf("\nresults written to %s\n", path)
	}
	return nil
}

// cleanupNamespace removes everything a benchmark wrote
func cleanupNamespace(p *params.Store, ns benchNamespace) {
	if _, err := p.RemoveMatching(params.Pattern{VHost: params.Literal(ns.vhost), Component: params.Any, Name: params.Any}); err != nil {
		log.Warningf("cleanup of vhost %s failed: %v", ns.vhost, err)
	}
	for i := 0; i < ns.keys; i++ {
		if err := p.RemoveGlobal(ns.name(i)); err != nil {
			log.Warningf("cleanup of global %s failed: %v", ns.name(i), err)
		}
	}
}

func shouldSkip(name string) bool {
	for _, s := range benchSkip {
		if strings.TrimSpace(s) == name {
			return true
		}
	}
	return false
}

// printResult prints the result of a benchmark in a formatted way
func printResult(name string, result testing.BenchmarkResult) {
	if result.N == 0 {
		fmt.Printf("%-20sskipped\n", name)
		return
	}
	nsPerOp := math.Max(float64(result.NsPerOp()), 1)
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", name, nsPerOp, time.Duration(nsPerOp), 1e9/nsPerOp)
}

// writeResultsToCSV writes the benchmark results in run order
func writeResultsToCSV(path string, order []string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"Test", "N", "NsPerOp", "OpsPerSec", "Skipped", "Mode", "Engine", "Threads", "Keys"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, name := range order {
		result := results[name]
		skipped := result.N == 0
		var nsPerOp, opsPerSec float64
		if !skipped {
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1e9 / nsPerOp
		}
		row := []string{
			name,
			strconv.Itoa(result.N),
			fmt.Sprintf("%.0f", nsPerOp),
			fmt.Sprintf("%.0f", opsPerSec),
			strconv.FormatBool(skipped),
			cfg.Mode,
			cfg.Engine,
			strconv.Itoa(benchThreads),
			strconv.Itoa(benchKeys),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", name, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
