package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"relaydock/relay/pkg/cli"
)

var benchmarkFlags struct {
	target      string
	duration    time.Duration
	rate        int
	concurrency int
	image       string
	report      string
	format      string
}

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Load test the proxy",
	Long: `Perform load testing and performance profiling against a running relay.

The benchmark command issues real HTTP GET requests for a manifest against
the proxy at a configurable rate and measures latency and throughput.

Metrics Collected:
  - Request throughput (requests/sec)
  - Latency percentiles (p50, p95, p99, max)
  - Success/error rates by HTTP status

Examples:
  # Basic benchmark against a local proxy
  relay benchmark --target http://localhost:8000

  # High load test
  relay benchmark --duration 60s --rate 100 --concurrency 10

  # Benchmark a specific image's manifest
  relay benchmark --image dockerhub/library/alpine:latest --duration 30s`,
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	benchmarkCmd.Flags().StringVar(&benchmarkFlags.target, "target", "http://localhost:8000", "relay proxy URL")
	benchmarkCmd.Flags().DurationVar(&benchmarkFlags.duration, "duration", 30*time.Second, "test duration")
	benchmarkCmd.Flags().IntVar(&benchmarkFlags.rate, "rate", 10, "requests per second")
	benchmarkCmd.Flags().IntVar(&benchmarkFlags.concurrency, "concurrency", 1, "concurrent clients")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.image, "image", "dockerhub/library/alpine:latest", "mirror-prefixed repository:tag to request")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.report, "report", "", "output file for results")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.format, "format", "text", "output format: text, json")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	fmt.Println("relay benchmark")
	fmt.Println("===============")
	fmt.Printf("Target:  %s\n", benchmarkFlags.target)
	fmt.Printf("Image:   %s\n", benchmarkFlags.image)
	fmt.Printf("Duration: %s\n", benchmarkFlags.duration)
	fmt.Printf("Rate:    %d req/s\n", benchmarkFlags.rate)
	fmt.Printf("Workers: %d\n", benchmarkFlags.concurrency)
	fmt.Println()
	fmt.Println("Running...")
	fmt.Println()

	results := runLoadTest(cmd.Context())
	displayResults(results)

	if benchmarkFlags.report != "" {
		if err := writeReport(results); err != nil {
			return cli.NewCommandError("benchmark", err)
		}
	}

	return nil
}

type benchmarkResults struct {
	totalRequests  int
	successfulReqs int
	failedReqs     int
	duration       time.Duration
	latencies      []time.Duration
	statusCounts   map[int]int
}

func manifestURL() string {
	repo, tag := benchmarkFlags.image, "latest"
	for i := len(benchmarkFlags.image) - 1; i >= 0; i-- {
		if benchmarkFlags.image[i] == ':' {
			repo, tag = benchmarkFlags.image[:i], benchmarkFlags.image[i+1:]
			break
		}
	}
	return fmt.Sprintf("%s/v2/%s/manifests/%s", benchmarkFlags.target, repo, tag)
}

func runLoadTest(ctx context.Context) *benchmarkResults {
	url := manifestURL()
	results := &benchmarkResults{
		statusCounts: make(map[int]int),
	}

	var (
		successful int64
		failed     int64
		mu         sync.Mutex
	)

	client := &http.Client{Timeout: 10 * time.Second}

	testCtx, cancel := context.WithTimeout(ctx, benchmarkFlags.duration)
	defer cancel()

	progress := cli.NewProgressReporter(nil)
	estimatedTotal := int64(benchmarkFlags.duration.Seconds()) * int64(benchmarkFlags.rate)
	progress.Start(estimatedTotal)

	requestInterval := time.Second / time.Duration(benchmarkFlags.rate)
	ticker := time.NewTicker(requestInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, benchmarkFlags.concurrency)
	var wg sync.WaitGroup
	start := time.Now()

loop:
	for {
		select {
		case <-testCtx.Done():
			break loop
		case <-ticker.C:
			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				reqStart := time.Now()
				req, err := http.NewRequestWithContext(testCtx, http.MethodGet, url, nil)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					return
				}
				req.Header.Set("Accept", "application/vnd.docker.distribution.manifest.v2+json")

				resp, err := client.Do(req)
				latency := time.Since(reqStart)

				mu.Lock()
				results.latencies = append(results.latencies, latency)
				if err == nil {
					results.statusCounts[resp.StatusCode]++
				}
				mu.Unlock()

				if err != nil {
					atomic.AddInt64(&failed, 1)
					return
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				if resp.StatusCode >= 200 && resp.StatusCode < 400 {
					atomic.AddInt64(&successful, 1)
				} else {
					atomic.AddInt64(&failed, 1)
				}
				progress.Update(atomic.LoadInt64(&successful) + atomic.LoadInt64(&failed))
			}()
			results.totalRequests++
		}
	}

	wg.Wait()
	progress.Finish()

	results.duration = time.Since(start)
	results.successfulReqs = int(atomic.LoadInt64(&successful))
	results.failedReqs = int(atomic.LoadInt64(&failed))

	return results
}

func displayResults(results *benchmarkResults) {
	fmt.Println()
	fmt.Println("Results:")
	fmt.Println("--------")
	fmt.Printf("Requests:        %d total, %d successful, %d failed\n",
		results.totalRequests, results.successfulReqs, results.failedReqs)
	fmt.Printf("Duration:        %.1fs\n", results.duration.Seconds())

	if results.successfulReqs > 0 {
		throughput := float64(results.successfulReqs) / results.duration.Seconds()
		fmt.Printf("Throughput:      %.2f req/s\n", throughput)
	}

	if len(results.latencies) > 0 {
		min, mean, median, p95, p99, max := calculatePercentiles(results.latencies)

		fmt.Println()
		fmt.Println("Latency:")
		fmt.Printf("  Min:     %.1fms\n", float64(min.Microseconds())/1000)
		fmt.Printf("  Mean:    %.1fms\n", float64(mean.Microseconds())/1000)
		fmt.Printf("  Median:  %.1fms\n", float64(median.Microseconds())/1000)
		fmt.Printf("  p95:     %.1fms\n", float64(p95.Microseconds())/1000)
		fmt.Printf("  p99:     %.1fms\n", float64(p99.Microseconds())/1000)
		fmt.Printf("  Max:     %.1fms\n", float64(max.Microseconds())/1000)
	}

	if len(results.statusCounts) > 0 {
		fmt.Println()
		fmt.Println("Status Codes:")
		for code, count := range results.statusCounts {
			pct := float64(count) / float64(results.totalRequests) * 100
			fmt.Printf("  %d:     %d (%.0f%%)\n", code, count, pct)
		}
	}
}

func writeReport(results *benchmarkResults) error {
	f, err := os.Create(benchmarkFlags.report)
	if err != nil {
		return err
	}
	defer f.Close()

	formatter := cli.NewFormatter(cli.OutputFormat(benchmarkFlags.format))
	data := map[string]any{
		"total_requests":   results.totalRequests,
		"successful":       results.successfulReqs,
		"failed":           results.failedReqs,
		"duration_seconds": results.duration.Seconds(),
		"status_codes":     results.statusCounts,
	}
	return formatter.FormatTo(f, data)
}

func calculatePercentiles(latencies []time.Duration) (min, mean, median, p95, p99, max time.Duration) {
	if len(latencies) == 0 {
		return
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	min = sorted[0]
	max = sorted[len(sorted)-1]

	var sum time.Duration
	for _, lat := range sorted {
		sum += lat
	}
	mean = sum / time.Duration(len(sorted))

	median = sorted[len(sorted)/2]
	p95 = sorted[int(float64(len(sorted))*0.95)]
	p99 = sorted[int(float64(len(sorted))*0.99)]

	return
}
