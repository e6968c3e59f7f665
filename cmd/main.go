package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	counter "github.com/krisalay/sharded-counter"
	"github.com/krisalay/sharded-counter/config"
	"github.com/krisalay/sharded-counter/logger"
	"github.com/krisalay/sharded-counter/metrics"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintln(flag.CommandLine.Output(), "\nEnvironment variables (also read from .env):")
	for _, v := range config.EnvVarsHelp() {
		fmt.Fprintf(flag.CommandLine.Output(), "  %-26s %s\n", v.Name, v.Description)
	}
	fmt.Fprintf(flag.CommandLine.Output(), "  %-26s %s\n", "LOG_LEVEL", "debug, info, warn, error")
	fmt.Fprintf(flag.CommandLine.Output(), "  %-26s %s\n", "LOG_FORMAT", "json or text")
}

// incrementN fires n concurrent increments of name.
func incrementN(ctx context.Context, c *counter.ShardedCounter, name string, n int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(64)
	for i := 0; i < n; i++ {
		g.Go(func() error { return c.Increment(ctx, name) })
	}
	return g.Wait()
}

// applyTTL overrides the configured cache TTL only if -ttl was given on the command line.
func applyTTL(fs *flag.FlagSet, cfg *config.Config, ttl time.Duration) {
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "ttl" {
			cfg.CacheTTL = ttl
		}
	})
}

func printDistribution(ctx context.Context, c *counter.ShardedCounter, name string) {
	shards, err := c.Distribution(ctx, name)
	if err != nil {
		fmt.Println("DISTRIBUTION → error:", err)
		return
	}
	maxIndex := -1
	for _, s := range shards {
		maxIndex = max(maxIndex, s.Index)
	}
	fmt.Printf("DISTRIBUTION → %d shards written, highest index %d\n", len(shards), maxIndex)
}

func printMetrics(reg *prometheus.Registry) {
	fmt.Println("\n==================== METRICS ====================")
	families, err := reg.Gather()
	if err != nil {
		fmt.Println("gather failed:", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				fmt.Printf("%-45s %v\n", mf.GetName(), m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				fmt.Printf("%-45s count=%d sum=%v\n", mf.GetName(), m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			}
		}
	}
}

func run() error {
	name := flag.String("counter", "FOO", "Counter to exercise")
	ttl := flag.Duration("ttl", 0, "Cache TTL for the demo, e.g. 2s (default: COUNTER_CACHE_TTL)")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flag.Usage = usage
	flag.Parse()

	ctx := context.Background()
	log := logger.New(logger.LoadConfig())

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyTTL(flag.CommandLine, &cfg, *ttl)

	reg := prometheus.NewRegistry()
	collector := metrics.New(cfg.MetricsNamespace)
	if err := collector.Register(reg); err != nil {
		return err
	}
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	fmt.Println("\n==================== SYSTEM BOOT ====================")
	fmt.Println("DEFAULT SHARDS :", cfg.DefaultShards)
	fmt.Println("CACHE BACKEND  :", cfg.CacheBackend)
	fmt.Println("CACHE TTL      :", cfg.CacheTTL)
	if cfg.StorePath != "" {
		fmt.Println("STORE          :", cfg.StorePath, "(write-"+string(cfg.WritePolicy)+")")
	} else {
		fmt.Println("STORE          : memory")
	}

	c, err := counter.Open(ctx, cfg, collector, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error("close failed", "error", err)
		}
	}()

	start, err := c.GetCount(ctx, *name)
	if err != nil {
		return err
	}

	// ====================================================
	fmt.Println("\n==================== 1) 1000 CONCURRENT INCREMENTS ====================")
	if err := incrementN(ctx, c, *name, 1000); err != nil {
		return err
	}
	printDistribution(ctx, c, *name)

	// ====================================================
	fmt.Println("\n==================== 2) READ AFTER TTL (SCAN) ====================")
	time.Sleep(cfg.CacheTTL)
	v, err := c.GetCount(ctx, *name)
	if err != nil {
		return err
	}
	fmt.Printf("COUNTER → GET %s = %d (expected %d)\n", *name, v, start+1000)

	// ====================================================
	fmt.Println("\n==================== 3) CACHED READ ====================")
	v, _ = c.GetCount(ctx, *name)
	fmt.Printf("COUNTER → GET %s = %d (from cache)\n", *name, v)

	// ====================================================
	fmt.Println("\n==================== 4) GROW TO 50 SHARDS ====================")
	if err := c.GrowShards(ctx, *name, 50); err != nil {
		return err
	}
	if sc, ok, _ := c.ShardConfig(ctx, *name); ok {
		fmt.Println("CONFIG  → shard count =", sc.ShardCount)
	}

	// ====================================================
	fmt.Println("\n==================== 5) 500 MORE INCREMENTS ====================")
	if err := incrementN(ctx, c, *name, 500); err != nil {
		return err
	}
	printDistribution(ctx, c, *name)
	v, _ = c.GetCount(ctx, *name)
	fmt.Printf("COUNTER → GET %s = %d (cached, bumped by increments)\n", *name, v)

	// ====================================================
	fmt.Println("\n==================== 6) READ AFTER TTL (SCAN) ====================")
	time.Sleep(cfg.CacheTTL)
	v, err = c.GetCount(ctx, *name)
	if err != nil {
		return err
	}
	fmt.Printf("COUNTER → GET %s = %d (expected %d)\n", *name, v, start+1500)

	printMetrics(reg)

	fmt.Println("\n==================== SHUTDOWN ====================")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
