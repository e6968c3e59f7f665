package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	counter "github.com/krisalay/sharded-counter"
	"github.com/krisalay/sharded-counter/config"
	"github.com/krisalay/sharded-counter/logger"
)

// ================= BENCHMARK =================

func run() error {
	counters := flag.Int("counters", 4, "Distinct counters")
	goroutines := flag.Int("goroutines", 200, "Concurrent writers")
	opsPerG := flag.Int("ops", 5000, "Increments per writer")
	shards := flag.Int("shards", 20, "Shards per counter")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.DefaultShards = *shards

	log := logger.New(logger.LoadConfig())
	c, err := counter.Open(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer c.Close()

	// Fresh names so repeated runs against a record log start from zero.
	names := make([]string, *counters)
	for i := range names {
		names[i] = "bench-" + uuid.NewString()
	}

	fmt.Println("\n================ INCREMENT BENCHMARK =================")
	fmt.Println("CONFIG")
	fmt.Println("---------------------------------")
	fmt.Println("Counters      :", *counters)
	fmt.Println("Shards        :", *shards)
	fmt.Println("Goroutines    :", *goroutines)
	fmt.Println("Ops/Goroutine :", *opsPerG)
	fmt.Println("Store         :", cfg.StorePath)
	fmt.Println("---------------------------------")

	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *goroutines; i++ {
		name := names[i%len(names)]
		g.Go(func() error {
			for j := 0; j < *opsPerG; j++ {
				if err := c.Increment(gctx, name); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	duration := time.Since(start)
	totalOps := *goroutines * *opsPerG

	// Verify against the shards themselves, not the cache.
	var sum int64
	for _, name := range names {
		dist, err := c.Distribution(ctx, name)
		if err != nil {
			return err
		}
		for _, s := range dist {
			sum += s.Count
		}
	}

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %d\n", totalOps)
	fmt.Printf("Counted          : %d\n", sum)
	fmt.Printf("Total Time       : %v\n", duration)
	fmt.Printf("Throughput       : %.2f ops/sec\n", float64(totalOps)/duration.Seconds())
	fmt.Println("=========================================")

	if sum != int64(totalOps) {
		return fmt.Errorf("lost updates: counted %d of %d", sum, totalOps)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
