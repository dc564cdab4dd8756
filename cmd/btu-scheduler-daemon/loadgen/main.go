// Command loadgen measures Due-Time Index and RQ Job Writer throughput
// against a running Redis instance, by seeding a large number of
// synthetic firings and job records concurrently. Adapted from the
// teacher's benchmark/main.go, which measured task-queue enqueue and
// drain throughput the same way.
package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Datahenge/btu-scheduler-daemon/internal/dueindex"
	"github.com/Datahenge/btu-scheduler-daemon/internal/rq"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6379", "Redis address")
	numFirings := flag.Int("firings", 10000, "number of synthetic firings to seed")
	numWorkers := flag.Int("workers", 10, "number of concurrent seeders")
	flag.Parse()

	rdb := redis.NewClient(&redis.Options{Addr: *addr})
	defer rdb.Close()

	index := dueindex.New(rdb)
	writer := rq.NewWriter(rdb)
	ctx := context.Background()

	fmt.Println("btu-scheduler-daemon loadgen")
	fmt.Println("============================")
	fmt.Printf("Firings to seed: %d\n", *numFirings)
	fmt.Printf("Concurrent seeders: %d\n\n", *numWorkers)

	start := time.Now()
	var wg sync.WaitGroup
	var seeded atomic.Int64
	perWorker := *numFirings / *numWorkers

	for w := 0; w < *numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				scheduleID := fmt.Sprintf("loadgen-%d-%d", workerID, i)
				fireAt := time.Now().Add(time.Duration(i) * time.Second).Unix()
				if err := index.Schedule(ctx, scheduleID, fireAt); err != nil {
					fmt.Printf("error seeding due-time index: %v\n", err)
					return
				}

				job := rq.NewJobRecord("default", "loadgen synthetic job", []byte("payload"), nil, 600)
				if err := writer.SaveAndEnqueue(ctx, job); err != nil {
					fmt.Printf("error seeding job record: %v\n", err)
					return
				}
				seeded.Add(1)
			}
		}(w)
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Printf("Seeded %d firings + job records in %s\n", seeded.Load(), elapsed)
	fmt.Printf("Throughput: %.2f ops/sec\n", float64(seeded.Load())/elapsed.Seconds())

	all, err := index.ListAll(ctx)
	if err != nil {
		fmt.Printf("error listing due-time index: %v\n", err)
		return
	}
	fmt.Printf("Due-Time Index now holds %d members\n", len(all))
}
