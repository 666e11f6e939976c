// The loadtest binary hammers the ingress with randomized events and
// samples the access-flag endpoints, reporting throughput as it goes.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type stats struct {
	posted   uint64
	failed   uint64
	queried  uint64
	started  time.Time
	finished time.Time
}

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "ingress base URL")
	numEvents := flag.Int("events", 1000, "number of events to post")
	concurrency := flag.Int("concurrency", 20, "number of concurrent workers")
	numUsers := flag.Int("users", 100, "size of the simulated user population")
	reportInterval := flag.Duration("report", 5*time.Second, "stats reporting interval")
	flag.Parse()

	slog.Info("Starting feature-restriction load test",
		"url", *baseURL, "events", *numEvents, "concurrency", *concurrency, "users", *numUsers)

	s := &stats{started: time.Now()}
	client := &http.Client{Timeout: 10 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go report(ctx, s, *reportInterval)

	work := make(chan int, *numEvents)
	for i := 0; i < *numEvents; i++ {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := range work {
				if err := postEvent(client, *baseURL, rng, *numUsers); err != nil {
					atomic.AddUint64(&s.failed, 1)
					continue
				}
				atomic.AddUint64(&s.posted, 1)

				// Sample the read path every so often.
				if i%10 == 0 {
					queryAccess(client, *baseURL, rng, *numUsers)
					atomic.AddUint64(&s.queried, 1)
				}
			}
		}(int64(w))
	}

	wg.Wait()
	s.finished = time.Now()
	cancel()
	printResults(s)
}

func postEvent(client *http.Client, baseURL string, rng *rand.Rand, numUsers int) error {
	userID := fmt.Sprintf("user_%d", rng.Intn(numUsers))

	var body map[string]any
	switch rng.Intn(4) {
	case 0:
		body = map[string]any{
			"name": "credit_card_added",
			"event_properties": map[string]any{
				"user_id":  userID,
				"card_id":  fmt.Sprintf("card_%d", rng.Intn(1000)),
				"zip_code": fmt.Sprintf("%05d", 10000+rng.Intn(90000)),
			},
		}
	case 1:
		body = map[string]any{
			"name":             "scam_message_flagged",
			"event_properties": map[string]any{"user_id": userID},
		}
	case 2:
		body = map[string]any{
			"name": "purchase_made",
			"event_properties": map[string]any{
				"user_id": userID,
				"amount":  float64(rng.Intn(20000)) / 100,
			},
		}
	default:
		body = map[string]any{
			"name": "chargeback_occurred",
			"event_properties": map[string]any{
				"user_id": userID,
				"amount":  float64(rng.Intn(2000)) / 100,
			},
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := client.Post(baseURL+"/event", "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func queryAccess(client *http.Client, baseURL string, rng *rand.Rand, numUsers int) {
	endpoint := "/canmessage"
	if rng.Intn(2) == 0 {
		endpoint = "/canpurchase"
	}
	url := fmt.Sprintf("%s%s?user_id=user_%d", baseURL, endpoint, rng.Intn(numUsers))
	resp, err := client.Get(url)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func report(ctx context.Context, s *stats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			posted := atomic.LoadUint64(&s.posted)
			elapsed := time.Since(s.started).Seconds()
			slog.Info("Progress",
				"posted", posted,
				"failed", atomic.LoadUint64(&s.failed),
				"queried", atomic.LoadUint64(&s.queried),
				"rate_per_sec", fmt.Sprintf("%.1f", float64(posted)/elapsed))
		}
	}
}

func printResults(s *stats) {
	elapsed := s.finished.Sub(s.started)
	posted := atomic.LoadUint64(&s.posted)
	fmt.Println("==== Load Test Results ====")
	fmt.Printf("Posted:    %d\n", posted)
	fmt.Printf("Failed:    %d\n", atomic.LoadUint64(&s.failed))
	fmt.Printf("Queried:   %d\n", atomic.LoadUint64(&s.queried))
	fmt.Printf("Elapsed:   %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Throughput: %.1f events/sec\n", float64(posted)/elapsed.Seconds())
}
