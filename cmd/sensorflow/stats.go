package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

var statsTargets = []string{
	"sensorflow_readings_generated_total",
	"sensorflow_readings_ingested_total",
	"sensorflow_readings_rejected_total",
	"sensorflow_readings_malformed_total",
	"sensorflow_dlq_total",
	"sensorflow_inflight_messages",
}

func statsCommand(args []string) error {
	fs := newFlagSet("stats")
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(ctx, *url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values, err := scrapeValues(resp.Body, statsTargets)
	if err != nil {
		return err
	}

	fmt.Printf("[%s] generated=%.0f ingested=%.0f rejected=%.0f malformed=%.0f dlq=%.0f inflight=%.0f\n",
		time.Now().Format(time.RFC3339),
		values[statsTargets[0]],
		values[statsTargets[1]],
		values[statsTargets[2]],
		values[statsTargets[3]],
		values[statsTargets[4]],
		values[statsTargets[5]],
	)
	return nil
}

// scrapeValues reads unlabelled samples for the named metrics from Prometheus text output.
func scrapeValues(r io.Reader, names []string) (map[string]float64, error) {
	values := make(map[string]float64, len(names))
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range names {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					values[key] = value
				}
			}
		}
	}
	return values, scanner.Err()
}
