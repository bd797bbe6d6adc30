// Command tracker is a standalone HTTP sidecar that polls the Redis
// progress cache and serves a /job-summary endpoint. It is an entirely
// separate process from the client; nothing in the client depends on it
// running.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ekifun/transcodefleet/internal/logging"
)

const jobKeyPrefix = "transcodefleet:job:"

func main() {
	var redisAddr, listen string

	cmd := &cobra.Command{
		Use:   "transcodefleet-tracker",
		Short: "Serve live job progress from the Redis progress cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracker(redisAddr, listen)
		},
	}
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "localhost:6379", "Redis address the client's progresscache writes to")
	cmd.Flags().StringVar(&listen, "listen", ":9000", "listen address for the tracker API")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type jobSummary struct {
	JobID     string            `json:"job_id"`
	Completed int               `json:"completed"`
	Total     int               `json:"total"`
	Workers   map[string]string `json:"workers,omitempty"`
}

func runTracker(redisAddr, listen string) error {
	logger := logging.New(logging.Options{})
	client := redis.NewClient(&redis.Options{Addr: redisAddr})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("connect to redis at %s: %w", redisAddr, err)
	}

	http.HandleFunc("/job-summary", func(w http.ResponseWriter, r *http.Request) {
		summaries, err := aggregateJobSummaries(r.Context(), client)
		if err != nil {
			logger.Warn("job-summary aggregation failed", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summaries)
	})

	logger.Info("tracker listening", "address", listen, "redis", redisAddr)
	return http.ListenAndServe(listen, nil)
}

// aggregateJobSummaries scans every per-job hash the progresscache package
// writes and assembles one summary per job ID, skipping the per-worker
// sub-hashes it also writes under the same job.
func aggregateJobSummaries(ctx context.Context, client *redis.Client) ([]jobSummary, error) {
	keys, err := client.Keys(ctx, jobKeyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("scan job keys: %w", err)
	}

	var out []jobSummary
	for _, key := range keys {
		rest := strings.TrimPrefix(key, jobKeyPrefix)
		if strings.Contains(rest, ":worker:") {
			continue
		}
		fields, err := client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("read job %s: %w", rest, err)
		}
		completed, _ := strconv.Atoi(fields["completed"])
		total, _ := strconv.Atoi(fields["total"])
		out = append(out, jobSummary{JobID: rest, Completed: completed, Total: total})
	}
	return out, nil
}
