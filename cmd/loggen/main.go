// loggen writes a synthetic login-log fixture file for the ingestion
// pipeline.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/loglens-lab/project-loglens/internal/generator"
	"github.com/schollz/progressbar/v3"
)

func main() {
	output := flag.String("output", "sample-logs.jsonl", "Output file path")
	count := flag.Int("count", 1000000, "Number of log lines to generate")
	days := flag.Int("days", 7, "Number of days to spread timestamps over")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	bar := progressbar.Default(int64(*count))
	summary, err := generator.WriteFile(*output, generator.Options{
		NumberOfLogs: *count,
		NumberOfDays: *days,
		Progress: func(written int) {
			_ = bar.Set(written)
		},
	})
	if err != nil {
		slog.Error("Generation failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %d logs across %d days to %s (run %s)\n",
		summary.NumberOfLogs, summary.NumberOfDays, summary.OutputPath, summary.RunID)
}
