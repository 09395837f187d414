// Package generator produces synthetic login logs: test fixtures for the
// ingestion pipeline and load material for the analytics engine.
package generator

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	v1 "github.com/loglens-lab/project-loglens/internal/api/v1"
	"github.com/google/uuid"
)

const (
	userPoolSize   = 50000
	devicePoolSize = 60000
	progressStep   = 10000
)

var rolePool = []string{"warrior", "mage", "archer", "priest", "rogue"}

// Options controls the synthetic log mix.
type Options struct {
	NumberOfLogs int
	NumberOfDays int

	// Progress, when set, is called periodically with the number of lines
	// written so far, and once more at completion.
	Progress func(written int)
}

// Summary describes a completed generation run.
type Summary struct {
	RunID        string `json:"run_id"`
	OutputPath   string `json:"output_path,omitempty"`
	NumberOfLogs int    `json:"number_of_logs"`
	NumberOfDays int    `json:"number_of_days"`
}

// Generate writes opts.NumberOfLogs newline-delimited JSON events to w,
// spread over opts.NumberOfDays days ending today. The mix is 60% login,
// 25% open_app, 15% set_role, drawn from fixed user/device/role pools.
func Generate(w io.Writer, opts Options) (*Summary, error) {
	if opts.NumberOfLogs <= 0 {
		return nil, fmt.Errorf("number of logs must be > 0")
	}
	if opts.NumberOfDays <= 0 {
		return nil, fmt.Errorf("number of days must be > 0")
	}

	runID := uuid.NewString()
	slog.Info("Generating sample logs",
		"run_id", runID,
		"logs", opts.NumberOfLogs,
		"days", opts.NumberOfDays,
	)

	bw := bufio.NewWriter(w)
	base := time.Now().UTC()

	for i := 0; i < opts.NumberOfLogs; i++ {
		evt := randomEvent(base, opts.NumberOfDays)
		line, err := json.Marshal(evt)
		if err != nil {
			return nil, fmt.Errorf("marshal event: %w", err)
		}
		if _, err := bw.Write(line); err != nil {
			return nil, fmt.Errorf("write event: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return nil, fmt.Errorf("write event: %w", err)
		}

		if opts.Progress != nil && (i+1)%progressStep == 0 {
			opts.Progress(i + 1)
		}
	}

	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flush output: %w", err)
	}
	if opts.Progress != nil {
		opts.Progress(opts.NumberOfLogs)
	}

	return &Summary{
		RunID:        runID,
		NumberOfLogs: opts.NumberOfLogs,
		NumberOfDays: opts.NumberOfDays,
	}, nil
}

// WriteFile generates sample logs into a new file at path.
func WriteFile(path string, opts Options) (*Summary, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	summary, err := Generate(f, opts)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close output file: %w", closeErr)
	}
	if err != nil {
		return nil, err
	}

	summary.OutputPath = path
	slog.Info("Sample log generation completed", "run_id", summary.RunID, "path", path)
	return summary, nil
}

func randomEvent(base time.Time, days int) v1.LogEvent {
	day := base.AddDate(0, 0, -rand.IntN(days))
	ts := time.Date(
		day.Year(), day.Month(), day.Day(),
		rand.IntN(24), rand.IntN(60), rand.IntN(60), 0,
		time.UTC,
	).Format(time.RFC3339)

	userID := fmt.Sprintf("user_%d", rand.IntN(userPoolSize))
	deviceID := fmt.Sprintf("device_%d", rand.IntN(devicePoolSize))

	switch draw := rand.Float64(); {
	case draw < 0.60:
		return v1.LogEvent{Event: v1.EventLogin, UserID: userID, DeviceID: deviceID, Timestamp: ts}
	case draw < 0.85:
		return v1.LogEvent{Event: v1.EventOpenApp, UserID: userID, DeviceID: deviceID, Timestamp: ts}
	default:
		return v1.LogEvent{Event: v1.EventSetRole, UserID: userID, RoleID: rolePool[rand.IntN(len(rolePool))], Timestamp: ts}
	}
}
