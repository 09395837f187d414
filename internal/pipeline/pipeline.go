// Package pipeline turns a raw byte source into parsed-event batches fed to
// the analytics engine. Sources can be far larger than memory: bytes are read
// in fixed chunks, framed into newline-delimited records, grouped into
// batches and dispatched under a bounded concurrency cap.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
	"time"

	v1 "github.com/loglens-lab/project-loglens/internal/api/v1"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBatchSize is the number of framed lines per dispatched batch.
	DefaultBatchSize = 100000

	// MaxConcurrentBatches caps how many ingest calls run at once.
	MaxConcurrentBatches = 8

	defaultChunkSize    = 256 * 1024
	progressLogInterval = 100000
)

// ErrSourceUnavailable marks byte sources that cannot be opened or read.
// Fatal to the run; no partial result is returned.
var ErrSourceUnavailable = errors.New("log source unavailable")

// BatchIngester consumes batches of parsed events. Implementations must
// tolerate concurrent calls; an error is fatal to the pipeline run.
type BatchIngester interface {
	IngestBatch(events []*v1.LogEvent) error
}

// Result summarizes a completed pipeline run.
type Result struct {
	TotalProcessed     int64   `json:"totalProcessed"`
	TimeElapsedSeconds float64 `json:"timeElapsedSeconds"`
	Errors             int64   `json:"errors"`
	LogsPerSecond      int64   `json:"logsPerSecond"`
}

// Options controls throughput behavior for a processor.
type Options struct {
	BatchSize     int
	MaxConcurrent int
	ChunkSize     int
}

// DefaultOptions returns the defaults used by the reference deployment.
func DefaultOptions() Options {
	return Options{
		BatchSize:     DefaultBatchSize,
		MaxConcurrent: MaxConcurrentBatches,
		ChunkSize:     defaultChunkSize,
	}
}

func (o Options) normalized() Options {
	n := o
	if n.BatchSize <= 0 {
		n.BatchSize = DefaultBatchSize
	}
	if n.MaxConcurrent <= 0 {
		n.MaxConcurrent = MaxConcurrentBatches
	}
	if n.ChunkSize <= 0 {
		n.ChunkSize = defaultChunkSize
	}
	return n
}

// Processor runs the ingestion pipeline against a BatchIngester.
type Processor struct {
	ingester BatchIngester
	opts     Options
}

// NewProcessor creates a processor. Zero-valued option fields fall back to
// defaults.
func NewProcessor(ingester BatchIngester, opts Options) *Processor {
	if ingester == nil {
		panic("pipeline: ingester must not be nil")
	}
	return &Processor{ingester: ingester, opts: opts.normalized()}
}

// ProcessFile opens the file at path and runs the pipeline over it.
// batchSize overrides the configured batch size when > 0.
func (p *Processor) ProcessFile(ctx context.Context, path string, batchSize int) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer f.Close()

	if info, statErr := f.Stat(); statErr == nil {
		slog.Info("Starting log file processing",
			"path", path,
			"size_mb", fmt.Sprintf("%.2f", float64(info.Size())/1024/1024),
		)
	}

	return p.ProcessSource(ctx, f, batchSize)
}

// ProcessSource runs the pipeline over an arbitrary byte source. Lines are
// framed and batched in source order; batches are ingested concurrently, up
// to the configured cap, and all in-flight ingest calls are drained before
// the result is returned.
func (p *Processor) ProcessSource(ctx context.Context, src io.Reader, batchSize int) (*Result, error) {
	if batchSize <= 0 {
		batchSize = p.opts.BatchSize
	}

	start := time.Now()
	var processed atomic.Int64
	var totalErrors int64

	// Group.Go blocks while MaxConcurrent ingest calls are in flight; it
	// only waits for a free slot, never for the ingest itself.
	group := &errgroup.Group{}
	group.SetLimit(p.opts.MaxConcurrent)

	dispatch := func(lines []string) {
		events, failed := parseBatch(lines)
		totalErrors += failed
		if len(events) == 0 {
			return
		}
		group.Go(func() error {
			if err := p.ingester.IngestBatch(events); err != nil {
				return fmt.Errorf("ingest batch: %w", err)
			}
			n := processed.Add(int64(len(events)))
			if n%progressLogInterval == 0 {
				elapsed := time.Since(start).Seconds()
				slog.Info("Pipeline progress",
					"processed", n,
					"logs_per_sec", rate(n, elapsed),
				)
			}
			return nil
		})
	}

	framer := &lineFramer{}
	batch := &batcher{size: batchSize}
	emit := func(line []byte) {
		if full := batch.add(line); full != nil {
			dispatch(full)
		}
	}

	buf := make([]byte, p.opts.ChunkSize)
	var readErr error
	for readErr == nil {
		if err := ctx.Err(); err != nil {
			readErr = err
			break
		}
		n, err := src.Read(buf)
		if n > 0 {
			framer.split(buf[:n], emit)
		}
		if err == io.EOF {
			break
		}
		readErr = err
	}

	if readErr == nil {
		framer.flush(emit)
		if rest := batch.flush(); len(rest) > 0 {
			dispatch(rest)
		}
	}

	// Dispatched ingest calls always drain, even on an aborted read, so no
	// batch is applied half-tracked.
	ingestErr := group.Wait()

	if readErr != nil {
		if errors.Is(readErr, context.Canceled) || errors.Is(readErr, context.DeadlineExceeded) {
			return nil, readErr
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, readErr)
	}
	if ingestErr != nil {
		return nil, ingestErr
	}

	elapsed := time.Since(start).Seconds()
	total := processed.Load()

	slog.Info("Processing completed",
		"total_processed", total,
		"errors", totalErrors,
		"elapsed_seconds", fmt.Sprintf("%.2f", elapsed),
		"logs_per_second", rate(total, elapsed),
	)

	return &Result{
		TotalProcessed:     total,
		TimeElapsedSeconds: elapsed,
		Errors:             totalErrors,
		LogsPerSecond:      rate(total, elapsed),
	}, nil
}

// lineFramer reconstructs newline-delimited records from arbitrary chunk
// splits. Bytes after the last newline are carried over to the next chunk.
type lineFramer struct {
	carry []byte
}

// split emits every complete non-blank line in chunk, with the carry-over
// prepended, and retains the trailing unterminated fragment. The emitted
// slices alias internal buffers and must be copied if retained.
func (f *lineFramer) split(chunk []byte, emit func(line []byte)) {
	data := chunk
	if len(f.carry) > 0 {
		data = append(f.carry, chunk...)
	}

	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := data[:i]
		data = data[i+1:]
		if len(bytes.TrimSpace(line)) > 0 {
			emit(line)
		}
	}

	// Copy the fragment: the chunk buffer is reused by the reader.
	f.carry = append(f.carry[:0:0], data...)
}

// flush emits the final unterminated line, if any.
func (f *lineFramer) flush(emit func(line []byte)) {
	if len(bytes.TrimSpace(f.carry)) > 0 {
		emit(f.carry)
	}
	f.carry = nil
}

// batcher accumulates framed lines into fixed-size groups.
type batcher struct {
	size  int
	lines []string
}

// add copies the line into the current group and returns the group when it
// reaches the threshold.
func (b *batcher) add(line []byte) []string {
	b.lines = append(b.lines, string(line))
	if len(b.lines) >= b.size {
		full := b.lines
		b.lines = make([]string, 0, b.size)
		return full
	}
	return nil
}

// flush returns the final partial group.
func (b *batcher) flush() []string {
	rest := b.lines
	b.lines = nil
	return rest
}

// parseBatch decodes each framed line as a LogEvent. Lines that fail to
// decode are dropped and counted; they never abort the run.
func parseBatch(lines []string) ([]*v1.LogEvent, int64) {
	events := make([]*v1.LogEvent, 0, len(lines))
	var failed int64
	for _, line := range lines {
		var evt v1.LogEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			failed++
			continue
		}
		events = append(events, &evt)
	}
	return events, failed
}

func rate(total int64, elapsedSeconds float64) int64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	return int64(math.Round(float64(total) / elapsedSeconds))
}
