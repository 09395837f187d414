package analytics

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	v1 "github.com/loglens-lab/project-loglens/internal/api/v1"
	"github.com/loglens-lab/project-loglens/internal/sketch"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidQuery marks request validation errors that should return HTTP 400.
	ErrInvalidQuery = errors.New("invalid analytics query")

	// ErrInvalidRange marks range queries whose end date precedes the start date.
	ErrInvalidRange = errors.New("end date precedes start date")
)

// Engine maintains the per-day and all-time login metrics state.
//
// Users are tracked twice on purpose: approximately in sketches (cheap
// all-time distinct counts) and exactly in sets (NRU and RR1 need identity,
// not an estimate). Devices live only in sketches, so NRD is approximate.
//
// All state is process-lifetime-scoped and guarded by one mutex; ingest calls
// are short relative to the I/O that feeds them, so a single lock is enough.
type Engine struct {
	mu sync.Mutex

	precision int

	dailyUsers     map[string]*sketch.Sketch
	dailyDevices   map[string]*sketch.Sketch
	allTimeUsers   *sketch.Sketch
	allTimeDevices *sketch.Sketch

	usersSeenByDate  map[string]map[string]struct{}
	newUsersByDate   map[string]map[string]struct{}
	allUsersEverSeen map[string]struct{}
}

// NewEngine creates an engine whose sketches all use the given precision.
func NewEngine(precision int) *Engine {
	e := &Engine{precision: precision}
	e.initState()
	slog.Info("Analytics engine initialized", "precision", e.precision)
	return e
}

func (e *Engine) initState() {
	e.dailyUsers = make(map[string]*sketch.Sketch)
	e.dailyDevices = make(map[string]*sketch.Sketch)
	e.allTimeUsers = sketch.New(e.precision)
	e.allTimeDevices = sketch.New(e.precision)
	e.precision = e.allTimeUsers.Precision()
	e.usersSeenByDate = make(map[string]map[string]struct{})
	e.newUsersByDate = make(map[string]map[string]struct{})
	e.allUsersEverSeen = make(map[string]struct{})
}

// IngestBatch applies a batch of parsed events to the engine state. Only
// login events with a user or device id mutate state; events whose timestamp
// cannot be bucketed are skipped without failing the batch. Safe to call from
// concurrent pipeline dispatches.
func (e *Engine) IngestBatch(events []*v1.LogEvent) error {
	byDate := make(map[string][]*v1.LogEvent)
	skipped := 0
	for _, evt := range events {
		date, err := v1.DateKeyFromTimestamp(evt.Timestamp)
		if err != nil {
			skipped++
			continue
		}
		byDate[date] = append(byDate[date], evt)
	}
	if skipped > 0 {
		slog.Debug("Skipped events with unparseable timestamps", "count", skipped)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for date, dateEvents := range byDate {
		userSketch, deviceSketch := e.sketchesForLocked(date)

		for _, evt := range dateEvents {
			if evt.Event != v1.EventLogin {
				continue
			}

			if evt.UserID != "" {
				userSketch.AddString(evt.UserID)
				e.allTimeUsers.AddString(evt.UserID)

				seen := e.usersSeenByDate[date]
				if seen == nil {
					seen = make(map[string]struct{})
					e.usersSeenByDate[date] = seen
				}
				seen[evt.UserID] = struct{}{}

				// First-ever observation puts the user in exactly one
				// date's new-user set.
				if _, ok := e.allUsersEverSeen[evt.UserID]; !ok {
					e.allUsersEverSeen[evt.UserID] = struct{}{}
					newUsers := e.newUsersByDate[date]
					if newUsers == nil {
						newUsers = make(map[string]struct{})
						e.newUsersByDate[date] = newUsers
					}
					newUsers[evt.UserID] = struct{}{}
				}
			}

			if evt.DeviceID != "" {
				deviceSketch.AddString(evt.DeviceID)
				e.allTimeDevices.AddString(evt.DeviceID)
			}
		}
	}

	return nil
}

// sketchesForLocked lazily creates the per-date sketches. Caller holds e.mu.
func (e *Engine) sketchesForLocked(date string) (users, devices *sketch.Sketch) {
	users = e.dailyUsers[date]
	if users == nil {
		users = sketch.New(e.precision)
		e.dailyUsers[date] = users
	}
	devices = e.dailyDevices[date]
	if devices == nil {
		devices = sketch.New(e.precision)
		e.dailyDevices[date] = devices
	}
	return users, devices
}

// CalculateNRU returns the exact count of users observed for the first time
// ever on the given date.
func (e *Engine) CalculateNRU(date string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.newUsersByDate[date])
}

// CalculateNRD estimates how many devices were seen on the given date that
// were never seen before, via a union-difference of device sketches. The raw
// difference can go negative purely from estimation error, so it is floored
// at zero.
func (e *Engine) CalculateNRD(date string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nrdLocked(date)
}

func (e *Engine) nrdLocked(date string) (int, error) {
	today := e.dailyDevices[date]
	if today == nil {
		return 0, nil
	}

	priorUnion := sketch.New(e.precision)
	for d, s := range e.dailyDevices {
		if d < date {
			if err := priorUnion.Merge(s); err != nil {
				return 0, fmt.Errorf("merge prior device sketch for %s: %w", d, err)
			}
		}
	}

	combined := priorUnion.Clone()
	if err := combined.Merge(today); err != nil {
		return 0, fmt.Errorf("merge device sketch for %s: %w", date, err)
	}

	diff := combined.Estimate() - priorUnion.Estimate()
	if diff < 0 {
		diff = 0
	}
	return int(math.Round(diff)), nil
}

// CalculateRR1 returns the percentage of users who were new on the preceding
// day and logged in again on the given date. Exact, set-based. Returns 0 when
// the date is malformed or yesterday's cohort is empty.
func (e *Engine) CalculateRR1(date string) float64 {
	day, err := v1.ParseDateKey(date)
	if err != nil {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rr1Locked(date, prevDateKey(day))
}

func (e *Engine) rr1Locked(date, prevDate string) float64 {
	cohort := e.newUsersByDate[prevDate]
	if len(cohort) == 0 {
		return 0
	}

	seenToday := e.usersSeenByDate[date]
	returned := 0
	for id := range cohort {
		if _, ok := seenToday[id]; ok {
			returned++
		}
	}

	return float64(returned) / float64(len(cohort)) * 100
}

// DailyMetrics composes NRU, NRD and RR1 for one date. RR1 is rounded to two
// decimal places.
func (e *Engine) DailyMetrics(date string) (DailyMetrics, error) {
	day, err := v1.ParseDateKey(date)
	if err != nil {
		return DailyMetrics{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dailyMetricsLocked(date, day)
}

func (e *Engine) dailyMetricsLocked(date string, day time.Time) (DailyMetrics, error) {
	nrd, err := e.nrdLocked(date)
	if err != nil {
		return DailyMetrics{}, err
	}

	return DailyMetrics{
		Date: date,
		NRU:  len(e.newUsersByDate[date]),
		NRD:  nrd,
		RR1:  roundTwoPlaces(e.rr1Locked(date, prevDateKey(day))),
	}, nil
}

// MetricsForRange returns one DailyMetrics per calendar day from start to end
// inclusive, in ascending order.
func (e *Engine) MetricsForRange(startDate, endDate string) ([]DailyMetrics, error) {
	start, err := v1.ParseDateKey(startDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	end, err := v1.ParseDateKey(endDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, startDate, endDate)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var metrics []DailyMetrics
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		m, err := e.dailyMetricsLocked(day.Format(v1.DateKeyLayout), day)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

// Stats returns a snapshot of the engine's global counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stats{
		TotalUsers:             len(e.allUsersEverSeen),
		TotalDaysTracked:       len(e.dailyUsers),
		EstimatedUniqueUsers:   int64(math.Round(e.allTimeUsers.Estimate())),
		EstimatedUniqueDevices: int64(math.Round(e.allTimeDevices.Estimate())),
	}
}

// Reset returns the engine to its exact post-construction state.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.initState()
	slog.Info("Analytics engine state cleared")
}

func prevDateKey(day time.Time) string {
	return day.AddDate(0, 0, -1).Format(v1.DateKeyLayout)
}

func roundTwoPlaces(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
