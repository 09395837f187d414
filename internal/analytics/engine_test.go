package analytics

import (
	"fmt"
	"sync"
	"testing"

	v1 "github.com/loglens-lab/project-loglens/internal/api/v1"
	"github.com/loglens-lab/project-loglens/internal/sketch"
	"github.com/stretchr/testify/require"
)

func loginEvent(userID, deviceID, ts string) *v1.LogEvent {
	return &v1.LogEvent{
		Event:     v1.EventLogin,
		UserID:    userID,
		DeviceID:  deviceID,
		Timestamp: ts,
	}
}

func TestSingleLoginProducesDayMetrics(t *testing.T) {
	e := NewEngine(sketch.DefaultPrecision)

	require.NoError(t, e.IngestBatch([]*v1.LogEvent{
		loginEvent("u1", "d1", "2024-01-01T10:00:00Z"),
	}))

	m, err := e.DailyMetrics("2024-01-01")
	require.NoError(t, err)
	require.Equal(t, "2024-01-01", m.Date)
	require.Equal(t, 1, m.NRU)
	require.Equal(t, 1, m.NRD)
	require.Equal(t, 0.0, m.RR1)
}

func TestDayOneRetention(t *testing.T) {
	e := NewEngine(sketch.DefaultPrecision)

	require.NoError(t, e.IngestBatch([]*v1.LogEvent{
		loginEvent("u1", "d1", "2024-01-01T09:00:00Z"),
		loginEvent("u1", "d1", "2024-01-02T09:00:00Z"),
	}))

	m, err := e.DailyMetrics("2024-01-02")
	require.NoError(t, err)
	require.Equal(t, 0, m.NRU, "u1 was already seen on day one")
	require.Equal(t, 100.0, m.RR1, "the whole day-one cohort returned")
}

func TestRR1WithoutCohortIsZero(t *testing.T) {
	e := NewEngine(sketch.DefaultPrecision)

	require.NoError(t, e.IngestBatch([]*v1.LogEvent{
		loginEvent("u1", "d1", "2024-01-05T09:00:00Z"),
	}))

	require.Equal(t, 0.0, e.CalculateRR1("2024-01-05"))
	require.Equal(t, 0.0, e.CalculateRR1("2024-03-01"))
	require.Equal(t, 0.0, e.CalculateRR1("not-a-date"))
}

func TestRR1PartialCohort(t *testing.T) {
	e := NewEngine(sketch.DefaultPrecision)

	require.NoError(t, e.IngestBatch([]*v1.LogEvent{
		loginEvent("u1", "d1", "2024-01-01T09:00:00Z"),
		loginEvent("u2", "d2", "2024-01-01T10:00:00Z"),
		loginEvent("u3", "d3", "2024-01-01T11:00:00Z"),
		loginEvent("u4", "d4", "2024-01-01T12:00:00Z"),
		loginEvent("u1", "d1", "2024-01-02T09:00:00Z"),
		loginEvent("u3", "d3", "2024-01-02T10:00:00Z"),
		loginEvent("u5", "d5", "2024-01-02T11:00:00Z"),
	}))

	m, err := e.DailyMetrics("2024-01-02")
	require.NoError(t, err)
	require.Equal(t, 1, m.NRU, "only u5 is new on day two")
	require.Equal(t, 50.0, m.RR1, "2 of 4 day-one users returned")
}

func TestNonLoginEventsDoNotMutateState(t *testing.T) {
	e := NewEngine(sketch.DefaultPrecision)

	require.NoError(t, e.IngestBatch([]*v1.LogEvent{
		{Event: v1.EventOpenApp, UserID: "u1", DeviceID: "d1", Timestamp: "2024-01-01T09:00:00Z"},
		{Event: v1.EventSetRole, UserID: "u1", RoleID: "mage", Timestamp: "2024-01-01T09:01:00Z"},
		{Event: "purchase", UserID: "u1", Timestamp: "2024-01-01T09:02:00Z"},
	}))

	stats := e.Stats()
	require.Equal(t, 0, stats.TotalUsers)
	require.Equal(t, int64(0), stats.EstimatedUniqueUsers)
	require.Equal(t, 0, e.CalculateNRU("2024-01-01"))
}

func TestUnparseableTimestampsAreSkipped(t *testing.T) {
	e := NewEngine(sketch.DefaultPrecision)

	require.NoError(t, e.IngestBatch([]*v1.LogEvent{
		loginEvent("u1", "d1", "garbage"),
		loginEvent("u2", "d2", "2024-01-01T10:00:00Z"),
	}))

	stats := e.Stats()
	require.Equal(t, 1, stats.TotalUsers)
	require.Equal(t, 1, e.CalculateNRU("2024-01-01"))
}

func TestNewUserSetsDisjointAndCoverAllUsers(t *testing.T) {
	e := NewEngine(sketch.DefaultPrecision)

	var events []*v1.LogEvent
	for day := 1; day <= 5; day++ {
		for u := 0; u < 20; u++ {
			// Users overlap across days: user ids repeat from day to day.
			id := fmt.Sprintf("u%d", (day*7+u)%40)
			ts := fmt.Sprintf("2024-02-%02dT10:00:00Z", day)
			events = append(events, loginEvent(id, "d-"+id, ts))
		}
	}
	require.NoError(t, e.IngestBatch(events))

	seen := make(map[string]string)
	total := 0
	for date, newUsers := range e.newUsersByDate {
		for id := range newUsers {
			if prior, dup := seen[id]; dup {
				t.Fatalf("user %s is new on both %s and %s", id, prior, date)
			}
			seen[id] = date
			total++
		}
	}

	require.Equal(t, len(e.allUsersEverSeen), total)
	for id := range e.allUsersEverSeen {
		require.Contains(t, seen, id)
	}
}

func TestNRDNeverNegativeAndRR1Bounded(t *testing.T) {
	e := NewEngine(sketch.DefaultPrecision)

	var events []*v1.LogEvent
	for day := 1; day <= 4; day++ {
		for i := 0; i < 500; i++ {
			id := fmt.Sprintf("x%d", i%600)
			ts := fmt.Sprintf("2024-03-%02dT12:00:00Z", day)
			events = append(events, loginEvent(id, "dev-"+id, ts))
		}
	}
	require.NoError(t, e.IngestBatch(events))

	for day := 1; day <= 4; day++ {
		date := fmt.Sprintf("2024-03-%02d", day)
		nrd, err := e.CalculateNRD(date)
		require.NoError(t, err)
		require.GreaterOrEqual(t, nrd, 0)

		rr1 := e.CalculateRR1(date)
		require.GreaterOrEqual(t, rr1, 0.0)
		require.LessOrEqual(t, rr1, 100.0)
	}
}

func TestMetricsForRange(t *testing.T) {
	e := NewEngine(sketch.DefaultPrecision)

	require.NoError(t, e.IngestBatch([]*v1.LogEvent{
		loginEvent("u1", "d1", "2024-01-01T09:00:00Z"),
		loginEvent("u2", "d2", "2024-01-03T09:00:00Z"),
	}))

	metrics, err := e.MetricsForRange("2024-01-01", "2024-01-03")
	require.NoError(t, err)
	require.Len(t, metrics, 3)
	require.Equal(t, "2024-01-01", metrics[0].Date)
	require.Equal(t, "2024-01-02", metrics[1].Date)
	require.Equal(t, "2024-01-03", metrics[2].Date)
	require.Equal(t, 1, metrics[0].NRU)
	require.Equal(t, 0, metrics[1].NRU)
	require.Equal(t, 1, metrics[2].NRU)
}

func TestMetricsForRangeValidation(t *testing.T) {
	e := NewEngine(sketch.DefaultPrecision)

	_, err := e.MetricsForRange("2024-01-05", "2024-01-01")
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = e.MetricsForRange("bad", "2024-01-01")
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = e.MetricsForRange("2024-01-01", "bad")
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestStatsEstimateWithin2PercentAt10k(t *testing.T) {
	e := NewEngine(sketch.DefaultPrecision)

	const n = 10000
	const batchSize = 1000
	for start := 0; start < n; start += batchSize {
		batch := make([]*v1.LogEvent, 0, batchSize)
		for i := start; i < start+batchSize; i++ {
			batch = append(batch, loginEvent(fmt.Sprintf("user_%d", i), "", "2024-04-01T08:00:00Z"))
		}
		require.NoError(t, e.IngestBatch(batch))
	}

	stats := e.Stats()
	require.Equal(t, n, stats.TotalUsers)
	require.Equal(t, 1, stats.TotalDaysTracked)
	require.InDelta(t, n, stats.EstimatedUniqueUsers, 0.02*n)
}

func TestResetRestoresFreshState(t *testing.T) {
	e := NewEngine(sketch.DefaultPrecision)
	fresh := NewEngine(sketch.DefaultPrecision)

	require.NoError(t, e.IngestBatch([]*v1.LogEvent{
		loginEvent("u1", "d1", "2024-01-01T09:00:00Z"),
		loginEvent("u2", "d2", "2024-01-02T09:00:00Z"),
	}))
	e.Reset()

	require.Equal(t, fresh.Stats(), e.Stats())

	got, err := e.DailyMetrics("2024-01-01")
	require.NoError(t, err)
	want, err := fresh.DailyMetrics("2024-01-01")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestConcurrentIngestIsSerialized(t *testing.T) {
	e := NewEngine(sketch.DefaultPrecision)

	const workers = 8
	const perWorker = 200

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			batch := make([]*v1.LogEvent, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				id := fmt.Sprintf("w%d_u%d", w, i)
				batch = append(batch, loginEvent(id, "dev-"+id, "2024-05-01T10:00:00Z"))
			}
			require.NoError(t, e.IngestBatch(batch))
		}(w)
	}
	wg.Wait()

	stats := e.Stats()
	require.Equal(t, workers*perWorker, stats.TotalUsers)
	require.Equal(t, workers*perWorker, e.CalculateNRU("2024-05-01"))
}
