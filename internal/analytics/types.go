package analytics

// DailyMetrics is the per-day query result. NRU and RR1 come from exact sets;
// NRD is derived from sketch union arithmetic and inherits its estimation
// error.
type DailyMetrics struct {
	Date string  `json:"date"`
	NRU  int     `json:"nru"`
	NRD  int     `json:"nrd"`
	RR1  float64 `json:"rr1"`
}

// Stats is a snapshot of the engine's global state.
type Stats struct {
	TotalUsers             int   `json:"totalUsers"`
	TotalDaysTracked       int   `json:"totalDaysTracked"`
	EstimatedUniqueUsers   int64 `json:"estimatedUniqueUsers"`
	EstimatedUniqueDevices int64 `json:"estimatedUniqueDevices"`
}
