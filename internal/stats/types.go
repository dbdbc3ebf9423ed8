package stats

import (
	"sync"
	"time"
)

// RunStats accumulates statistics for one sync pass. Fetch workers report
// into it concurrently, so every method takes the lock.
type RunStats struct {
	mu sync.Mutex

	FetchedUnits     int
	SkippedUnits     int
	FailedUnits      int
	MalformedRecords int
	DeliveredPoints  int
	FailedPublishes  int
	Committed        int

	// Samples for min/max/avg calculations
	FetchLatencies   []time.Duration
	PublishLatencies []time.Duration
	PublishSizes     []int
}

// AddFetch records one finished provider fetch
func (s *RunStats) AddFetch(d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FetchLatencies = append(s.FetchLatencies, d)
	if err != nil {
		s.FailedUnits++
		return
	}
	s.FetchedUnits++
}

// AddSkip records a unit whose window was skipped without a fetch
func (s *RunStats) AddSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SkippedUnits++
}

// AddMalformed records records dropped for lacking a timestamp
func (s *RunStats) AddMalformed(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MalformedRecords += n
}

// AddPublish records one sink publish of n points
func (s *RunStats) AddPublish(n int, d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PublishLatencies = append(s.PublishLatencies, d)
	s.PublishSizes = append(s.PublishSizes, n)
	if err != nil {
		s.FailedPublishes++
		return
	}
	s.DeliveredPoints += n
}

// AddCommitted records checkpoint commits
func (s *RunStats) AddCommitted(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Committed += n
}

// Summary is a point-in-time reduction of RunStats
type Summary struct {
	FetchedUnits     int
	SkippedUnits     int
	FailedUnits      int
	MalformedRecords int
	DeliveredPoints  int
	FailedPublishes  int
	Committed        int

	MinFetchLatency time.Duration
	MaxFetchLatency time.Duration
	AvgFetchLatency time.Duration

	MinPublishLatency time.Duration
	MaxPublishLatency time.Duration
	AvgPublishLatency time.Duration

	MinBatchSize int
	MaxBatchSize int
	AvgBatchSize int
}

// Summary reduces the samples collected so far
func (s *RunStats) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	minFetch, maxFetch, avgFetch := calculateMinMaxAvgDuration(s.FetchLatencies)
	minPub, maxPub, avgPub := calculateMinMaxAvgDuration(s.PublishLatencies)
	minSize, maxSize, avgSize := calculateMinMaxAvgInt(s.PublishSizes)

	return Summary{
		FetchedUnits:      s.FetchedUnits,
		SkippedUnits:      s.SkippedUnits,
		FailedUnits:       s.FailedUnits,
		MalformedRecords:  s.MalformedRecords,
		DeliveredPoints:   s.DeliveredPoints,
		FailedPublishes:   s.FailedPublishes,
		Committed:         s.Committed,
		MinFetchLatency:   minFetch,
		MaxFetchLatency:   maxFetch,
		AvgFetchLatency:   avgFetch,
		MinPublishLatency: minPub,
		MaxPublishLatency: maxPub,
		AvgPublishLatency: avgPub,
		MinBatchSize:      minSize,
		MaxBatchSize:      maxSize,
		AvgBatchSize:      avgSize,
	}
}

// RunRecord is what gets written once a pass ends
type RunRecord struct {
	RunID       string
	StartTime   time.Time
	EndTime     time.Time
	SummaryOnly bool
	Success     bool
	Error       string
	Stats       Summary
}
