package scraper

import (
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-engine/models"
)

// Stats accumulates request and item counters for one scrape run. Purely
// additive; safe to read at any time, including mid-run.
type Stats struct {
	mu        sync.Mutex
	startTime time.Time
	endTime   time.Time
	total     int
	succeeded int
	failed    int
	items     int
	errors    []string
}

func newStats() *Stats {
	return &Stats{}
}

// Start marks the beginning of the run.
func (s *Stats) Start() {
	s.mu.Lock()
	s.startTime = time.Now()
	s.mu.Unlock()
}

// End marks the end of the run.
func (s *Stats) End() {
	s.mu.Lock()
	s.endTime = time.Now()
	s.mu.Unlock()
}

// AddRequest records one logical request outcome. Retries inside the client
// count as a single logical request.
func (s *Stats) AddRequest(success bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if success {
		s.succeeded++
		return
	}
	s.failed++
	if err != nil {
		s.errors = append(s.errors, err.Error())
	}
}

// AddItem records one scraped record.
func (s *Stats) AddItem() {
	s.mu.Lock()
	s.items++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters for external consumption.
func (s *Stats) Snapshot() models.RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make([]string, len(s.errors))
	copy(errs, s.errors)

	return models.RunStats{
		StartTime:          s.startTime,
		EndTime:            s.endTime,
		TotalRequests:      s.total,
		SuccessfulRequests: s.succeeded,
		FailedRequests:     s.failed,
		ItemsScraped:       s.items,
		Errors:             errs,
	}
}
