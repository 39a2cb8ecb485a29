package webhooks

import (
	"sync"
	"time"
)

// maxLogEntriesPerEndpoint caps each endpoint's delivery log. Oldest entries
// are evicted first.
const maxLogEntriesPerEndpoint = 1000

// LogEntry records the resolved outcome of one delivery
type LogEntry struct {
	ID         string         `json:"id"`
	EndpointID string         `json:"endpoint_id"`
	Event      EventType      `json:"event"`
	Envelope   Envelope       `json:"envelope"`
	Result     DeliveryResult `json:"result"`
	Timestamp  time.Time      `json:"timestamp"`
}

// DeliveryLogStore keeps a bounded per-endpoint ring buffer of delivery
// outcomes for observability
type DeliveryLogStore struct {
	mu         sync.RWMutex
	maxEntries int
	rings      map[string]*logRing
}

// logRing is a fixed-capacity circular buffer; once full, new entries
// overwrite the oldest
type logRing struct {
	entries []LogEntry
	start   int
}

func (r *logRing) append(entry LogEntry, max int) {
	if len(r.entries) < max {
		r.entries = append(r.entries, entry)
		return
	}
	r.entries[r.start] = entry
	r.start = (r.start + 1) % max
}

// recent returns entries most-recent-first, up to limit
func (r *logRing) recent(limit int) []LogEntry {
	n := len(r.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]LogEntry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.start + n - 1 - i) % n
		out = append(out, r.entries[idx])
	}
	return out
}

// NewDeliveryLogStore creates a log store with the default per-endpoint cap
func NewDeliveryLogStore() *DeliveryLogStore {
	return &DeliveryLogStore{
		maxEntries: maxLogEntriesPerEndpoint,
		rings:      make(map[string]*logRing),
	}
}

// Append records a delivery outcome for its endpoint
func (s *DeliveryLogStore) Append(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, exists := s.rings[entry.EndpointID]
	if !exists {
		ring = &logRing{}
		s.rings[entry.EndpointID] = ring
	}
	ring.append(entry, s.maxEntries)
}

// Recent returns up to limit entries for an endpoint, most recent first
func (s *DeliveryLogStore) Recent(endpointID string, limit int) []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ring, exists := s.rings[endpointID]
	if !exists {
		return nil
	}
	return ring.recent(limit)
}

// Drop discards an endpoint's entire log, used when the endpoint is removed
func (s *DeliveryLogStore) Drop(endpointID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, endpointID)
}

// LogStats aggregates delivery outcomes across all endpoints
type LogStats struct {
	TotalDeliveries      int
	SuccessfulDeliveries int
	FailedDeliveries     int
	AverageDuration      time.Duration
}

// Stats scans all logs and aggregates totals. Computed on demand; the
// bounded logs keep the scan cheap.
func (s *DeliveryLogStore) Stats() LogStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats LogStats
	var totalDuration time.Duration
	for _, ring := range s.rings {
		for _, entry := range ring.entries {
			stats.TotalDeliveries++
			if entry.Result.Success {
				stats.SuccessfulDeliveries++
			} else {
				stats.FailedDeliveries++
			}
			totalDuration += entry.Result.Duration
		}
	}
	if stats.TotalDeliveries > 0 {
		stats.AverageDuration = totalDuration / time.Duration(stats.TotalDeliveries)
	}
	return stats
}
