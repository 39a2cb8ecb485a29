package webhooks

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Delivery is one attempt-tracking unit: one event envelope bound for one
// endpoint. Owned exclusively by the DeliveryQueue once enqueued.
type Delivery struct {
	ID          string    `json:"id"`
	EndpointID  string    `json:"endpoint_id"`
	Event       EventType `json:"event"`
	Envelope    Envelope  `json:"envelope"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
	NextRetryAt time.Time `json:"next_retry_at"`

	// seq preserves first-seen ordering among deliveries that become ready
	// at the same instant, including rate-limit deferrals.
	seq uint64
}

// DeadLetter is a delivery that exhausted retries or hit a permanent error.
// It is retained for inspection and never retried.
type DeadLetter struct {
	Delivery Delivery  `json:"delivery"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// deadLetterCap bounds the failed-delivery store so a permanently failing
// endpoint cannot grow memory without bound. Oldest entries are evicted.
const deadLetterCap = 4096

// DeliveryQueue is the in-memory store of pending delivery attempts.
// Entries stay in the queue until resolved by MarkCompleted or MarkFailed;
// Ready does not remove them, so every fetched delivery must be resolved
// exactly once.
type DeliveryQueue struct {
	mu          sync.Mutex
	deliveries  map[string]*Delivery
	nextSeq     uint64
	deadLetters *lru.Cache[string, DeadLetter]
}

// NewDeliveryQueue creates a delivery queue. When deadLetterEnabled is false,
// failed deliveries are dropped instead of retained.
func NewDeliveryQueue(deadLetterEnabled bool) *DeliveryQueue {
	q := &DeliveryQueue{
		deliveries: make(map[string]*Delivery),
	}
	if deadLetterEnabled {
		// error only possible for non-positive size
		q.deadLetters, _ = lru.New[string, DeadLetter](deadLetterCap)
	}
	return q
}

// Enqueue adds a delivery to the queue
func (q *DeliveryQueue) Enqueue(delivery *Delivery) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextSeq++
	delivery.seq = q.nextSeq
	q.deliveries[delivery.ID] = delivery
}

// Ready returns up to max deliveries whose NextRetryAt is due, ordered by
// NextRetryAt ascending with enqueue order breaking ties. Entries are not
// removed; they remain in-flight until resolved.
func (q *DeliveryQueue) Ready(max int) []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var ready []*Delivery
	for _, delivery := range q.deliveries {
		if !delivery.NextRetryAt.After(now) {
			ready = append(ready, delivery)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].NextRetryAt.Equal(ready[j].NextRetryAt) {
			return ready[i].seq < ready[j].seq
		}
		return ready[i].NextRetryAt.Before(ready[j].NextRetryAt)
	})

	if max > 0 && len(ready) > max {
		ready = ready[:max]
	}

	out := make([]Delivery, len(ready))
	for i, delivery := range ready {
		out[i] = *delivery
	}
	return out
}

// BeginAttempt increments the attempt counter for a delivery about to be
// sent and returns the new count. Rate-limit deferrals skip this, so they
// never consume retry budget.
func (q *DeliveryQueue) BeginAttempt(id string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delivery, exists := q.deliveries[id]
	if !exists {
		return 0, false
	}
	delivery.Attempts++
	return delivery.Attempts, true
}

// Reschedule moves a delivery's next attempt time forward. NextRetryAt is
// monotonically non-decreasing: an earlier time than the current one is
// ignored.
func (q *DeliveryQueue) Reschedule(id string, nextRetryAt time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	delivery, exists := q.deliveries[id]
	if !exists {
		return false
	}
	if nextRetryAt.After(delivery.NextRetryAt) {
		delivery.NextRetryAt = nextRetryAt
	}
	return true
}

// MarkCompleted removes a successfully delivered entry. Calling it twice for
// the same id is a no-op.
func (q *DeliveryQueue) MarkCompleted(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.deliveries, id)
}

// MarkFailed removes an entry and retains it in the dead-letter store when
// enabled. Idempotent: a second call for the same id does nothing.
func (q *DeliveryQueue) MarkFailed(id, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delivery, exists := q.deliveries[id]
	if !exists {
		return
	}
	delete(q.deliveries, id)
	if q.deadLetters != nil {
		q.deadLetters.Add(id, DeadLetter{
			Delivery: *delivery,
			Reason:   reason,
			FailedAt: time.Now(),
		})
	}
}

// Len returns the number of unresolved deliveries
func (q *DeliveryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.deliveries)
}

// Get retrieves a snapshot of a pending delivery
func (q *DeliveryQueue) Get(id string) (Delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delivery, exists := q.deliveries[id]
	if !exists {
		return Delivery{}, false
	}
	return *delivery, true
}

// Pending returns a snapshot of all unresolved deliveries in enqueue order
func (q *DeliveryQueue) Pending() []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Delivery, 0, len(q.deliveries))
	for _, delivery := range q.deliveries {
		out = append(out, *delivery)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// DeadLetters returns the retained failed deliveries, oldest first
func (q *DeliveryQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deadLetters == nil {
		return nil
	}
	keys := q.deadLetters.Keys()
	out := make([]DeadLetter, 0, len(keys))
	for _, key := range keys {
		if dl, ok := q.deadLetters.Peek(key); ok {
			out = append(out, dl)
		}
	}
	return out
}
