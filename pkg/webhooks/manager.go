package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/duetboard/duetboard/pkg/observability"
)

// rateLimitDeferral is how far a rate-limited delivery is pushed back.
// Deferrals do not consume retry budget.
const rateLimitDeferral = time.Minute

// Options configures the webhook manager. Zero fields take the documented
// defaults.
type Options struct {
	// MaxRetries is the number of delivery attempts before dead-lettering
	MaxRetries int
	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
	// MaxRetryDelay caps the backoff delay
	MaxRetryDelay time.Duration
	// Timeout is the per-request timeout for outbound calls
	Timeout time.Duration
	// MaxConcurrentDeliveries bounds the in-flight fan-out per loop iteration
	MaxConcurrentDeliveries int
	// RateLimitPerMinute caps deliveries per endpoint per minute
	RateLimitPerMinute int
	// EnableDeadLetterQueue retains exhausted deliveries for inspection
	EnableDeadLetterQueue bool
	// IdleInterval is the sleep when no deliveries are ready
	IdleInterval time.Duration
	// ErrorInterval is the wider sleep after a loop-level error
	ErrorInterval time.Duration
}

// DefaultOptions returns the documented default configuration
func DefaultOptions() Options {
	return Options{
		MaxRetries:              3,
		RetryDelay:              time.Second,
		MaxRetryDelay:           5 * time.Minute,
		Timeout:                 30 * time.Second,
		MaxConcurrentDeliveries: 10,
		RateLimitPerMinute:      60,
		EnableDeadLetterQueue:   true,
		IdleInterval:            time.Second,
		ErrorInterval:           5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaults.MaxRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaults.RetryDelay
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = defaults.MaxRetryDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = defaults.Timeout
	}
	if o.MaxConcurrentDeliveries <= 0 {
		o.MaxConcurrentDeliveries = defaults.MaxConcurrentDeliveries
	}
	if o.IdleInterval <= 0 {
		o.IdleInterval = defaults.IdleInterval
	}
	if o.ErrorInterval <= 0 {
		o.ErrorInterval = defaults.ErrorInterval
	}
	return o
}

// Statistics summarizes the delivery system, computed on demand from the
// endpoint registry and delivery logs
type Statistics struct {
	TotalEndpoints       int     `json:"total_endpoints"`
	ActiveEndpoints      int     `json:"active_endpoints"`
	TotalDeliveries      int     `json:"total_deliveries"`
	SuccessfulDeliveries int     `json:"successful_deliveries"`
	FailedDeliveries     int     `json:"failed_deliveries"`
	AverageDeliveryTime  float64 `json:"average_delivery_time_ms"`
}

// Manager orchestrates webhook delivery: it matches triggered events to
// endpoints, enqueues deliveries, and runs the processing loop that applies
// rate limiting, invokes the executor, and handles retry and dead-letter
// policy. The registry, queue, limiter, and logs are owned exclusively by
// the manager; external callers interact only through its methods.
type Manager struct {
	opts     Options
	registry *Registry
	queue    *DeliveryQueue
	limiter  *RateLimiter
	executor *Executor
	logs     *DeliveryLogStore
	backoff  *BackoffPolicy
	emitter  *emitter
	logger   *observability.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewManager creates a webhook manager. metrics may be nil to disable
// instrumentation.
func NewManager(opts Options, logger *observability.Logger, metrics *observability.Metrics) *Manager {
	opts = opts.withDefaults()
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Manager{
		opts:     opts,
		registry: NewRegistry(),
		queue:    NewDeliveryQueue(opts.EnableDeadLetterQueue),
		limiter:  NewRateLimiter(opts.RateLimitPerMinute),
		executor: NewExecutor(opts.Timeout),
		logs:     NewDeliveryLogStore(),
		backoff:  NewBackoffPolicy(opts.RetryDelay, opts.MaxRetryDelay),
		emitter:  newEmitter(),
		logger:   logger.WithField("component", "webhooks"),
		metrics:  metrics,
	}
}

// Subscribe registers an observer for a lifecycle event name and returns
// its unsubscribe function
func (m *Manager) Subscribe(event string, handler Handler) func() {
	return m.emitter.subscribe(event, handler)
}

// RegisterEndpoint validates and stores a new endpoint
func (m *Manager) RegisterEndpoint(endpoint *Endpoint) error {
	if err := m.registry.Register(endpoint); err != nil {
		return fmt.Errorf("registering endpoint: %w", err)
	}
	m.logger.WithFields(map[string]interface{}{
		"endpoint_id": endpoint.ID,
		"url":         endpoint.URL,
	}).Info("endpoint registered")
	m.emitter.emit(LifecycleEndpointRegistered, endpoint.clone())
	return nil
}

// UpdateEndpoint applies a partial update; id and createdAt are immutable
func (m *Manager) UpdateEndpoint(id string, update EndpointUpdate) (*Endpoint, error) {
	endpoint, err := m.registry.Update(id, update)
	if err != nil {
		return nil, err
	}
	m.logger.WithField("endpoint_id", id).Info("endpoint updated")
	m.emitter.emit(LifecycleEndpointUpdated, endpoint.clone())
	return endpoint, nil
}

// RemoveEndpoint deletes an endpoint and discards its delivery log
func (m *Manager) RemoveEndpoint(id string) error {
	if !m.registry.Remove(id) {
		return ErrEndpointNotFound
	}
	m.logs.Drop(id)
	m.logger.WithField("endpoint_id", id).Info("endpoint removed")
	m.emitter.emit(LifecycleEndpointRemoved, id)
	return nil
}

// GetEndpoint retrieves an endpoint by id
func (m *Manager) GetEndpoint(id string) (*Endpoint, error) {
	endpoint, ok := m.registry.Get(id)
	if !ok {
		return nil, ErrEndpointNotFound
	}
	return endpoint, nil
}

// ListEndpoints returns all registered endpoints
func (m *Manager) ListEndpoints() []*Endpoint {
	return m.registry.List()
}

// TriggerEvent dispatches an event: one delivery is enqueued per active
// endpoint subscribed to it. Returns once the enqueues complete without
// waiting for delivery; the processing loop does the rest.
func (m *Manager) TriggerEvent(event EventType, data map[string]interface{}) {
	matched := m.registry.Matching(event)

	envelope := Envelope{
		ID:        uuid.New().String(),
		Event:     event,
		Timestamp: time.Now(),
		Data:      copyData(data),
		Version:   EnvelopeVersion,
	}
	m.emitter.emit(LifecycleEventTriggered, envelope)

	if len(matched) == 0 {
		return
	}

	now := time.Now()
	for _, endpoint := range matched {
		m.queue.Enqueue(&Delivery{
			ID:          uuid.New().String(),
			EndpointID:  endpoint.ID,
			Event:       event,
			Envelope:    envelope,
			CreatedAt:   now,
			NextRetryAt: now,
		})
	}

	m.logger.WithFields(map[string]interface{}{
		"event":     string(event),
		"endpoints": len(matched),
	}).Debug("event dispatched")
}

// copyData shallow-copies the caller's payload so later mutations cannot
// change what enqueued deliveries send
func copyData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	copied := make(map[string]interface{}, len(data))
	for k, v := range data {
		copied[k] = v
	}
	return copied
}

// TestEndpoint synchronously sends a fixed test payload to one endpoint,
// bypassing the queue. Unlike queued deliveries it is never retried, and a
// failed delivery is returned as an error so the caller gets immediate
// pass/fail feedback.
func (m *Manager) TestEndpoint(ctx context.Context, id string) (DeliveryResult, error) {
	endpoint, ok := m.registry.Get(id)
	if !ok {
		return DeliveryResult{}, ErrEndpointNotFound
	}

	delivery := &Delivery{
		ID:         uuid.New().String(),
		EndpointID: id,
		Event:      EventWebhookTest,
		Envelope: Envelope{
			ID:        uuid.New().String(),
			Event:     EventWebhookTest,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"endpoint_id": id,
				"message":     "test delivery",
			},
			Version: EnvelopeVersion,
		},
		Attempts:  1,
		CreatedAt: time.Now(),
	}

	result := m.executor.Deliver(ctx, endpoint, delivery)
	m.appendLog(delivery, result)

	if !result.Success {
		return result, fmt.Errorf("test delivery to %s failed: %s", endpoint.URL, result.Error)
	}
	return result, nil
}

// GetDeliveryLogs returns up to limit past delivery outcomes for an
// endpoint, most recent first. limit defaults to 100.
func (m *Manager) GetDeliveryLogs(endpointID string, limit int) []LogEntry {
	if limit <= 0 {
		limit = 100
	}
	return m.logs.Recent(endpointID, limit)
}

// GetStatistics computes aggregate delivery statistics by scanning all
// delivery logs on demand
func (m *Manager) GetStatistics() Statistics {
	total, active := m.registry.Counts()
	logStats := m.logs.Stats()
	return Statistics{
		TotalEndpoints:       total,
		ActiveEndpoints:      active,
		TotalDeliveries:      logStats.TotalDeliveries,
		SuccessfulDeliveries: logStats.SuccessfulDeliveries,
		FailedDeliveries:     logStats.FailedDeliveries,
		AverageDeliveryTime:  float64(logStats.AverageDuration.Microseconds()) / 1000,
	}
}

// PendingDeliveries returns a snapshot of the unresolved delivery queue
func (m *Manager) PendingDeliveries() []Delivery {
	return m.queue.Pending()
}

// DeadLetters returns retained failed deliveries, oldest first
func (m *Manager) DeadLetters() []DeadLetter {
	return m.queue.DeadLetters()
}

// Start launches the processing loop and the rate-limiter sweep. Safe to
// call once per Stop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.limiter.StartSweeper()
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop signals the processing loop and waits for the in-flight batch to
// drain. In-flight HTTP calls are not cancelled; the current iteration
// always completes.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.limiter.StopSweeper()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	m.logger.Info("delivery processing loop started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("delivery processing loop stopped: context cancelled")
			return
		case <-m.stopCh:
			m.logger.Info("delivery processing loop stopped")
			return
		default:
		}

		if err := m.processBatch(ctx); err != nil {
			m.logger.WithError(err).Error("delivery processing iteration failed")
			m.sleep(ctx, m.opts.ErrorInterval)
		}
	}
}

// processBatch runs one loop iteration: fetch ready deliveries and process
// them concurrently, bounded by the batch size. Panics are converted to an
// iteration error so the loop applies its wider error backoff instead of
// crashing.
func (m *Manager) processBatch(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in delivery processing: %v\n%s", r, debug.Stack())
		}
	}()

	batch := m.queue.Ready(m.opts.MaxConcurrentDeliveries)
	if m.metrics != nil {
		m.metrics.WebhookQueueDepth.Set(float64(m.queue.Len()))
	}
	if len(batch) == 0 {
		m.sleep(ctx, m.opts.IdleInterval)
		return nil
	}

	// Join-all barrier: individual delivery failures never abort the batch,
	// so every g.Go returns nil and Wait is purely a barrier.
	g := new(errgroup.Group)
	for _, delivery := range batch {
		g.Go(func() error {
			m.processDelivery(ctx, delivery)
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) processDelivery(ctx context.Context, delivery Delivery) {
	endpoint, ok := m.registry.Get(delivery.EndpointID)
	if !ok {
		// Endpoint removed between enqueue and processing
		m.queue.MarkFailed(delivery.ID, "endpoint not found")
		m.recordOutcome(delivery, DeliveryResult{
			Error:       "endpoint not found",
			DeliveredAt: time.Now(),
		})
		return
	}

	if !m.limiter.Allow(endpoint.ID) {
		// Deferred a full window without consuming retry budget
		m.queue.Reschedule(delivery.ID, time.Now().Add(rateLimitDeferral))
		if m.metrics != nil {
			m.metrics.WebhookRateLimitDeferrals.Inc()
		}
		m.logger.WithField("endpoint_id", endpoint.ID).Debug("delivery deferred: rate limit")
		return
	}

	attempt, ok := m.queue.BeginAttempt(delivery.ID)
	if !ok {
		return
	}
	delivery.Attempts = attempt

	result := m.executor.Deliver(ctx, endpoint, &delivery)

	if result.Success {
		m.queue.MarkCompleted(delivery.ID)
		m.recordOutcome(delivery, result)
		return
	}

	// HTTP 400 signals a malformed request that will not succeed on retry
	permanent := result.StatusCode == http.StatusBadRequest
	if !permanent && attempt < m.opts.MaxRetries {
		delay := m.backoff.NextDelay(attempt)
		m.queue.Reschedule(delivery.ID, time.Now().Add(delay))
		m.logger.WithFields(map[string]interface{}{
			"endpoint_id": endpoint.ID,
			"delivery_id": delivery.ID,
			"attempt":     attempt,
			"status_code": result.StatusCode,
			"retry_in":    delay.String(),
		}).Warn("delivery failed, retry scheduled")
		return
	}

	reason := result.Error
	if permanent {
		reason = "permanent client error: " + result.Error
	}
	m.queue.MarkFailed(delivery.ID, reason)
	m.recordOutcome(delivery, result)
}

// recordOutcome logs a resolved delivery, emits the lifecycle event, and
// updates metrics. Only terminal outcomes reach here; retry-scheduled
// attempts do not.
func (m *Manager) recordOutcome(delivery Delivery, result DeliveryResult) {
	entry := m.appendLog(&delivery, result)

	status := "failed"
	lifecycle := LifecycleDeliveryFailed
	if result.Success {
		status = "success"
		lifecycle = LifecycleDeliverySuccess
	}
	m.emitter.emit(lifecycle, entry)

	if m.metrics != nil {
		m.metrics.WebhookDeliveriesTotal.WithLabelValues(string(delivery.Event), status).Inc()
		m.metrics.WebhookDeliveryDuration.Observe(result.Duration.Seconds())
		if !result.Success {
			m.metrics.WebhookDeadLettersTotal.Inc()
		}
	}

	logger := m.logger.WithFields(map[string]interface{}{
		"endpoint_id": delivery.EndpointID,
		"delivery_id": delivery.ID,
		"event":       string(delivery.Event),
		"attempts":    delivery.Attempts,
		"status_code": result.StatusCode,
	})
	if result.Success {
		logger.Info("delivery succeeded")
	} else {
		logger.WithField("reason", result.Error).Error("delivery dead-lettered")
	}
}

func (m *Manager) appendLog(delivery *Delivery, result DeliveryResult) LogEntry {
	entry := LogEntry{
		ID:         uuid.New().String(),
		EndpointID: delivery.EndpointID,
		Event:      delivery.Event,
		Envelope:   delivery.Envelope,
		Result:     result,
		Timestamp:  time.Now(),
	}
	m.logs.Append(entry)
	return entry
}

// sleep waits for the duration unless stopped or cancelled first
func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-m.stopCh:
	}
}
