package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestManager(opts Options) *Manager {
	if opts.IdleInterval == 0 {
		opts.IdleInterval = 5 * time.Millisecond
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 5 * time.Millisecond
	}
	if opts.MaxRetryDelay == 0 {
		opts.MaxRetryDelay = 50 * time.Millisecond
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	return NewManager(opts, nil, nil)
}

// waitFor polls until cond returns true or the deadline passes
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(message)
}

func TestManager_DeliversTriggeredEvent(t *testing.T) {
	var delivered atomic.Int32
	var body []byte
	var signature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get(HeaderSignature)
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	manager := newTestManager(Options{EnableDeadLetterQueue: true})
	endpoint := &Endpoint{
		URL:    server.URL,
		Secret: "test-secret",
		Events: []EventType{EventSessionCreated},
	}
	if err := manager.RegisterEndpoint(endpoint); err != nil {
		t.Fatalf("Failed to register endpoint: %v", err)
	}

	manager.Start(context.Background())
	defer manager.Stop()

	manager.TriggerEvent(EventSessionCreated, map[string]interface{}{"session_id": "s-1"})

	waitFor(t, 2*time.Second, func() bool { return delivered.Load() == 1 }, "delivery never arrived")

	if !VerifySignature(body, signature, "test-secret") {
		t.Error("Expected delivered payload signature to verify")
	}

	// Queue drains after success
	waitFor(t, time.Second, func() bool { return len(manager.PendingDeliveries()) == 0 }, "queue did not drain")

	logs := manager.GetDeliveryLogs(endpoint.ID, 10)
	if len(logs) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(logs))
	}
	if !logs[0].Result.Success {
		t.Error("Expected logged delivery to be successful")
	}

	stats := manager.GetStatistics()
	if stats.SuccessfulDeliveries != 1 || stats.FailedDeliveries != 0 {
		t.Errorf("Unexpected statistics: %+v", stats)
	}
}

func TestManager_EventFiltering(t *testing.T) {
	var delivered atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	manager := newTestManager(Options{EnableDeadLetterQueue: true})
	endpoint := &Endpoint{
		URL:    server.URL,
		Events: []EventType{EventMessageCreated},
	}
	manager.RegisterEndpoint(endpoint)

	manager.Start(context.Background())
	defer manager.Stop()

	manager.TriggerEvent(EventSessionCreated, nil)

	// Nothing should be enqueued for an unsubscribed event
	if pending := manager.PendingDeliveries(); len(pending) != 0 {
		t.Errorf("Expected no deliveries for unsubscribed event, got %d", len(pending))
	}

	time.Sleep(50 * time.Millisecond)
	if delivered.Load() != 0 {
		t.Error("Unsubscribed endpoint received a delivery")
	}
}

func TestManager_RetriesThenDeadLetters(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	manager := newTestManager(Options{
		MaxRetries:            3,
		EnableDeadLetterQueue: true,
	})
	endpoint := &Endpoint{
		URL:    server.URL,
		Events: []EventType{EventSessionCreated},
	}
	manager.RegisterEndpoint(endpoint)

	manager.Start(context.Background())
	defer manager.Stop()

	manager.TriggerEvent(EventSessionCreated, nil)

	waitFor(t, 5*time.Second, func() bool { return len(manager.DeadLetters()) == 1 }, "delivery never dead-lettered")

	if got := requests.Load(); got != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", got)
	}

	deadLetters := manager.DeadLetters()
	if deadLetters[0].Delivery.Attempts != 3 {
		t.Errorf("Expected dead letter after 3 attempts, got %d", deadLetters[0].Delivery.Attempts)
	}
	if len(manager.PendingDeliveries()) != 0 {
		t.Error("Expected queue to be empty after dead-lettering")
	}
}

func TestManager_BadRequestIsPermanent(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	manager := newTestManager(Options{
		MaxRetries:            3,
		EnableDeadLetterQueue: true,
	})
	endpoint := &Endpoint{
		URL:    server.URL,
		Events: []EventType{EventSessionCreated},
	}
	manager.RegisterEndpoint(endpoint)

	manager.Start(context.Background())
	defer manager.Stop()

	manager.TriggerEvent(EventSessionCreated, nil)

	waitFor(t, 2*time.Second, func() bool { return len(manager.DeadLetters()) == 1 }, "delivery never dead-lettered")

	// Give any stray retry a chance to fire before asserting
	time.Sleep(50 * time.Millisecond)
	if got := requests.Load(); got != 1 {
		t.Errorf("Expected a 400 to never be retried, got %d attempts", got)
	}
	if attempts := manager.DeadLetters()[0].Delivery.Attempts; attempts != 1 {
		t.Errorf("Expected dead letter after 1 attempt, got %d", attempts)
	}
}

func TestManager_RateLimitDefersWithoutConsumingRetries(t *testing.T) {
	var delivered atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	manager := newTestManager(Options{
		RateLimitPerMinute:    1,
		EnableDeadLetterQueue: true,
	})
	endpoint := &Endpoint{
		URL:    server.URL,
		Events: []EventType{EventSessionCreated},
	}
	manager.RegisterEndpoint(endpoint)

	manager.Start(context.Background())
	defer manager.Stop()

	manager.TriggerEvent(EventSessionCreated, nil)
	manager.TriggerEvent(EventSessionCreated, nil)

	waitFor(t, 2*time.Second, func() bool { return delivered.Load() == 1 }, "first delivery never arrived")

	// The second delivery is deferred into the next window, staying pending
	// with no retry budget consumed
	waitFor(t, 2*time.Second, func() bool {
		pending := manager.PendingDeliveries()
		return len(pending) == 1 && pending[0].NextRetryAt.After(time.Now())
	}, "second delivery was not deferred")

	pending := manager.PendingDeliveries()
	if pending[0].Attempts != 0 {
		t.Errorf("Expected deferral to leave attempts at 0, got %d", pending[0].Attempts)
	}
	if delivered.Load() != 1 {
		t.Errorf("Expected exactly 1 delivery within the window, got %d", delivered.Load())
	}
	if len(manager.DeadLetters()) != 0 {
		t.Error("Deferred deliveries must never dead-letter")
	}
}

func TestManager_EndpointRemovedBeforeProcessing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	manager := newTestManager(Options{EnableDeadLetterQueue: true})
	endpoint := &Endpoint{
		URL:    server.URL,
		Events: []EventType{EventSessionCreated},
	}
	manager.RegisterEndpoint(endpoint)

	// Enqueue while the loop is not running, then remove the endpoint
	manager.TriggerEvent(EventSessionCreated, nil)
	manager.RemoveEndpoint(endpoint.ID)

	manager.Start(context.Background())
	defer manager.Stop()

	waitFor(t, 2*time.Second, func() bool { return len(manager.DeadLetters()) == 1 }, "orphaned delivery never dead-lettered")

	if reason := manager.DeadLetters()[0].Reason; reason != "endpoint not found" {
		t.Errorf("Unexpected dead letter reason: %q", reason)
	}
}

func TestManager_TestEndpoint(t *testing.T) {
	var received atomic.Int32
	var eventHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		eventHeader = r.Header.Get(HeaderEvent)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	manager := newTestManager(Options{EnableDeadLetterQueue: true})
	endpoint := &Endpoint{URL: server.URL, Events: []EventType{EventSessionCreated}}
	manager.RegisterEndpoint(endpoint)

	result, err := manager.TestEndpoint(context.Background(), endpoint.ID)
	if err != nil {
		t.Fatalf("Expected test delivery to succeed: %v", err)
	}
	if !result.Success {
		t.Errorf("Expected successful result, got %+v", result)
	}
	if received.Load() != 1 {
		t.Errorf("Expected 1 test request, got %d", received.Load())
	}
	if eventHeader != string(EventWebhookTest) {
		t.Errorf("Expected test event header, got %q", eventHeader)
	}

	// Test deliveries bypass the queue entirely
	if len(manager.PendingDeliveries()) != 0 {
		t.Error("Test delivery must not enter the queue")
	}
	// But they are logged
	if logs := manager.GetDeliveryLogs(endpoint.ID, 10); len(logs) != 1 {
		t.Errorf("Expected test delivery to be logged, got %d entries", len(logs))
	}
}

func TestManager_TestEndpoint_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	manager := newTestManager(Options{EnableDeadLetterQueue: true})
	endpoint := &Endpoint{URL: server.URL}
	manager.RegisterEndpoint(endpoint)

	result, err := manager.TestEndpoint(context.Background(), endpoint.ID)
	if err == nil {
		t.Error("Expected error for failed test delivery")
	}
	if result.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 in result, got %d", result.StatusCode)
	}
}

func TestManager_TestEndpoint_NotFound(t *testing.T) {
	manager := newTestManager(Options{EnableDeadLetterQueue: true})

	if _, err := manager.TestEndpoint(context.Background(), "missing"); err != ErrEndpointNotFound {
		t.Errorf("Expected ErrEndpointNotFound, got %v", err)
	}
}

func TestManager_SubscribeLifecycleEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	manager := newTestManager(Options{EnableDeadLetterQueue: true})

	registered := make(chan interface{}, 1)
	manager.Subscribe(LifecycleEndpointRegistered, func(event string, payload interface{}) {
		registered <- payload
	})
	triggered := make(chan interface{}, 1)
	manager.Subscribe(LifecycleEventTriggered, func(event string, payload interface{}) {
		triggered <- payload
	})
	succeeded := make(chan interface{}, 1)
	manager.Subscribe(LifecycleDeliverySuccess, func(event string, payload interface{}) {
		succeeded <- payload
	})

	endpoint := &Endpoint{URL: server.URL, Events: []EventType{EventSessionCreated}}
	manager.RegisterEndpoint(endpoint)

	select {
	case payload := <-registered:
		if ep, ok := payload.(*Endpoint); !ok || ep.ID != endpoint.ID {
			t.Errorf("Unexpected registered payload: %v", payload)
		}
	default:
		t.Fatal("Expected endpoint.registered event")
	}

	manager.Start(context.Background())
	defer manager.Stop()

	manager.TriggerEvent(EventSessionCreated, nil)

	select {
	case payload := <-triggered:
		if envelope, ok := payload.(Envelope); !ok || envelope.Event != EventSessionCreated {
			t.Errorf("Unexpected triggered payload: %v", payload)
		}
	default:
		t.Fatal("Expected event.triggered event")
	}

	select {
	case payload := <-succeeded:
		if entry, ok := payload.(LogEntry); !ok || entry.EndpointID != endpoint.ID {
			t.Errorf("Unexpected delivery.success payload: %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected delivery.success event")
	}
}

func TestManager_Unsubscribe(t *testing.T) {
	manager := newTestManager(Options{EnableDeadLetterQueue: true})

	var calls atomic.Int32
	unsubscribe := manager.Subscribe(LifecycleEventTriggered, func(event string, payload interface{}) {
		calls.Add(1)
	})

	manager.TriggerEvent(EventSessionCreated, nil)
	if calls.Load() != 1 {
		t.Fatalf("Expected 1 call before unsubscribe, got %d", calls.Load())
	}

	unsubscribe()
	manager.TriggerEvent(EventSessionCreated, nil)
	if calls.Load() != 1 {
		t.Errorf("Expected no calls after unsubscribe, got %d", calls.Load())
	}
}

func TestManager_RemoveEndpointDropsLogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	manager := newTestManager(Options{EnableDeadLetterQueue: true})
	endpoint := &Endpoint{URL: server.URL}
	manager.RegisterEndpoint(endpoint)

	manager.TestEndpoint(context.Background(), endpoint.ID)
	if len(manager.GetDeliveryLogs(endpoint.ID, 10)) != 1 {
		t.Fatal("Expected a log entry before removal")
	}

	manager.RemoveEndpoint(endpoint.ID)
	if got := manager.GetDeliveryLogs(endpoint.ID, 10); len(got) != 0 {
		t.Errorf("Expected logs to be dropped with the endpoint, got %d", len(got))
	}
}

func TestManager_StartStop(t *testing.T) {
	manager := newTestManager(Options{EnableDeadLetterQueue: true})

	ctx := context.Background()
	manager.Start(ctx)
	// Second Start while running is a no-op
	manager.Start(ctx)
	manager.Stop()
	// Second Stop is safe
	manager.Stop()

	// Restartable after Stop
	manager.Start(ctx)
	manager.Stop()
}
