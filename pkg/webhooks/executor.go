package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Reserved delivery headers. Endpoint custom headers may not override these,
// preventing a registered endpoint from forging event identity.
const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderDelivery  = "X-Webhook-Delivery"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"
)

const userAgent = "duetboard-webhooks/1.0"

// maxResponseBytes caps how much of the endpoint's response body is retained
// in delivery results
const maxResponseBytes = 4096

// DeliveryResult is the immutable outcome of one delivery attempt.
// StatusCode 0 means the request never reached the endpoint (DNS failure,
// connection refused, timeout).
type DeliveryResult struct {
	Success     bool          `json:"success"`
	StatusCode  int           `json:"status_code"`
	Response    string        `json:"response,omitempty"`
	Error       string        `json:"error,omitempty"`
	DeliveredAt time.Time     `json:"delivered_at"`
	Duration    time.Duration `json:"duration"`
}

// Executor performs the outbound HTTP call for a delivery
type Executor struct {
	client *http.Client
}

// NewExecutor creates an executor with the given per-request timeout
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Deliver POSTs the delivery's envelope to the endpoint and classifies the
// outcome. It never returns an error: non-2xx responses and transport
// failures are both captured in the result.
func (x *Executor) Deliver(ctx context.Context, endpoint *Endpoint, delivery *Delivery) DeliveryResult {
	start := time.Now()

	body, err := json.Marshal(filterEnvelope(delivery.Envelope, endpoint.PayloadFields))
	if err != nil {
		return DeliveryResult{
			Error:       fmt.Sprintf("marshaling envelope: %v", err),
			DeliveredAt: start,
			Duration:    time.Since(start),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return DeliveryResult{
			Error:       fmt.Sprintf("creating request: %v", err),
			DeliveredAt: start,
			Duration:    time.Since(start),
		}
	}

	// Custom headers first so reserved headers win on conflict
	for key, value := range endpoint.Headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderEvent, string(delivery.Event))
	req.Header.Set(HeaderDelivery, uuid.New().String())
	req.Header.Set(HeaderTimestamp, start.UTC().Format(time.RFC3339))
	if endpoint.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(body, endpoint.Secret))
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return DeliveryResult{
			StatusCode:  0,
			Error:       err.Error(),
			DeliveredAt: start,
			Duration:    time.Since(start),
		}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	result := DeliveryResult{
		Success:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode:  resp.StatusCode,
		Response:    string(respBody),
		DeliveredAt: start,
		Duration:    time.Since(start),
	}
	if !result.Success {
		result.Error = fmt.Sprintf("endpoint returned status %d", resp.StatusCode)
	}
	return result
}

// filterEnvelope applies the endpoint's payload field allow-list to the
// envelope data. Envelope metadata is never filtered.
func filterEnvelope(envelope Envelope, fields []string) Envelope {
	if len(fields) == 0 || envelope.Data == nil {
		return envelope
	}
	filtered := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		if value, ok := envelope.Data[field]; ok {
			filtered[field] = value
		}
	}
	envelope.Data = filtered
	return envelope
}
