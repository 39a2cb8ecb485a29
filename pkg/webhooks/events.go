package webhooks

import "time"

// EventType represents the type of webhook event
type EventType string

const (
	EventSessionCreated   EventType = "session.created"
	EventSessionCompleted EventType = "session.completed"
	EventSessionFailed    EventType = "session.failed"
	EventMessageCreated   EventType = "message.created"
	EventAgentHandoff     EventType = "agent.handoff"
	EventSystemError      EventType = "system.error"
	EventWebhookTest      EventType = "webhook.test"
)

// EnvelopeVersion is the wire format version sent with every delivery
const EnvelopeVersion = "1.0"

// Envelope is the JSON structure POSTed to endpoints. One envelope is built
// per triggered event and shared by every matching endpoint's delivery; the
// per-endpoint payload field filter is applied at send time, so Data here is
// always the full payload.
type Envelope struct {
	ID        string                 `json:"id"`
	Event     EventType              `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Version   string                 `json:"version"`
}

// Lifecycle events emitted to local observers via Manager.Subscribe. These
// never leave the process; they are distinct from the EventType values
// delivered to endpoints.
const (
	LifecycleEndpointRegistered = "endpoint.registered"
	LifecycleEndpointUpdated    = "endpoint.updated"
	LifecycleEndpointRemoved    = "endpoint.removed"
	LifecycleEventTriggered     = "event.triggered"
	LifecycleDeliverySuccess    = "delivery.success"
	LifecycleDeliveryFailed     = "delivery.failed"
)
