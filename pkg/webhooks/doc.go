// Package webhooks provides event-driven webhook delivery for agent session events.
//
// # Overview
//
// This package manages webhook endpoint registration, event dispatch, a retrying
// delivery queue with exponential backoff, per-endpoint rate limiting, HMAC
// signature generation, and per-endpoint delivery logging.
//
// # Webhook Events
//
// session.created, session.completed, session.failed
// message.created
// agent.handoff
// system.error
// webhook.test
//
// # Usage Example
//
// Register an endpoint:
//
//	endpoint := &webhooks.Endpoint{
//		URL:    "https://api.example.com/hooks",
//		Events: []webhooks.EventType{webhooks.EventSessionCompleted},
//		Secret: "endpoint-secret",
//	}
//	manager.RegisterEndpoint(endpoint)
//
// Trigger an event:
//
//	manager.TriggerEvent(webhooks.EventSessionCompleted, map[string]interface{}{
//		"session_id": sessionID,
//		"status":     "completed",
//	})
//
// Verify a signature (receiver side):
//
//	sig := r.Header.Get("X-Webhook-Signature")
//	if !webhooks.VerifySignature(body, sig, secret) {
//		return errors.New("invalid signature")
//	}
//
// # Delivery Semantics
//
// Deliveries are at-least-once. Failed attempts are retried with exponential
// backoff and jitter up to a configured maximum; HTTP 400 responses are treated
// as permanent and never retried. Exhausted deliveries move to a bounded
// dead-letter store when enabled. The queue is in-memory and single-process;
// durability across restarts is out of scope.
package webhooks
