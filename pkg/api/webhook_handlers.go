package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/duetboard/duetboard/pkg/httputil"
	"github.com/duetboard/duetboard/pkg/webhooks"
)

// WebhookHandlers provides HTTP handlers for webhook endpoint management
type WebhookHandlers struct {
	manager *webhooks.Manager
}

// NewWebhookHandlers creates new webhook handlers
func NewWebhookHandlers(manager *webhooks.Manager) *WebhookHandlers {
	return &WebhookHandlers{manager: manager}
}

// RegisterRoutes registers webhook routes on the router
func (h *WebhookHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks", h.createEndpoint).Methods("POST")
	router.HandleFunc("/webhooks", h.listEndpoints).Methods("GET")
	router.HandleFunc("/webhooks/stats", h.getStatistics).Methods("GET")
	router.HandleFunc("/webhooks/dead-letters", h.listDeadLetters).Methods("GET")
	router.HandleFunc("/webhooks/{id}", h.getEndpoint).Methods("GET")
	router.HandleFunc("/webhooks/{id}", h.updateEndpoint).Methods("PUT")
	router.HandleFunc("/webhooks/{id}", h.deleteEndpoint).Methods("DELETE")
	router.HandleFunc("/webhooks/{id}/deliveries", h.getDeliveryLogs).Methods("GET")
	router.HandleFunc("/webhooks/{id}/test", h.testEndpoint).Methods("POST")
	router.HandleFunc("/events", h.triggerEvent).Methods("POST")
}

// createEndpoint handles POST /webhooks
func (h *WebhookHandlers) createEndpoint(w http.ResponseWriter, r *http.Request) {
	var endpoint webhooks.Endpoint
	if !httputil.ParseJSONOrError(w, r, &endpoint) {
		return
	}

	if err := h.manager.RegisterEndpoint(&endpoint); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	httputil.WriteCreated(w, endpoint)
}

// listEndpoints handles GET /webhooks
func (h *WebhookHandlers) listEndpoints(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.manager.ListEndpoints())
}

// getEndpoint handles GET /webhooks/{id}
func (h *WebhookHandlers) getEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	endpoint, err := h.manager.GetEndpoint(id)
	if err != nil {
		httputil.WriteNotFound(w, err.Error())
		return
	}
	httputil.WriteSuccess(w, endpoint)
}

// updateEndpoint handles PUT /webhooks/{id}
func (h *WebhookHandlers) updateEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var update webhooks.EndpointUpdate
	if !httputil.ParseJSONOrError(w, r, &update) {
		return
	}

	endpoint, err := h.manager.UpdateEndpoint(id, update)
	if err != nil {
		if errors.Is(err, webhooks.ErrEndpointNotFound) {
			httputil.WriteNotFound(w, err.Error())
		} else {
			httputil.WriteBadRequest(w, err.Error())
		}
		return
	}
	httputil.WriteSuccess(w, endpoint)
}

// deleteEndpoint handles DELETE /webhooks/{id}
func (h *WebhookHandlers) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.manager.RemoveEndpoint(id); err != nil {
		httputil.WriteNotFound(w, err.Error())
		return
	}
	httputil.WriteNoContent(w)
}

// getDeliveryLogs handles GET /webhooks/{id}/deliveries
func (h *WebhookHandlers) getDeliveryLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if _, err := h.manager.GetEndpoint(id); err != nil {
		httputil.WriteNotFound(w, err.Error())
		return
	}

	logs := h.manager.GetDeliveryLogs(id, limit)
	if logs == nil {
		logs = []webhooks.LogEntry{}
	}
	httputil.WriteSuccess(w, logs)
}

// testEndpoint handles POST /webhooks/{id}/test. Unlike queued deliveries,
// a failed test is reported synchronously.
func (h *WebhookHandlers) testEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	result, err := h.manager.TestEndpoint(r.Context(), id)
	if err != nil {
		if errors.Is(err, webhooks.ErrEndpointNotFound) {
			httputil.WriteNotFound(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":  err.Error(),
			"result": result,
		})
		return
	}
	httputil.WriteSuccess(w, result)
}

// getStatistics handles GET /webhooks/stats
func (h *WebhookHandlers) getStatistics(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.manager.GetStatistics())
}

// listDeadLetters handles GET /webhooks/dead-letters
func (h *WebhookHandlers) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	deadLetters := h.manager.DeadLetters()
	if deadLetters == nil {
		deadLetters = []webhooks.DeadLetter{}
	}
	httputil.WriteSuccess(w, deadLetters)
}

// triggerRequest is the body for manually triggering an event
type triggerRequest struct {
	Event webhooks.EventType     `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// triggerEvent handles POST /events. Dispatch is fire-and-forget, so the
// response is 202 Accepted.
func (h *WebhookHandlers) triggerEvent(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Event == "" {
		httputil.WriteBadRequest(w, "event is required")
		return
	}

	h.manager.TriggerEvent(req.Event, req.Data)
	httputil.WriteAccepted(w, map[string]string{"status": "accepted"})
}
