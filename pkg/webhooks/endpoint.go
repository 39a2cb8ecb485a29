package webhooks

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEndpointNotFound is returned when an endpoint id does not exist
var ErrEndpointNotFound = fmt.Errorf("endpoint not found")

// Endpoint represents a registered webhook delivery target
type Endpoint struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
	// Headers are extra headers attached to every delivery. Reserved
	// X-Webhook-* headers always win on conflict.
	Headers map[string]string `json:"headers,omitempty"`
	// Events is the set of subscribed event types. Empty means all events.
	Events []EventType `json:"events"`
	// PayloadFields is an optional allow-list restricting which keys of the
	// envelope data are sent. Envelope metadata is never filtered.
	PayloadFields []string  `json:"payload_fields,omitempty"`
	Active        bool      `json:"active"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SubscribesTo reports whether the endpoint should receive the given event.
// An empty subscription set matches every event.
func (e *Endpoint) SubscribesTo(event EventType) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, et := range e.Events {
		if et == event {
			return true
		}
	}
	return false
}

// clone returns a deep copy so callers can never mutate registry state
func (e *Endpoint) clone() *Endpoint {
	c := *e
	if e.Headers != nil {
		c.Headers = make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			c.Headers[k] = v
		}
	}
	c.Events = append([]EventType(nil), e.Events...)
	c.PayloadFields = append([]string(nil), e.PayloadFields...)
	return &c
}

// EndpointUpdate is a partial update applied to an existing endpoint.
// Nil fields are left unchanged; ID and CreatedAt can never change.
type EndpointUpdate struct {
	URL           *string            `json:"url,omitempty"`
	Secret        *string            `json:"secret,omitempty"`
	Headers       *map[string]string `json:"headers,omitempty"`
	Events        *[]EventType       `json:"events,omitempty"`
	PayloadFields *[]string          `json:"payload_fields,omitempty"`
	Active        *bool              `json:"active,omitempty"`
	Description   *string            `json:"description,omitempty"`
}

// Registry is the in-memory store of webhook endpoints
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
}

// NewRegistry creates an empty endpoint registry
func NewRegistry() *Registry {
	return &Registry{
		endpoints: make(map[string]*Endpoint),
	}
}

func validateEndpointURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("endpoint URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("endpoint URL must be absolute: %s", raw)
	}
	return nil
}

// Register validates and stores a new endpoint, assigning its id and
// timestamps. The caller's struct is updated in place with the generated
// fields.
func (r *Registry) Register(endpoint *Endpoint) error {
	if err := validateEndpointURL(endpoint.URL); err != nil {
		return err
	}

	endpoint.ID = uuid.New().String()
	endpoint.Active = true
	now := time.Now()
	endpoint.CreatedAt = now
	endpoint.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[endpoint.ID] = endpoint.clone()
	return nil
}

// Update applies a partial update. ID and CreatedAt are frozen.
func (r *Registry) Update(id string, update EndpointUpdate) (*Endpoint, error) {
	if update.URL != nil {
		if err := validateEndpointURL(*update.URL); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	endpoint, exists := r.endpoints[id]
	if !exists {
		return nil, ErrEndpointNotFound
	}

	if update.URL != nil {
		endpoint.URL = *update.URL
	}
	if update.Secret != nil {
		endpoint.Secret = *update.Secret
	}
	if update.Headers != nil {
		endpoint.Headers = *update.Headers
	}
	if update.Events != nil {
		endpoint.Events = *update.Events
	}
	if update.PayloadFields != nil {
		endpoint.PayloadFields = *update.PayloadFields
	}
	if update.Active != nil {
		endpoint.Active = *update.Active
	}
	if update.Description != nil {
		endpoint.Description = *update.Description
	}
	endpoint.UpdatedAt = time.Now()

	return endpoint.clone(), nil
}

// Remove deletes an endpoint, reporting whether it existed
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.endpoints[id]; !exists {
		return false
	}
	delete(r.endpoints, id)
	return true
}

// Get retrieves an endpoint by id
func (r *Registry) Get(id string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	endpoint, exists := r.endpoints[id]
	if !exists {
		return nil, false
	}
	return endpoint.clone(), true
}

// List returns all registered endpoints
func (r *Registry) List() []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	endpoints := make([]*Endpoint, 0, len(r.endpoints))
	for _, endpoint := range r.endpoints {
		endpoints = append(endpoints, endpoint.clone())
	}
	return endpoints
}

// Matching returns active endpoints subscribed to the given event
func (r *Registry) Matching(event EventType) []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*Endpoint
	for _, endpoint := range r.endpoints {
		if endpoint.Active && endpoint.SubscribesTo(event) {
			matched = append(matched, endpoint.clone())
		}
	}
	return matched
}

// Counts returns the total and active endpoint counts
func (r *Registry) Counts() (total, active int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, endpoint := range r.endpoints {
		total++
		if endpoint.Active {
			active++
		}
	}
	return total, active
}
