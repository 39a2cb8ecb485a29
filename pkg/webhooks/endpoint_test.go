package webhooks

import (
	"testing"
)

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()

	endpoint := &Endpoint{
		URL:    "https://example.com/hook",
		Events: []EventType{EventSessionCreated},
	}

	if err := registry.Register(endpoint); err != nil {
		t.Fatalf("Failed to register endpoint: %v", err)
	}

	if endpoint.ID == "" {
		t.Error("Expected endpoint ID to be set")
	}
	if !endpoint.Active {
		t.Error("Expected endpoint to be active")
	}
	if endpoint.CreatedAt.IsZero() || endpoint.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be set")
	}
}

func TestRegistry_Register_InvalidURL(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"relative", "/hook"},
		{"no host", "https://"},
		{"no scheme", "example.com/hook"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.Register(&Endpoint{URL: tt.url})
			if err == nil {
				t.Errorf("Expected error for URL %q", tt.url)
			}
		})
	}
}

func TestRegistry_Update(t *testing.T) {
	registry := NewRegistry()

	endpoint := &Endpoint{
		URL:    "https://example.com/hook",
		Events: []EventType{EventSessionCreated},
	}
	registry.Register(endpoint)
	originalID := endpoint.ID
	originalCreated := endpoint.CreatedAt

	newURL := "https://example.com/v2/hook"
	inactive := false
	updated, err := registry.Update(endpoint.ID, EndpointUpdate{
		URL:    &newURL,
		Active: &inactive,
	})
	if err != nil {
		t.Fatalf("Failed to update endpoint: %v", err)
	}

	if updated.URL != newURL {
		t.Errorf("Expected URL %q, got %q", newURL, updated.URL)
	}
	if updated.Active {
		t.Error("Expected endpoint to be inactive")
	}
	if updated.ID != originalID {
		t.Error("Expected ID to be immutable")
	}
	if !updated.CreatedAt.Equal(originalCreated) {
		t.Error("Expected CreatedAt to be immutable")
	}
	// Fields not in the update are preserved
	if len(updated.Events) != 1 || updated.Events[0] != EventSessionCreated {
		t.Error("Expected events to be unchanged")
	}
}

func TestRegistry_Update_NotFound(t *testing.T) {
	registry := NewRegistry()

	newURL := "https://example.com/hook"
	_, err := registry.Update("missing", EndpointUpdate{URL: &newURL})
	if err != ErrEndpointNotFound {
		t.Errorf("Expected ErrEndpointNotFound, got %v", err)
	}
}

func TestRegistry_Update_InvalidURL(t *testing.T) {
	registry := NewRegistry()

	endpoint := &Endpoint{URL: "https://example.com/hook"}
	registry.Register(endpoint)

	bad := "not-a-url"
	if _, err := registry.Update(endpoint.ID, EndpointUpdate{URL: &bad}); err == nil {
		t.Error("Expected error for invalid URL update")
	}

	// Endpoint must be unchanged after a rejected update
	got, _ := registry.Get(endpoint.ID)
	if got.URL != "https://example.com/hook" {
		t.Errorf("Expected URL to be unchanged, got %q", got.URL)
	}
}

func TestRegistry_Remove(t *testing.T) {
	registry := NewRegistry()

	endpoint := &Endpoint{URL: "https://example.com/hook"}
	registry.Register(endpoint)

	if !registry.Remove(endpoint.ID) {
		t.Error("Expected Remove to report true for existing endpoint")
	}
	if _, ok := registry.Get(endpoint.ID); ok {
		t.Error("Expected endpoint to be gone after Remove")
	}
	if registry.Remove(endpoint.ID) {
		t.Error("Expected Remove to report false for missing endpoint")
	}
}

func TestRegistry_Matching(t *testing.T) {
	registry := NewRegistry()

	subscribed := &Endpoint{
		URL:    "https://example.com/sessions",
		Events: []EventType{EventSessionCreated},
	}
	registry.Register(subscribed)

	other := &Endpoint{
		URL:    "https://example.com/messages",
		Events: []EventType{EventMessageCreated},
	}
	registry.Register(other)

	// Empty subscription set matches all events
	wildcard := &Endpoint{URL: "https://example.com/all"}
	registry.Register(wildcard)

	inactive := &Endpoint{
		URL:    "https://example.com/inactive",
		Events: []EventType{EventSessionCreated},
	}
	registry.Register(inactive)
	off := false
	registry.Update(inactive.ID, EndpointUpdate{Active: &off})

	matched := registry.Matching(EventSessionCreated)
	if len(matched) != 2 {
		t.Fatalf("Expected 2 matching endpoints, got %d", len(matched))
	}
	for _, endpoint := range matched {
		if endpoint.ID == other.ID {
			t.Error("Endpoint subscribed to a different event should not match")
		}
		if endpoint.ID == inactive.ID {
			t.Error("Inactive endpoint should not match")
		}
	}
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	registry := NewRegistry()

	endpoint := &Endpoint{
		URL:     "https://example.com/hook",
		Headers: map[string]string{"Authorization": "Bearer token"},
		Events:  []EventType{EventSessionCreated},
	}
	registry.Register(endpoint)

	got, _ := registry.Get(endpoint.ID)
	got.URL = "https://evil.example.com"
	got.Headers["Authorization"] = "tampered"

	fresh, _ := registry.Get(endpoint.ID)
	if fresh.URL != "https://example.com/hook" {
		t.Error("Mutating a returned endpoint changed registry state")
	}
	if fresh.Headers["Authorization"] != "Bearer token" {
		t.Error("Mutating returned headers changed registry state")
	}
}

func TestRegistry_Counts(t *testing.T) {
	registry := NewRegistry()

	first := &Endpoint{URL: "https://example.com/a"}
	second := &Endpoint{URL: "https://example.com/b"}
	registry.Register(first)
	registry.Register(second)

	off := false
	registry.Update(second.ID, EndpointUpdate{Active: &off})

	total, active := registry.Counts()
	if total != 2 {
		t.Errorf("Expected 2 total endpoints, got %d", total)
	}
	if active != 1 {
		t.Errorf("Expected 1 active endpoint, got %d", active)
	}
}
