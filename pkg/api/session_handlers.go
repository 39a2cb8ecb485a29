package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/duetboard/duetboard/pkg/httputil"
	"github.com/duetboard/duetboard/pkg/sessions"
)

// SessionHandlers provides HTTP handlers for session and message CRUD
type SessionHandlers struct {
	store *sessions.Store
}

// NewSessionHandlers creates new session handlers
func NewSessionHandlers(store *sessions.Store) *SessionHandlers {
	return &SessionHandlers{store: store}
}

// RegisterRoutes registers session routes on the router
func (h *SessionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sessions", h.createSession).Methods("POST")
	router.HandleFunc("/sessions", h.listSessions).Methods("GET")
	router.HandleFunc("/sessions/{id}", h.getSession).Methods("GET")
	router.HandleFunc("/sessions/{id}/status", h.updateStatus).Methods("PATCH")
	router.HandleFunc("/sessions/{id}/messages", h.appendMessage).Methods("POST")
	router.HandleFunc("/sessions/{id}/messages", h.listMessages).Methods("GET")
}

type createSessionRequest struct {
	Title        string `json:"title"`
	ManagerModel string `json:"manager_model"`
	WorkerModel  string `json:"worker_model"`
}

// createSession handles POST /sessions
func (h *SessionHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	session, err := h.store.CreateSession(r.Context(), req.Title, req.ManagerModel, req.WorkerModel)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	httputil.WriteCreated(w, session)
}

// listSessions handles GET /sessions
func (h *SessionHandlers) listSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	list, err := h.store.ListSessions(r.Context(), limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if list == nil {
		list = []*sessions.Session{}
	}
	httputil.WriteSuccess(w, list)
}

// getSession handles GET /sessions/{id}
func (h *SessionHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			httputil.WriteNotFound(w, err.Error())
		} else {
			httputil.WriteInternalError(w, err)
		}
		return
	}
	httputil.WriteSuccess(w, session)
}

type updateStatusRequest struct {
	Status sessions.Status `json:"status"`
}

// updateStatus handles PATCH /sessions/{id}/status
func (h *SessionHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req updateStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	session, err := h.store.UpdateSessionStatus(r.Context(), id, req.Status)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			httputil.WriteNotFound(w, err.Error())
		} else {
			httputil.WriteBadRequest(w, err.Error())
		}
		return
	}
	httputil.WriteSuccess(w, session)
}

type appendMessageRequest struct {
	Role    sessions.Role `json:"role"`
	Content string        `json:"content"`
}

// appendMessage handles POST /sessions/{id}/messages
func (h *SessionHandlers) appendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req appendMessageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	message, err := h.store.AppendMessage(r.Context(), id, req.Role, req.Content)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			httputil.WriteNotFound(w, err.Error())
		} else {
			httputil.WriteBadRequest(w, err.Error())
		}
		return
	}
	httputil.WriteCreated(w, message)
}

// listMessages handles GET /sessions/{id}/messages
func (h *SessionHandlers) listMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 500)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	messages, err := h.store.ListMessages(r.Context(), id, limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if messages == nil {
		messages = []*sessions.Message{}
	}
	httputil.WriteSuccess(w, messages)
}
