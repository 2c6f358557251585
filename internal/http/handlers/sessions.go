package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/usmanalidev/demo-agent-ai/internal/conversation"
	"github.com/usmanalidev/demo-agent-ai/internal/demo"
	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
)

// SessionsHandler exposes registry sessions over plain HTTP for clients
// that poll instead of holding a socket.
type SessionsHandler struct {
	registry *conversation.Registry
	logger   *logging.Logger
}

func NewSessionsHandler(registry *conversation.Registry, logger *logging.Logger) *SessionsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionsHandler{registry: registry, logger: logger}
}

// SessionResponse is the session state plus the demo highlight.
type SessionResponse struct {
	conversation.State
	Highlight demo.Highlight `json:"highlight"`
}

func sessionResponse(e *conversation.Entry) SessionResponse {
	return SessionResponse{State: e.Session.Snapshot(), Highlight: e.Sequencer.Current()}
}

func (h *SessionsHandler) entry(w http.ResponseWriter, r *http.Request) (*conversation.Entry, bool) {
	e, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		jsonError(w, "session not found", http.StatusNotFound)
	}
	return e, ok
}

// sessionStatus maps session errors to HTTP status codes.
func sessionStatus(err error) int {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrTooManyPending),
		errors.Is(err, conversation.ErrAlreadySpeaking):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrCredentialRequired):
		return http.StatusPreconditionFailed
	case errors.Is(err, conversation.ErrSpeechUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, conversation.ErrSessionClosed):
		return http.StatusGone
	default:
		return http.StatusBadRequest
	}
}

func (h *SessionsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := sessionStatus(err)
	h.logger.Debug("session request rejected", "path", r.URL.Path, "status", status, "error", err)
	jsonError(w, err.Error(), status)
}

// Create handles POST /chat/sessions.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	e := h.registry.Create()
	writeJSON(w, http.StatusCreated, sessionResponse(e))
}

// Get handles GET /chat/sessions/{id}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(e))
}

// Delete handles DELETE /chat/sessions/{id}.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.registry.Delete(chi.URLParam(r, "id")) {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitRequest struct {
	Text string `json:"text"`
}

// Submit handles POST /chat/sessions/{id}/messages.
func (h *SessionsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := e.Session.Submit(req.Text); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sessionResponse(e))
}

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

// SetCredential handles PUT /chat/sessions/{id}/credential. An empty key
// turns speech off.
func (h *SessionsHandler) SetCredential(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := e.Session.SetCredential(req.APIKey); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(e))
}

// Replay handles POST /chat/sessions/{id}/replay/{messageID}.
func (h *SessionsHandler) Replay(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	if err := e.Session.Replay(chi.URLParam(r, "messageID")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sessionResponse(e))
}

// Audio handles GET /chat/sessions/{id}/audio and returns the latest
// synthesized utterance.
func (h *SessionsHandler) Audio(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	u, ok := e.LastUtterance()
	if !ok || u.Audio == nil {
		jsonError(w, "no audio available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", u.Audio.ContentType)
	w.Header().Set("X-Message-ID", u.MessageID)
	w.Header().Set("X-Utterance-ID", u.ID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(u.Audio.Data)
}

// StartDemo handles POST /chat/sessions/{id}/demos/{feature}.
func (h *SessionsHandler) StartDemo(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	if err := e.Session.RequestDemo(chi.URLParam(r, "feature")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sessionResponse(e))
}
