package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-checkin-go/internal/handler/http/response"
	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/sse"
	"github.com/cmlabs-hris/hris-checkin-go/internal/service/session"
	"github.com/go-chi/chi/v5"
)

const sseKeepalive = 30 * time.Second

type SessionHandler interface {
	Create(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Close(w http.ResponseWriter, r *http.Request)
	Events(w http.ResponseWriter, r *http.Request)
	PushLocation(w http.ResponseWriter, r *http.Request)
	PushLocationError(w http.ResponseWriter, r *http.Request)
	SelectOffice(w http.ResponseWriter, r *http.Request)
	DeselectOffice(w http.ResponseWriter, r *http.Request)
	SelectEmployee(w http.ResponseWriter, r *http.Request)
	SelectAction(w http.ResponseWriter, r *http.Request)
	AttachSelfie(w http.ResponseWriter, r *http.Request)
	Submit(w http.ResponseWriter, r *http.Request)
	Acknowledge(w http.ResponseWriter, r *http.Request)
	Refresh(w http.ResponseWriter, r *http.Request)
}

// SessionManager owns the device sessions.
type SessionManager interface {
	Create(ctx context.Context) *session.Session
	Get(id string) (*session.Session, error)
	Close(ctx context.Context, id string) error
}

type sessionHandlerImpl struct {
	sessions SessionManager
	hub      *sse.Hub
}

func NewSessionHandler(sessions SessionManager, hub *sse.Hub) SessionHandler {
	return &sessionHandlerImpl{
		sessions: sessions,
		hub:      hub,
	}
}

// Create implements SessionHandler.
func (h *sessionHandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create(r.Context())
	response.Created(w, "Session created", s.View(r.Context()))
}

// Get implements SessionHandler.
func (h *sessionHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	response.Success(w, s.View(r.Context()))
}

// Close implements SessionHandler.
func (h *sessionHandlerImpl) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Session closed", nil)
}

// Events implements SessionHandler. It streams state and location changes
// of one session as server-sent events.
func (h *sessionHandlerImpl) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, unsubscribe := h.hub.Subscribe(s.ID)
	defer unsubscribe()

	// Initial snapshot so the panel renders without waiting for a change
	writeEvent(w, session.EventState, s.View(r.Context()))
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			writeEvent(w, event.Event, event.Data)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%d}\n\n", time.Now().Unix())
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("Failed to encode session event", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

// PushLocation implements SessionHandler.
func (h *sessionHandlerImpl) PushLocation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req attendance.PositionFixRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.PushFix(req); err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Location received", nil)
}

// PushLocationError implements SessionHandler.
func (h *sessionHandlerImpl) PushLocationError(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req attendance.PositionErrorRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.PushError(req); err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Location error received", nil)
}

// SelectOffice implements SessionHandler.
func (h *sessionHandlerImpl) SelectOffice(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req attendance.SelectOfficeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	view, err := s.SelectOffice(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, view)
}

// DeselectOffice implements SessionHandler.
func (h *sessionHandlerImpl) DeselectOffice(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	response.Success(w, s.DeselectOffice(r.Context()))
}

// SelectEmployee implements SessionHandler.
func (h *sessionHandlerImpl) SelectEmployee(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req attendance.SelectEmployeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	view, err := s.SelectEmployee(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, view)
}

// SelectAction implements SessionHandler.
func (h *sessionHandlerImpl) SelectAction(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req attendance.SelectActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	view, err := s.SelectAction(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, view)
}

// AttachSelfie implements SessionHandler.
func (h *sessionHandlerImpl) AttachSelfie(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	// Parse multipart form (max 10MB)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		slog.Error("Failed to parse multipart form", "error", err)
		response.BadRequest(w, "Failed to parse form data", nil)
		return
	}

	file, fileHeader, err := r.FormFile("photo")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			response.BadRequest(w, "Selfie photo is required", nil)
			return
		}
		slog.Error("Failed to get file from form", "error", err)
		response.BadRequest(w, "Invalid file upload", nil)
		return
	}
	defer file.Close()

	req := attendance.SelfieUpload{
		File:       file,
		FileHeader: fileHeader,
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	view, err := s.AttachSelfie(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Selfie attached", view)
}

// Submit implements SessionHandler.
func (h *sessionHandlerImpl) Submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	result, err := s.Submit(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Created(w, result.Dialog, result)
}

// Acknowledge implements SessionHandler.
func (h *sessionHandlerImpl) Acknowledge(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	response.Success(w, s.Acknowledge(r.Context()))
}

// Refresh implements SessionHandler. A failed clock sync still clears the
// selections; the view then reports the clock as not ready.
func (h *sessionHandlerImpl) Refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	view, err := s.Refresh(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Session refreshed", view)
}

func (h *sessionHandlerImpl) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return nil, false
	}
	return s, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		response.BadRequest(w, "Invalid request body", nil)
		return false
	}
	return true
}
