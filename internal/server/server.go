// Package server exposes the dialog core over HTTP: a JSON chat
// endpoint, a multipart variant accepting a product photo, and a health
// probe. The server owns per-session locking so a session's turns are
// processed strictly in order.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"shopagent/internal/dialog"
	"shopagent/internal/logging"
	"shopagent/internal/store"
)

// maxImageBytes bounds uploaded photos.
const maxImageBytes = 10 << 20

// Server wires the dialog manager and the store behind HTTP handlers.
type Server struct {
	manager *dialog.Manager
	store   *store.LocalStore
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Server. timeout bounds one whole turn including LLM
// calls; zero selects a sane default.
func New(manager *dialog.Manager, st *store.LocalStore, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		manager: manager,
		store:   st,
		timeout: timeout,
		locks:   map[string]*sync.Mutex{},
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Post("/chat", s.handleChat)
	r.Post("/chat_with_image", s.handleChatWithImage)
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.ServerDebug("%s %s (%v) reqid=%s",
			r.Method, r.URL.Path, time.Since(start), middleware.GetReqID(r.Context()))
	})
}

// sessionLock returns the mutex serializing one session's turns.
func (s *Server) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[sessionID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[sessionID] = l
	return l
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID        string        `json:"session_id"`
	Reply            string        `json:"reply"`
	Status           dialog.Status `json:"status"`
	NextQuestionSlot *dialog.Slot  `json:"next_question_slot,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	s.runTurn(w, r, req.SessionID, req.Message, nil, "")
}

func (s *Server) handleChatWithImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	message := r.FormValue("message")
	if message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	sessionID := r.FormValue("session_id")

	var image []byte
	var contentType string
	if file, header, err := r.FormFile("image"); err == nil {
		defer file.Close()
		image, err = io.ReadAll(io.LimitReader(file, maxImageBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read image")
			return
		}
		contentType = header.Header.Get("Content-Type")
	}
	if len(image) == 0 {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}

	attachmentID := ""
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if id, err := s.store.SaveAttachment(sessionID, contentType, image); err == nil {
		attachmentID = id
	} else {
		logging.ServerDebug("attachment save failed: %v", err)
	}
	s.runTurn(w, r, sessionID, message, image, attachmentID)
}

// runTurn executes one dialog turn under the session lock and persists
// state only after the turn completes.
func (s *Server) runTurn(w http.ResponseWriter, r *http.Request, sessionID, message string, image []byte, attachmentID string) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	state, err := s.store.LoadSession(sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	result := s.manager.HandleTurn(ctx, state, message, image)

	// Mid-turn cancellation discards the snapshot: nothing below ran.
	if ctx.Err() != nil {
		writeError(w, http.StatusRequestTimeout, "request cancelled")
		return
	}

	if err := s.store.AppendMessage(sessionID, "user", message, attachmentID); err != nil {
		logging.ServerDebug("message log failed: %v", err)
	}
	if err := s.store.AppendMessage(sessionID, "agent", result.Reply, ""); err != nil {
		logging.ServerDebug("message log failed: %v", err)
	}
	if err := s.store.SaveSession(state); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save session")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		SessionID:        sessionID,
		Reply:            result.Reply,
		Status:           result.Status,
		NextQuestionSlot: result.NextQuestionSlot,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
