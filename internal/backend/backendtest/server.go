// Package backendtest runs an in-process fake of the SDK backend for tests.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"paykit/internal/backend"
)

// ReceivedEvent is one event payload accepted by the fake.
type ReceivedEvent struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	ProfileID string         `json:"profile_id"`
	Store     string         `json:"store"`
	Country   string         `json:"country"`
	Metadata  map[string]any `json:"metadata"`
	DeviceID  string         `json:"-"`
}

// Server is a fake backend. All methods are safe for concurrent use.
type Server struct {
	srv    *httptest.Server
	apiKey string

	mu            sync.Mutex
	profiles      map[string]backend.ProfileSnapshot
	creates       []backend.CreateProfileRequest
	fetches       int
	events        []ReceivedEvent
	eventAttempts int
	failEvents    int
	rejectEvents  int
	rejectMessage string
	failProfiles  int
	failStatus    int
	delay         time.Duration
}

// New starts a fake that accepts apiKey.
func New(apiKey string) *Server {
	s := &Server{
		apiKey:     apiKey,
		profiles:   make(map[string]backend.ProfileSnapshot),
		failStatus: http.StatusServiceUnavailable,
	}
	r := chi.NewRouter()
	r.Use(s.requireKey)
	r.Post("/sdk/profiles", s.handleCreateProfile)
	r.Get("/sdk/profiles/{id}", s.handleFetchProfile)
	r.Post("/sdk/events", s.handleEvent)
	s.srv = httptest.NewServer(r)
	return s
}

func (s *Server) URL() string { return s.srv.URL }

func (s *Server) Close() { s.srv.Close() }

// FailEvents makes the next n event posts fail with status.
func (s *Server) FailEvents(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failEvents = n
	s.failStatus = status
}

// RejectEvents answers the next n event posts with 200 and {"ok": false}.
func (s *Server) RejectEvents(n int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectEvents = n
	s.rejectMessage = message
}

// FailProfiles makes the next n profile calls fail with status.
func (s *Server) FailProfiles(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failProfiles = n
	s.failStatus = status
}

// SetDelay delays every response by d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// PutProfile makes GET /sdk/profiles/{id} return p.
func (s *Server) PutProfile(id string, p backend.ProfileSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[id] = p
}

func (s *Server) Creates() []backend.CreateProfileRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.CreateProfileRequest(nil), s.creates...)
}

func (s *Server) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// Events returns the accepted events in arrival order.
func (s *Server) Events() []ReceivedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReceivedEvent(nil), s.events...)
}

// EventAttempts counts every event post, failed or not.
func (s *Server) EventAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventAttempts
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(backend.HeaderAuthorization) != "Api-Key "+s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		s.mu.Lock()
		d := s.delay
		s.mu.Unlock()
		if d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// takeProfileFailure consumes one injected failure. Callers hold mu.
func (s *Server) takeProfileFailure() bool {
	if s.failProfiles > 0 {
		s.failProfiles--
		return true
	}
	return false
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data *backend.CreateProfileRequest `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Data == nil || body.Data.TemporaryID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	s.creates = append(s.creates, *body.Data)
	if s.takeProfileFailure() {
		status := s.failStatus
		s.mu.Unlock()
		writeError(w, status, "profile service unavailable")
		return
	}
	p := backend.ProfileSnapshot{
		ProfileID: uuid.NewString(),
		UpdatedAt: time.Now().UTC(),
	}
	s.profiles[p.ProfileID] = p
	s.mu.Unlock()

	writeData(w, http.StatusCreated, p)
}

func (s *Server) handleFetchProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	s.fetches++
	if s.takeProfileFailure() {
		status := s.failStatus
		s.mu.Unlock()
		writeError(w, status, "profile service unavailable")
		return
	}
	p, ok := s.profiles[id]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeData(w, http.StatusOK, p)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data *struct {
			Event    ReceivedEvent  `json:"event"`
			Country  string         `json:"country"`
			Metadata map[string]any `json:"metadata"`
		} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Data == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	s.eventAttempts++
	if s.failEvents > 0 {
		s.failEvents--
		status := s.failStatus
		s.mu.Unlock()
		writeError(w, status, "ingestion unavailable")
		return
	}
	if s.rejectEvents > 0 {
		s.rejectEvents--
		msg := s.rejectMessage
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "message": msg})
		return
	}
	ev := body.Data.Event
	ev.Country = body.Data.Country
	ev.Metadata = body.Data.Metadata
	ev.DeviceID = r.Header.Get(backend.HeaderDeviceID)
	s.events = append(s.events, ev)
	s.mu.Unlock()

	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, map[string]any{"ok": true, "data": v})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
