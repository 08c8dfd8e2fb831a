// Package gatewaytest is an in-process stand-in for the payment gateway. It
// issues tokens, answers the operation endpoints with scripted or default
// envelopes, and records what it was sent so tests can assert on the wire.
package gatewaytest

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/arianpay/arianpay-go/internal/middleware"
)

// Envelope mirrors the gateway's uniform response shape.
type Envelope struct {
	ResultCode int         `json:"resultCode"`
	ResultMsg  string      `json:"resultMsg"`
	Data       interface{} `json:"data,omitempty"`
}

// Request is one captured operation call: the bearer token it carried and its
// decoded JSON body.
type Request struct {
	Token string
	Body  map[string]interface{}
}

// Server is safe for concurrent use.
type Server struct {
	mu           sync.Mutex
	authRequests int
	issued       map[string]struct{}
	expiry       int64
	authFailure  *Envelope
	stubs        map[string]Envelope
	requests     map[string][]Request

	router chi.Router
}

func New(logger *slog.Logger) *Server {
	s := &Server{
		issued:   make(map[string]struct{}),
		stubs:    make(map[string]Envelope),
		requests: make(map[string][]Request),
	}

	r := chi.NewRouter()
	if logger != nil {
		r.Use(middleware.NewStructuredLogger(logger))
	}

	r.Post("/token/getToken", s.getToken)
	for _, path := range []string{
		"/api/payment/purchase",
		"/api/payment/pre-transaction",
		"/api/payment/confirm-transactions",
		"/api/payment/verify-transactions",
		"/api/payment/verify-payment",
		"/api/payment/reverse-transactions",
	} {
		r.Post(path, s.operation)
	}

	s.router = r
	return s
}

// Router returns the handler to mount on an httptest server or a listener.
func (s *Server) Router() http.Handler {
	return s.router
}

// SetTokenTTL makes subsequent token responses carry the given expiry in
// seconds. Zero omits the field, which exercises the client's fallback.
func (s *Server) SetTokenTTL(seconds int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry = seconds
}

// FailAuth makes subsequent authentication attempts answer with the given
// result code and message.
func (s *Server) FailAuth(code int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authFailure = &Envelope{ResultCode: code, ResultMsg: msg}
}

// PassAuth reverts FailAuth.
func (s *Server) PassAuth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authFailure = nil
}

// AuthRequests returns how many authentication calls were received.
func (s *Server) AuthRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authRequests
}

// Stub fixes the envelope returned for an operation path.
func (s *Server) Stub(path string, env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs[path] = env
}

// Requests returns the captured calls for an operation path.
func (s *Server) Requests(path string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests[path]...)
}

func (s *Server) getToken(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.authRequests++

	if s.authFailure != nil {
		writeJSON(w, s.authFailure)
		return
	}
	if creds.Username == "" || creds.Password == "" {
		writeJSON(w, Envelope{ResultCode: 11, ResultMsg: "invalid credentials"})
		return
	}

	token := uuid.New().String()
	s.issued[token] = struct{}{}

	resp := map[string]interface{}{
		"resultCode": 0,
		"resultMsg":  "ok",
		"token":      token,
	}
	if s.expiry > 0 {
		resp["expiry"] = s.expiry
	}
	writeJSON(w, resp)
}

func (s *Server) operation(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	body := map[string]interface{}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path
	s.requests[path] = append(s.requests[path], Request{Token: token, Body: body})

	if _, ok := s.issued[token]; !ok {
		writeJSON(w, Envelope{ResultCode: 21, ResultMsg: "invalid token"})
		return
	}

	if env, ok := s.stubs[path]; ok {
		writeJSON(w, env)
		return
	}

	writeJSON(w, s.defaultEnvelope(path, body))
}

func (s *Server) defaultEnvelope(path string, body map[string]interface{}) Envelope {
	switch path {
	case "/api/payment/purchase", "/api/payment/pre-transaction":
		urlID := uuid.New().String()
		return Envelope{
			ResultMsg: "ok",
			Data: map[string]interface{}{
				"urlId": urlID,
				"url":   "https://gateway.example/pay/" + urlID,
			},
		}
	case "/api/payment/confirm-transactions":
		return Envelope{
			ResultMsg: "confirmed",
			Data: map[string]interface{}{
				"invoice":          body["invoice"],
				"referenceNumber":  uuid.New().String(),
				"trackId":          uuid.New().String(),
				"maskedCardNumber": "6219...1234",
				"hashedCardNumber": "h",
				"requestDate":      "2024-01-15",
				"amount":           100000,
			},
		}
	default:
		return Envelope{ResultMsg: "ok"}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
