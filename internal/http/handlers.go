package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-notify/internal/dispatch"
	"github.com/example/ride-notify/internal/events"
	"github.com/example/ride-notify/internal/observability"
)

const maxEventBytes = 1 << 20

// EventHandler handles a decoded change event in-process.
type EventHandler interface {
	Handle(ctx context.Context, ev events.Event)
}

// Publisher relays raw envelopes to the broker.
type Publisher interface {
	PublishEnvelope(ctx context.Context, key string, body []byte) error
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Engine EventHandler
	Kafka  Publisher // optional; when set events are relayed, not handled
	WSReg  *dispatch.WSRegistry
	Ready  map[string]Pinger

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(engine EventHandler, kafka Publisher, wsreg *dispatch.WSRegistry, ready map[string]Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Engine: engine, Kafka: kafka, WSReg: wsreg, Ready: ready, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/internal/events", s.handleEvent).Methods(http.MethodPost)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) }).Methods(http.MethodGet)
	s.mux.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type eventAccepted struct {
	ID      string `json:"id"`
	Relayed bool   `json:"relayed"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "envelope too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var env events.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		observability.EventsInvalid.Inc()
		http.Error(w, "malformed envelope", http.StatusBadRequest)
		return
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
		if body, err = json.Marshal(env); err != nil {
			http.Error(w, "encode envelope", http.StatusInternalServerError)
			return
		}
	}
	ev, err := env.Event()
	if err != nil {
		observability.EventsInvalid.Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := eventAccepted{ID: env.ID}
	if s.Kafka != nil {
		if err := s.Kafka.PublishEnvelope(r.Context(), env.DocID, body); err != nil {
			s.logger.Error("relay event failed", "request_id", RequestID(r.Context()), "event_id", env.ID, "kind", env.Kind, "error", err)
			http.Error(w, "broker unavailable", http.StatusServiceUnavailable)
			return
		}
		observability.EventsRelayed.Inc()
		resp.Relayed = true
	} else {
		// The request context ends with the response; notification work must not.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 30*time.Second)
		defer cancel()
		s.Engine.Handle(ctx, ev)
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	var errs []error
	for name, p := range s.Ready {
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, errors.New(name+": "+err.Error()))
		}
	}
	if err := errors.Join(errs...); err != nil {
		http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

var upgrader = websocket.Upgrader{}

// handleWS keeps one in-app session per user open until the client goes
// away; notifications are pushed to it as they are dispatched.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "user_id", id, "error", err)
		return
	}
	s.WSReg.Add(id, conn)
	s.logger.Info("ws session opened", "user_id", id)
	defer func() {
		s.WSReg.Remove(id, conn)
		_ = conn.Close()
		s.logger.Info("ws session closed", "user_id", id)
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
