// Package web provides the HTTP status server for the controller daemon:
// an HTML page, a JSON endpoint, a server-sent event stream of status
// snapshots and the recorded history.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/r3labs/sse/v2"

	"github.com/sweeney/ferment-controller/internal/recorder"
	"github.com/sweeney/ferment-controller/internal/status"
)

// StreamStatus is the SSE stream carrying status snapshots.
const StreamStatus = "status"

const (
	defaultHistory = 60
	maxHistory     = 1440
)

// History supplies recorded data for /history.json.
type History interface {
	Recent(limit int) ([]recorder.Point, error)
	Transitions(limit int) ([]recorder.Transition, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer  *http.Server
	tracker     *status.Tracker
	history     History
	events      *sse.Server
	subscribers atomic.Int32
}

// New creates a Server that reads state from tracker. history may be nil.
func New(addr string, tracker *status.Tracker, history History) *Server {
	s := &Server{tracker: tracker, history: history}

	s.events = sse.NewWithCallback(
		func(string, *sse.Subscriber) { s.subscribers.Add(1) },
		func(string, *sse.Subscriber) { s.subscribers.Add(-1) },
	)
	s.events.AutoReplay = false
	s.events.CreateStream(StreamStatus)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/history.json", s.handleHistory)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown ends the event streams and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.events.Close()
	return s.httpServer.Shutdown(ctx)
}

// Publish sends snap to every event stream subscriber. It never blocks;
// the snapshot is dropped when the stream is backed up.
func (s *Server) Publish(snap status.Snapshot) {
	s.events.TryPublish(StreamStatus, &sse.Event{
		Event: []byte("status"),
		Data:  status.FormatCompact(snap),
	})
}

// Subscribers returns the number of connected event stream clients.
func (s *Server) Subscribers() int {
	return int(s.subscribers.Load())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("stream") == "" {
		r = r.Clone(r.Context())
		q := r.URL.Query()
		q.Set("stream", StreamStatus)
		r.URL.RawQuery = q.Encode()
	}
	s.events.ServeHTTP(w, r)
}

type pointJSON struct {
	Time      string  `json:"time"`
	Tick      uint32  `json:"tick"`
	State     string  `json:"state"`
	Mode      string  `json:"mode"`
	Beer      *string `json:"beer"`
	BeerSet   *string `json:"beer_set"`
	Fridge    *string `json:"fridge"`
	FridgeSet *string `json:"fridge_set"`
	Room      *string `json:"room"`
	Heater    bool    `json:"heater"`
	Cooler    bool    `json:"cooler"`
	Door      bool    `json:"door"`
}

type transitionJSON struct {
	Time   string `json:"time"`
	Tick   uint32 `json:"tick"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

type historyJSON struct {
	Points      []pointJSON      `json:"points"`
	Transitions []transitionJSON `json:"transitions"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.NotFound(w, r)
		return
	}

	limit := defaultHistory
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistory {
			http.Error(w, "limit must be between 1 and "+strconv.Itoa(maxHistory), http.StatusBadRequest)
			return
		}
		limit = n
	}

	points, err := s.history.Recent(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	transitions, err := s.history.Transitions(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	doc := historyJSON{
		Points:      make([]pointJSON, 0, len(points)),
		Transitions: make([]transitionJSON, 0, len(transitions)),
	}
	for _, p := range points {
		doc.Points = append(doc.Points, pointJSON{
			Time:      p.Time.UTC().Format("2006-01-02T15:04:05Z"),
			Tick:      p.Tick,
			State:     string(p.State),
			Mode:      string(p.Mode),
			Beer:      status.FormatTemp(p.Beer),
			BeerSet:   status.FormatTemp(p.BeerSet),
			Fridge:    status.FormatTemp(p.Fridge),
			FridgeSet: status.FormatTemp(p.FridgeSet),
			Room:      status.FormatTemp(p.Room),
			Heater:    p.Heater,
			Cooler:    p.Cooler,
			Door:      p.Door,
		})
	}
	for _, t := range transitions {
		doc.Transitions = append(doc.Transitions, transitionJSON{
			Time:   t.Time.UTC().Format("2006-01-02T15:04:05Z"),
			Tick:   t.Tick,
			From:   string(t.From),
			To:     string(t.To),
			Reason: t.Reason,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}
