package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/minofeel/TuringBot/internal/chatlog"
	"github.com/minofeel/TuringBot/internal/events"
	"github.com/minofeel/TuringBot/internal/mqtt"
	"github.com/minofeel/TuringBot/internal/ringbuf"
	"github.com/minofeel/TuringBot/internal/storage/postgres"
)

// BufferInspector exposes the message buffer's counters.
type BufferInspector interface {
	Stats() ringbuf.Stats
}

// RelayController is the consumer task draining the buffer.
type RelayController interface {
	Stats() chatlog.RelayStats
	Flush(ctx context.Context) int
}

// MessageStore serves logged messages.
type MessageStore interface {
	Recent(ctx context.Context, channelID string, limit int) ([]postgres.MessageRow, error)
}

// ChannelLister lists the chat channels being logged.
type ChannelLister interface {
	All() []*mqtt.Channel
}

// Deps are the runtime components the handlers read from. Any of them may
// be nil; handlers answer 503 for a missing dependency.
type Deps struct {
	Buffer   BufferInspector
	Relay    RelayController
	Messages MessageStore
	Channels ChannelLister
}

var (
	depsMu sync.RWMutex
	deps   Deps
)

// SetDeps installs the components served by the API.
func SetDeps(d Deps) {
	depsMu.Lock()
	deps = d
	depsMu.Unlock()
}

func currentDeps() Deps {
	depsMu.RLock()
	defer depsMu.RUnlock()
	return deps
}

const queryTimeout = 5 * time.Second

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	resp := HealthResponse{
		Status:    "ok",
		Service:   "turingbot",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	writeJSON(w, http.StatusOK, resp)
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, events.Snapshot())
}

// BufferResponse is the body of GET /buffer.
type BufferResponse struct {
	Buffer   ringbuf.Stats       `json:"buffer"`
	Relay    *chatlog.RelayStats `json:"relay,omitempty"`
	Channels []*mqtt.Channel     `json:"channels,omitempty"`
}

func bufferHandler(w http.ResponseWriter, r *http.Request) {
	d := currentDeps()
	if d.Buffer == nil {
		writeError(w, http.StatusServiceUnavailable, "buffer not available")
		return
	}

	resp := BufferResponse{Buffer: d.Buffer.Stats()}
	if d.Relay != nil {
		stats := d.Relay.Stats()
		resp.Relay = &stats
	}
	if d.Channels != nil {
		resp.Channels = d.Channels.All()
	}
	writeJSON(w, http.StatusOK, resp)
}

func messagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	d := currentDeps()
	if d.Messages == nil {
		writeError(w, http.StatusServiceUnavailable, "message log not available")
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	rows, err := d.Messages.Recent(ctx, r.URL.Query().Get("channel"), postgres.ClampLimit(limit))
	if err != nil {
		log.Printf("messages query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if rows == nil {
		rows = []postgres.MessageRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

type OperatorResponse struct {
	OK      bool   `json:"ok"`
	Flushed int    `json:"flushed"`
	Error   string `json:"error,omitempty"`
}

func operatorFlushHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, OperatorResponse{Error: "method not allowed"})
		return
	}

	d := currentDeps()
	if d.Relay == nil {
		writeJSON(w, http.StatusServiceUnavailable, OperatorResponse{Error: "relay not available"})
		return
	}

	n := d.Relay.Flush(r.Context())
	_ = events.Emit("info", "operator.flush", "", map[string]interface{}{
		"flushed": n,
	})
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true, Flushed: n})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// NewMux builds the API routes.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler)
	mux.HandleFunc("/buffer", bufferHandler)
	mux.HandleFunc("/messages", RequireAnyRole(messagesHandler))
	mux.HandleFunc("/events", eventsHandler)
	mux.HandleFunc("/ws/events", wsEventsHandler)
	mux.HandleFunc("/operator/flush", RequireAdmin(operatorFlushHandler))
	mux.Handle("/metrics", metricsHandler())
	return mux
}

// ListenAndServe serves the API on port until ctx is cancelled, then shuts
// the server down gracefully.
func ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsCfg := LoadTLSConfig()
	if tlsCfg != nil {
		srv.TLSConfig = tlsCfg
	}

	errCh := make(chan error, 1)
	go func() {
		if tlsCfg != nil {
			log.Printf("API listening on %s (TLS)\n", srv.Addr)
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		log.Printf("API listening on %s\n", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	events.CloseAllSubscribers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}
