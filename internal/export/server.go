// Package export is the read-only telemetry surface: a websocket feed of
// decoded events, JSON station snapshots, and Prometheus metrics.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/airtap/ratectl/internal/util"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// StationStatus is the JSON snapshot of one station, assembled by the
// runtime from the registry through the table's read-only accessors.
type StationStatus struct {
	AP          string      `json:"ap"`
	Radio       string      `json:"radio"`
	MAC         string      `json:"mac"`
	Associated  bool        `json:"associated"`
	RcMode      string      `json:"rc_mode"`
	TpcMode     string      `json:"tpc_mode"`
	TaskState   string      `json:"task_state,omitempty"`
	LastSeen    uint64      `json:"last_seen"`
	RateCells   []RateCell  `json:"rate_cells,omitempty"`
}

// RateCell is one populated statistics cell.
type RateCell struct {
	Rate      int    `json:"rate"`
	TxPower   int    `json:"txpower"`
	Attempts  uint64 `json:"attempts"`
	Successes uint64 `json:"successes"`
	Timestamp uint64 `json:"timestamp"`
}

// SnapshotFunc produces the current station view; supplied by the runtime so
// this package stays decoupled from the registry.
type SnapshotFunc func() []StationStatus

type Config struct {
	BindAddr string
	BindPort int
}

type Server struct {
	cfg      Config
	hub      *EventHub
	metrics  *Metrics
	snapshot SnapshotFunc
	logger   util.Logger
	server   *http.Server
}

func NewServer(cfg Config, hub *EventHub, metrics *Metrics, snapshot SnapshotFunc, logger util.Logger) *Server {
	return &Server{cfg: cfg, hub: hub, metrics: metrics, snapshot: snapshot, logger: logger}
}

func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/stations", s.handleStations)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	addr := util.NetJoin(s.cfg.BindAddr, s.cfg.BindPort)
	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("export server error", "error", err)
		}
	}()
	s.logger.Info("export server started", "addr", addr)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	client := &hubClient{send: make(chan []byte, 64)}
	s.hub.register(client)

	done := make(chan struct{})
	go func() {
		// Drain control frames; any read error tears the client down.
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() {
			s.hub.unregister(client)
			_ = conn.Close()
		}()
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case data, ok := <-client.send:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}()
}
