// Package status exposes the miner's live state over a single WebSocket
// endpoint that broadcasts to every connected client, scoped down from
// coopmine/dashboard's multi-tenant cluster dashboard to one miner's own
// status.
package status

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Snapshot is one point-in-time view of the miner's state, pushed to
// connected clients on every tick.
type Snapshot struct {
	Mining        bool    `json:"mining"`
	Height        uint32  `json:"height"`
	Hashrate      float64 `json:"hashrate"`
	HashCount     uint64  `json:"hash_count"`
	NetworkSolPS  float64 `json:"network_solps"`
	Difficulty    float64 `json:"difficulty"`
	WalletBalance float64 `json:"wallet_balance,omitempty"`
	Connected     bool    `json:"connected"`
	Timestamp     int64   `json:"timestamp"`
}

// Source supplies the fields a Snapshot is built from. The control loop
// implements this over its engine, RPC client, and config.
type Source interface {
	Snapshot() Snapshot
}

// Feed serves a single WebSocket endpoint that pushes a Snapshot every
// interval to every connected client, per spec.md's status/UI ambient
// concern.
type Feed struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]struct{}

	wg sync.WaitGroup
}

// NewFeed builds a Feed that polls source every interval.
func NewFeed(source Source, interval time.Duration, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Feed{
		source:   source,
		interval: interval,
		logger:   logger.With("component", "status-feed"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns the http.HandlerFunc to mount at the WebSocket path.
func (f *Feed) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			f.logger.Error("websocket upgrade failed", "error", err)
			return
		}

		f.clientsMu.Lock()
		f.clients[conn] = struct{}{}
		f.clientsMu.Unlock()
		f.logger.Info("status client connected", "remote", conn.RemoteAddr())

		if err := conn.WriteJSON(f.source.Snapshot()); err != nil {
			f.logger.Debug("initial snapshot write failed", "error", err)
		}

		go func() {
			defer func() {
				f.clientsMu.Lock()
				delete(f.clients, conn)
				f.clientsMu.Unlock()
				conn.Close()
				f.logger.Info("status client disconnected", "remote", conn.RemoteAddr())
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// Run pushes a fresh Snapshot to every connected client every interval
// until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	f.wg.Add(1)
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.broadcast(f.source.Snapshot())
		}
	}
}

func (f *Feed) broadcast(snap Snapshot) {
	f.clientsMu.RLock()
	defer f.clientsMu.RUnlock()
	for conn := range f.clients {
		if err := conn.WriteJSON(snap); err != nil {
			f.logger.Debug("status write failed", "error", err)
		}
	}
}

// ClientCount returns the number of currently connected clients.
func (f *Feed) ClientCount() int {
	f.clientsMu.RLock()
	defer f.clientsMu.RUnlock()
	return len(f.clients)
}
