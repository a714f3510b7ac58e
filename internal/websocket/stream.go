// Package websocket streams crawl task events over WebSocket connections.
package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

// EventSource hands out live event subscriptions. *crawler.Manager
// implements it.
type EventSource interface {
	Subscribe(taskID string) (<-chan crawler.Event, func(), error)
}

// Config tunes a Streamer.
type Config struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	// PongTimeout is how long the peer may stay silent before the stream
	// is dropped. It must exceed PingInterval.
	PongTimeout time.Duration
}

// DefaultConfig returns the streamer defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
	}
}

// Streamer upgrades HTTP requests and forwards the events of one task as
// JSON text frames until the task finishes or the peer goes away.
type Streamer struct {
	source   EventSource
	cfg      Config
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewStreamer creates a streamer over source.
func NewStreamer(source EventSource, cfg Config, log *logger.Logger) *Streamer {
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		cfg.PongTimeout = 2 * cfg.PingInterval
	}
	if log == nil {
		log = logger.Global()
	}
	return &Streamer{
		source: source,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		log: log.WithComponent("websocket"),
	}
}

// Serve streams the events of taskID to the client of r. The subscription
// is made before the upgrade, so an unknown task is returned as an error
// and no response has been written yet. Once upgraded, Serve returns nil
// and connection errors are only logged.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, taskID string) error {
	events, unsubscribe, err := s.source.Subscribe(taskID)
	if err != nil {
		return err
	}
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.log.Event(logger.DebugLevel).Err(err).Str("task", taskID).Msg("WebSocket upgrade failed")
		return nil
	}
	defer conn.Close()

	s.log.Event(logger.DebugLevel).Str("task", taskID).Str("remote", r.RemoteAddr).Msg("Event stream opened")
	sent := s.pump(conn, events)
	s.log.Event(logger.DebugLevel).Str("task", taskID).Int("events", sent).Msg("Event stream closed")
	return nil
}

// pump writes events to conn and returns how many were sent.
func (s *Streamer) pump(conn *websocket.Conn, events <-chan crawler.Event) int {
	gone := make(chan struct{})
	go s.drain(conn, gone)

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	sent := 0
	for {
		select {
		case ev, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "task finished")
				conn.WriteMessage(websocket.CloseMessage, msg)
				return sent
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Event(logger.DebugLevel).Err(err).Msg("Event write failed")
				return sent
			}
			sent++

		case <-ping.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return sent
			}

		case <-gone:
			return sent
		}
	}
}

// drain reads and discards client frames so control frames are processed,
// closing gone when the peer disconnects or stops answering pings.
func (s *Streamer) drain(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
