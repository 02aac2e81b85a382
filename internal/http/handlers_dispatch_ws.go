package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/target/mailrelay/internal/domain/model"
)

const (
	streamSubscriberBuffer = 128
	streamWriteTimeout     = 10 * time.Second
	streamPingInterval     = 30 * time.Second
)

// StreamActionState is the action of the snapshot frame sent when a listener connects.
const StreamActionState = "state"

// StreamActionPing keeps idle connections alive through proxies.
const StreamActionPing = "ping"

// StreamFrame is one message on the dispatch event stream.
type StreamFrame struct {
	Action string               `json:"action"`
	Log    *model.LogEntry      `json:"log,omitempty"`
	Stats  *model.Stats         `json:"stats,omitempty"`
	State  *model.DispatchState `json:"state,omitempty"`
}

// EventStream serves GET /api/dispatch/ws. A listener receives the current state first and then
// every dispatch event until it disconnects or the service shuts down. Slow listeners miss
// events rather than stall the dispatcher.
func (h *DispatchHandlers) EventStream(origins *OriginPolicy) http.Handler {
	return websocket.Server{
		Handshake: func(cfg *websocket.Config, r *http.Request) error {
			origin := r.Header.Get("Origin")
			if origin != "" && !origins.Allowed(origin) {
				return fmt.Errorf("origin %q not allowed", origin)
			}
			if u, err := websocket.Origin(cfg, r); err == nil {
				cfg.Origin = u
			}
			return nil
		},
		Handler: h.serveStream,
	}
}

func (h *DispatchHandlers) serveStream(ws *websocket.Conn) {
	ctx, cancel := context.WithCancel(ws.Request().Context())
	defer cancel()
	defer func() { _ = ws.Close() }()

	unsubscribe, events := h.Svc.Events().Subscribe(streamSubscriberBuffer)
	defer unsubscribe()

	log := h.logger().With("remote", ws.Request().RemoteAddr)
	log.DebugContext(ctx, "dispatch stream listener connected")

	// The read side only detects the client going away; inbound frames are ignored.
	go func() {
		defer cancel()
		var discard string
		for {
			if err := websocket.Message.Receive(ws, &discard); err != nil {
				return
			}
		}
	}()

	if err := sendFrame(ws, StreamFrame{Action: StreamActionState, State: h.Svc.State(ctx)}); err != nil {
		log.DebugContext(ctx, "dispatch stream snapshot failed", "error", err)
		return
	}

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.DebugContext(ctx, "dispatch stream listener disconnected")
			return
		case <-ping.C:
			if err := sendFrame(ws, StreamFrame{Action: StreamActionPing}); err != nil {
				return
			}
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := sendFrame(ws, frameFromEvent(evt)); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.DebugContext(ctx, "dispatch stream write failed", "error", err)
				}
				return
			}
		}
	}
}

func frameFromEvent(evt model.DispatchEvent) StreamFrame {
	stats := evt.Stats
	return StreamFrame{Action: string(evt.Type), Log: evt.Log, Stats: &stats}
}

func sendFrame(ws *websocket.Conn, frame StreamFrame) error {
	if err := ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	return websocket.JSON.Send(ws, frame)
}
