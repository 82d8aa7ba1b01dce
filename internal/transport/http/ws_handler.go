package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/duochat/duochat-server/internal/core"
	"github.com/duochat/duochat-server/internal/proto"
)

// WSHandler upgrades HTTP connections, authenticates them through the gate,
// and bridges them to the core engine: one read loop feeding the router,
// one write loop draining the client's events, one heartbeat loop probing
// liveness.
type WSHandler struct {
	gate      *core.Gate
	registry  *core.Registry
	router    *core.Router
	heartbeat time.Duration
	log       *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(gate *core.Gate, registry *core.Registry, router *core.Router, heartbeat time.Duration, logger *zerolog.Logger) stdhttp.Handler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &WSHandler{
		gate:      gate,
		registry:  registry,
		router:    router,
		heartbeat: heartbeat,
		log:       logger,
	}
}

// closeError carries an application close code out of the write loop.
type closeError struct {
	code   int
	reason string
}

func (e *closeError) Error() string {
	return fmt.Sprintf("close requested: %d %s", e.code, e.reason)
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	principal, gateErr := h.gate.Authenticate(ctx, r.URL.Query().Get("token"))
	if gateErr != nil {
		h.log.Info().Str("reason", gateErr.Reason).Msg("ws connection rejected")
		conn.Close(websocket.StatusCode(gateErr.CloseCode), gateErr.Reason)
		return
	}

	client := core.NewClient(principal)
	if prev := h.registry.Register(client); prev != nil {
		prev.Hangup(proto.CloseSuperseded)
	}
	defer func() {
		client.Shutdown()
		h.router.Disconnect(client)
	}()

	h.log.Info().Str("user_id", principal.ID).Msg("user connected")

	// Queued first so it precedes any handler output.
	client.Send(proto.Outbound{
		Type:    proto.TypeConnection,
		Payload: proto.ConnectionStatus{Status: "connected", UserID: principal.ID},
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.pingLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutines
	<-errCh
	<-errCh

	h.log.Info().Str("user_id", principal.ID).Msg("user disconnected")

	var ce *closeError
	if errors.As(err, &ce) {
		conn.Close(websocket.StatusCode(ce.code), ce.reason)
		return
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		h.router.Dispatch(ctx, client, data)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, event); err != nil {
				h.log.Error().Err(err).Str("user_id", client.ID).Msg("write ws event")
				return err
			}
		case code := <-client.HangupRequests():
			return &closeError{code: code, reason: hangupReason(code)}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pingLoop probes liveness on a fixed interval. It carries no payload; a
// failed probe tears the connection down so the registry can be pruned.
func (h *WSHandler) pingLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return err
			}
			client.MarkPing()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func hangupReason(code int) string {
	switch code {
	case proto.CloseSuperseded:
		return "superseded by new connection"
	default:
		return "closing"
	}
}
