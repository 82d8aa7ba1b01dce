package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/duochat/duochat-server/internal/auth"
	"github.com/duochat/duochat-server/internal/cache"
	"github.com/duochat/duochat-server/internal/config"
	"github.com/duochat/duochat-server/internal/core"
	"github.com/duochat/duochat-server/internal/log"
	"github.com/duochat/duochat-server/internal/proto"
	"github.com/duochat/duochat-server/internal/store/sqlite"
)

// testServer hosts the full HTTP surface against an in-memory store and an
// in-process cache.
type testServer struct {
	ts *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.TypingWindow = 50 * time.Millisecond
	cfg.HeartbeatInterval = time.Hour

	mem := cache.NewMemory()
	logger := log.Nop()

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	}
	authService := auth.NewService(st, jwtCfg)

	gate := core.NewGate(jwtCfg, st, mem, cfg.PrincipalCacheTTL, logger)
	registry := core.NewRegistry()
	router := core.NewRouter(registry, st, mem, logger, core.Options{
		TypingWindow:      cfg.TypingWindow,
		HistoryLimit:      cfg.HistoryLimit,
		PresenceThreshold: cfg.PresenceThreshold,
	})

	srv := NewServer(gate, registry, router, authService, st, mem, &cfg, logger)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts}
}

// postJSON issues a JSON POST, optionally authenticated.
func (s *testServer) postJSON(t *testing.T, path, token string, body any) *stdhttp.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := stdhttp.NewRequest(stdhttp.MethodPost, s.ts.URL+path, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (s *testServer) get(t *testing.T, path, token string) *stdhttp.Response {
	t.Helper()
	req, err := stdhttp.NewRequest(stdhttp.MethodGet, s.ts.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *stdhttp.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// register creates a user through the REST surface and returns its auth
// response.
func (s *testServer) register(t *testing.T, email, username string) AuthResponse {
	t.Helper()
	resp := s.postJSON(t, "/api/auth/register", "", RegisterRequest{
		Email:    email,
		Username: username,
		Password: "secret123",
	})
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("register %s: status %d", username, resp.StatusCode)
	}
	return decodeJSON[AuthResponse](t, resp)
}

// createChat pairs the token's owner with the named user.
func (s *testServer) createChat(t *testing.T, token, secondUser string) ChatResponse {
	t.Helper()
	resp := s.postJSON(t, "/api/chats", token, CreateChatRequest{SecondUser: secondUser})
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("create chat with %s: status %d", secondUser, resp.StatusCode)
	}
	return decodeJSON[ChatResponse](t, resp)
}

// wsURL builds the WebSocket endpoint URL with the credential parameter.
func (s *testServer) wsURL(token string) string {
	u := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

// dial opens a WebSocket connection. The caller reads frames with readEnvelope.
func (s *testServer) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, s.wsURL(token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// readEnvelope reads one frame and decodes the envelope with a raw payload.
func readEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.Inbound {
	t.Helper()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var in proto.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	return in
}

func decodePayload[T any](t *testing.T, in proto.Inbound) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(in.Payload, &v); err != nil {
		t.Fatalf("decode %s payload: %v", in.Type, err)
	}
	return v
}

// expectClose reads until the peer closes and asserts the close code.
func expectClose(t *testing.T, ctx context.Context, conn *websocket.Conn, want websocket.StatusCode) {
	t.Helper()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if got := websocket.CloseStatus(err); got != want {
				t.Fatalf("close status = %d (%v), want %d", got, err, want)
			}
			return
		}
	}
}
