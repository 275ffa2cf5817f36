package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/chat-moderator/internal/conversation"
	httpmiddleware "github.com/wolfman30/chat-moderator/internal/http/middleware"
	"github.com/wolfman30/chat-moderator/internal/moderation"
	"github.com/wolfman30/chat-moderator/internal/room"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

type cleanClassifier struct{}

func (cleanClassifier) Classify(context.Context, string, string) moderation.Verdict {
	return moderation.CleanVerdict()
}

func newTestRouter(t *testing.T, mutate func(*Config)) http.Handler {
	t.Helper()

	logger := logging.Default()
	registry := moderation.NewRegistry(cleanClassifier{}, moderation.DefaultMaxHistory)
	hub := room.NewHub(logger)
	svc := conversation.NewService(registry, conversation.WithBroadcaster(hub), conversation.WithLogger(logger))

	cfg := &Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(svc, nil, nil, "AI助手", logger),
		RoomHub:             hub,
		CORSAllowedOrigins:  []string{"*"},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg)
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterHealthDegraded(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.HealthCheck = func(context.Context) error { return errors.New("redis unreachable") }
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "redis unreachable") {
		t.Fatalf("expected error in body, got %s", rr.Body.String())
	}
}

func TestRouterChatEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	body, _ := json.Marshal(map[string]string{"user": "小明", "message": "大家好"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var resp conversation.ChatResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode chat response: %v", err)
	}
	if resp.Response != moderation.NeutralAcknowledgement || resp.IsAnomaly {
		t.Fatalf("unexpected chat response %#v", resp)
	}
}

func TestRouterChatMissingFields(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"user":"小明"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRouterChatRateLimited(t *testing.T) {
	limiter := httpmiddleware.NewRateLimiter(0.001, 1)
	defer limiter.Stop()
	router := newTestRouter(t, func(cfg *Config) { cfg.ChatLimiter = limiter })

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"user":"a","message":"b"}`))
		req.RemoteAddr = "192.0.2.10:4000"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}
	if code := send(); code != http.StatusOK {
		t.Fatalf("expected first chat to pass, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/chat/history", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("history must not be rate limited, got %d", rr.Code)
	}
}

func TestRouterMetricsAndPreflight(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "# metrics") {
		t.Fatalf("unexpected metrics response %d %q", rr.Code, rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rr.Code)
	}
}

func TestRouterArchiveDisabled(t *testing.T) {
	router := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/admin/archive", strings.NewReader(`{"conversation_id":"x"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
