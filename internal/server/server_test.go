package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jonathan/company-agent/internal/agent"
	"github.com/jonathan/company-agent/internal/chat"
	"github.com/jonathan/company-agent/internal/config"
	"github.com/jonathan/company-agent/internal/db"
	"github.com/jonathan/company-agent/internal/importer"
	"github.com/jonathan/company-agent/internal/llm"
	"github.com/jonathan/company-agent/internal/resolver"
	"github.com/jonathan/company-agent/internal/server/ratelimit"
)

// scriptedLLM routes every message to route and answers general
// questions with text.
type scriptedLLM struct {
	mu    sync.Mutex
	route string
	text  string
}

func (s *scriptedLLM) GenerateContent(context.Context, string, string, llm.ModelTier) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, nil
}

func (s *scriptedLLM) GenerateJSON(context.Context, string, string, llm.ModelTier) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return `{"datasource": "` + s.route + `"}`, nil
}

func (s *scriptedLLM) GetModel(llm.ModelTier) string { return "scripted" }

func (s *scriptedLLM) Close() error { return nil }

type testEnv struct {
	server *Server
	store  *db.SQLiteStore
	llm    *scriptedLLM
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	store, err := db.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	client := &scriptedLLM{route: string(agent.RouteGeneral), text: "general answer"}
	res := resolver.New(store, resolver.DefaultFuzzyThreshold)
	gen := agent.NewGenerator(client, store, res, logger, agent.Options{IncludeCatalog: true})
	a := agent.New(agent.NewRouter(client, logger), gen, logger)

	srv, err := New(Deps{
		Store:    store,
		Chat:     chat.NewService(a, store, logger),
		Importer: importer.New(store, logger),
		Logger:   logger,
	}, opts)
	require.NoError(t, err)
	t.Cleanup(srv.rateLimiter.Stop)

	return &testEnv{server: srv, store: store, llm: client}
}

func (e *testEnv) addCompany(t *testing.T, name, sector string) db.Company {
	t.Helper()
	c := db.Company{Name: name, Sector: sector, Description: name + " description", Financials: db.Financials{"revenue": "$1M"}}
	require.NoError(t, e.store.CreateCompany(context.Background(), &c))
	return c
}

// do sends a request through the full middleware chain.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
}

func TestNew_JWTRequiresPasswordSettings(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, err := New(Deps{
		Store:    env.store,
		Chat:     env.server.chat,
		Importer: env.server.importer,
	}, Options{JWT: &config.JWTConfig{Secret: "s", ExpirationHours: 1}})
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})

	w := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[map[string]string](t, w)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "ok", resp["database"])
}

func TestHealthEndpoint_StoreDown(t *testing.T) {
	env := newTestEnv(t, Options{})
	require.NoError(t, env.store.Close())

	w := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.do(t, http.MethodGet, "/health", nil)

	w := env.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "company_agent_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, Options{CORSOrigin: "https://app.example.com"})

	w := env.do(t, http.MethodOptions, "/chat/", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, Options{})

	w := env.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/chat/", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{RateLimit: &ratelimit.Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
		Rules:         []ratelimit.Rule{{Path: "/chat-history/", Method: "GET", Limit: 2, Window: time.Minute}},
	}})

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodGet, "/chat-history/", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := env.do(t, http.MethodGet, "/chat-history/", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	// health is never limited
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil).Code)
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	env := newTestEnv(t, Options{ShutdownTimeout: 2 * time.Second})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestParseQueryInt(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"valid value", "?limit=5", 5},
		{"missing value uses default", "", 20},
		{"value exceeds max", "?limit=200", 20},
		{"invalid value uses default", "?limit=abc", 20},
		{"negative value uses default", "?limit=-10", 20},
		{"zero uses default", "?limit=0", 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/chat-history/"+tt.query, nil)
			assert.Equal(t, tt.want, parseQueryInt(req, "limit", 20, 20))
		})
	}
}
