package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smash64-online/netcheck/internal/checker"
	"github.com/smash64-online/netcheck/internal/config"
	"github.com/smash64-online/netcheck/internal/events"
	"github.com/smash64-online/netcheck/internal/metrics"
	"github.com/smash64-online/netcheck/internal/scheduler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type runCall struct {
	kind events.CheckKind
	req  checker.Request
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  []runCall
	result checker.Result
}

func (f *fakeRunner) Run(_ context.Context, kind events.CheckKind, req checker.Request) checker.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runCall{kind: kind, req: req})
	return f.result
}

func (f *fakeRunner) last(t *testing.T) runCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type fakeMonitor []scheduler.TargetStatus

func (f fakeMonitor) Status() []scheduler.TargetStatus { return f }

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Port:        0,
		ProxyHeader: "cf-connecting-ip",
	}
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) checker.Result {
	t.Helper()
	var res checker.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestCheckRoutesDispatch(t *testing.T) {
	runner := &fakeRunner{result: checker.Result{Success: true, Message: "12ms", Status: http.StatusOK}}
	h := NewServer(testAPIConfig(), runner, nil).Handler()

	tests := []struct {
		path string
		kind events.CheckKind
	}{
		{"/server-check", events.CheckServer},
		{"/connection-check", events.CheckConnection},
		{"/join-check", events.CheckJoin},
		{"/p2p-check", events.CheckP2P},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.path, `{"host":"lobby.example","port":27888,"via":"web"}`, nil)
			require.Equal(t, http.StatusOK, w.Code)

			res := decodeResult(t, w)
			assert.True(t, res.Success)
			assert.Equal(t, "12ms", res.Message)

			call := runner.last(t)
			assert.Equal(t, tt.kind, call.kind)
			assert.Equal(t, "lobby.example", call.req.Host)
			assert.Equal(t, 27888, call.req.Port)
			assert.Equal(t, "web", call.req.Via)
		})
	}
}

func TestCheckRouteStatusFromResult(t *testing.T) {
	runner := &fakeRunner{result: checker.Result{Message: checker.MsgUnableToConnect, Status: http.StatusBadRequest}}
	h := NewServer(testAPIConfig(), runner, nil).Handler()

	w := do(t, h, http.MethodPost, "/server-check", `{"host":"lobby.example","port":27888}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, checker.MsgUnableToConnect, decodeResult(t, w).Message)
}

func TestCheckRoutePortAsString(t *testing.T) {
	runner := &fakeRunner{result: checker.Result{Status: http.StatusOK}}
	h := NewServer(testAPIConfig(), runner, nil).Handler()

	w := do(t, h, http.MethodPost, "/server-check", `{"host":"lobby.example","port":"27888"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 27888, runner.last(t).req.Port)
}

func TestCheckRouteMalformed(t *testing.T) {
	runner := &fakeRunner{}
	h := NewServer(testAPIConfig(), runner, nil).Handler()

	for _, body := range []string{`not json`, `{"host":"x","port":"abc"}`, `{"host":"x","port":[1]}`} {
		w := do(t, h, http.MethodPost, "/server-check", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, checker.MsgInvalidParameters, decodeResult(t, w).Message)
	}
	assert.Empty(t, runner.calls)
}

func TestP2PCheckCallerFromProxyHeader(t *testing.T) {
	runner := &fakeRunner{result: checker.Result{Status: http.StatusOK}}
	h := NewServer(testAPIConfig(), runner, nil).Handler()

	w := do(t, h, http.MethodPost, "/p2p-check", `{"host":"self"}`, map[string]string{
		"CF-Connecting-IP": "203.0.113.7",
	})
	require.Equal(t, http.StatusOK, w.Code)

	call := runner.last(t)
	assert.Equal(t, checker.SelfHost, call.req.Host)
	assert.Zero(t, call.req.Port)
	assert.Equal(t, "203.0.113.7", call.req.From)
}

func TestP2PCheckCallerFallsBackToClientIP(t *testing.T) {
	runner := &fakeRunner{result: checker.Result{Status: http.StatusOK}}
	h := NewServer(testAPIConfig(), runner, nil).Handler()

	do(t, h, http.MethodPost, "/p2p-check", `{"host":"self"}`, nil)
	// httptest requests originate from 192.0.2.1
	assert.Equal(t, "192.0.2.1", runner.last(t).req.From)
}

func TestGetIP(t *testing.T) {
	h := NewServer(testAPIConfig(), &fakeRunner{}, nil).Handler()

	w := do(t, h, http.MethodGet, "/get-ip", "", map[string]string{"cf-connecting-ip": "198.51.100.4"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "198.51.100.4", w.Body.String())

	w = do(t, h, http.MethodGet, "/get-ip", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, MsgNoIP, w.Body.String())
}

func TestGetIPWithoutHeaderConfigured(t *testing.T) {
	cfg := testAPIConfig()
	cfg.ProxyHeader = ""
	h := NewServer(cfg, &fakeRunner{}, nil).Handler()

	w := do(t, h, http.MethodGet, "/get-ip", "", map[string]string{"cf-connecting-ip": "198.51.100.4"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MsgNoIP, w.Body.String())
}

func TestPublicPing(t *testing.T) {
	h := NewServer(testAPIConfig(), &fakeRunner{}, nil).Handler()

	w := do(t, h, http.MethodGet, "/api/public/ping", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "netcheck", w.Header().Get("Server"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "system")
}

func TestMonitorRoute(t *testing.T) {
	s := NewServer(testAPIConfig(), &fakeRunner{}, nil)
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/api/public/monitor", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"enabled":false,"targets":[]}`, w.Body.String())

	s.SetMonitor(fakeMonitor{{
		Target:    config.MonitorTarget{Name: "lobby", Host: "lobby.example", Port: 27888, Kind: "server"},
		Result:    checker.Result{Success: true, Message: "20ms"},
		CheckedAt: time.Unix(0, 0).UTC(),
	}})

	w = do(t, h, http.MethodGet, "/api/public/monitor", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Enabled bool                     `json:"enabled"`
		Targets []scheduler.TargetStatus `json:"targets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Enabled)
	require.Len(t, body.Targets, 1)
	assert.Equal(t, "20ms", body.Targets[0].Result.Message)
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	collector.Observe(events.CheckCompletedPayload{
		Kind:     events.CheckServer,
		Host:     "lobby.example",
		Port:     27888,
		Success:  true,
		Duration: 40 * time.Millisecond,
	})

	h := NewServer(testAPIConfig(), &fakeRunner{}, reg).Handler()
	w := do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "netcheck_checks_total")
}

func TestMetricsRouteDisabled(t *testing.T) {
	h := NewServer(testAPIConfig(), &fakeRunner{}, nil).Handler()
	w := do(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := NewServer(testAPIConfig(), &fakeRunner{}, nil).Handler()

	w := do(t, h, http.MethodOptions, "/server-check", "", map[string]string{
		"Origin":                        "https://smash64.online",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRateLimiter(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimitRPS = 1
	h := NewServer(cfg, &fakeRunner{}, nil).Handler()

	for i := 0; i < 2; i++ {
		w := do(t, h, http.MethodGet, "/get-ip", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := do(t, h, http.MethodGet, "/get-ip", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimiterIgnoresForwardedFor(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimitRPS = 1
	h := NewServer(cfg, &fakeRunner{}, nil).Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := do(t, h, http.MethodGet, "/get-ip", "", map[string]string{
			"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i+1),
		})
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiterKeysOnProxyHeader(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimitRPS = 1
	h := NewServer(cfg, &fakeRunner{}, nil).Handler()

	for i := 0; i < 2; i++ {
		w := do(t, h, http.MethodGet, "/get-ip", "", map[string]string{"cf-connecting-ip": "203.0.113.9"})
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := do(t, h, http.MethodGet, "/get-ip", "", map[string]string{"cf-connecting-ip": "203.0.113.9"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = do(t, h, http.MethodGet, "/get-ip", "", map[string]string{"cf-connecting-ip": "203.0.113.10"})
	assert.Equal(t, http.StatusOK, w.Code, "another caller behind the same proxy has its own bucket")
}

func TestTrustedProxyForwardedFor(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		want    string
	}{
		{"no trusted proxies", nil, "192.0.2.1"},
		{"trusted remote", []string{"192.0.2.0/24"}, "198.51.100.23"},
		{"untrusted remote", []string{"10.0.0.0/8"}, "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{result: checker.Result{Status: http.StatusOK}}
			cfg := testAPIConfig()
			cfg.ProxyHeader = ""
			cfg.TrustedProxies = tt.trusted
			h := NewServer(cfg, runner, nil).Handler()

			do(t, h, http.MethodPost, "/p2p-check", `{"host":"self"}`, map[string]string{
				"X-Forwarded-For": "198.51.100.23",
			})
			assert.Equal(t, tt.want, runner.last(t).req.From)
		})
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(2)
	now := time.Now()

	for i := 0; i < 4; i++ {
		require.True(t, rl.allow("10.0.0.1", now))
	}
	assert.False(t, rl.allow("10.0.0.1", now))
	assert.True(t, rl.allow("10.0.0.2", now), "buckets are per client")
	assert.True(t, rl.allow("10.0.0.1", now.Add(time.Second)))
}

func TestNoRoute(t *testing.T) {
	h := NewServer(testAPIConfig(), &fakeRunner{}, nil).Handler()
	w := do(t, h, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimiterSweepsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Now()

	rl.allow("10.0.0.1", now)
	rl.allow("10.0.0.2", now.Add(bucketIdle+time.Second))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.buckets, "10.0.0.1")
	assert.Contains(t, rl.buckets, "10.0.0.2")
}
