package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-presence/internal/history"
	"github.com/nerrad567/gray-logic-presence/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-presence/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-presence/internal/presence"
	"github.com/nerrad567/gray-logic-presence/internal/router"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// fakeRouter serves a mutable host table.
type fakeRouter struct {
	mu       sync.Mutex
	hosts    []router.Host
	hostsErr error
}

func (f *fakeRouter) UniqueID(context.Context) (string, error) { return "SER1", nil }

func (f *fakeRouter) DeviceInfo(context.Context) (router.DeviceInfo, error) {
	return router.DeviceInfo{Name: "FRITZ!Box 7590", Manufacturer: "AVM", Model: "FRITZ!Box 7590", SoftwareVersion: "7.57"}, nil
}

func (f *fakeRouter) Hosts(context.Context) ([]router.Host, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hostsErr != nil {
		return nil, f.hostsErr
	}
	return append([]router.Host(nil), f.hosts...), nil
}

func (f *fakeRouter) set(hosts []router.Host, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts = hosts
	f.hostsErr = err
}

// fakeHistory returns canned entries and records the last query.
type fakeHistory struct {
	mu        sync.Mutex
	entries   []history.Entry
	err       error
	lastMAC   string
	lastLimit int
}

func (f *fakeHistory) GetHistory(_ context.Context, mac string, limit int) ([]history.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMAC, f.lastLimit = mac, limit
	return f.entries, f.err
}

func newTestEngine(t *testing.T, fr *fakeRouter) *presence.Engine {
	t.Helper()
	auth := func(context.Context, router.Config) (router.Client, error) { return fr, nil }
	return presence.New(context.Background(), auth, router.Config{}, presence.Options{})
}

func failedEngine(t *testing.T) *presence.Engine {
	t.Helper()
	auth := func(context.Context, router.Config) (router.Client, error) {
		return nil, fmt.Errorf("dial: %w", router.ErrConnection)
	}
	return presence.New(context.Background(), auth, router.Config{}, presence.Options{})
}

type serverOption func(*Deps)

func withSecret(d *Deps) { d.Security.JWT.Secret = testSecret }

func withHistory(h HistoryReader) serverOption {
	return func(d *Deps) { d.History = h }
}

// testServer wires a Server around engine and serves its router over httptest.
func testServer(t *testing.T, engine Engine, opts ...serverOption) (*Server, *httptest.Server) {
	t.Helper()

	deps := Deps{
		Config: config.APIConfig{Host: "127.0.0.1"},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:  logging.Discard(),
		Engine:  engine,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "presence_devices 1\n") }),
		Version: "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.hub.Run(ctx)
	srv.relayEngineEvents(ctx)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(func() {
		ts.Close()
		for _, unsub := range srv.unsub {
			unsub()
		}
		cancel()
	})
	return srv, ts
}

func do(t *testing.T, method, url, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
	}
	return resp, body
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   "dashboard",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Engine: newTestEngine(t, &fakeRouter{})}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without engine should fail")
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		engine func(*testing.T) *presence.Engine
		want   string
	}{
		{"healthy", func(t *testing.T) *presence.Engine { return newTestEngine(t, &fakeRouter{}) }, "ok"},
		{"setup failed", failedEngine, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := testServer(t, tt.engine(t), withSecret)

			// Health stays open when auth is on.
			resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/health", "")
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			if body["status"] != tt.want {
				t.Errorf("status field = %v, want %s", body["status"], tt.want)
			}
			if resp.Header.Get("X-Request-ID") == "" {
				t.Error("X-Request-ID header not set")
			}
		})
	}
}

func TestRouterInfo(t *testing.T) {
	_, ts := testServer(t, newTestEngine(t, &fakeRouter{}))

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/router", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["unique_id"] != "SER1" || body["short_model"] != "7590" {
		t.Errorf("body = %v", body)
	}
	status, _ := body["status"].(map[string]any)
	if status["ok"] != true {
		t.Errorf("status = %v, want ok", status)
	}

	_, ts = testServer(t, failedEngine(t))
	_, body = do(t, http.MethodGet, ts.URL+"/api/v1/router", "")
	status, _ = body["status"].(map[string]any)
	if status["kind"] != string(presence.KindConnection) || status["error"] == nil {
		t.Errorf("failed engine status = %v", status)
	}
}

func TestDevices(t *testing.T) {
	fr := &fakeRouter{hosts: []router.Host{
		{MAC: "AA:BB:CC:00:00:01", IP: "10.0.0.5", Name: "Phone", Active: true},
		{MAC: "AA:BB:CC:00:00:02", IP: "10.0.0.6", Name: "Laptop", Active: false},
	}}
	_, ts := testServer(t, newTestEngine(t, fr))

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantCount float64
	}{
		{"all", "", http.StatusOK, 2},
		{"connected", "?connected=true", http.StatusOK, 1},
		{"disconnected", "?connected=false", http.StatusOK, 1},
		{"bad filter", "?connected=maybe", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/devices"+tt.query, "")
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK && body["count"] != tt.wantCount {
				t.Errorf("count = %v, want %v", body["count"], tt.wantCount)
			}
		})
	}
}

func TestGetDevice(t *testing.T) {
	fr := &fakeRouter{hosts: []router.Host{{MAC: "AA:BB:CC:00:00:01", IP: "10.0.0.5", Active: true}}}
	_, ts := testServer(t, newTestEngine(t, fr))

	for _, mac := range []string{"AA:BB:CC:00:00:01", "aa_bb_cc_00_00_01", "aa-bb-cc-00-00-01"} {
		resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/devices/"+mac, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", mac, resp.StatusCode)
		}
		if body["name"] != "AA_BB_CC_00_00_01" || body["ip_address"] != "10.0.0.5" {
			t.Errorf("GET %s body = %v", mac, body)
		}
	}

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/devices/11:22:33:44:55:66", "")
	if resp.StatusCode != http.StatusNotFound || body["code"] != ErrCodeNotFound {
		t.Errorf("unknown device: status = %d body = %v", resp.StatusCode, body)
	}
}

func TestGetDevice_LowerCaseRouterMAC(t *testing.T) {
	fr := &fakeRouter{hosts: []router.Host{{MAC: "aa:bb:cc:00:00:02", IP: "10.0.0.6", Active: true}}}
	_, ts := testServer(t, newTestEngine(t, fr))

	resp, list := do(t, http.MethodGet, ts.URL+"/api/v1/devices", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	devices, _ := list["devices"].([]any)
	if len(devices) != 1 {
		t.Fatalf("devices = %v", list["devices"])
	}
	listed, _ := devices[0].(map[string]any)["mac"].(string)

	for _, mac := range []string{listed, "aa:bb:cc:00:00:02", "AA:BB:CC:00:00:02"} {
		resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/devices/"+mac, "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %q status = %d, want 200", mac, resp.StatusCode)
			continue
		}
		if body["ip_address"] != "10.0.0.6" {
			t.Errorf("GET %q body = %v", mac, body)
		}
	}
}

func TestDeviceHistory(t *testing.T) {
	engine := newTestEngine(t, &fakeRouter{})

	t.Run("disabled", func(t *testing.T) {
		_, ts := testServer(t, engine)
		resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/devices/AA:BB/history", "")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", resp.StatusCode)
		}
	})

	t.Run("entries", func(t *testing.T) {
		h := &fakeHistory{entries: []history.Entry{
			{ID: 2, MAC: "AA:BB", Event: history.EventDisconnected},
			{ID: 1, MAC: "AA:BB", Event: history.EventFirstSeen, Connected: true},
		}}
		_, ts := testServer(t, engine, withHistory(h))

		resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/devices/aa_bb/history?limit=10", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if body["count"] != float64(2) || body["mac"] != "AA:BB" {
			t.Errorf("body = %v", body)
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.lastMAC != "AA:BB" || h.lastLimit != 10 {
			t.Errorf("query = (%q, %d), want (AA:BB, 10)", h.lastMAC, h.lastLimit)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		_, ts := testServer(t, engine, withHistory(&fakeHistory{}))
		resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/devices/AA:BB/history?limit=0", "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("store error", func(t *testing.T) {
		_, ts := testServer(t, engine, withHistory(&fakeHistory{err: errors.New("disk I/O error")}))
		resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/devices/AA:BB/history", "")
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", resp.StatusCode)
		}
	})
}

func TestScan(t *testing.T) {
	fr := &fakeRouter{}
	engine := newTestEngine(t, fr)
	_, ts := testServer(t, engine)

	fr.set([]router.Host{{MAC: "AA:BB", IP: "10.0.0.5", Active: true}, {IP: "10.0.0.9"}}, nil)
	resp, body := do(t, http.MethodPost, ts.URL+"/api/v1/scan", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["new"] != float64(1) || body["skipped"] != float64(1) || body["connected"] != float64(1) {
		t.Errorf("body = %v", body)
	}
	if engine.Devices().Len() != 1 {
		t.Errorf("registry has %d devices, want 1", engine.Devices().Len())
	}

	fr.set(nil, fmt.Errorf("hosts: %w", router.ErrConnection))
	resp, body = do(t, http.MethodPost, ts.URL+"/api/v1/scan", "")
	if resp.StatusCode != http.StatusBadGateway || body["code"] != ErrCodeRouter {
		t.Errorf("router failure: status = %d body = %v", resp.StatusCode, body)
	}

	_, ts = testServer(t, failedEngine(t))
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/scan", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("failed engine: status = %d, want 503", resp.StatusCode)
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, ts := testServer(t, newTestEngine(t, &fakeRouter{}), withSecret)

	valid := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), time.Now().Add(time.Hour))

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"valid", valid, http.StatusOK},
		{"expired", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, []byte("another-secret-that-is-also-32-chars!"), time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"wrong algorithm", signToken(t, jwt.SigningMethodHS512, []byte(testSecret), time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/devices", tt.token)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	engine := newTestEngine(t, &fakeRouter{})
	_, ts := testServer(t, engine, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://dashboard.lan"}
	})

	tests := []struct {
		origin    string
		wantAllow string
	}{
		{"http://dashboard.lan", "http://dashboard.lan"},
		{"http://evil.example", ""},
	}

	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/devices", nil)
		req.Header.Set("Origin", tt.origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("preflight: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("preflight status = %d, want 204", resp.StatusCode)
		}
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
			t.Errorf("origin %s: allow = %q, want %q", tt.origin, got, tt.wantAllow)
		}
	}
}

func TestMetricsMounted(t *testing.T) {
	_, ts := testServer(t, newTestEngine(t, &fakeRouter{}), withSecret)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestNormalizeMAC(t *testing.T) {
	tests := map[string]string{
		"aa:bb:cc:dd:ee:ff": "AA:BB:CC:DD:EE:FF",
		"AA_BB_CC_DD_EE_FF": "AA:BB:CC:DD:EE:FF",
		"aa-bb-cc-dd-ee-ff": "AA:BB:CC:DD:EE:FF",
	}
	for in, want := range tests {
		if got := normalizeMAC(in); got != want {
			t.Errorf("normalizeMAC(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStartAndClose(t *testing.T) {
	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		WS:     config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger: logging.Discard(),
		Engine: newTestEngine(t, &fakeRouter{}),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestWebSocket_Events(t *testing.T) {
	fr := &fakeRouter{hosts: []router.Host{{MAC: "AA:BB", IP: "10.0.0.5", Active: true}}}
	engine := newTestEngine(t, fr)
	srv, ts := testServer(t, engine)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readEvent := func() WSMessage {
		t.Helper()
		//nolint:errcheck // test deadline
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("reading event: %v", err)
		}
		return msg
	}

	first := readEvent()
	if first.Type != WSTypeEvent || first.EventType != EventDeviceUpdated {
		t.Fatalf("first message = %+v, want device.updated snapshot", first)
	}

	// Wait until the hub knows the client before scanning.
	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	fr.set([]router.Host{{MAC: "AA:BB", IP: "10.0.0.5", Active: true}, {MAC: "CC:DD", IP: "10.0.0.6", Active: true}}, nil)
	engine.ScanNow(context.Background())

	seen := map[string]bool{}
	for len(seen) < 2 {
		msg := readEvent()
		seen[msg.EventType] = true
		if msg.EventType == EventDeviceNew {
			payload, _ := msg.Payload.(map[string]any)
			if payload["count"] != float64(2) {
				t.Errorf("device.new payload count = %v, want 2", payload["count"])
			}
		}
	}
	if !seen[EventDeviceUpdated] || !seen[EventDeviceNew] {
		t.Errorf("events seen = %v", seen)
	}
}

func TestWebSocket_Unsubscribe(t *testing.T) {
	_, ts := testServer(t, newTestEngine(t, &fakeRouter{}))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var snapshot WSMessage
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}

	req := WSMessage{Type: WSTypeUnsubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{EventDeviceNew}}}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("writing unsubscribe: %v", err)
	}

	var resp WSMessage
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "1" {
		t.Errorf("response = %+v", resp)
	}

	if err := conn.WriteJSON(WSMessage{Type: "bogus", ID: "2"}); err != nil {
		t.Fatalf("writing bogus: %v", err)
	}
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("reading error: %v", err)
	}
	if resp.Type != WSTypeError || resp.ID != "2" {
		t.Errorf("error response = %+v", resp)
	}
}

func TestWebSocket_TokenQuery(t *testing.T) {
	_, ts := testServer(t, newTestEngine(t, &fakeRouter{}), withSecret)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("dial without token should fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("dial without token: resp = %v", resp)
	}

	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), time.Now().Add(time.Hour))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	conn.Close()
}
