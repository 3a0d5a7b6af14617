package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/gray-logic-presence/internal/presence"
)

func TestObserveScan(t *testing.T) {
	m := New()

	m.ObserveScan("SER1", presence.ScanResult{Devices: 3, Connected: 2, Duration: 200 * time.Millisecond})
	m.ObserveScan("SER1", presence.ScanResult{Devices: 3, Connected: 2, Err: errors.New("timeout")})
	m.ObserveScan("SER1", presence.ScanResult{Disabled: true})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"ok scans", testutil.ToFloat64(m.scans.WithLabelValues("SER1", resultOK)), 1},
		{"failed scans", testutil.ToFloat64(m.scans.WithLabelValues("SER1", resultError)), 1},
		{"devices", testutil.ToFloat64(m.devices.WithLabelValues("SER1")), 3},
		{"connected", testutil.ToFloat64(m.connected.WithLabelValues("SER1")), 2},
		{"router down after failure", testutil.ToFloat64(m.routerUp.WithLabelValues("SER1")), 0},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(m.scanDuration); n != 1 {
		t.Errorf("scan duration series = %d, want 1", n)
	}
}

func TestSetRouterUp(t *testing.T) {
	m := New()

	m.SetRouterUp("SER1", true)
	if got := testutil.ToFloat64(m.routerUp.WithLabelValues("SER1")); got != 1 {
		t.Errorf("router_up = %v, want 1", got)
	}
	m.SetRouterUp("SER1", false)
	if got := testutil.ToFloat64(m.routerUp.WithLabelValues("SER1")); got != 0 {
		t.Errorf("router_up = %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveScan("SER1", presence.ScanResult{Devices: 1, Connected: 1})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body) //nolint:errcheck // recorder body
	for _, want := range []string{
		`presence_scans_total{result="ok",router="SER1"} 1`,
		`presence_devices{router="SER1"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
