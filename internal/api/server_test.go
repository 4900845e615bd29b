package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/thereceipt/printcounter/internal/clock"
	"github.com/thereceipt/printcounter/internal/config"
	"github.com/thereceipt/printcounter/internal/controller"
	"github.com/thereceipt/printcounter/internal/history"
	"github.com/thereceipt/printcounter/internal/printer"
	"github.com/thereceipt/printcounter/internal/receipt"
)

type stubPrinter struct {
	err error
}

func (p *stubPrinter) Print(ctx context.Context, cfg config.Config, doc receipt.Document) error {
	return p.err
}

type stubDetector struct{}

func (stubDetector) IsPresent(ctx context.Context, cfg config.Config) (bool, error) {
	return true, nil
}

type stubHistory struct {
	limit int
}

func (h *stubHistory) List(ctx context.Context, limit int) ([]history.Entry, error) {
	h.limit = limit
	return []history.Entry{{ID: "a", Kind: "count", OrderNumber: 1, Status: history.StatusPrinted}}, nil
}

type testEnv struct {
	srv     *Server
	ctrl    *controller.Controller
	clock   *clock.Manual
	printer *stubPrinter
	history *stubHistory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:   clock.NewManual(time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)),
		printer: &stubPrinter{},
		history: &stubHistory{},
	}

	ctrl, err := controller.New(controller.Options{
		Printer:  env.printer,
		Detector: stubDetector{},
		Store:    config.NewStore(filepath.Join(t.TempDir(), "printer_config.json"), nil),
		Clock:    env.clock,
	})
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	t.Cleanup(ctrl.Close)

	env.ctrl = ctrl
	env.srv = NewServer(ctrl, env.history, nil)
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w, out := env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || out["status"] != "ok" {
		t.Fatalf("Unexpected response %d %v", w.Code, out)
	}
}

func TestCountRoutes(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 2; i++ {
		if w, _ := env.do(t, http.MethodPost, "/count/increment", nil); w.Code != http.StatusOK {
			t.Fatalf("increment returned %d", w.Code)
		}
	}

	w, out := env.do(t, http.MethodGet, "/state", nil)
	if w.Code != http.StatusOK || out["count"] != float64(2) || out["mode"] != "manual_ready" {
		t.Fatalf("Unexpected state %v", out)
	}

	_, out = env.do(t, http.MethodPost, "/count/reset", nil)
	if out["count"] != float64(0) {
		t.Errorf("Expected count 0, got %v", out["count"])
	}
}

func TestPrintRoute(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodPost, "/print", nil)
	if w.Code != http.StatusOK || out["last_order_number"] != float64(1) {
		t.Fatalf("Unexpected response %d %v", w.Code, out)
	}

	env.printer.err = printer.ErrDeviceNotFound
	w, out = env.do(t, http.MethodPost, "/print", nil)
	if w.Code != http.StatusBadGateway || out["kind"] != string(controller.KindDeviceNotFound) {
		t.Fatalf("Unexpected response %d %v", w.Code, out)
	}

	w, _ = env.do(t, http.MethodPost, "/print/test", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 for test print, got %d", w.Code)
	}
}

func TestAutoRoutes(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodPost, "/auto/start", map[string]interface{}{"max_count": 3, "interval": 0.1})
	if w.Code != http.StatusOK || out["mode"] != "auto_running" {
		t.Fatalf("Unexpected response %d %v", w.Code, out)
	}

	w, out = env.do(t, http.MethodPost, "/print", nil)
	if w.Code != http.StatusConflict || out["kind"] != string(controller.KindInvalidOperation) {
		t.Errorf("Expected 409 while auto running, got %d %v", w.Code, out)
	}

	env.clock.Advance(300 * time.Millisecond)
	snap := env.ctrl.Snapshot()
	if snap.Mode != controller.ModeManualReady || snap.Count != 3 || snap.LastOrderNumber != 1 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}

	w, _ = env.do(t, http.MethodPost, "/auto/stop", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 stopping idle loop, got %d", w.Code)
	}

	w, _ = env.do(t, http.MethodPost, "/auto/start", map[string]interface{}{"max_count": 0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero max count, got %d", w.Code)
	}

	// Empty body uses saved defaults
	w, out = env.do(t, http.MethodPost, "/auto/start", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	progress := out["auto_progress"].(map[string]interface{})
	if progress["max"] != float64(config.DefaultAutoMaxCount) {
		t.Errorf("Expected default max, got %v", progress["max"])
	}
	if w, _ := env.do(t, http.MethodPost, "/auto/stop", nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestSettingsRoutes(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodGet, "/settings", nil)
	if w.Code != http.StatusOK || out["vendor_id"] != "0x0fe6" {
		t.Fatalf("Unexpected response %d %v", w.Code, out)
	}

	w, out = env.do(t, http.MethodPut, "/settings", map[string]interface{}{"auto_interval": 2.5, "product_id": "0E15"})
	if w.Code != http.StatusOK || out["auto_interval"] != 2.5 || out["product_id"] != "0x0e15" {
		t.Fatalf("Unexpected response %d %v", w.Code, out)
	}
	if out["vendor_id"] != "0x0fe6" {
		t.Errorf("Expected untouched vendor id, got %v", out["vendor_id"])
	}

	w, _ = env.do(t, http.MethodPut, "/settings", map[string]interface{}{"auto_interval": -1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
	if got := env.ctrl.Config().AutoInterval; got != 2.5 {
		t.Errorf("Expected interval kept at 2.5, got %v", got)
	}
}

func TestOrdersAndHistoryRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/print", nil)

	w, out := env.do(t, http.MethodPost, "/orders/clear", nil)
	if w.Code != http.StatusOK || out["last_order_number"] != float64(0) {
		t.Fatalf("Unexpected response %d %v", w.Code, out)
	}

	w, out = env.do(t, http.MethodGet, "/history?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if entries := out["entries"].([]interface{}); len(entries) != 1 {
		t.Errorf("Expected one entry, got %v", entries)
	}
	if env.history.limit != 5 {
		t.Errorf("Expected limit 5, got %d", env.history.limit)
	}

	w, _ = env.do(t, http.MethodGet, "/history?limit=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestCommandRoute(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodPost, "/command", map[string]string{"command": "inc"})
	if w.Code != http.StatusOK || out["success"] != true || out["count"] != float64(1) {
		t.Fatalf("Unexpected response %d %v", w.Code, out)
	}

	w, _ = env.do(t, http.MethodPost, "/command", map[string]string{"command": "bogus"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}

	w, _ = env.do(t, http.MethodPost, "/command", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}

	env.do(t, http.MethodPost, "/command", map[string]string{"command": "auto start 5 1"})
	w, out = env.do(t, http.MethodPost, "/command", map[string]string{"command": "reset"})
	if w.Code != http.StatusConflict || out["kind"] != string(controller.KindInvalidOperation) {
		t.Errorf("Expected 409, got %d %v", w.Code, out)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.do(t, http.MethodOptions, "/print", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
}

func TestStatusForKind(t *testing.T) {
	tests := map[controller.ErrorKind]int{
		controller.KindInvalidConfig:      http.StatusBadRequest,
		controller.KindInvalidOperation:   http.StatusConflict,
		controller.KindDeviceNotFound:     http.StatusBadGateway,
		controller.KindPermissionDenied:   http.StatusBadGateway,
		controller.KindDeviceBusy:         http.StatusBadGateway,
		controller.KindTransmissionError:  http.StatusBadGateway,
		controller.KindMonitorUnavailable: http.StatusServiceUnavailable,
		controller.KindUnknown:            http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := statusForKind(kind); got != want {
			t.Errorf("statusForKind(%s) = %d, want %d", kind, got, want)
		}
	}
}

// slowConn takes a while to accept a receipt and gives up if ctx ends first
type slowConn struct {
	delay time.Duration
}

func (c slowConn) Write(ctx context.Context, data []byte) (int, error) {
	select {
	case <-time.After(c.delay):
		return len(data), nil
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %v", printer.ErrTransmission, ctx.Err())
	}
}

func (slowConn) Close() error { return nil }

func TestPrint_ClientDisconnectDoesNotAbortTransfer(t *testing.T) {
	dial := func(ctx context.Context, cfg config.Config) (printer.Connection, error) {
		return slowConn{delay: 100 * time.Millisecond}, nil
	}
	ctrl, err := controller.New(controller.Options{
		Printer:  printer.NewGatewayWithDialer(dial, 5*time.Second, nil),
		Detector: stubDetector{},
		Store:    config.NewStore(filepath.Join(t.TempDir(), "printer_config.json"), nil),
	})
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	t.Cleanup(ctrl.Close)
	srv := NewServer(ctrl, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/print", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	snap := ctrl.Snapshot()
	if snap.LastError != controller.KindNone || snap.LastOrderNumber != 1 {
		t.Errorf("Expected a complete print, got %+v", snap)
	}
}
