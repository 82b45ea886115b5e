package ops

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"remindbot/pkg/logx"
)

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "remindbot_test_total", Help: "test"})
	c.Add(3)
	reg.MustRegister(c)
	return reg
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, string(body)
}

func TestHandlerServesMetricsAndHealth(t *testing.T) {
	t.Parallel()

	var unhealthy error
	s := New(Config{}, testRegistry(t), func() error { return unhealthy }, logx.Nop())
	h := s.Handler()

	code, body := get(t, h, "/metrics")
	if code != http.StatusOK || !strings.Contains(body, "remindbot_test_total 3") {
		t.Fatalf("metrics: %d %q", code, body)
	}
	if code, _ := get(t, h, "/healthz"); code != http.StatusOK {
		t.Fatalf("healthz=%d", code)
	}
	unhealthy = errors.New("store down")
	if code, body := get(t, h, "/healthz"); code != http.StatusServiceUnavailable || !strings.Contains(body, "store down") {
		t.Fatalf("healthz unhealthy: %d %q", code, body)
	}
	if code, _ := get(t, h, "/debug/pprof/"); code != http.StatusNotFound {
		t.Fatalf("pprof served while disabled: %d", code)
	}
}

func TestHandlerServesPprofWhenEnabled(t *testing.T) {
	t.Parallel()

	s := New(Config{Pprof: true}, testRegistry(t), nil, logx.Nop())
	if code, _ := get(t, s.Handler(), "/debug/pprof/cmdline"); code != http.StatusOK {
		t.Fatalf("pprof cmdline=%d", code)
	}
}

func TestStartServesAndStops(t *testing.T) {
	t.Parallel()

	s := New(Config{Addr: "127.0.0.1:0"}, testRegistry(t), nil, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatalf("listener did not come up")
		}
		time.Sleep(5 * time.Millisecond)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if _, err := http.Get("http://" + s.Addr() + "/healthz"); err == nil {
		t.Fatalf("listener still serving after Stop")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	for addr, want := range map[string]bool{
		"127.0.0.1:9090": true,
		"localhost:1":    true,
		"[::1]:9090":     true,
		":9090":          false,
		"0.0.0.0:9090":   false,
		"bad":            false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("%s: got %v", addr, got)
		}
	}
}
