package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
	"github.com/nerrad567/haunt-core/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	*httptest.Server
	mu      sync.Mutex
	lines   []string
	queries []string
	failing bool
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			defer f.mu.Unlock()
			f.queries = append(f.queries, r.URL.RawQuery)
			if f.failing {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":"invalid","message":"bad line"}`))
				return
			}
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeInflux) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "haunt-dev-token",
		Org:           "haunt",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: config.Duration(time.Hour), // tests flush explicitly
	}
}

func connect(t *testing.T, f *fakeInflux) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(testConfig(f.URL), "porch")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func findLine(lines []string, prefix string) string {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return l
		}
	}
	return ""
}

func TestConnect(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg, "")
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	f := newFakeInflux(t)
	url := f.URL
	f.Close()

	_, err := influxdb.Connect(testConfig(url), "")
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	cfg := testConfig(f.URL)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg, "")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()
}

func TestWriteSample(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	at := time.Unix(1700000000, 0)

	client.WriteSample("front", 42.5, true, at)
	client.WriteSample("front", 0, false, at.Add(time.Second))
	client.Flush()

	lines := f.Lines()
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %v", len(lines), lines)
	}
	for _, want := range []string{"haunt_sample,", "sensor=front", "site=porch"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("line = %q, missing %q", lines[0], want)
		}
	}
	if !strings.Contains(lines[0], "distance_cm=42.5") || !strings.Contains(lines[0], "valid=true") {
		t.Errorf("line = %q, want distance and valid fields", lines[0])
	}
	if strings.Contains(lines[1], "distance_cm") || !strings.Contains(lines[1], "valid=false") {
		t.Errorf("invalid sample line = %q, want valid=false without distance", lines[1])
	}

	f.mu.Lock()
	query := f.queries[0]
	f.mu.Unlock()
	if !strings.Contains(query, "bucket=telemetry") || !strings.Contains(query, "org=haunt") {
		t.Errorf("write query = %q, want org and bucket", query)
	}
}

func TestWriteDetectionAndRun(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	at := time.Unix(1700000000, 0)

	client.WriteDetection("triggered", 45, false, at)
	client.WriteRun("trigger", "partial", "run-1", 6, 1, 1, 12500*time.Millisecond, at)
	client.Flush()

	lines := f.Lines()
	det := findLine(lines, "haunt_detection,")
	if !strings.Contains(det, "state=triggered") || !strings.Contains(det, "fault=false") {
		t.Errorf("detection line = %q", det)
	}
	run := findLine(lines, "haunt_run,")
	for _, want := range []string{"sequence=trigger", "status=partial", `run_id="run-1"`, "executed=6i", "duration_ms=12500i"} {
		if !strings.Contains(run, want) {
			t.Errorf("run line = %q, missing %q", run, want)
		}
	}
}

func TestWriteErrorsReachCallback(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	f.setFailing(true)

	errCh := make(chan error, 4)
	client.SetOnError(func(err error) { errCh <- err })

	client.WritePointWithTime("custom", map[string]string{"k": "v"}, map[string]interface{}{"x": 1}, time.Now())
	client.Flush()

	select {
	case err := <-errCh:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no write error delivered")
	}
}

func TestClose(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(f.URL), "")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}

	// Writes after Close are dropped without panicking.
	client.WriteSample("front", 10, true, time.Now())
	client.Flush()
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}
