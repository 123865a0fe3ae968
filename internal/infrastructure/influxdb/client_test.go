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

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/config"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and collects line protocol written to
// /api/v2/write.
type fakeInflux struct {
	mu     sync.Mutex
	lines  []string
	query  string
	notify chan struct{}
}

func newFakeInflux(t *testing.T) (*fakeInflux, *httptest.Server) {
	t.Helper()
	f := &fakeInflux{notify: make(chan struct{}, 16)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.query = r.URL.RawQuery
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
			f.notify <- struct{}{}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeInflux) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-f.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("no write received")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "paddydryer-dev-token",
		Org:           "mill",
		Bucket:        "drying",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := influxdb.Connect(testConfig("http://127.0.0.1:1"))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_HealthCheck(t *testing.T) {
	_, srv := newFakeInflux(t)

	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.Close()
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
	client.Flush()
}

func TestWriteReadingAndBatch(t *testing.T) {
	fake, srv := newFakeInflux(t)

	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	at := time.Date(2025, 10, 29, 10, 0, 0, 0, time.UTC)
	temp := 48.5
	client.WriteReading(influxdb.ReadingSample{
		Dryer: 3, BatchCode: "D3-20251029-001", Moisture: 18.2, Temperature: &temp, TargetMoisture: 14.5, At: at,
	})
	final, hours := 14.4, 6.5
	client.WriteBatch(influxdb.BatchSummary{
		Dryer: 3, BatchCode: "D3-20251029-001", Status: "completed",
		InitialMoisture: 24, TargetMoisture: 14.5, FinalMoisture: &final, TotalHours: &hours, At: at,
	})
	client.Flush()

	lines := fake.wait(t)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "drying_reading,batch_code=D3-20251029-001,dryer=3 ") {
		t.Errorf("reading line missing:\n%s", joined)
	}
	if !strings.Contains(joined, "temperature=48.5") {
		t.Errorf("temperature field missing:\n%s", joined)
	}
	if !strings.Contains(joined, "status=completed") || !strings.Contains(joined, "total_hours=6.5") {
		t.Errorf("batch line missing:\n%s", joined)
	}

	fake.mu.Lock()
	query := fake.query
	fake.mu.Unlock()
	if !strings.Contains(query, "bucket=drying") || !strings.Contains(query, "org=mill") {
		t.Errorf("write query = %q", query)
	}
}

func TestReadingPoint(t *testing.T) {
	at := time.Date(2025, 10, 29, 10, 0, 0, 0, time.UTC)
	p := influxdb.ReadingPoint(influxdb.ReadingSample{Dryer: 1, BatchCode: "LOT-1", Moisture: 20, TargetMoisture: 14, At: at})

	if p.Name() != influxdb.MeasurementReading {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want reading time", p.Time())
	}
	if fieldNames(p) != "moisture,target_moisture" {
		t.Errorf("fields = %s, temperature must be omitted when unknown", fieldNames(p))
	}
}

func TestBatchPoint_Cancelled(t *testing.T) {
	p := influxdb.BatchPoint(influxdb.BatchSummary{Dryer: 2, BatchCode: "LOT-2", Status: "cancelled", InitialMoisture: 25, TargetMoisture: 14})

	if fieldNames(p) != "initial_moisture,target_moisture" {
		t.Errorf("fields = %s", fieldNames(p))
	}
	var status string
	for _, tag := range p.TagList() {
		if tag.Key == "status" {
			status = tag.Value
		}
	}
	if status != "cancelled" {
		t.Errorf("status tag = %q", status)
	}
}

func TestClose_Nil(t *testing.T) {
	var client influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
	client.WriteReading(influxdb.ReadingSample{})
}

func fieldNames(p *write.Point) string {
	names := make([]string, 0, len(p.FieldList()))
	for _, f := range p.FieldList() {
		names = append(names, f.Key)
	}
	return strings.Join(names, ",")
}
