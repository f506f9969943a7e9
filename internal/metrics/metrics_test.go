package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func findFamily(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.registry == nil {
		t.Error("Registry is nil")
	}
	if m.RecordingStartsTotal == nil || m.RecordingStopsTotal == nil || m.RecordingActive == nil || m.RecordedSeconds == nil {
		t.Error("recording metrics not initialized")
	}
	if m.PipelineRunsTotal == nil || m.PipelineStageDuration == nil || m.PipelineTempFiles == nil {
		t.Error("pipeline metrics not initialized")
	}
	if m.GatewayRequestsTotal == nil || m.GatewayClients == nil {
		t.Error("gateway metrics not initialized")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordStart("ok")
	m.RecordPipelineRun("ok")

	handler := m.Handler()
	if handler == nil {
		t.Fatal("Handler returned nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	data, _ := io.ReadAll(resp.Body)
	body := string(data)
	for _, metric := range []string{"recording_starts_total", "recording_active", "pipeline_runs_total"} {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %s in output", metric)
		}
	}
}

func TestRecordingMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordStart("ok")
	mf := findFamily(t, m, "recording_active")
	if mf == nil || mf.Metric[0].GetGauge().GetValue() != 1 {
		t.Error("recording_active should be 1 after a successful start")
	}

	m.RecordStop(12.5)
	mf = findFamily(t, m, "recording_active")
	if mf == nil || mf.Metric[0].GetGauge().GetValue() != 0 {
		t.Error("recording_active should be 0 after stop")
	}

	mf = findFamily(t, m, "recorded_seconds")
	if mf == nil || mf.Metric[0].GetHistogram().GetSampleCount() != 1 {
		t.Error("recorded_seconds should have one sample")
	}

	m.RecordStart("ALREADY_RECORDING")
	mf = findFamily(t, m, "recording_starts_total")
	if mf == nil || len(mf.Metric) != 2 {
		t.Error("recording_starts_total should have one series per outcome")
	}
}

func TestPipelineMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordPipelineStage("trim", 20*time.Millisecond, true)
	m.RecordPipelineStage("concat", 5*time.Millisecond, false)
	m.RecordTempFilesRemoved(3)
	m.RecordTempFilesRemoved(0)

	mf := findFamily(t, m, "pipeline_stage_duration_seconds")
	if mf == nil || len(mf.Metric) != 2 {
		t.Error("pipeline_stage_duration_seconds should have two series")
	}

	mf = findFamily(t, m, "pipeline_temp_files_removed_total")
	if mf == nil || mf.Metric[0].GetCounter().GetValue() != 3 {
		t.Error("pipeline_temp_files_removed_total should be 3")
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics

	m.RecordStart("ok")
	m.RecordStop(1)
	m.RecordPipelineRun("ok")
	m.RecordPipelineStage("trim", time.Second, true)
	m.RecordTempFilesRemoved(1)
	m.RecordGatewayRequest("stopRecording", true)
	m.SetGatewayClients(2)
}

func TestMetricsIsolation(t *testing.T) {
	m1 := NewMetrics()
	m2 := NewMetrics()

	m1.RecordStop(1)
	m1.RecordStop(2)
	m2.RecordStop(3)

	if v := findFamily(t, m1, "recording_stops_total").Metric[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("m1: Expected value 2, got %f", v)
	}
	if v := findFamily(t, m2, "recording_stops_total").Metric[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("m2: Expected value 1, got %f", v)
	}
}
