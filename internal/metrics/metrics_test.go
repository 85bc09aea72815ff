package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != want {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordHTTPStatus_CountsByCode はステータスコード別に集計されることを検証する。
func TestRecordHTTPStatus_CountsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(401)

	if v := findMetric(t, reg, "skyline_http_status_total", map[string]string{"status_code": "200"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("200 count = %v, want 2", v)
	}
	if v := findMetric(t, reg, "skyline_http_status_total", map[string]string{"status_code": "401"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("401 count = %v, want 1", v)
	}
}

func TestRecordBookingCreated(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBookingCreated()

	if v := findMetric(t, reg, "skyline_bookings_created_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("bookings = %v, want 1", v)
	}
}

func TestRecordMailResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMailResult(true)
	c.RecordMailResult(false)
	c.RecordMailResult(false)

	if v := findMetric(t, reg, "skyline_mail_sent_total", map[string]string{"result": "failure"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("failures = %v, want 2", v)
	}
}

func TestRecordCRUDOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCRUDOperation("packages", "create", nil)
	c.RecordCRUDOperation("packages", "update", errors.New("not found"))

	m := findMetric(t, reg, "skyline_record_operations_total",
		map[string]string{"table": "packages", "op": "update", "result": "failure"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("update failures = %v, want 1", v)
	}
}

func TestRecordFeedImport(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFeedImport(3, 2)

	if v := findMetric(t, reg, "skyline_feed_import_posts_total", nil).GetCounter().GetValue(); v != 3 {
		t.Errorf("imported = %v, want 3", v)
	}
	if v := findMetric(t, reg, "skyline_feed_import_skipped_total", nil).GetCounter().GetValue(); v != 2 {
		t.Errorf("skipped = %v, want 2", v)
	}
}

// TestHandler_ServesMetrics はスクレイプ用ハンドラーがメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordBookingCreated()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), "skyline_bookings_created_total 1") {
		t.Errorf("body missing bookings counter:\n%s", body)
	}
}
