package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"obesityboard/db"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json %q: %v", rr.Body.String(), err)
	}
	return payload
}

func TestHealthHandler(t *testing.T) {
	h, _ := newTestHandler(t, true, nil)
	rr := get(t, h, "/api/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	payload := decode(t, rr)
	if payload["status"] != "ok" || payload["ready"] != true {
		t.Fatalf("unexpected health payload: %v", payload)
	}
	if payload["version"].(float64) != 1 {
		t.Fatalf("expected version 1, got %v", payload["version"])
	}
}

func TestHealthBeforeFirstRun(t *testing.T) {
	h, _ := newTestHandler(t, false, nil)
	payload := decode(t, get(t, h, "/api/health"))
	if payload["ready"] != false {
		t.Fatalf("expected not ready, got %v", payload)
	}
}

func TestEndpointsWithoutSnapshot(t *testing.T) {
	h, _ := newTestHandler(t, false, nil)
	for _, path := range []string{
		"/api/dataset",
		"/api/eda/histograms",
		"/api/eda/boxplots",
		"/api/eda/correlation",
		"/api/eda/counts",
		"/api/model/importances",
		"/api/model/report",
		"/api/quality",
		"/charts/boxplot",
	} {
		t.Run(path, func(t *testing.T) {
			rr := get(t, h, path)
			if rr.Code != http.StatusServiceUnavailable {
				t.Fatalf("expected 503, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestDatasetPaging(t *testing.T) {
	h, _ := newTestHandler(t, true, nil)
	result := trainedResult(t)

	tests := []struct {
		name string
		path string
		want int
		code int
	}{
		{"default", "/api/dataset", 100, http.StatusOK},
		{"limit", "/api/dataset?limit=5", 5, http.StatusOK},
		{"offset past end", "/api/dataset?offset=10000", 0, http.StatusOK},
		{"tail", "/api/dataset?limit=50&offset=" + strconv.Itoa(len(result.Records)-3), 3, http.StatusOK},
		{"bad limit", "/api/dataset?limit=abc", 0, http.StatusBadRequest},
		{"negative offset", "/api/dataset?offset=-1", 0, http.StatusBadRequest},
		{"huge limit", "/api/dataset?limit=9223372036854775807&offset=1", len(result.Records) - 1, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(t, h, tt.path)
			if rr.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, rr.Code, rr.Body.String())
			}
			if tt.code != http.StatusOK {
				return
			}
			payload := decode(t, rr)
			if got := len(payload["records"].([]interface{})); got != tt.want {
				t.Fatalf("expected %d records, got %d", tt.want, got)
			}
			if int(payload["total"].(float64)) != len(result.Records) {
				t.Fatalf("unexpected total %v", payload["total"])
			}
		})
	}
}

func TestHistogramsHandler(t *testing.T) {
	h, _ := newTestHandler(t, true, nil)

	payload := decode(t, get(t, h, "/api/eda/histograms?bins=10"))
	hists := payload["histograms"].([]interface{})
	if len(hists) != 4 {
		t.Fatalf("expected 4 histograms, got %d", len(hists))
	}
	first := hists[0].(map[string]interface{})
	if first["feature"] != "Age" {
		t.Fatalf("expected Age first, got %v", first["feature"])
	}
	if n := len(first["counts"].([]interface{})); n != 10 {
		t.Fatalf("expected 10 bins, got %d", n)
	}

	for _, bins := range []string{"0", "1000", "x"} {
		if rr := get(t, h, "/api/eda/histograms?bins="+bins); rr.Code != http.StatusBadRequest {
			t.Fatalf("bins=%s: expected 400, got %d", bins, rr.Code)
		}
	}
}

func TestCorrelationHandler(t *testing.T) {
	h, _ := newTestHandler(t, true, nil)
	payload := decode(t, get(t, h, "/api/eda/correlation"))
	columns := payload["columns"].([]interface{})
	values := payload["values"].([]interface{})
	if len(columns) != 6 || len(values) != 6 {
		t.Fatalf("expected 6x6 matrix, got %d columns %d rows", len(columns), len(values))
	}
	diag := values[0].([]interface{})[0].(float64)
	if diag < 0.999999 {
		t.Fatalf("expected unit diagonal, got %v", diag)
	}
}

func TestModelHandlers(t *testing.T) {
	h, _ := newTestHandler(t, true, nil)
	result := trainedResult(t)

	imp := decode(t, get(t, h, "/api/model/importances"))
	if imp["run_id"] != result.RunID {
		t.Fatalf("expected run id %s, got %v", result.RunID, imp["run_id"])
	}
	if n := len(imp["importances"].([]interface{})); n != 5 {
		t.Fatalf("expected 5 importances, got %d", n)
	}

	report := decode(t, get(t, h, "/api/model/report"))
	if int(report["test_rows"].(float64)) != len(result.TestIndex) {
		t.Fatalf("unexpected test rows %v", report["test_rows"])
	}
	classes := report["report"].(map[string]interface{})["classes"].([]interface{})
	if len(classes) != 4 {
		t.Fatalf("expected 4 classes, got %d", len(classes))
	}

	quality := decode(t, get(t, h, "/api/quality"))
	if _, ok := quality["issues"].([]interface{}); !ok {
		t.Fatalf("expected issues array, got %v", quality["issues"])
	}
}

func TestChartHandlers(t *testing.T) {
	h, _ := newTestHandler(t, true, nil)
	for _, path := range []string{
		"/charts/histogram/BMI.svg",
		"/charts/histogram/Age",
		"/charts/boxplot",
		"/charts/correlation",
		"/charts/importances",
	} {
		t.Run(path, func(t *testing.T) {
			rr := get(t, h, path)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			if ct := rr.Header().Get("Content-Type"); ct != "image/svg+xml" {
				t.Fatalf("unexpected content type %q", ct)
			}
			if !strings.Contains(rr.Body.String(), "<svg") {
				t.Fatal("body is not svg")
			}
		})
	}

	if rr := get(t, h, "/charts/histogram/Shoe"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown feature, got %d", rr.Code)
	}
}

func TestPages(t *testing.T) {
	h, _ := newTestHandler(t, true, nil)
	tests := []struct {
		path string
		want string
	}{
		{"/", "Height (cm)"},
		{"/eda", "/charts/histogram/BMI.svg"},
		{"/model", "weighted avg"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := get(t, h, tt.path)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rr.Code)
			}
			if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
				t.Fatalf("unexpected content type %q", rr.Header().Get("Content-Type"))
			}
			if !strings.Contains(rr.Body.String(), tt.want) {
				t.Fatalf("page %s missing %q", tt.path, tt.want)
			}
		})
	}

	home := get(t, h, "/").Body.String()
	for _, want := range []string{"Female = 0", "Male = 1", "Normal Weight = 0", "Underweight = 3"} {
		if !strings.Contains(home, want) {
			t.Fatalf("home page missing code mapping %q", want)
		}
	}

	if rr := get(t, h, "/nope"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPagesBeforeFirstRun(t *testing.T) {
	h, _ := newTestHandler(t, false, nil)
	rr := get(t, h, "/model")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "No pipeline result available yet.") {
		t.Fatal("expected placeholder text")
	}
}

func TestStaticAssets(t *testing.T) {
	h, _ := newTestHandler(t, false, nil)
	rr := get(t, h, "/static/dashboard.js")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "/api/ws/dashboard") {
		t.Fatal("unexpected script body")
	}
}

type fakeRuns struct {
	runs  []db.Run
	err   error
	limit int
}

func (f *fakeRuns) ListRuns(ctx context.Context, limit int) ([]db.Run, error) {
	f.limit = limit
	return f.runs, f.err
}

func TestRunsHandler(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h, _ := newTestHandler(t, true, nil)
		if rr := get(t, h, "/api/runs"); rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
	})

	t.Run("listed", func(t *testing.T) {
		runs := &fakeRuns{runs: []db.Run{{ID: "a"}, {ID: "b"}}}
		h, _ := newTestHandler(t, true, runs)
		payload := decode(t, get(t, h, "/api/runs?limit=7"))
		if payload["count"].(float64) != 2 {
			t.Fatalf("expected 2 runs, got %v", payload["count"])
		}
		if runs.limit != 7 {
			t.Fatalf("expected limit 7, got %d", runs.limit)
		}
	})

	t.Run("store error", func(t *testing.T) {
		h, _ := newTestHandler(t, true, &fakeRuns{err: errors.New("disk gone")})
		rr := get(t, h, "/api/runs")
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
		if strings.Contains(rr.Body.String(), "disk gone") {
			t.Fatal("internal error leaked to client")
		}
	})
}

func TestMetricsHandler(t *testing.T) {
	h, _ := newTestHandler(t, true, nil)
	get(t, h, "/api/health")

	rr := get(t, h, "/api/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `http_requests_total{method="GET",status="200"}`) {
		t.Fatalf("request counter missing:\n%s", body)
	}

	rr = get(t, h, "/api/metrics?format=json")
	var metrics []map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(metrics) == 0 {
		t.Fatal("expected metrics")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad request", badRequest("x"), http.StatusBadRequest},
		{"no snapshot", errNoSnapshot, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
