package http

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"testing"

	"obesityboard/dataset"
	"obesityboard/monitoring"
	"obesityboard/pipeline"
)

var (
	resultOnce   sync.Once
	sharedResult *pipeline.Result
	resultErr    error
)

func testRecords(n int) []dataset.Record {
	bands := []struct {
		label    string
		min, max float64
	}{
		{"Normal Weight", 19.5, 24},
		{"Obese", 31, 38},
		{"Overweight", 25.5, 29.5},
		{"Underweight", 16, 18},
	}
	rng := rand.New(rand.NewSource(3))
	records := make([]dataset.Record, n)
	for i := range records {
		band := bands[i%len(bands)]
		height := 150 + rng.Float64()*40
		bmi := band.min + rng.Float64()*(band.max-band.min)
		m := height / 100
		gender := "Female"
		if i%3 == 0 {
			gender = "Male"
		}
		records[i] = dataset.Record{
			Age:    20 + rng.Intn(45),
			Gender: gender,
			Height: height,
			Weight: math.Round(bmi*m*m*10) / 10,
			BMI:    bmi,
			Label:  band.label,
		}
	}
	return records
}

func trainedResult(t *testing.T) *pipeline.Result {
	t.Helper()
	resultOnce.Do(func() {
		cfg := pipeline.DefaultConfig()
		cfg.TreeCount = 15
		sharedResult, resultErr = pipeline.PrepareAndEvaluate(context.Background(), testRecords(160), cfg, nil)
	})
	if resultErr != nil {
		t.Fatalf("train fixture: %v", resultErr)
	}
	return sharedResult
}

// newTestHandler 返回带完整中间件链的处理器；ready 为 false 时看板没有快照
func newTestHandler(t *testing.T, ready bool, runs RunLister) (http.Handler, *monitoring.Dashboard) {
	t.Helper()
	dashboard := monitoring.NewDashboard()
	if ready {
		dashboard.Swap(trainedResult(t))
	}
	server, err := NewServer(DefaultServerConfig(), Deps{
		Dashboard: dashboard,
		Metrics:   monitoring.NewMetricsCollector(),
		Runs:      runs,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return server.Handler(), dashboard
}

func newReadyDashboard(t *testing.T) *monitoring.Dashboard {
	t.Helper()
	d := monitoring.NewDashboard()
	d.Swap(trainedResult(t))
	return d
}

func newHandlersWithMetrics(t *testing.T, dashboard *monitoring.Dashboard) (*Handlers, *monitoring.MetricsCollector) {
	t.Helper()
	metrics := monitoring.NewMetricsCollector()
	h, err := NewHandlers(DefaultServerConfig(), Deps{Dashboard: dashboard, Metrics: metrics})
	if err != nil {
		t.Fatalf("NewHandlers: %v", err)
	}
	return h, metrics
}
