package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"obesityboard/dataset"
	"obesityboard/eda"
	"obesityboard/ml"
	"obesityboard/monitoring"
	"obesityboard/pipeline"
)

const (
	defaultDatasetLimit = 100
	defaultRunsLimit    = 20
	maxHistogramBins    = 200
)

var errNoSnapshot = errors.New("no pipeline result available yet")

// Handlers 看板路由处理器
type Handlers struct {
	config  ServerConfig
	deps    Deps
	cache   *predictCache
	pages   *pageRenderer
	logger  *zap.Logger
	metrics *monitoring.MetricsCollector
}

func NewHandlers(config ServerConfig, deps Deps) (*Handlers, error) {
	if deps.Dashboard == nil {
		return nil, errors.New("dashboard is required")
	}
	cache, err := newPredictCache(config.PredictCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create predict cache")
	}
	pages, err := newPageRenderer()
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetricsCollector()
	}
	return &Handlers{
		config:  config,
		deps:    deps,
		cache:   cache,
		pages:   pages,
		logger:  deps.Logger,
		metrics: deps.Metrics,
	}, nil
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleHomePage)
	mux.HandleFunc("GET /eda", h.handleEDAPage)
	mux.HandleFunc("GET /model", h.handleModelPage)
	mux.Handle("GET /static/", staticHandler())

	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/metrics", h.handleMetrics)
	mux.HandleFunc("GET /api/dataset", h.handleDataset)
	mux.HandleFunc("GET /api/eda/histograms", h.handleHistograms)
	mux.HandleFunc("GET /api/eda/boxplots", h.handleBoxPlots)
	mux.HandleFunc("GET /api/eda/correlation", h.handleCorrelation)
	mux.HandleFunc("GET /api/eda/counts", h.handleCounts)
	mux.HandleFunc("GET /api/model/importances", h.handleImportances)
	mux.HandleFunc("GET /api/model/report", h.handleReport)
	mux.HandleFunc("GET /api/quality", h.handleQuality)
	mux.Handle("POST /api/predict", RequestSizeMiddleware(h.maxBody())(http.HandlerFunc(h.handlePredict)))
	mux.HandleFunc("GET /api/runs", h.handleRuns)

	mux.HandleFunc("GET /charts/histogram/{feature}", h.handleHistogramChart)
	mux.HandleFunc("GET /charts/boxplot", h.handleBoxPlotChart)
	mux.HandleFunc("GET /charts/correlation", h.handleCorrelationChart)
	mux.HandleFunc("GET /charts/importances", h.handleImportanceChart)

	if h.deps.Hub != nil {
		mux.HandleFunc("GET /api/ws/dashboard", h.deps.Hub.HandleWebSocket)
	}
}

func (h *Handlers) maxBody() int64 {
	if h.config.MaxBodyBytes > 0 {
		return h.config.MaxBodyBytes
	}
	return DefaultServerConfig().MaxBodyBytes
}

// snapshot 取当前结果，未就绪时写 503
func (h *Handlers) snapshot(w http.ResponseWriter) (*pipeline.Result, uint64, bool) {
	result, version := h.deps.Dashboard.Current()
	if result == nil {
		writeError(w, errNoSnapshot)
		return nil, 0, false
	}
	return result, version, true
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.deps.Dashboard.Status()
	body := map[string]interface{}{
		"status":  "ok",
		"ready":   status.Ready,
		"version": status.Version,
	}
	if status.RunID != "" {
		body["run_id"] = status.RunID
	}
	if status.LastError != "" {
		body["last_error"] = status.LastError
	}
	if h.deps.Hub != nil {
		body["ws_clients"] = h.deps.Hub.ClientCount()
	}
	respondJSON(w, http.StatusOK, body)
}

func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "json" {
		out, err := h.metrics.ExportJSON()
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(out))
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(h.metrics.ExportPrometheus()))
}

func (h *Handlers) handleDataset(w http.ResponseWriter, r *http.Request) {
	result, version, ok := h.snapshot(w)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", defaultDatasetLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	rows := pageRecords(result.Records, offset, limit)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"version":   version,
		"total":     len(result.Records),
		"removed":   result.Removed,
		"bounds":    result.Bounds,
		"offset":    offset,
		"records":   rows,
		"timestamp": time.Now(),
	})
}

func pageRecords(records []dataset.Record, offset, limit int) []dataset.Record {
	if offset >= len(records) {
		return []dataset.Record{}
	}
	end := len(records)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return records[offset:end]
}

func (h *Handlers) handleHistograms(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.snapshot(w)
	if !ok {
		return
	}
	bins, err := queryInt(r, "bins", eda.DefaultBins)
	if err != nil {
		writeError(w, err)
		return
	}
	if bins <= 0 || bins > maxHistogramBins {
		writeError(w, badRequest("bins must be in [1, %d]", maxHistogramBins))
		return
	}
	hists, err := eda.Histograms(result.Records, bins)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"histograms": hists})
}

func (h *Handlers) handleBoxPlots(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.snapshot(w)
	if !ok {
		return
	}
	boxes, err := eda.BMIBoxPlots(result.Records)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"boxplots": boxes})
}

func (h *Handlers) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.snapshot(w)
	if !ok {
		return
	}
	corr, err := eda.Correlation(result.Records, result.Gender, result.Label)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, corr)
}

func (h *Handlers) handleCounts(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.snapshot(w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, eda.CountRecords(result.Records))
}

func (h *Handlers) handleImportances(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.snapshot(w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":      result.RunID,
		"importances": result.Importances,
	})
}

func (h *Handlers) handleReport(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.snapshot(w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":     result.RunID,
		"report":     result.Report,
		"train_rows": len(result.TrainIndex),
		"test_rows":  len(result.TestIndex),
		"config":     result.Config,
	})
}

func (h *Handlers) handleQuality(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.snapshot(w)
	if !ok {
		return
	}
	issues := result.Quality
	if issues == nil {
		issues = []pipeline.QualityIssue{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats":  result.QualityStats,
		"issues": issues,
	})
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result, version, ok := h.snapshot(w)
	if !ok {
		return
	}

	var in pipeline.Input
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&in); err != nil {
		writeError(w, badRequest("invalid request body: %v", err))
		return
	}
	in.Gender = strings.TrimSpace(in.Gender)

	pred, hit := h.cache.get(version, in)
	if !hit {
		var err error
		pred, err = result.Predict(in)
		if err != nil {
			writeError(w, err)
			return
		}
		h.cache.add(version, in, pred)
	}
	h.metrics.RecordHistogram("predict_duration_seconds", time.Since(start).Seconds(),
		map[string]string{"cached": strconv.FormatBool(hit)}, monitoring.DefaultLatencyBuckets)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"label":      pred.Label,
		"code":       pred.Code,
		"vote_share": pred.VoteShare,
		"bmi":        pred.BMI,
		"version":    version,
		"cached":     hit,
	})
}

func (h *Handlers) handleRuns(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runs == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	limit, err := queryInt(r, "limit", defaultRunsLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	runs, err := h.deps.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("list runs", zap.Error(err))
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

func (h *Handlers) handleHistogramChart(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.snapshot(w)
	if !ok {
		return
	}
	feature := strings.TrimSuffix(r.PathValue("feature"), ".svg")
	if !isNumericFeature(feature) {
		writeJSONError(w, http.StatusNotFound, "unknown feature "+feature)
		return
	}
	bins, err := queryInt(r, "bins", eda.DefaultBins)
	if err != nil || bins <= 0 || bins > maxHistogramBins {
		writeError(w, badRequest("bins must be in [1, %d]", maxHistogramBins))
		return
	}
	h.renderSVG(w, func(w io.Writer) error {
		return eda.WriteHistogramSVG(w, result.Records, feature, bins)
	})
}

func (h *Handlers) handleBoxPlotChart(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.snapshot(w)
	if !ok {
		return
	}
	h.renderSVG(w, func(w io.Writer) error {
		return eda.WriteBMIBoxPlotSVG(w, result.Records)
	})
}

func (h *Handlers) handleCorrelationChart(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.snapshot(w)
	if !ok {
		return
	}
	h.renderSVG(w, func(w io.Writer) error {
		corr, err := eda.Correlation(result.Records, result.Gender, result.Label)
		if err != nil {
			return err
		}
		return eda.WriteCorrelationSVG(w, corr)
	})
}

func (h *Handlers) handleImportanceChart(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.snapshot(w)
	if !ok {
		return
	}
	h.renderSVG(w, func(w io.Writer) error {
		return eda.WriteImportanceSVG(w, result.Importances)
	})
}

func isNumericFeature(name string) bool {
	for _, f := range eda.NumericFeatures {
		if f == name {
			return true
		}
	}
	return false
}

// ============ 响应工具 ============

type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

func badRequest(format string, args ...interface{}) error {
	return &httpError{status: http.StatusBadRequest, message: errors.Errorf(format, args...).Error()}
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, badRequest("%s must be a non-negative integer", key)
	}
	return v, nil
}

// statusFor 错误到状态码的映射
func statusFor(err error) int {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.Is(err, errNoSnapshot), errors.Is(err, ml.ErrNotTrained):
		return http.StatusServiceUnavailable
	case errors.Is(err, ml.ErrEncoding), errors.Is(err, ml.ErrShapeMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	writeJSONError(w, status, message)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
