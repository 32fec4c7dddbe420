package http

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"obesityboard/dataset"
	"obesityboard/monitoring"
	"obesityboard/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// columnGlossary 首页字段说明
var columnGlossary = []struct{ Name, Description string }{
	{dataset.ColumnAge, "Age in years"},
	{dataset.ColumnGender, "Gender (Male, Female)"},
	{dataset.ColumnHeight, "Height (cm)"},
	{dataset.ColumnWeight, "Weight (kg)"},
	{dataset.ColumnBMI, "Body mass index"},
	{dataset.ColumnLabel, "Obesity class (Normal, Overweight, Obese, Underweight)"},
}

type pageRenderer struct {
	pages map[string]*template.Template
}

func newPageRenderer() (*pageRenderer, error) {
	r := &pageRenderer{pages: make(map[string]*template.Template)}
	for _, name := range []string{"home", "eda", "model"} {
		t, err := template.New(name).Funcs(template.FuncMap{
			"pct":   formatPct,
			"fixed": formatFixed,
		}).ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s template", name)
		}
		r.pages[name] = t
	}
	return r, nil
}

// render 先渲染到缓冲区，失败时不会写出半页
func (r *pageRenderer) render(w http.ResponseWriter, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := r.pages[name].ExecuteTemplate(&buf, "base", data); err != nil {
		return errors.Wrapf(err, "render %s", name)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

type pageData struct {
	Title    string
	Active   string
	Status   monitoring.Status
	Summary  *monitoring.SnapshotSummary
	Glossary interface{}
	Result   *pipeline.Result
	Features []string
	Codes    []codeTable
}

// codeTable 类别编码对照表
type codeTable struct {
	Column  string
	Mapping map[string]int
}

func (h *Handlers) page(title, active string) pageData {
	data := pageData{Title: title, Active: active, Status: h.deps.Dashboard.Status()}
	if result, _ := h.deps.Dashboard.Current(); result != nil {
		s := monitoring.Summarize(result)
		data.Summary = &s
		data.Result = result
	}
	return data
}

func (h *Handlers) renderPage(w http.ResponseWriter, name string, data pageData) {
	if err := h.pages.render(w, name, data); err != nil {
		h.logger.Error("render page", zap.String("page", name), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handlers) handleHomePage(w http.ResponseWriter, r *http.Request) {
	data := h.page("Obesity Classification Dashboard", "home")
	data.Glossary = columnGlossary
	if data.Result != nil {
		data.Codes = []codeTable{
			{dataset.ColumnGender, data.Result.Gender.Mapping()},
			{dataset.ColumnLabel, data.Result.Label.Mapping()},
		}
	}
	h.renderPage(w, "home", data)
}

func (h *Handlers) handleEDAPage(w http.ResponseWriter, r *http.Request) {
	data := h.page("Exploratory Analysis", "eda")
	data.Features = []string{dataset.ColumnAge, dataset.ColumnHeight, dataset.ColumnWeight, dataset.ColumnBMI}
	h.renderPage(w, "eda", data)
}

func (h *Handlers) handleModelPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, "model", h.page("Model Performance", "model"))
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// renderSVG 图表先写入缓冲区，绘图失败时返回JSON错误
func (h *Handlers) renderSVG(w http.ResponseWriter, draw func(io.Writer) error) {
	var buf bytes.Buffer
	if err := draw(&buf); err != nil {
		h.logger.Warn("render chart", zap.Error(err))
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	buf.WriteTo(w)
}

func formatPct(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 2, 64) + "%"
}

func formatFixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
