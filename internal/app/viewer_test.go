package app

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingRestarter struct{ n int }

func (r *countingRestarter) Restart() { r.n++ }

func newTestViewer(t *testing.T) (*pipelineFixture, *Viewer, *countingRestarter) {
	f := startPipeline(t, PipelineOptions{}, nil)
	rs := &countingRestarter{}
	return f, NewViewer(zaptest.NewLogger(t), f.p, f.store, rs), rs
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestViewerChartPNG(t *testing.T) {
	f, v, _ := newTestViewer(t)

	rec := do(t, v, http.MethodGet, "/charts/chunks.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "not drawn yet")

	f.tick(t)
	rec = do(t, v, http.MethodGet, "/charts/chunks.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestViewerStatusAndEvents(t *testing.T) {
	f, v, _ := newTestViewer(t)
	f.p.OnMessage([]byte(chunk))
	f.tick(t)

	rec := do(t, v, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "Connecting...", st.StateText)
	require.Len(t, st.Charts, 1)
	assert.Equal(t, 2, st.Charts[0].Samples)

	rec = do(t, v, http.MethodGet, "/api/events", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestViewerCommands(t *testing.T) {
	f, v, rs := newTestViewer(t)

	assert.Equal(t, http.StatusAccepted, do(t, v, http.MethodPost, "/api/pause", "").Code)
	assert.Equal(t, http.StatusAccepted, do(t, v, http.MethodPost, "/api/pause", `{"pause":false}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, v, http.MethodPost, "/api/pause", `{"pause":`).Code)

	assert.Equal(t, http.StatusAccepted, do(t, v, http.MethodPost, "/api/scale", `{"chart":"chunks","scale":"auto"}`).Code)
	rec := do(t, v, http.MethodPost, "/api/scale", `{"chart":"chunks","scale":"zero"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid scale")
	assert.Equal(t, http.StatusNotFound, do(t, v, http.MethodPost, "/api/scale", `{"chart":"nope","scale":"auto"}`).Code)

	assert.Equal(t, http.StatusAccepted, do(t, v, http.MethodPost, "/api/clear", `{}`).Code)
	assert.Equal(t, http.StatusAccepted, do(t, v, http.MethodPost, "/api/resize", `{"chart":"chunks","width":300,"height":120,"pixel_ratio":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, v, http.MethodPost, "/api/resize", `{"chart":"chunks","width":0,"height":120}`).Code)

	f.tick(t)
	assert.Equal(t, 300.0, f.chart(t, "chunks").Surface.Width)

	assert.Equal(t, http.StatusAccepted, do(t, v, http.MethodPost, "/api/reconnect", "").Code)
	assert.Equal(t, 1, rs.n)
}

func TestViewerExportCSV(t *testing.T) {
	f, v, _ := newTestViewer(t)
	f.p.OnMessage([]byte(chunk))

	rec := do(t, v, http.MethodGet, "/api/export/chunks.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"index", "X", "Y", "Z"},
		{"0", "0.1", "0.3", "0.9"},
		{"1", "0.2", "0.4", "1"},
	}, rows)

	assert.Equal(t, http.StatusNotFound, do(t, v, http.MethodGet, "/api/export/nope.csv", "").Code)
}

func TestViewerIndexAndMetrics(t *testing.T) {
	_, v, _ := newTestViewer(t)

	rec := do(t, v, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `src="/charts/chunks.png"`)

	rec = do(t, v, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scope_http_requests_total")
}
