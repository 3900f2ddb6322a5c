package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ae-archive/vae/internal/metrics"
	"github.com/ae-archive/vae/internal/model"
)

// serve sends a request through the full middleware chain.
func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(w, req)
	return w
}

// requestCount is the number of requests observed for method and code.
func requestCount(t *testing.T, method, code string) uint64 {
	t.Helper()
	var m dto.Metric
	obs := metrics.HTTPRequests.WithLabelValues(method, code)
	require.NoError(t, obs.(prometheus.Metric).Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func assertSecurityHeaders(t *testing.T, h http.Header) {
	t.Helper()
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "no-store", h.Get("Cache-Control"))
	assert.Contains(t, h.Get("Content-Security-Policy"), "default-src 'self'")
}

// --- gzip data routes ---

func TestChain_WaveGzip(t *testing.T) {
	srv, stores := newTestServer(t)
	populate(t, stores)

	req := httptest.NewRequest(http.MethodGet, "/api/wave/1", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := serve(srv, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assertSecurityHeaders(t, w.Header())

	compressed := w.Body.Len()
	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)

	plainReq := httptest.NewRequest(http.MethodGet, "/api/wave/1", nil)
	want := serve(srv, plainReq)
	assert.Empty(t, want.Header().Get("Content-Encoding"))
	assert.JSONEq(t, want.Body.String(), string(plain))
	assert.Less(t, compressed, len(plain), "sample arrays compress")
}

func TestChain_DataRoutesCompress(t *testing.T) {
	srv, stores := newTestServer(t)
	populate(t, stores)
	for i := range 40 {
		_, err := stores.Pri.WriteHit(context.Background(), model.HitRecord{
			Time: 10 + float64(i)*0.01, Channel: 3, ParamID: 1, Amplitude: 0.05, Duration: 0.002, Energy: 12,
		})
		require.NoError(t, err)
	}

	tests := []struct {
		target string
		check  func(t *testing.T, body []byte)
	}{
		{"/api/hits?channel=3", func(t *testing.T, body []byte) {
			var hits []model.HitRecord
			require.NoError(t, json.Unmarshal(body, &hits))
			assert.Len(t, hits, 40)
		}},
		{"/api/wave/1?start=0.5&stop=2.5", func(t *testing.T, body []byte) {
			var wave waveResponse
			require.NoError(t, json.Unmarshal(body, &wave))
			assert.Equal(t, 200, wave.Samples)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.Header.Set("Accept-Encoding", "gzip")
			w := serve(srv, req)

			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
			assertSecurityHeaders(t, w.Header())

			zr, err := gzip.NewReader(w.Body)
			require.NoError(t, err)
			body, err := io.ReadAll(zr)
			require.NoError(t, err)
			tt.check(t, body)
		})
	}
}

func TestChain_HealthzNotCompressed(t *testing.T) {
	srv, stores := newTestServer(t)
	populate(t, stores)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := serve(srv, req)

	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assertSecurityHeaders(t, w.Header())
}

func TestChain_ErrorStatusObserved(t *testing.T) {
	srv, stores := newTestServer(t)
	populate(t, stores)

	before := requestCount(t, http.MethodGet, "404")
	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/tra/999", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, before+1, requestCount(t, http.MethodGet, "404"))

	before = requestCount(t, http.MethodGet, "400")
	w = serve(srv, httptest.NewRequest(http.MethodGet, "/api/wave/one", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, before+1, requestCount(t, http.MethodGet, "400"))
}

func TestChain_PanicRecovered(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.mux.HandleFunc("GET /api/crash", func(http.ResponseWriter, *http.Request) {
		panic("blob decoder crashed")
	})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/crash", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal Server Error")
	assertSecurityHeaders(t, w.Header())
}

// --- websocket route ---

func TestChain_ListenUpgradeObserved(t *testing.T) {
	srv, stores := newTestServer(t)
	populate(t, stores)
	before := requestCount(t, http.MethodGet, "101")

	conn := dialListen(t, srv, "/api/listen/trfdb?existing=true&wait=false")
	for range 2 {
		assert.Equal(t, "record", readFrame(t, conn)["type"])
	}
	assert.Equal(t, "end", readFrame(t, conn)["type"])
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	assert.Eventually(t, func() bool {
		return requestCount(t, http.MethodGet, "101") > before
	}, 2*time.Second, 10*time.Millisecond, "upgrade recorded as 101 once the stream ends")
}

func TestChain_ListenNotCompressed(t *testing.T) {
	srv, stores := newTestServer(t)
	populate(t, stores)

	ts := httptest.NewServer(srv.server.Handler)
	defer ts.Close()

	header := http.Header{"Accept-Encoding": []string{"gzip"}}
	url := "ws" + ts.URL[len("http"):] + "/api/listen/pridb?existing=true&wait=false"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Encoding"))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msg := readFrame(t, conn)
	assert.Equal(t, "pridb", msg["store"])
}

// --- statusWriter ---

func TestStatusWriter_HijackUnsupported(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _, err := sw.Hijack()
	require.Error(t, err)
	assert.Equal(t, http.StatusOK, sw.status, "status kept when the upgrade fails")
}

func TestStatusWriter_FlushThroughController(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	sw.WriteHeader(http.StatusPartialContent)
	require.NoError(t, http.NewResponseController(sw).Flush())
	assert.True(t, rec.Flushed)
	assert.Equal(t, http.StatusPartialContent, sw.status)
}
