// Package api provides the HTTP JSON API of the archive service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/ae-archive/vae/internal/errs"
	"github.com/ae-archive/vae/internal/metrics"
	"github.com/ae-archive/vae/internal/model"
	"github.com/ae-archive/vae/internal/pridb"
	"github.com/ae-archive/vae/internal/store"
	"github.com/ae-archive/vae/internal/tradb"
	"github.com/ae-archive/vae/internal/trfdb"

	_ "github.com/ae-archive/vae/docs/swagger"
)

const (
	defaultLimit = 1000
	maxLimit     = 100_000
)

// Stores are the archive files served by the API. Nil stores answer 404.
type Stores struct {
	Pri *pridb.Database
	Tra *tradb.Database
	Trf *trfdb.Database
}

// Server is the HTTP server of the archive service.
type Server struct {
	stores Stores
	tail   store.TailOptions
	mux    *http.ServeMux
	server *http.Server
}

// NewServer creates a new HTTP server. tail sets the defaults of live-tail
// connections.
func NewServer(addr string, stores Stores, tail store.TailOptions) *Server {
	srv := &Server{
		stores: stores,
		tail:   tail,
		mux:    http.NewServeMux(),
	}

	srv.registerRoutes()

	srv.server = &http.Server{
		Addr:         addr,
		Handler:      SecurityHeadersMiddleware(RecoveryMiddleware(LoggingMiddleware(srv.mux))),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return srv
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("HTTP server starting", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	// Health check
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	// JSON endpoints, gzip-compressed on request
	gz := func(pattern string, h http.HandlerFunc) { s.mux.Handle(pattern, gzhttp.GzipHandler(h)) }
	gz("GET /api/info", s.handleInfo)
	gz("GET /api/hits", s.handleHits)
	gz("GET /api/markers", s.handleMarkers)
	gz("GET /api/status", s.handleStatus)
	gz("GET /api/parametric", s.handleParametric)
	gz("GET /api/tra/{trai}", s.handleTra)
	gz("GET /api/wave/{channel}", s.handleWave)
	gz("GET /api/features", s.handleFeatures)
	gz("GET /api/features/{trai}", s.handleFeature)

	// Live tail over websocket
	s.mux.HandleFunc("GET /api/listen/{store}", s.handleListen)

	// Prometheus
	s.mux.Handle("GET /metrics", metrics.Handler())

	// Swagger UI
	s.mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

// writeJSON marshals v to JSON into a buffer first, then writes it to the
// response. This ensures marshalling errors can be returned as a proper 500.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("encoding JSON response", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		slog.Debug("writing JSON response", "path", r.URL.Path, "error", err)
	}
}

// writeError maps an error category to a status code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var notFound *tradb.TraNotFoundError
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound):
		code = http.StatusNotFound
	case errors.Is(err, errs.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, errs.ErrConsistency):
		code = http.StatusConflict
	case errors.Is(err, errs.ErrUnavailable):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		slog.Error("handling request", "path", r.URL.Path, "error", err)
	}
	http.Error(w, err.Error(), code)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errs.ErrValidation, fmt.Sprintf(format, args...))
}

func parseFloat(r *http.Request, name string) (*float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, invalid("parameter %s: %q is not a number", name, v)
	}
	return &f, nil
}

func parseInts(r *http.Request, name string) ([]int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	var out []int64
	for part := range strings.SplitSeq(v, ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, invalid("parameter %s: %q is not an integer", name, part)
		}
		out = append(out, n)
	}
	return out, nil
}

// parseFilter reads channel, start, stop and where.
func parseFilter(r *http.Request) (store.Filter, error) {
	var f store.Filter
	chans, err := parseInts(r, "channel")
	if err != nil {
		return f, err
	}
	for _, ch := range chans {
		f.Channels = append(f.Channels, int(ch))
	}
	if f.TimeStart, err = parseFloat(r, "start"); err != nil {
		return f, err
	}
	if f.TimeStop, err = parseFloat(r, "stop"); err != nil {
		return f, err
	}
	f.Where = r.URL.Query().Get("where")
	return f, nil
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > maxLimit {
		return 0, invalid("limit must be between 1 and %d", maxLimit)
	}
	return n, nil
}

func parseRaw(r *http.Request) bool {
	raw, _ := strconv.ParseBool(r.URL.Query().Get("raw"))
	return raw
}

// writeQuery streams up to limit records of q into a JSON array.
func writeQuery[T any](w http.ResponseWriter, r *http.Request, q *store.Query[T], limit int) {
	out := make([]T, 0)
	for rec, err := range q.All(r.Context()) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		out = append(out, rec)
		if len(out) >= limit {
			break
		}
	}
	writeJSON(w, r, out)
}

// pridbQuery parses the common parameters and runs one primary-data query.
func pridbQuery[T any](s *Server, w http.ResponseWriter, r *http.Request,
	run func(ctx context.Context, f store.Filter) (*store.Query[T], error)) {
	if s.stores.Pri == nil {
		http.Error(w, "pridb not configured", http.StatusNotFound)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := run(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeQuery(w, r, q, limit)
}

// @Summary Health check
// @Description Returns service health and the writer status of each store
// @Produce json
// @Success 200 {object} map[string]interface{} "Health status"
// @Router /healthz [get]
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	stores := make(map[string]string)
	for _, d := range s.databases() {
		fs, err := d.FileStatus(r.Context())
		switch {
		case err != nil:
			status = "degraded"
			stores[d.Kind().Name] = "error"
		case fs == store.FileStatusActive:
			stores[d.Kind().Name] = "active"
		case fs == store.FileStatusSuspended:
			stores[d.Kind().Name] = "suspended"
		default:
			stores[d.Kind().Name] = "offline"
		}
	}
	if len(stores) == 0 {
		status = "no_data"
	}
	writeJSON(w, r, map[string]any{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"stores":    stores,
	})
}

func (s *Server) databases() []*store.Database {
	var dbs []*store.Database
	if s.stores.Pri != nil {
		dbs = append(dbs, s.stores.Pri.Database)
	}
	if s.stores.Tra != nil {
		dbs = append(dbs, s.stores.Tra.Database)
	}
	if s.stores.Trf != nil {
		dbs = append(dbs, s.stores.Trf.Database)
	}
	return dbs
}

// storeInfo is one entry of GET /api/info.
type storeInfo struct {
	Path       string           `json:"path"`
	Mode       string           `json:"mode"`
	TimeBase   int64            `json:"time_base"`
	GlobalInfo map[string]any   `json:"global_info"`
	Tables     map[string]int64 `json:"tables"`
	Channels   []int            `json:"channels,omitempty"`
}

// @Summary Store information
// @Description Global info, tables with row counts and channels of every configured store
// @Produce json
// @Success 200 {object} map[string]storeInfo
// @Failure 500 {string} string "Internal Server Error"
// @Router /api/info [get]
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := make(map[string]storeInfo)
	for _, d := range s.databases() {
		info := storeInfo{Path: d.Path(), Mode: string(d.Mode()), TimeBase: d.TimeBase(), Tables: map[string]int64{}}
		var err error
		if info.GlobalInfo, err = d.GlobalInfo(ctx); err != nil {
			writeError(w, r, err)
			return
		}
		tables, err := d.Tables(ctx)
		if err != nil {
			writeError(w, r, err)
			return
		}
		for _, t := range tables {
			if info.Tables[t], err = d.Rows(ctx, t); err != nil {
				writeError(w, r, err)
				return
			}
		}
		if d.Kind() != store.TrfDB {
			if info.Channels, err = d.Channels(ctx); err != nil {
				writeError(w, r, err)
				return
			}
		}
		resp[d.Kind().Name] = info
	}
	writeJSON(w, r, resp)
}

// @Summary Hits
// @Description Hit records of the primary store ordered by set id
// @Produce json
// @Param channel query string false "Comma-separated channel list"
// @Param start query number false "Start time in seconds (inclusive)"
// @Param stop query number false "Stop time in seconds (exclusive)"
// @Param where query string false "Additional SQL condition on the data view"
// @Param limit query int false "Maximum number of records" default(1000)
// @Success 200 {array} model.HitRecord
// @Failure 400 {string} string "Invalid parameter"
// @Failure 404 {string} string "Store not configured"
// @Router /api/hits [get]
func (s *Server) handleHits(w http.ResponseWriter, r *http.Request) {
	pridbQuery(s, w, r, func(ctx context.Context, f store.Filter) (*store.Query[model.HitRecord], error) {
		return s.stores.Pri.Hits(ctx, f)
	})
}

// @Summary Markers
// @Description Label, datetime and section markers of the primary store
// @Produce json
// @Param start query number false "Start time in seconds (inclusive)"
// @Param stop query number false "Stop time in seconds (exclusive)"
// @Param limit query int false "Maximum number of records" default(1000)
// @Success 200 {array} model.MarkerRecord
// @Router /api/markers [get]
func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	pridbQuery(s, w, r, func(ctx context.Context, f store.Filter) (*store.Query[model.MarkerRecord], error) {
		return s.stores.Pri.Markers(ctx, f)
	})
}

// @Summary Status records
// @Description Channel status records of the primary store
// @Produce json
// @Param channel query string false "Comma-separated channel list"
// @Param start query number false "Start time in seconds (inclusive)"
// @Param stop query number false "Stop time in seconds (exclusive)"
// @Param limit query int false "Maximum number of records" default(1000)
// @Success 200 {array} model.StatusRecord
// @Router /api/status [get]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pridbQuery(s, w, r, func(ctx context.Context, f store.Filter) (*store.Query[model.StatusRecord], error) {
		return s.stores.Pri.Status(ctx, f)
	})
}

// @Summary Parametric records
// @Description Parametric input records of the primary store
// @Produce json
// @Param start query number false "Start time in seconds (inclusive)"
// @Param stop query number false "Stop time in seconds (exclusive)"
// @Param limit query int false "Maximum number of records" default(1000)
// @Success 200 {array} model.ParametricRecord
// @Router /api/parametric [get]
func (s *Server) handleParametric(w http.ResponseWriter, r *http.Request) {
	pridbQuery(s, w, r, func(ctx context.Context, f store.Filter) (*store.Query[model.ParametricRecord], error) {
		return s.stores.Pri.Parametric(ctx, f)
	})
}

// @Summary Transient record
// @Description One transient with its decoded samples
// @Produce json
// @Param trai path int true "Transient index"
// @Param raw query bool false "Return ADC values instead of volts"
// @Success 200 {object} model.TraRecord
// @Failure 400 {string} string "Invalid TRAI"
// @Failure 404 {string} string "Transient not found"
// @Router /api/tra/{trai} [get]
func (s *Server) handleTra(w http.ResponseWriter, r *http.Request) {
	if s.stores.Tra == nil {
		http.Error(w, "tradb not configured", http.StatusNotFound)
		return
	}
	trai, err := strconv.ParseInt(r.PathValue("trai"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid TRAI", http.StatusBadRequest)
		return
	}
	tra, err := s.stores.Tra.ReadWave(r.Context(), trai, parseRaw(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, tra)
}

// waveResponse is the body of GET /api/wave/{channel}.
type waveResponse struct {
	Channel    int       `json:"channel"`
	SampleRate int       `json:"samplerate"`
	TimeStart  float64   `json:"time_start"`
	Samples    int       `json:"samples"`
	Data       []float32 `json:"data,omitempty"`
	RawData    []int16   `json:"raw_data,omitempty"`
}

// @Summary Continuous wave
// @Description Transients of one channel stitched into a continuous signal, gaps zero-filled
// @Produce json
// @Param channel path int true "Channel number"
// @Param start query number false "Start time in seconds"
// @Param stop query number false "Stop time in seconds"
// @Param raw query bool false "Return ADC values instead of volts"
// @Success 200 {object} waveResponse
// @Failure 400 {string} string "Invalid parameter"
// @Failure 409 {string} string "Inconsistent sample rate"
// @Router /api/wave/{channel} [get]
func (s *Server) handleWave(w http.ResponseWriter, r *http.Request) {
	if s.stores.Tra == nil {
		http.Error(w, "tradb not configured", http.StatusNotFound)
		return
	}
	channel, err := strconv.Atoi(r.PathValue("channel"))
	if err != nil {
		http.Error(w, "Invalid channel", http.StatusBadRequest)
		return
	}
	opts := tradb.ContinuousOptions{Raw: parseRaw(r)}
	if opts.TimeStart, err = parseFloat(r, "start"); err != nil {
		writeError(w, r, err)
		return
	}
	if opts.TimeStop, err = parseFloat(r, "stop"); err != nil {
		writeError(w, r, err)
		return
	}

	wave, err := s.stores.Tra.ReadContinuousWave(r.Context(), channel, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, waveResponse{
		Channel:    channel,
		SampleRate: wave.SampleRate,
		TimeStart:  wave.TimeStart,
		Samples:    wave.Len(),
		Data:       wave.Data,
		RawData:    wave.RawData,
	})
}

// @Summary Feature records
// @Description Feature records ordered by TRAI
// @Produce json
// @Param trai query string false "Comma-separated TRAI list"
// @Param limit query int false "Maximum number of records" default(1000)
// @Success 200 {array} model.FeatureRecord
// @Router /api/features [get]
func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	if s.stores.Trf == nil {
		http.Error(w, "trfdb not configured", http.StatusNotFound)
		return
	}
	trais, err := parseInts(r, "trai")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeQuery(w, r, s.stores.Trf.Records(trais), limit)
}

// @Summary Features of one transient
// @Produce json
// @Param trai path int true "Transient index"
// @Success 200 {object} model.FeatureRecord
// @Failure 404 {string} string "No features for TRAI"
// @Router /api/features/{trai} [get]
func (s *Server) handleFeature(w http.ResponseWriter, r *http.Request) {
	if s.stores.Trf == nil {
		http.Error(w, "trfdb not configured", http.StatusNotFound)
		return
	}
	trai, err := strconv.ParseInt(r.PathValue("trai"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid TRAI", http.StatusBadRequest)
		return
	}
	rec, found, err := s.stores.Trf.Get(r.Context(), trai)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, r, rec)
}
