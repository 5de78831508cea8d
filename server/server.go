// Package server exposes the calculator over HTTP.
//
// A client posts a configuration file (YAML or JSON) and receives the result
// of the calculation it describes as JSON.  Per-value details are written to
// run folders below the output directory of the server, which can be fetched
// afterwards.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LukasK13/ESBO-ETC/atran"
	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/output"
	"github.com/LukasK13/ESBO-ETC/pipeline"
)

// MaxConfigSize is the largest configuration accepted, in bytes
const MaxConfigSize = 1 << 20

// MethodPath is a struct containing a method (GET, POST...) and a path
type MethodPath struct {
	Method, Path string
}

// RouteTable maps method/path pairs to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints lists the endpoints in a RouteTable as "METHOD path", sorted by
// path
func (rt RouteTable) Endpoints() []string {
	keys := make([]MethodPath, 0, len(rt))
	for k := range rt {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Path == keys[j].Path {
			return keys[i].Method < keys[j].Method
		}
		return keys[i].Path < keys[j].Path
	})
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Method + " " + k.Path
	}
	return out
}

// Bind binds the routes to r
func (rt RouteTable) Bind(r chi.Router) {
	for mp, h := range rt {
		r.MethodFunc(mp.Method, mp.Path, h)
	}
}

// Config holds the settings of a Server
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"addr" yaml:"addr"`

	// OutputDir is the folder holding the run folders.  Details are not
	// written if empty.
	OutputDir string `koanf:"output_dir" yaml:"output_dir"`

	// Format of the detail files, csv or fits
	Format string `koanf:"format" yaml:"format"`

	// MaxRuns limits the number of calculations running at the same time
	MaxRuns int `koanf:"max_runs" yaml:"max_runs"`

	// Timeout bounds a single calculation
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the settings used when none are given
func DefaultConfig() Config {
	return Config{Addr: ":8000", Format: "csv", MaxRuns: 4, Timeout: 5 * time.Minute}
}

// Server computes exposure times, SNRs and sensitivities for posted
// configurations
type Server struct {
	RouteTable RouteTable

	cfg     Config
	log     logging.Logger
	fetcher atran.Fetcher
	slots   chan struct{}
	now     func() time.Time

	reg      *prometheus.Registry
	runs     *prometheus.CounterVec
	seconds  *prometheus.HistogramVec
	busy     prometheus.Gauge
	requests *prometheus.CounterVec
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger of the server and of every calculation
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithFetcher sets the client used for remote atmospheric transmittances
func WithFetcher(f atran.Fetcher) Option {
	return func(s *Server) { s.fetcher = f }
}

// New returns a Server for cfg with its routes populated
func New(cfg Config, opts ...Option) *Server {
	if cfg.MaxRuns < 1 {
		cfg.MaxRuns = 1
	}
	if cfg.Format == "" {
		cfg.Format = "csv"
	}
	s := &Server{cfg: cfg, now: time.Now, reg: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrNoop(s.log)
	if s.fetcher == nil {
		s.fetcher = atran.NewClient(atran.WithLogger(s.log))
	}
	s.slots = make(chan struct{}, cfg.MaxRuns)
	s.registerMetrics()

	s.RouteTable = RouteTable{
		{http.MethodPost, "/run"}:           s.Run,
		{http.MethodPost, "/check"}:         s.Check,
		{http.MethodGet, "/types/{kind}"}:   s.Types,
		{http.MethodGet, "/runs/{run}/*"}:   s.Files,
		{http.MethodGet, "/list-of-routes"}: s.ListRoutes,
		{http.MethodGet, "/metrics"}:        promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}).ServeHTTP,
		{http.MethodGet, "/formats"}:        s.Formats,
	}
	return s
}

// Handler returns a chi router serving the routes of s
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	s.RouteTable.Bind(r)
	return r
}

// Response is the body of a successful calculation
type Response struct {
	Mode        string    `json:"mode"`
	ExpTime     []float64 `json:"exp_time"`
	SNR         []float64 `json:"snr"`
	Sensitivity []float64 `json:"sensitivity,omitempty"`

	// Run is the name of the run folder holding the details, if any
	Run string `json:"run,omitempty"`
}

// ErrorResponse is the body of a rejected request
type ErrorResponse struct {
	Error string `json:"error"`
}

func respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, code int, err error) {
	respond(w, code, ErrorResponse{Error: err.Error()})
}

// status maps an error of a calculation to an HTTP status code
func status(err error) int {
	switch {
	case errors.Is(err, config.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, errBusy):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

var errBusy = errors.New("all calculation slots are in use")

// readConfig parses the configuration in the body of r
func readConfig(r *http.Request) (*config.Config, error) {
	defer r.Body.Close()
	doc, err := io.ReadAll(io.LimitReader(r.Body, MaxConfigSize))
	if err != nil {
		return nil, err
	}
	c, err := config.Parse(doc)
	if err != nil && !errors.Is(err, config.ErrConfig) {
		return nil, &config.Error{Msg: err.Error()}
	}
	return c, err
}

// Check checks the posted configuration without computing anything
func (s *Server) Check(w http.ResponseWriter, r *http.Request) {
	c, err := readConfig(r)
	if err == nil {
		err = pipeline.Check(c)
	}
	if err != nil {
		fail(w, status(err), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Run computes the result of the posted configuration
func (s *Server) Run(w http.ResponseWriter, r *http.Request) {
	c, err := readConfig(r)
	if err != nil {
		s.runs.WithLabelValues("unknown", "rejected").Inc()
		fail(w, status(err), err)
		return
	}
	mode := c.Common.Mode().String()

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	default:
		s.runs.WithLabelValues(mode, "busy").Inc()
		fail(w, http.StatusServiceUnavailable, errBusy)
		return
	}
	s.busy.Inc()
	defer s.busy.Dec()

	start := time.Now()
	resp, err := s.compute(r, c)
	s.seconds.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "failed"
		if status(err) == http.StatusBadRequest {
			outcome = "rejected"
		}
		s.runs.WithLabelValues(mode, outcome).Inc()
		s.log.Warn("calculation failed", logging.String("error", err.Error()))
		fail(w, status(err), err)
		return
	}
	s.runs.WithLabelValues(mode, "ok").Inc()
	respond(w, http.StatusOK, resp)
}

func (s *Server) compute(r *http.Request, c *config.Config) (*Response, error) {
	ctx := r.Context()
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	opts := []pipeline.Option{pipeline.WithLogger(s.log), pipeline.WithFetcher(s.fetcher)}
	var rec *output.Recorder
	if s.cfg.OutputDir != "" {
		var err error
		rec, err = output.NewRun(s.cfg.OutputDir, s.cfg.Format, s.now(), s.log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithRecorder(rec))
	}
	p, err := pipeline.FromConfig(ctx, c, opts...)
	if err != nil {
		return nil, err
	}
	res, err := p.Run()
	if err != nil {
		return nil, err
	}
	out := &Response{
		Mode:        res.Mode.String(),
		ExpTime:     res.ExpTime,
		SNR:         res.SNR,
		Sensitivity: res.Sensitivity,
	}
	if rec != nil {
		if err := rec.WriteResult(output.ResultColumns(res)); err != nil {
			return nil, err
		}
		out.Run = filepath.Base(rec.Root)
	}
	return out, nil
}

// Types lists the type names known for a kind of entry
func (s *Server) Types(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	names := pipeline.TypeNames(kind)
	if len(names) == 0 {
		fail(w, http.StatusNotFound, fmt.Errorf("unknown kind '%s'", kind))
		return
	}
	respond(w, http.StatusOK, names)
}

// Formats lists the output formats
func (s *Server) Formats(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, output.Formats)
}

// ListRoutes returns the routes of the server as JSON
func (s *Server) ListRoutes(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.RouteTable.Endpoints())
}

// Files serves a file from a run folder
func (s *Server) Files(w http.ResponseWriter, r *http.Request) {
	if s.cfg.OutputDir == "" {
		http.Error(w, "the server does not keep run folders", http.StatusNotFound)
		return
	}
	run := chi.URLParam(r, "run")
	fn := filepath.Clean("/" + chi.URLParam(r, "*"))
	if strings.Contains(run, "..") || strings.ContainsAny(run, `/\`) {
		http.Error(w, "invalid run", http.StatusBadRequest)
		return
	}
	ReplyWithFile(w, r, fn, filepath.Join(s.cfg.OutputDir, run))
}

// ReplyWithFile replies to the client request by serving the given file name
func ReplyWithFile(w http.ResponseWriter, r *http.Request, fn string, fldr string) {
	filePath, err := filepath.Abs(filepath.Join(fldr, fn))
	if err != nil {
		fstr := fmt.Sprintf("unable to compute abspath of file %s %s %s", fldr, fn, err)
		http.Error(w, fstr, http.StatusInternalServerError)
		return
	}

	f, err := os.Open(filePath)
	if err != nil {
		http.Error(w, fmt.Sprintf("file missing %s", fn), http.StatusNotFound)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		http.Error(w, fmt.Sprintf("file missing %s", fn), http.StatusNotFound)
		return
	}
	http.ServeContent(w, r, filepath.Base(fn), stat.ModTime(), f)
}
