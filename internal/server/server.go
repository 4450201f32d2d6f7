// Package server exposes a snowflake pool over HTTP.
//
// Routes:
//
//	GET /                     one ID, same as /v1/snowflake
//	GET /v1/snowflake         {"snowflake":"<id>"}
//	GET /v1/snowflake/{id}    decoded components; ?format= selects the encoding
//	GET /healthz              {"status":"ok"} while the pool accepts work
//	GET /metrics              Prometheus exposition, when a gatherer is set
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sxyafiq/snowflaked/api"
	"github.com/sxyafiq/snowflaked/snowflake"
)

// Defaults applied by New to zero Options fields.
const (
	DefaultRequestTimeout  = time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// Dispatcher hands out IDs. *pool.Pool implements it.
type Dispatcher interface {
	Generate(ctx context.Context) (snowflake.ID, error)
	Closed() bool
}

// Options configures a Server.
type Options struct {
	Pool Dispatcher

	// Layout and Epoch decode IDs on /v1/snowflake/{id}. They should match
	// the pool's.
	Layout snowflake.BitLayout
	Epoch  int64

	// RequestTimeout bounds the wait for a generated ID.
	RequestTimeout time.Duration
	// ShutdownTimeout bounds the graceful shutdown in ListenAndServe.
	ShutdownTimeout time.Duration

	Logger logrus.FieldLogger
	// Gatherer backs /metrics. nil disables the route.
	Gatherer prometheus.Gatherer
}

// Server is the HTTP front of a pool.
type Server struct {
	opts Options
	log  logrus.FieldLogger
	srv  *http.Server
}

// New builds the router. Nothing listens until ListenAndServe or Serve.
func New(opts Options) *Server {
	if opts.Layout == (snowflake.BitLayout{}) {
		opts.Layout = snowflake.LayoutDefault
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	s := &Server{opts: opts, log: opts.Logger}

	r := mux.NewRouter()
	r.Use(requestID, s.accessLog)
	r.HandleFunc("/", s.handleSnowflake).Methods(http.MethodGet)
	r.HandleFunc("/v1/snowflake", s.handleSnowflake).Methods(http.MethodGet)
	r.HandleFunc("/v1/snowflake/{id}", s.handleDecode).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.srv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe listens on addr and serves until ctx ends, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.log.WithField("addr", l.Addr().String()).Info("http server listening")

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()

	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		err := s.srv.Shutdown(cctx)
		<-errCh
		s.log.Info("http server stopped")
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close closes the listener immediately.
func (s *Server) Close() {
	_ = s.srv.Close()
}

func (s *Server) handleSnowflake(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	id, err := s.opts.Pool.Generate(ctx)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewSnowflakeResponse(id))
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]

	var (
		id  snowflake.ID
		err error
	)
	if name := r.URL.Query().Get("format"); name != "" {
		var f snowflake.Format
		if f, err = snowflake.ParseFormatName(name); err == nil {
			id, err = snowflake.ParseFormat(raw, f)
		}
	} else {
		id, err = snowflake.Parse(raw)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, api.Response{
		Components: api.NewComponents(id, s.opts.Layout, s.opts.Epoch),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Pool.Closed() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "closing"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps a generation failure to its HTTP status.
func statusFor(err error) int {
	switch snowflake.KindOf(err) {
	case snowflake.KindQueueFull, snowflake.KindPoolClosed:
		return http.StatusServiceUnavailable
	case snowflake.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, api.NewErrorResponse(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = api.Encode(w, v)
}
