package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/sensorflow/internal/app/query"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	CORSOrigins []string
	Metrics     http.Handler
	Logger      *slog.Logger
}

// NewRouter wires the read API, health and metrics endpoints.
func NewRouter(svc *query.Service, health Pinger, opts Options) *mux.Router {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}
	h := &handler{svc: svc, health: health, log: opts.Logger}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	data := r.PathPrefix("/api/SensorData").Subrouter()
	data.HandleFunc("", h.all).Methods(http.MethodGet)
	data.HandleFunc("/latest", h.latest).Methods(http.MethodGet)
	data.HandleFunc("/bySensor/{sensorId}", h.bySensor).Methods(http.MethodGet)
	data.HandleFunc("/byType/{sensorType}", h.byType).Methods(http.MethodGet)
	data.HandleFunc("/summary", h.summary).Methods(http.MethodGet)

	r.HandleFunc("/api/SensorErrors", h.topErrors).Methods(http.MethodGet)
	return r
}

// Handler decorates the router with CORS, panic recovery and access logging.
func Handler(r *mux.Router, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var out http.Handler = r
	out = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{logger}))(out)
	if len(opts.CORSOrigins) > 0 {
		out = handlers.CORS(
			handlers.AllowedOrigins(opts.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(out)
	}
	return handlers.CustomLoggingHandler(io.Discard, out, func(_ io.Writer, p handlers.LogFormatterParams) {
		logger.Info("http_request",
			"method", p.Request.Method,
			"path", p.URL.Path,
			"status", p.StatusCode,
			"bytes", p.Size,
		)
	})
}

type recoveryLogger struct{ log *slog.Logger }

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error("http_panic", "panic", v)
}
