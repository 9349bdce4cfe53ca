package sensorflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/sensorflow/internal/adapters/codec"
	"github.com/ghalamif/sensorflow/internal/adapters/deadletter"
	"github.com/ghalamif/sensorflow/internal/adapters/dynamo"
	"github.com/ghalamif/sensorflow/internal/adapters/observability"
	"github.com/ghalamif/sensorflow/internal/adapters/opcua"
	"github.com/ghalamif/sensorflow/internal/adapters/store"
	"github.com/ghalamif/sensorflow/internal/adapters/transport"
	"github.com/ghalamif/sensorflow/internal/api"
	"github.com/ghalamif/sensorflow/internal/app/aggregator"
	"github.com/ghalamif/sensorflow/internal/app/generator"
	"github.com/ghalamif/sensorflow/internal/app/ingest"
	"github.com/ghalamif/sensorflow/internal/app/pipeline"
	"github.com/ghalamif/sensorflow/internal/app/query"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// Role selects which part of the system a Runtime runs. One process may run several.
type Role string

const (
	RoleProducer Role = "producer"
	RoleConsumer Role = "consumer"
	RoleAPI      Role = "api"
)

// ParseRoles accepts role names, including comma separated lists. "all" expands to every role.
func ParseRoles(names []string) ([]Role, error) {
	var out []Role
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			switch r := Role(strings.ToLower(strings.TrimSpace(part))); r {
			case "":
			case "all":
				out = append(out, RoleProducer, RoleConsumer, RoleAPI)
			case RoleProducer, RoleConsumer, RoleAPI:
				out = append(out, r)
			default:
				return nil, fmt.Errorf("unknown role %q", part)
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("at least one role is required")
	}
	return out, nil
}

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	store         Store
	localStore    ReadingStore
	transport     Transport
	observability Observability
	codec         Codec
	deadLetter    DeadLetterLog
	collector     Collector
	callbacks     []ReadingCallback
	logger        *slog.Logger
}

// WithStore replaces the configured store. The caller keeps ownership and closes it.
func WithStore(s Store) RuntimeOption {
	return func(o *runtimeOverrides) { o.store = s }
}

// WithLocalStore gives the producer a store for its own copy of generated readings.
func WithLocalStore(s ReadingStore) RuntimeOption {
	return func(o *runtimeOverrides) { o.localStore = s }
}

// WithTransport replaces the configured transport. The caller keeps ownership.
func WithTransport(t Transport) RuntimeOption {
	return func(o *runtimeOverrides) { o.transport = t }
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) { o.observability = obs }
}

func WithCodec(c Codec) RuntimeOption {
	return func(o *runtimeOverrides) { o.codec = c }
}

// WithDeadLetter replaces the file-backed dead-letter log.
func WithDeadLetter(d DeadLetterLog) RuntimeOption {
	return func(o *runtimeOverrides) { o.deadLetter = d }
}

// WithCollector adds an external reading source to the producer role.
func WithCollector(col Collector) RuntimeOption {
	return func(o *runtimeOverrides) { o.collector = col }
}

// WithReadingCallback calls fn for every reading the consumer persists.
func WithReadingCallback(fn ReadingCallback) RuntimeOption {
	return func(o *runtimeOverrides) { o.callbacks = append(o.callbacks, fn) }
}

func WithLogger(l *slog.Logger) RuntimeOption {
	return func(o *runtimeOverrides) { o.logger = l }
}

// Runtime wires generator → transport → consumer → store and the read API, and exposes
// simple lifecycle hooks for embedding SensorFlow inside any Go service.
type Runtime struct {
	cfg        *Config
	log        *slog.Logger
	registry   *prometheus.Registry
	obs        ports.Observability
	codec      ports.Codec
	dlq        ports.DeadLetterLog
	transport  ports.Transport
	store      ports.Store
	localStore ports.ReadingStore
	collector  ports.Collector
	aggregator *aggregator.Aggregator
	query      *query.Service

	closers []func() error

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	errCh   chan error
	servers []*http.Server
	started bool
}

// NewRuntime bootstraps the default adapters from cfg. Options override any of them.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (rt *Runtime, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	rt = &Runtime{cfg: cfg, errCh: make(chan error, 4)}
	defer func() {
		if err != nil {
			_ = rt.runClosers()
		}
	}()

	rt.log = overrides.logger
	if rt.log == nil {
		rt.log = NewLogger(cfg)
	}

	rt.registry = prometheus.NewRegistry()
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.obs = overrides.observability
	if rt.obs == nil {
		rt.obs = observability.NewPromObs(rt.registry, rt.log)
	}

	rt.codec = overrides.codec
	if rt.codec == nil {
		if rt.codec, err = codec.New(cfg.Transport.Codec); err != nil {
			return nil, err
		}
	}

	rt.dlq = overrides.deadLetter
	if rt.dlq == nil {
		fl, err := deadletter.Open(cfg.DeadLetter.Dir)
		if err != nil {
			return nil, fmt.Errorf("open dead-letter log: %w", err)
		}
		rt.dlq = fl
		rt.closers = append(rt.closers, fl.Close)
	}

	rt.store = overrides.store
	if rt.store == nil {
		if rt.store, err = OpenStore(cfg.Store, rt.log); err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, rt.store.Close)
	}
	for _, fn := range overrides.callbacks {
		rt.store = NewCallbackStore(rt.store, fn)
	}

	rt.localStore = overrides.localStore
	if rt.localStore == nil && cfg.Producer.LocalStore.Driver != "" {
		local, err := OpenStore(cfg.Producer.LocalStore, rt.log)
		if err != nil {
			return nil, fmt.Errorf("producer local store: %w", err)
		}
		rt.localStore = local
		rt.closers = append(rt.closers, local.Close)
	}

	rt.transport = overrides.transport
	if rt.transport == nil {
		if rt.transport, err = OpenTransport(cfg, rt.dlq, rt.obs, rt.log); err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, rt.transport.Close)
	}

	rt.collector = overrides.collector
	if rt.collector == nil && cfg.OPCUA.Enabled {
		if rt.collector, err = opcua.NewCollector(cfg.OPCUA, rt.log); err != nil {
			return nil, err
		}
	}

	rt.aggregator = aggregator.New(rt.store)
	rt.query = query.NewService(rt.store)
	return rt, nil
}

// OpenStore opens the store described by sc, including the optional DynamoDB error backend.
func OpenStore(sc StoreConfig, log *slog.Logger) (Store, error) {
	var (
		s   ports.Store
		err error
	)
	switch sc.Driver {
	case "", "memory":
		s = store.NewMemoryStore()
	case "sqlite":
		s, err = store.OpenSQLite(store.SQLiteConfig{Path: sc.DSN, PoolSize: sc.PoolSize, Logger: log})
		if err != nil {
			return nil, err
		}
	case "postgres":
		db, err := sql.Open("postgres", sc.DSN)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgresStore(db, sc.ReadingsTable, sc.ErrorsTable)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		s = pg
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}

	if sc.ErrorsBackend == "dynamodb" {
		errs, err := dynamo.NewErrorStore(sc.DynamoDB.Adapter())
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		return &store.Split{Readings: s, Errors: errs}, nil
	}
	return s, nil
}

// OpenTransport builds the transport named by cfg.Transport.Kind. Consumers dead-letter
// into dlq.
func OpenTransport(cfg *Config, dlq DeadLetterLog, obs Observability, log *slog.Logger) (Transport, error) {
	pol := cfg.Policy()
	var (
		t   Transport
		err error
	)
	switch cfg.Transport.Kind {
	case "", "memory":
		t = transport.NewMemory(pol, dlq, obs)
	case "kafka":
		t, err = transport.NewKafka(cfg.Transport.Kafka.Adapter(), pol, dlq, obs, log)
	case "mqtt":
		t, err = transport.NewMQTT(cfg.Transport.MQTT.Adapter(), pol, dlq, obs, log)
	default:
		err = fmt.Errorf("unknown transport %q", cfg.Transport.Kind)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Start launches the requested roles plus the metrics server. It returns immediately;
// call Run to block on a context instead.
func (r *Runtime) Start(ctx context.Context, roles ...Role) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runtime already started")
	}
	if len(roles) == 0 {
		roles = []Role{RoleProducer, RoleConsumer, RoleAPI}
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for _, role := range roles {
		switch role {
		case RoleProducer:
			gen := generator.New(generator.Config{
				Interval:       r.cfg.Producer.Interval,
				Backoff:        r.cfg.Producer.Backoff,
				PublishTimeout: r.cfg.Producer.PublishTimeout,
				Seed:           r.cfg.Producer.Seed,
			}, r.localStore, r.transport, r.codec, r.obs)
			r.goRun(ctx, "generator", gen.Run)

			if r.collector != nil {
				if err := pipeline.RunCollectorPipeline(ctx, r.collector, r.transport, r.codec, r.cfg.Policy(), r.obs); err != nil {
					cancel()
					return fmt.Errorf("start collector: %w", err)
				}
			}
		case RoleConsumer:
			cons := ingest.NewConsumer(r.store, r.aggregator, r.obs, ingest.WithOpTimeout(r.cfg.Consumer.OpTimeout))
			r.goRun(ctx, "consumer", func(ctx context.Context) error {
				return r.transport.Subscribe(ctx, cons.Handle)
			})
		case RoleAPI:
			opts := api.Options{CORSOrigins: r.cfg.API.CORSOrigins, Metrics: r.MetricsHandler(), Logger: r.log}
			r.serve(r.cfg.API.Addr, api.Handler(api.NewRouter(r.query, r.store, opts), opts))
		default:
			cancel()
			return fmt.Errorf("unknown role %q", role)
		}
	}

	r.startMetrics(ctx, roles)
	r.started = true
	r.log.Info("runtime_started", "roles", roles, "transport", r.transport.Name(), "store", r.store.Name())
	return nil
}

// Run starts the runtime and blocks until the context is cancelled or a role fails.
// Either way it attempts a graceful shutdown.
func (r *Runtime) Run(ctx context.Context, roles ...Role) error {
	if err := r.Start(ctx, roles...); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-r.errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(runErr, r.Shutdown(shutdownCtx))
}

// Shutdown stops the roles, lets in-flight messages finish, then closes the HTTP servers,
// the transport, the stores and the dead-letter log.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	r.mu.Lock()
	cancel := r.cancel
	servers := r.servers
	r.servers = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if r.collector != nil {
		if err := r.collector.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for roles: %w", ctx.Err()))
	}

	if err := r.runClosers(); err != nil {
		errs = append(errs, err)
	}
	r.log.Info("runtime_stopped")
	return errors.Join(errs...)
}

func (r *Runtime) runClosers() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) goRun(ctx context.Context, name string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := fn(ctx); err != nil {
			r.log.Error("role_failed", "role", name, "err", err)
			select {
			case r.errCh <- fmt.Errorf("%s: %w", name, err):
			default:
			}
		}
	}()
}

func (r *Runtime) serve(addr string, h http.Handler) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	r.servers = append(r.servers, srv)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("http_server_exited", "addr", addr, "err", err)
			select {
			case r.errCh <- err:
			default:
			}
		}
	}()
}

func (r *Runtime) startMetrics(ctx context.Context, roles []Role) {
	addr := r.cfg.Metrics.Addr
	servesAPI := false
	for _, role := range roles {
		servesAPI = servesAPI || role == RoleAPI
	}
	if addr != "" && !(servesAPI && addr == r.cfg.API.Addr) {
		mux := http.NewServeMux()
		mux.Handle("/metrics", r.MetricsHandler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		r.serve(addr, mux)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.recordResourceGauges(ctx, time.Second)
	}()
}

func (r *Runtime) recordResourceGauges(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.obs.SetGauge(ports.MetricDLQSize, float64(r.dlq.Stats().SizeBytes))
		}
	}
}

// MetricsHandler serves this runtime's Prometheus registry.
func (r *Runtime) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Runtime) Store() Store { return r.store }

func (r *Runtime) Transport() Transport { return r.transport }

func (r *Runtime) DeadLetter() DeadLetterLog { return r.dlq }

func (r *Runtime) Query() *query.Service { return r.query }

// Publisher returns a publisher bound to this runtime's transport and codec.
func (r *Runtime) Publisher() *Publisher {
	return NewPublisher(r.transport, r.codec, r.obs)
}
