package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/specialistvlad/formulagrid/internal/document"
	"github.com/specialistvlad/formulagrid/internal/engine"
	"github.com/specialistvlad/formulagrid/internal/extdata"
	"github.com/specialistvlad/formulagrid/internal/metrics"
	"github.com/specialistvlad/formulagrid/internal/provider"
	"github.com/specialistvlad/formulagrid/internal/provider/rabbitmq"
	"github.com/specialistvlad/formulagrid/internal/provider/socketio"
	"github.com/specialistvlad/formulagrid/internal/scopetree"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	metrics *metrics.Metrics
	tree    *scopetree.Tree
	ns      *extdata.Namespace
	engine  *engine.Engine
	poller  *provider.Poller

	doc        *document.Document
	httpServer *http.Server
}

// NewApp wires the engine, the scope tree and the telemetry sources described
// by cfg. Reports and logs are written to outW.
func NewApp(outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		metrics: metrics.New(),
		tree:    scopetree.New("Sequence"),
		ns:      extdata.New(),
	}
	a.engine = engine.New(a.tree,
		engine.WithNamespace(a.ns),
		engine.WithMetrics(a.metrics),
		engine.WithLockTimeout(cfg.Settings.LockTimeout.Duration),
		engine.WithWarningFunc(func(ctx context.Context, message string) {
			logger.Warn(message)
		}),
	)

	poller, err := provider.NewPoller(a.ns,
		provider.WithSchedule(cfg.Settings.PollSchedule),
		provider.WithMetrics(a.metrics),
		provider.WithRefresher(a.engine),
	)
	if err != nil {
		return nil, err
	}
	a.poller = poller

	sources, err := newSources(cfg.Settings)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		if err := a.poller.Add(src); err != nil {
			return nil, fmt.Errorf("failed to register source %q: %w", src.Name(), err)
		}
	}
	logger.Debug("Telemetry sources registered.", "sources", a.poller.Sources())

	return a, nil
}

// newSources builds the telemetry sources enabled in s.
func newSources(s Settings) ([]provider.Source, error) {
	var sources []provider.Source
	if s.Clock != nil {
		loc := time.Local
		if s.Clock.Location != "" {
			var err error
			if loc, err = time.LoadLocation(s.Clock.Location); err != nil {
				return nil, fmt.Errorf("invalid clock location %q: %w", s.Clock.Location, err)
			}
		}
		sources = append(sources, provider.NewClock(s.Clock.Name, provider.WithClockLocation(loc)))
	}
	if s.Env != nil {
		sources = append(sources, provider.NewEnv(s.Env.Name, s.Env.Prefix))
	}
	for _, c := range s.SocketIO {
		src, err := socketio.New(c)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	for _, c := range s.RabbitMQ {
		src, err := rabbitmq.New(c)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// Engine returns the application's engine. This is primarily for testing.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Namespace returns the external data namespace. This is primarily for testing.
func (a *App) Namespace() *extdata.Namespace {
	return a.ns
}

// Document returns the loaded document, nil before Run.
func (a *App) Document() *document.Document {
	return a.doc
}
