// Package app wires the pipeline graph, store engine, page cache,
// filtered view and retention scheduler into one running instance, and
// exposes a minimal admin HTTP surface over the result (spec
// component P).
package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"logcore/internal/cache"
	"logcore/internal/config"
	"logcore/internal/intern"
	"logcore/internal/pipeline"
	"logcore/internal/record"
	"logcore/internal/retention"
	"logcore/internal/settings"
	"logcore/internal/store"
	"logcore/internal/view"
)

// Options configures one App instance.
type Options struct {
	StorePath   string
	Schema      store.Schema
	Durability  store.Durability
	AutoMigrate bool

	CachePages int
	PageSize   int

	AdminAddr string

	Logger *logrus.Logger
}

func (o *Options) applyDefaults() {
	if o.CachePages <= 0 {
		o.CachePages = 16
	}
	if o.PageSize <= 0 {
		o.PageSize = 256
	}
	if o.AdminAddr == "" {
		o.AdminAddr = ":9090"
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// App is the assembled runtime: a stage graph producers dispatch into,
// a store engine and page cache backing reads, a filtered view for the
// admin query endpoint, the settings manager every stage's Proxy was
// registered against, and a retention scheduler enforcing the store's
// prune bounds in the background.
type App struct {
	opts Options

	pool    *record.Pool
	graph   *pipeline.Graph
	engine  *store.Engine
	cache   *cache.Cache
	view    *view.View
	manager *config.Manager
	watcher *config.Watcher
	janitor *retention.Scheduler

	server *adminServer

	mu      sync.Mutex
	started bool
}

// New assembles an App. Stages must be added via AddStage/Connect
// before Start; New alone does not build a default topology, since the
// concrete stage set is a deployment decision the caller makes (which
// forwarders are enabled, what the retention policy is).
func New(opts Options, settingsDoc config.Document) (*App, error) {
	opts.applyDefaults()

	engine, err := store.Open(opts.StorePath, store.Options{
		Schema:      opts.Schema,
		Durability:  opts.Durability,
		AutoMigrate: opts.AutoMigrate,
	})
	if err != nil {
		return nil, err
	}

	pageCache, err := cache.New(engine, opts.CachePages, opts.PageSize)
	if err != nil {
		engine.Close()
		return nil, err
	}

	settingsStore, err := settingsDoc.NewStore()
	if err != nil {
		engine.Close()
		return nil, err
	}

	a := &App{
		opts:    opts,
		pool:    record.NewPool(intern.New()),
		graph:   pipeline.NewGraph(),
		engine:  engine,
		cache:   pageCache,
		view:    view.New(engine, nil),
		manager: config.NewManager(settingsStore),
	}
	a.server = newAdminServer(a, opts.AdminAddr, opts.Logger)

	maxCountProxy := a.manager.Register("retention", "max_count", int64(-1), settings.IntConverter{})
	maxAgeProxy := a.manager.Register("retention", "max_age", time.Duration(0), settings.DurationConverter{})
	a.janitor = retention.NewScheduler(engine, retention.Config{
		CheckInterval:   time.Minute,
		MaxCountProxy:   maxCountProxy,
		MaxAgeProxy:     maxAgeProxy,
		DefaultMaxCount: -1,
		OnPruned: func(ctx context.Context, fromID, toID int64) {
			pageCache.PruneNotification(fromID, toID)
			if err := a.view.OnPruned(ctx, fromID, toID, nil); err != nil {
				opts.Logger.WithError(err).Warn("view failed to recompute overview counts after prune")
			}
		},
	}, opts.Logger)

	return a, nil
}

// Pool returns the record pool Ingest builds each record from.
func (a *App) Pool() *record.Pool { return a.pool }

// Graph exposes the stage graph for AddStage/Connect calls made while
// assembling the topology, before Start.
func (a *App) Graph() *pipeline.Graph { return a.graph }

// Manager exposes the settings manager stages register their typed
// proxies against.
func (a *App) Manager() *config.Manager { return a.manager }

// Engine exposes the store engine, e.g. for a store-writer stage
// constructor or a retention loop.
func (a *App) Engine() *store.Engine { return a.engine }

// View exposes the filtered view for the admin query endpoint and for
// wiring OnAppended/OnPruned from a store-writer/retention loop.
func (a *App) View() *view.View { return a.view }

// WatchConfig starts watching path for changes, reloading Manager's
// store on every debounced edit. Call before Start.
func (a *App) WatchConfig(path string, cfg config.WatcherConfig) error {
	w, err := config.NewWatcher(path, a.manager, cfg, a.opts.Logger)
	if err != nil {
		return err
	}
	a.watcher = w
	return nil
}

// Ingest builds a record from fields, publishes it, and dispatches it
// into the named entry stage, releasing its own reference once
// dispatch returns (per the graph's Dispatch reference contract).
func (a *App) Ingest(entryStage string, fields record.Fields) error {
	rec := a.pool.Get(fields)
	rec.Publish()
	return a.graph.Dispatch(entryStage, rec)
}

// Start initializes the stage graph (spinning up every async worker)
// and the admin HTTP server, and starts the config watcher if one was
// configured.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	if err := a.graph.Initialize(ctx); err != nil {
		return err
	}
	if a.watcher != nil {
		a.watcher.Start(ctx)
	}
	a.janitor.Start(ctx)
	a.server.start()
	a.started = true
	return nil
}

// Shutdown drains the stage graph, stops the config watcher and admin
// server, and closes the store engine.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a.graph.Shutdown(shutdownCtx)
	a.janitor.Stop()
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.server.stop(shutdownCtx)
	a.started = false
	return a.engine.Close()
}
