package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/barryq93/dbexpiry/internal/db"
	"github.com/barryq93/dbexpiry/internal/types"
	"github.com/sirupsen/logrus"
)

// Setup errors. Run wraps one of these whenever it stops before probing.
var (
	ErrClientInit = errors.New("failed to initialize database client")
	ErrTargetList = errors.New("failed to load database list")
	ErrNoTargets  = errors.New("no databases to check")
	ErrQueryFile  = errors.New("failed to load SQL query")
	ErrEmptyQuery = errors.New("SQL query is empty or could not be loaded")
)

type clientFactory func(db.Options) (Fetcher, error)

func newDBClient(opts db.Options) (Fetcher, error) {
	client, err := db.NewDBClient(opts)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type Application struct {
	settings  types.Settings
	logger    logrus.FieldLogger
	metrics   *Metrics
	newClient clientFactory

	// Batches never overlap, even when watch mode triggers back to back.
	mu sync.Mutex
}

func NewApplication(settings types.Settings, logger logrus.FieldLogger) *Application {
	return &Application{
		settings:  settings,
		logger:    logger,
		metrics:   NewMetrics(),
		newClient: newDBClient,
	}
}

func (app *Application) Metrics() *Metrics {
	return app.metrics
}

// Run performs one batch: client init, loading the target list and query,
// probing every target and logging the completion line. A returned error is
// always a setup error; per-target failures only show up in the summary.
func (app *Application) Run(ctx context.Context) (types.Summary, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if err := Validate(app.settings); err != nil {
		return nil, fmt.Errorf("invalid settings: %v", err)
	}

	client, err := app.newClient(db.Options{
		Driver:       strings.ToLower(app.settings.Driver),
		LibDir:       app.settings.LibDir,
		ConfigDir:    app.settings.ConfigDir,
		ConnectRate:  app.settings.ConnectRate,
		ConnectBurst: app.settings.ConnectBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientInit, err)
	}

	targets, err := LoadTargets(app.settings.DBList)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTargetList, err)
	}
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	query, err := LoadQuery(app.settings.SQLFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFile, err)
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	scheduler, err := NewScheduler(app.settings.Workers, app.logger)
	if err != nil {
		return nil, err
	}

	app.logger.Infof("Starting expiry check for %d databases with %d workers...", len(targets), app.settings.Workers)

	app.metrics.BatchStarted()
	tally := newTally()
	prober := &recordingProber{
		inner:   NewProber(client, app.logger, time.Duration(app.settings.Timeout)*time.Second),
		metrics: app.metrics,
		tally:   tally,
	}
	scheduler.RunAll(ctx, prober, targets, query)

	summary := tally.Summary()
	app.metrics.BatchCompleted(time.Now())
	if app.settings.MetricsFile != "" {
		if err := app.metrics.WriteTextfile(app.settings.MetricsFile); err != nil {
			app.logger.Errorf("Failed to write metrics file %s: %v", app.settings.MetricsFile, err)
		}
	}

	fields := logrus.Fields{"total": summary.Total()}
	for _, status := range types.Statuses {
		fields[string(status)] = summary[status]
	}
	app.logger.WithFields(fields).Info("Expiry check completed.")
	return summary, nil
}

// recordingProber feeds each outcome into the batch tally and the metrics.
type recordingProber struct {
	inner   TargetProber
	metrics *Metrics
	tally   *tally
}

func (p *recordingProber) Probe(ctx context.Context, target types.Target, query string) types.Outcome {
	p.metrics.inFlight.Inc()
	defer p.metrics.inFlight.Dec()

	out := p.inner.Probe(ctx, target, query)
	p.metrics.Observe(out)
	p.tally.Add(out.Status)
	return out
}

type tally struct {
	mu     sync.Mutex
	counts types.Summary
}

func newTally() *tally {
	return &tally{counts: make(types.Summary)}
}

func (t *tally) Add(status types.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[status]++
}

func (t *tally) Summary() types.Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(types.Summary, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}
