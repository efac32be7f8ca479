// Package engine orchestrates a scan: traffic generation, capture
// normalization and the endpoint x context x strategy attack matrix.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"authfuzz/pkg/attacks"
	"authfuzz/pkg/capture"
	apperrors "authfuzz/pkg/errors"
	"authfuzz/pkg/logger"
	"authfuzz/pkg/metrics"
	"authfuzz/pkg/report"
	"authfuzz/pkg/runner"
	"authfuzz/pkg/transport"

	"github.com/sirupsen/logrus"
)

const (
	ReasonCancelled     = "cancelled"
	ReasonGenerator     = "traffic generation failed"
	ReasonNormalization = "capture normalization failed"
	ReasonPersistence   = "report persistence failed"
)

// Hook runs after a scan finished and its report is stored. Hook errors are
// logged and never change the scan status.
type Hook interface {
	Name() string
	Execute(ctx context.Context, hc HookContext) error
}

type HookContext struct {
	State  ScanState
	Report *report.Report
}

// CaptureWatcher observes the capture log while a target's traffic is being
// generated. Watch must return once ctx is done.
type CaptureWatcher interface {
	Watch(ctx context.Context, scanID, capturePath string)
}

type EngineOpts struct {
	transport   transport.Doer
	catalog     attacks.Catalog
	runners     *runner.Registry
	states      StateStore
	reports     report.Store
	capturePath string
	normalizer  *capture.Normalizer
	hooks       []Hook
	metrics     *metrics.Collector
	watcher     CaptureWatcher
	scanLogDir  string
	logger      *logger.Logger
}

type OptFunc func(*EngineOpts)

type Engine struct {
	EngineOpts
}

func NewEngine(opts ...OptFunc) *Engine {
	o := EngineOpts{
		catalog:     attacks.DefaultCatalog(),
		states:      NewMemoryStateStore(),
		reports:     report.NewFileStore("reports"),
		capturePath: "proxy_log.jsonl",
		logger:      logger.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.normalizer == nil {
		o.normalizer = capture.NewNormalizer(o.logger)
	}
	return &Engine{EngineOpts: o}
}

func WithTransport(d transport.Doer) OptFunc {
	return func(o *EngineOpts) { o.transport = d }
}

func WithCatalog(c attacks.Catalog) OptFunc {
	return func(o *EngineOpts) { o.catalog = c }
}

// WithRunners sets the traffic generators. Without runners the engine scans
// whatever is already in the capture log.
func WithRunners(r *runner.Registry) OptFunc {
	return func(o *EngineOpts) { o.runners = r }
}

func WithStateStore(s StateStore) OptFunc {
	return func(o *EngineOpts) { o.states = s }
}

func WithReportStore(s report.Store) OptFunc {
	return func(o *EngineOpts) { o.reports = s }
}

func WithCapturePath(p string) OptFunc {
	return func(o *EngineOpts) { o.capturePath = p }
}

func WithNormalizer(n *capture.Normalizer) OptFunc {
	return func(o *EngineOpts) { o.normalizer = n }
}

func WithHooks(h ...Hook) OptFunc {
	return func(o *EngineOpts) { o.hooks = append(o.hooks, h...) }
}

func WithMetrics(m *metrics.Collector) OptFunc {
	return func(o *EngineOpts) { o.metrics = m }
}

func WithCaptureWatcher(w CaptureWatcher) OptFunc {
	return func(o *EngineOpts) { o.watcher = w }
}

// WithScanLogDir mirrors each scan's log into dir/<scan_id>.log.
func WithScanLogDir(dir string) OptFunc {
	return func(o *EngineOpts) { o.scanLogDir = dir }
}

func WithLogger(l *logger.Logger) OptFunc {
	return func(o *EngineOpts) { o.logger = l }
}

func (e *Engine) States() StateStore { return e.states }

func (e *Engine) Reports() report.Store { return e.reports }

func (e *Engine) Catalog() attacks.Catalog { return e.catalog }

// scanError carries the reason recorded on the scan state.
type scanError struct {
	reason string
	err    error
}

func (e *scanError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *scanError) Unwrap() error { return e.err }

// Run executes one scan to a terminal state and returns its report. The scan
// state is created before anything else, so a status query finds it as soon
// as Run starts.
func (e *Engine) Run(ctx context.Context, scanID, target, baseURL string) (*report.Report, error) {
	if !report.ValidScanID(scanID) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidScanID, scanID)
	}
	if e.transport == nil {
		return nil, fmt.Errorf("%w: engine has no transport", apperrors.ErrInvalidConfig)
	}

	if err := e.states.Create(ScanState{
		ScanID:    scanID,
		Target:    target,
		BaseURL:   baseURL,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	e.metrics.ScanStarted()

	log := e.logger
	var scanLog *logger.ScanLogger
	if e.scanLogDir != "" {
		sl, err := logger.NewScanLogger(scanID, e.scanLogDir, logrus.InfoLevel)
		if err != nil {
			e.logger.WithScan(scanID).WithError(err).Warn("Scan log unavailable, using process log")
		} else {
			scanLog = sl
			log = sl.Logger
			defer sl.Close()
		}
	}

	log.WithFields(logger.Fields{
		"scan_id":  scanID,
		"target":   target,
		"base_url": baseURL,
	}).Info("Scan started")

	rep, err := e.execute(ctx, log, scanLog, scanID, target, baseURL)
	if err != nil {
		reason := "scan failed"
		var se *scanError
		if errors.As(err, &se) {
			reason = se.reason
		}
		e.fail(scanID, reason, err)
		if scanLog != nil {
			scanLog.LogScanFailure(reason, err, map[string]interface{}{"target": target})
		}
		return nil, err
	}

	state, _ := e.states.Get(scanID)
	e.metrics.ScanEnded(string(StatusFinished))
	if scanLog != nil {
		scanLog.LogScanSuccess(rep.Total, state.Total)
	}

	e.runHooks(ctx, log, HookContext{State: state, Report: rep})
	return rep, nil
}

func (e *Engine) execute(ctx context.Context, log *logger.Logger, scanLog *logger.ScanLogger, scanID, target, baseURL string) (*report.Report, error) {
	if err := e.generate(ctx, log, scanID, target, baseURL); err != nil {
		return nil, err
	}

	normalized, err := e.normalizer.NormalizeFile(e.capturePath)
	if err != nil {
		return nil, &scanError{reason: ReasonNormalization, err: err}
	}
	log.WithFields(logger.Fields{
		"scan_id":   scanID,
		"endpoints": len(normalized.Endpoints),
		"contexts":  len(normalized.Contexts),
		"records":   normalized.Stats.Records,
		"skipped":   normalized.Stats.Skipped,
	}).Info("Capture normalized")

	agg := report.NewAggregator()
	if err := e.runMatrix(ctx, log, scanLog, scanID, normalized, agg); err != nil {
		return nil, err
	}

	rep := agg.Build(scanID, target, baseURL)
	if err := e.reports.Save(rep); err != nil {
		return nil, &scanError{reason: ReasonPersistence, err: err}
	}

	now := time.Now().UTC()
	if err := e.states.Update(scanID, func(s *ScanState) {
		s.Status = StatusFinished
		s.Progress = 1.0
		s.Findings = rep.Total
		s.FinishedAt = &now
	}); err != nil {
		return nil, err
	}

	log.WithFields(logger.Fields{
		"scan_id":  scanID,
		"findings": rep.Total,
	}).Info("Scan finished")
	return rep, nil
}

// generate runs the target's traffic generator, watching the capture log
// while it runs.
func (e *Engine) generate(ctx context.Context, log *logger.Logger, scanID, target, baseURL string) error {
	if e.runners == nil {
		return nil
	}
	gen, err := e.runners.Get(target)
	if err != nil {
		return &scanError{reason: ReasonGenerator, err: err}
	}

	var wg sync.WaitGroup
	watchCtx, stopWatch := context.WithCancel(ctx)
	if e.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.watcher.Watch(watchCtx, scanID, e.capturePath)
		}()
	}

	err = log.Timed("generate traffic", logger.Fields{"scan_id": scanID, "target": target}, func() error {
		return gen.Generate(ctx, baseURL)
	})
	stopWatch()
	wg.Wait()

	if err != nil {
		if ctx.Err() != nil {
			return &scanError{reason: ReasonCancelled, err: ctx.Err()}
		}
		return &scanError{reason: ReasonGenerator, err: err}
	}
	return nil
}

// runMatrix walks endpoints, then contexts, then strategies. done and
// progress advance by exactly one triple before the strategy is consulted,
// whether or not it applies.
func (e *Engine) runMatrix(ctx context.Context, log *logger.Logger, scanLog *logger.ScanLogger, scanID string, n *capture.Result, agg *report.Aggregator) error {
	total := len(n.Endpoints) * len(n.Contexts) * len(e.catalog)
	if err := e.states.Update(scanID, func(s *ScanState) { s.Total = total }); err != nil {
		return err
	}

	done := 0
	for _, ep := range n.Endpoints {
		for _, ac := range n.Contexts {
			for _, strategy := range e.catalog {
				if err := ctx.Err(); err != nil {
					return &scanError{reason: ReasonCancelled, err: err}
				}

				done++
				if err := e.states.Update(scanID, func(s *ScanState) {
					s.Done = done
					s.Progress = float64(done) / float64(total)
				}); err != nil {
					return err
				}

				applicable, results, err := e.runStrategy(ctx, strategy, ep, ac)
				e.metrics.WorkUnit(strategy.Name(), applicable)
				if err != nil {
					serr := apperrors.NewStrategyError(strategy.Name(), ep.Descriptor(), err)
					e.metrics.StrategyFailed(strategy.Name())
					if scanLog != nil {
						scanLog.LogStrategyFailure(strategy.Name(), ep.Descriptor(), err)
					} else {
						log.WithStrategy(strategy.Name(), ep.Descriptor()).WithError(serr).Warn("Strategy failed, continuing")
					}
					results = nil
				}
				for _, r := range results {
					e.metrics.Finding(r.Vulnerability, string(r.Severity))
				}
				if len(results) == 0 {
					continue
				}
				agg.Add(results...)

				findings := agg.Len()
				if err := e.states.Update(scanID, func(s *ScanState) { s.Findings = findings }); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// runStrategy isolates one triple. A panic in Applicable or Run is turned
// into an error.
func (e *Engine) runStrategy(ctx context.Context, s attacks.Strategy, ep *capture.Endpoint, ac *capture.AuthContext) (applicable bool, results []attacks.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if !s.Applicable(ep, ac) {
		return false, nil, nil
	}
	results, err = s.Run(ctx, ep, ac, e.transport)
	return true, results, err
}

func (e *Engine) fail(scanID, reason string, err error) {
	now := time.Now().UTC()
	uerr := e.states.Update(scanID, func(s *ScanState) {
		s.Status = StatusError
		s.Error = reason
		s.FinishedAt = &now
	})
	if uerr != nil {
		e.logger.WithScan(scanID).WithError(uerr).Warn("Could not record scan failure")
		return
	}
	e.metrics.ScanEnded(string(StatusError))
	e.logger.WithScan(scanID).WithError(err).WithField("reason", reason).Error("Scan failed")
}

func (e *Engine) runHooks(ctx context.Context, log *logger.Logger, hc HookContext) {
	for _, h := range e.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithScan(hc.State.ScanID).WithField("hook", h.Name()).Errorf("Post-scan hook panicked: %v", r)
				}
			}()
			if err := h.Execute(ctx, hc); err != nil {
				log.WithScan(hc.State.ScanID).WithField("hook", h.Name()).WithError(err).Warn("Post-scan hook failed")
			}
		}()
	}
}
