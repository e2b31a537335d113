package engine

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/starford/spotter/internal/memindex"
	"github.com/starford/spotter/internal/models"
	"github.com/starford/spotter/internal/scanner"
)

type scanResult struct {
	report ScanReport
	err    error
}

// Run owns every mutation of the store and the index. It loads or scans on
// start and then serves operations and change events until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)

	e.start()

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		e.stopScan()
		e.stopMonitor()
	}()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine: stopped")
			return nil

		case op := <-e.ops:
			op()

		case ev := <-e.events:
			e.pending = append(e.pending, ev)
			if timer == nil {
				timer = time.NewTimer(e.debounce)
				timerC = timer.C
			} else {
				timer.Reset(e.debounce)
			}

		case <-timerC:
			if e.State() != StateScanning {
				e.applyPending()
			}

		case res := <-e.scanDone:
			e.finishScan(res)
		}
	}
}

// start builds the index from the store when it holds records scanned with
// the current settings, and scans otherwise.
func (e *Engine) start() {
	e.setState(StateLoading)
	fp := e.cfg.Fingerprint()

	st, err := e.store.Stats()
	if err != nil {
		e.logger.Warn("engine: store unreadable, rescanning", slog.String("error", err.Error()))
		e.startScan()
		return
	}
	stored, err := e.store.Fingerprint()
	if err != nil || st.Count == 0 || stored != fp {
		e.logger.Info("engine: fresh scan required", slog.Int("records", st.Count), slog.Bool("settings_changed", stored != fp))
		e.startScan()
		return
	}

	records, err := e.store.LoadAll()
	if err != nil {
		e.logger.Warn("engine: load failed, rescanning", slog.String("error", err.Error()))
		e.startScan()
		return
	}
	started := time.Now()
	e.index.Build(records)
	e.logger.Info("engine: index loaded",
		slog.Int("records", len(records)),
		slog.Duration("duration", time.Since(started)))

	e.becomeReady()
	e.startMonitor()
}

func (e *Engine) becomeReady() {
	e.setState(StateReady)
	e.readyOnce.Do(func() { close(e.ready) })
	e.notify(NotifyReady, e.Status())
}

// startScan cancels the scan in flight and starts a fresh one on its own
// goroutine. Its result comes back through scanDone.
func (e *Engine) startScan() {
	e.stopScan()
	e.stopMonitor()

	cfg := e.cfg
	rules := e.scope.rules
	e.scanner.Reset()
	e.userCanceled.Store(false)
	e.setState(StateScanning)
	e.notify(NotifyScanStarted, nil)
	e.logger.Info("engine: scan started",
		slog.Int("app_scopes", len(cfg.AppScopes)),
		slog.Int("document_scopes", len(cfg.DocumentScopes)))

	// Changes made while scanning are held and applied afterwards.
	e.startMonitor()

	// The scan context is only canceled when the result is no longer wanted.
	ctx, cancel := context.WithCancel(context.Background())
	e.scanCancel = cancel
	e.scanWG.Add(1)
	go func() {
		defer e.scanWG.Done()
		res := e.scan(ctx, cfg.AppScopes, cfg.DocumentScopes, rules)
		select {
		case e.scanDone <- res:
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) scan(ctx context.Context, apps, docs []string, rules *scanner.Rules) (res scanResult) {
	defer func() {
		res.report.FinishedAt = time.Now()
		res.report.Canceled = res.report.Canceled || e.userCanceled.Load() || ctx.Err() != nil
	}()

	if err := e.store.DeleteAll(); err != nil {
		res.err = err
		return res
	}

	res.report.Apps, res.err = e.scanner.ScanApplications(ctx, apps)
	if res.err != nil || res.report.Apps.Canceled || e.userCanceled.Load() {
		return res
	}
	res.report.Documents, res.err = e.scanner.Scan(ctx, docs, rules)
	res.report.Canceled = res.report.Apps.Canceled || res.report.Documents.Canceled
	return res
}

// stopScan cancels the scan in flight, if any, and waits for it. Its
// result is discarded.
func (e *Engine) stopScan() {
	if e.scanCancel == nil {
		return
	}
	e.scanner.Cancel()
	e.scanCancel()
	e.scanWG.Wait()
	e.scanCancel = nil
}

func (e *Engine) finishScan(res scanResult) {
	e.scanCancel()
	e.scanWG.Wait()
	e.scanCancel = nil

	report := res.report
	if res.err != nil {
		report.Error = res.err.Error()
		e.logger.Error("engine: scan failed", slog.String("error", res.err.Error()))
	}

	records, err := e.store.LoadAll()
	if err != nil {
		e.logger.Error("engine: load after scan failed", slog.String("error", err.Error()))
	}
	e.index.Build(records)

	// A partial scan must not be mistaken for a complete one on next start.
	if res.err == nil && !report.Canceled {
		if err := e.store.SetFingerprint(e.cfg.Fingerprint()); err != nil {
			e.logger.Warn("engine: save fingerprint failed", slog.String("error", err.Error()))
		}
	}

	e.lastScan.Store(&report)
	e.filter.Store(nil)
	e.logger.Info("engine: scan finished",
		slog.Int("apps", report.Apps.Count),
		slog.Int("documents", report.Documents.Count),
		slog.Bool("canceled", report.Canceled),
		slog.Duration("duration", report.Apps.Duration+report.Documents.Duration))
	e.notify(NotifyScanFinished, report)

	e.becomeReady()
	e.applyPending()
	for _, w := range e.flushWaiters {
		close(w)
	}
	e.flushWaiters = nil
}

func (e *Engine) startMonitor() {
	if e.monitor == nil || e.monCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.monCancel = cancel
	scope := e.scope
	emit := func(ev Event) {
		select {
		case e.events <- ev:
		case <-ctx.Done():
		}
	}
	e.monWG.Add(1)
	go func() {
		defer e.monWG.Done()
		if err := e.monitor.Watch(ctx, scope.roots(), scope.skipDir, emit); err != nil {
			e.logger.Error("engine: monitor failed", slog.String("error", err.Error()))
		}
	}()
}

func (e *Engine) stopMonitor() {
	if e.monCancel == nil {
		return
	}
	e.monCancel()
	e.monWG.Wait()
	e.monCancel = nil
}

// applyPending applies every queued event, including those still buffered
// in the channel, as one index batch.
func (e *Engine) applyPending() {
drain:
	for {
		select {
		case ev := <-e.events:
			e.pending = append(e.pending, ev)
		default:
			break drain
		}
	}
	if len(e.pending) == 0 {
		return
	}
	events := e.pending
	e.pending = nil

	var b memindex.Batch
	for _, ev := range events {
		e.translate(ev, &b)
	}
	if n := e.index.Apply(b); n > 0 {
		e.logger.Debug("engine: events applied", slog.Int("events", len(events)), slog.Int("changes", n))
		e.notify(NotifyUpdated, map[string]int{"events": len(events), "changes": n})
	}
}

// translate turns ev into store writes and index operations.
func (e *Engine) translate(ev Event, b *memindex.Batch) {
	switch ev.Op {
	case OpDeleted, OpRenamed:
		e.removeTree(ev.Path, b)

	case OpCreated, OpModified:
		rec, err := e.recordFor(ev.Path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			e.removeTree(ev.Path, b)
			return
		case err != nil:
			e.logger.Debug("engine: event dropped", slog.String("event", ev.String()), slog.String("reason", err.Error()))
			return
		}
		if err := e.store.Insert(rec); err != nil {
			e.logger.Warn("engine: store insert failed", slog.String("path", rec.Path), slog.String("error", err.Error()))
			return
		}
		// A created event may replace an indexed path (save by rename).
		b.Remove(rec.Path)
		b.Add(rec)
	}
}

func (e *Engine) removeTree(path string, b *memindex.Batch) {
	removed, err := e.store.DeleteTree(path)
	if err != nil {
		e.logger.Warn("engine: store delete failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	b.Remove(path)
	for _, p := range removed {
		if p != path {
			b.Remove(p)
		}
	}
}

var (
	errOutOfScope = errors.New("outside of scopes")
	errExcluded   = errors.New("excluded")
	errNotApp     = errors.New("not an application")
)

// recordFor builds the record of path under the current settings.
func (e *Engine) recordFor(path string) (models.Record, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return models.Record{}, err
	}
	if _, ok := e.scope.appRoot(path); ok {
		rec, ok := e.scanner.AppRecord(path)
		if !ok {
			return models.Record{}, errNotApp
		}
		return rec, nil
	}
	root, ok := e.scope.docRoot(path)
	if !ok {
		return models.Record{}, errOutOfScope
	}
	if e.scope.rules.Excluded(root, path, info.IsDir()) {
		return models.Record{}, errExcluded
	}
	return scanner.EntryRecord(path, info), nil
}
