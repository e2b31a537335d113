// Package engine coordinates the record store, the scanner and the memory
// index: it decides between loading and scanning at startup, applies change
// events incrementally and answers queries.
//
// Every store and index mutation runs on the goroutine executing Run.
// Queries read the published index snapshot and never wait for it.
package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/spotter/internal/apperr"
	"github.com/starford/spotter/internal/memindex"
	"github.com/starford/spotter/internal/models"
	"github.com/starford/spotter/internal/scanner"
	"github.com/starford/spotter/internal/settings"
	"github.com/starford/spotter/internal/store"
)

// DefaultDebounce is how long change events are collected before they are
// applied as one batch.
const DefaultDebounce = 200 * time.Millisecond

// State is the lifecycle state of the engine.
type State int32

// Engine states.
const (
	StateUninitialized State = iota
	StateLoading
	StateScanning
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateScanning:
		return "scanning"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Result is a single search hit.
type Result struct {
	Name         string      `json:"name"`
	Path         string      `json:"path"`
	Kind         models.Kind `json:"kind"`
	Icon         string      `json:"icon"`
	DisplayAlias string      `json:"display_alias,omitempty"`
}

// ScanReport describes the last completed scan.
type ScanReport struct {
	Apps       scanner.Stats `json:"apps"`
	Documents  scanner.Stats `json:"documents"`
	Canceled   bool          `json:"canceled"`
	Error      string        `json:"error,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Status is a point-in-time summary of the engine.
type Status struct {
	State    string         `json:"state"`
	Items    int            `json:"items"`
	Index    memindex.Stats `json:"index"`
	LastScan *ScanReport    `json:"last_scan,omitempty"`
}

// Engine is safe for concurrent use. Run must be called exactly once.
type Engine struct {
	store    store.RecordStore
	index    *memindex.Index
	scanner  *scanner.Scanner
	logger   *slog.Logger
	monitor  Monitor
	notify   Notifier
	debounce time.Duration
	scanOpts []scanner.Option

	state    atomic.Int32
	filter   atomic.Pointer[scopeFilter]
	lastScan atomic.Pointer[ScanReport]

	ops      chan func()
	events   chan Event
	scanDone chan scanResult
	ready    chan struct{}
	stopped  chan struct{}

	readyOnce    sync.Once
	userCanceled atomic.Bool

	// Owned by the Run goroutine.
	cfg          settings.Settings
	scope        *scopeFilter
	pending      []Event
	flushWaiters []chan struct{}
	scanCancel   context.CancelFunc
	scanWG       sync.WaitGroup
	monCancel    context.CancelFunc
	monWG        sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithMonitor enables live updates from m.
func WithMonitor(m Monitor) Option {
	return func(e *Engine) {
		e.monitor = m
	}
}

// WithNotifier installs a notification callback.
func WithNotifier(fn Notifier) Option {
	return func(e *Engine) {
		e.notify = fn
	}
}

// WithDebounce sets the change event debounce window.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.debounce = d
		}
	}
}

// WithScannerOptions passes options to the scanner.
func WithScannerOptions(opts ...scanner.Option) Option {
	return func(e *Engine) {
		e.scanOpts = append(e.scanOpts, opts...)
	}
}

// WithIndex makes the engine use ix instead of a fresh index.
func WithIndex(ix *memindex.Index) Option {
	return func(e *Engine) {
		e.index = ix
	}
}

// New creates an engine over st configured with cfg.
func New(st store.RecordStore, cfg settings.Settings, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		logger:   logger,
		debounce: DefaultDebounce,
		notify:   func(string, any) {},
		ops:      make(chan func()),
		events:   make(chan Event, 1024),
		scanDone: make(chan scanResult),
		ready:    make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.index == nil {
		e.index = memindex.New()
	}
	e.scanner = scanner.New(st.InsertBatch, logger, e.scanOpts...)
	e.setConfig(cfg)
	return e
}

func (e *Engine) setConfig(cfg settings.Settings) {
	e.cfg = cfg.Normalized()
	e.scope = newScopeFilter(e.cfg)
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Search ranks the index against text. An empty text or an index that is
// not built yet yields no results.
func (e *Engine) Search(text string) []Result {
	var skip func(*memindex.Item) bool
	if f := e.filter.Load(); f != nil {
		skip = f.hides
	}
	items := e.index.Search(text, skip)
	out := make([]Result, 0, len(items))
	for _, it := range items {
		out = append(out, Result{
			Name:         it.Name,
			Path:         it.Path,
			Kind:         it.Kind,
			Icon:         it.Icon,
			DisplayAlias: it.DisplayAlias,
		})
	}
	return out
}

// Status returns counts and the state of the engine.
func (e *Engine) Status() Status {
	return Status{
		State:    e.State().String(),
		Items:    e.index.Len(),
		Index:    e.index.Stats(),
		LastScan: e.lastScan.Load(),
	}
}

// Aliases returns the aliases currently in effect.
func (e *Engine) Aliases() []models.Alias {
	return e.index.Aliases()
}

// SetAliases replaces the alias table. Targets that are not indexed get
// their kind from the file system.
func (e *Engine) SetAliases(aliases []models.Alias) {
	e.index.SetAliases(aliases, targetKind)
	e.logger.Info("engine: aliases updated", slog.Int("count", len(aliases)))
}

func targetKind(target string) models.Kind {
	info, err := os.Stat(target)
	if err != nil {
		return models.KindFile
	}
	lower := strings.ToLower(target)
	switch {
	case strings.HasSuffix(lower, ".app") && info.IsDir(), strings.HasSuffix(lower, ".desktop"):
		return models.KindApp
	case info.IsDir():
		return models.KindDirectory
	}
	return models.KindFile
}

// HandleEvent queues a change event. Events are applied in arrival order,
// in batches, after the debounce window.
func (e *Engine) HandleEvent(ev Event) {
	select {
	case e.events <- ev:
	case <-e.stopped:
	}
}

// Reconfigure replaces the settings: the scan in flight is canceled,
// monitoring stops and a fresh scan starts. It returns once the new scan
// has started.
func (e *Engine) Reconfigure(ctx context.Context, cfg settings.Settings) error {
	return e.do(ctx, func() {
		e.setConfig(cfg)
		e.filter.Store(e.scope)
		e.logger.Info("engine: configuration changed")
		e.startScan()
	})
}

// Rescan clears the store and scans all scopes again.
func (e *Engine) Rescan(ctx context.Context) error {
	return e.do(ctx, e.startScan)
}

// CancelScan stops the scan in flight. What was scanned so far is indexed.
func (e *Engine) CancelScan() {
	if e.State() != StateScanning {
		return
	}
	e.userCanceled.Store(true)
	e.scanner.Cancel()
}

// Flush waits until every event queued before the call is applied. While a
// scan runs, events are held back and Flush waits for the scan to finish.
func (e *Engine) Flush(ctx context.Context) error {
	var wait chan struct{}
	err := e.do(ctx, func() {
		wait = make(chan struct{})
		if e.State() == StateScanning {
			e.flushWaiters = append(e.flushWaiters, wait)
			return
		}
		e.applyPending()
		close(wait)
	})
	if err != nil {
		return err
	}
	return e.wait(ctx, wait)
}

// WaitReady blocks until the index has been built for the first time.
func (e *Engine) WaitReady(ctx context.Context) error {
	return e.wait(ctx, e.ready)
}

func (e *Engine) wait(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return apperr.ErrStopped
	}
}

// do runs fn on the Run goroutine and waits for it to return.
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case e.ops <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return apperr.ErrStopped
	}
	return e.wait(ctx, done)
}

// scopeFilter hides items that the current settings would not index.
type scopeFilter struct {
	docs  []string
	apps  []string
	rules *scanner.Rules
}

func newScopeFilter(cfg settings.Settings) *scopeFilter {
	return &scopeFilter{
		docs:  cfg.DocumentScopes,
		apps:  cfg.AppScopes,
		rules: scanner.NewRules(cfg.ExcludedPaths, cfg.ExcludedFolderNames, cfg.ExcludedExtensions, cfg.IncludeHidden),
	}
}

// appRoot returns the app scope path is a direct child of.
func (f *scopeFilter) appRoot(path string) (string, bool) {
	dir := filepath.Dir(path)
	for _, root := range f.apps {
		if dir == root {
			return root, true
		}
	}
	return "", false
}

// docRoot returns the document scope path lies in.
func (f *scopeFilter) docRoot(path string) (string, bool) {
	for _, root := range f.docs {
		if path != root && scanner.IsUnder(path, root) {
			return root, true
		}
	}
	return "", false
}

func (f *scopeFilter) hides(it *memindex.Item) bool {
	if _, ok := f.appRoot(it.Path); ok {
		return false
	}
	root, ok := f.docRoot(it.Path)
	if !ok {
		return true
	}
	return f.rules.Excluded(root, it.Path, it.Kind == models.KindDirectory)
}

// skipDir tells a Monitor which directories not to watch: excluded ones
// and everything inside application directories.
func (f *scopeFilter) skipDir(path string) bool {
	if _, ok := f.appRoot(path); ok {
		return true
	}
	if root, ok := f.docRoot(path); ok {
		return f.rules.Excluded(root, path, true)
	}
	return false
}

func (f *scopeFilter) roots() []string {
	out := make([]string, 0, len(f.docs)+len(f.apps))
	out = append(out, f.docs...)
	return append(out, f.apps...)
}
