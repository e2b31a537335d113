// Package scanner converts file system state under the configured scopes into
// records and streams them, in batches, to a sink such as the record store.
package scanner

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/starford/spotter/internal/models"
	"github.com/starford/spotter/internal/parser"
)

// DefaultBatchSize is the number of records buffered before a flush.
const DefaultBatchSize = 1000

// Sink receives flushed batches. A sink error aborts the scan.
type Sink func(records []models.Record) error

// DisplayNamer is an optional platform hook returning the system-provided
// localized name of an application bundle.
type DisplayNamer interface {
	DisplayName(path string) (string, bool)
}

// Stats reports the outcome of one scan.
type Stats struct {
	Count    int           `json:"count"`
	Duration time.Duration `json:"duration"`
	Canceled bool          `json:"canceled"`
}

// Scanner walks application and document scopes.
//
// A Scanner runs one scan at a time; Cancel stops the scan in flight at the
// next entry boundary and stays in effect until Reset. Batches flushed
// before cancellation stay in the sink.
type Scanner struct {
	sink      Sink
	logger    *slog.Logger
	batchSize int
	workers   int
	locales   []string
	namer     DisplayNamer

	canceled atomic.Bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithBatchSize sets the flush threshold.
func WithBatchSize(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithWorkers sets the size of the pool resolving application metadata.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLocales sets the preferred locales for localized application names,
// most preferred first (e.g. "zh_CN", "zh").
func WithLocales(locales ...string) Option {
	return func(s *Scanner) {
		s.locales = locales
	}
}

// WithDisplayNamer installs a system display-name lookup.
func WithDisplayNamer(n DisplayNamer) Option {
	return func(s *Scanner) {
		s.namer = n
	}
}

// New creates a Scanner flushing into sink.
func New(sink Sink, logger *slog.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		sink:      sink,
		logger:    logger,
		batchSize: DefaultBatchSize,
		workers:   max(2, runtime.NumCPU()/2),
		locales:   systemLocales(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cancel asks the scan in flight to stop. The request also stops scans
// started later, until Reset is called.
func (s *Scanner) Cancel() {
	s.canceled.Store(true)
}

// Reset clears a previous Cancel. Call it before starting a new scan.
func (s *Scanner) Reset() {
	s.canceled.Store(false)
}

func (s *Scanner) stopped(ctx context.Context) bool {
	return s.canceled.Load() || ctx.Err() != nil
}

var errStop = errors.New("scanner: stopped")

// Scan recursively walks the document scopes in paths. Directories matching
// the rules are pruned; the scope roots themselves are not recorded.
func (s *Scanner) Scan(ctx context.Context, paths []string, rules *Rules) (Stats, error) {
	start := time.Now()
	b := &batcher{sink: s.sink, size: s.batchSize}

	for _, root := range paths {
		if s.stopped(ctx) {
			break
		}
		root = filepath.Clean(root)
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			s.logger.Debug("scanner: skipping scope", slog.String("path", root))
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if s.stopped(ctx) {
				return errStop
			}
			if walkErr != nil {
				// Unreadable entries are skipped; the walk goes on.
				if d != nil && d.IsDir() && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if path == root {
				return nil
			}

			name := d.Name()
			if d.IsDir() {
				if rules.SkipDir(path, name) {
					return filepath.SkipDir
				}
			} else if rules.SkipFile(path, name) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}
			return b.add(EntryRecord(path, info))
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			return s.finish(ctx, b, start), err
		}
	}

	st := s.finish(ctx, b, start)
	return st, b.err
}

// finish flushes what is buffered and builds the stats. A flush failure is
// kept in b.err.
func (s *Scanner) finish(ctx context.Context, b *batcher, start time.Time) Stats {
	_ = b.flush()
	return Stats{
		Count:    b.count,
		Duration: time.Since(start),
		Canceled: s.stopped(ctx),
	}
}

// batcher buffers records and hands them to the sink in fixed-size batches.
type batcher struct {
	sink  Sink
	size  int
	buf   []models.Record
	count int
	err   error
}

func (b *batcher) add(r models.Record) error {
	b.buf = append(b.buf, r)
	if len(b.buf) >= b.size {
		return b.flush()
	}
	return nil
}

func (b *batcher) flush() error {
	if len(b.buf) == 0 || b.err != nil {
		return b.err
	}
	if err := b.sink(b.buf); err != nil {
		b.err = err
		return err
	}
	b.count += len(b.buf)
	b.buf = make([]models.Record, 0, b.size)
	return nil
}

func systemLocales() []string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return parser.Locales(v)
		}
	}
	return nil
}
