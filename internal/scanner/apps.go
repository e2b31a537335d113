package scanner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"howett.net/plist"

	"github.com/starford/spotter/internal/models"
	"github.com/starford/spotter/internal/parser"
)

// ScanApplications performs a shallow scan of application directories.
// Bundles and desktop entries without an icon are dropped: they are almost
// always background helpers rather than launchable applications.
func (s *Scanner) ScanApplications(ctx context.Context, paths []string) (Stats, error) {
	start := time.Now()
	b := &batcher{sink: s.sink, size: s.batchSize}

	var candidates []string
	for _, root := range paths {
		entries, err := os.ReadDir(root)
		if err != nil {
			s.logger.Debug("scanner: skipping app scope", slog.String("path", root), slog.String("error", err.Error()))
			continue
		}
		for _, e := range entries {
			if isAppCandidate(e.Name()) {
				candidates = append(candidates, filepath.Join(filepath.Clean(root), e.Name()))
			}
		}
	}

	pool, err := ants.NewPool(s.workers, ants.WithDisablePurge(true))
	if err != nil {
		return Stats{}, err
	}
	defer pool.Release()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		records []models.Record
	)
	for _, path := range candidates {
		if s.stopped(ctx) {
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if s.stopped(ctx) {
				return
			}
			if r, ok := s.AppRecord(path); ok {
				mu.Lock()
				records = append(records, r)
				mu.Unlock()
			}
		})
		if submitErr != nil {
			wg.Done()
			s.logger.Warn("scanner: submit failed", slog.String("path", path), slog.String("error", submitErr.Error()))
		}
	}
	wg.Wait()

	slices.SortFunc(records, func(a, b models.Record) int { return strings.Compare(a.Path, b.Path) })
	for _, r := range records {
		if s.stopped(ctx) {
			break
		}
		if err := b.add(r); err != nil {
			return s.finish(ctx, b, start), err
		}
	}
	st := s.finish(ctx, b, start)
	return st, b.err
}

func isAppCandidate(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".app") || strings.HasSuffix(lower, ".desktop")
}

// AppRecord builds the record of a single application bundle or desktop
// entry. It reports false for anything that is not a launchable application.
func (s *Scanner) AppRecord(path string) (models.Record, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return models.Record{}, false
	}
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".app") && info.IsDir():
		return s.bundleRecord(path, info)
	case strings.HasSuffix(lower, ".desktop") && !info.IsDir():
		return s.desktopRecord(path, info)
	}
	return models.Record{}, false
}

func (s *Scanner) bundleRecord(path string, info os.FileInfo) (models.Record, bool) {
	contents := filepath.Join(path, "Contents")
	meta := readPlist(filepath.Join(contents, "Info.plist"))

	icon := bundleIcon(filepath.Join(contents, "Resources"), meta)
	if icon == "" {
		return models.Record{}, false
	}

	r := models.Record{
		Name:       DisplayName(s.bundleName(path, contents, meta)),
		Path:       path,
		Extension:  "app",
		Kind:       models.KindApp,
		Icon:       icon,
		ModifiedAt: info.ModTime(),
	}
	setPhonetic(&r, r.Name)
	return r, true
}

// bundleName resolves the display name of an application bundle: localized
// strings first, then the bundle metadata, then the system, then the file name.
func (s *Scanner) bundleName(path, contents string, meta map[string]any) string {
	resources := filepath.Join(contents, "Resources")
	for _, dir := range lprojDirs(s.locales) {
		strs := readPlist(filepath.Join(resources, dir+".lproj", "InfoPlist.strings"))
		if name := firstString(strs, "CFBundleDisplayName", "CFBundleName"); name != "" {
			return name
		}
	}
	if name := firstString(meta, "CFBundleDisplayName", "CFBundleName"); name != "" {
		return name
	}
	if s.namer != nil {
		if name, ok := s.namer.DisplayName(path); ok && name != "" {
			return name
		}
	}
	return Stem(filepath.Base(path))
}

// bundleIcon returns the path of the bundle's icon resource, or "".
func bundleIcon(resources string, meta map[string]any) string {
	if file := firstString(meta, "CFBundleIconFile"); file != "" {
		if filepath.Ext(file) == "" {
			file += ".icns"
		}
		candidate := filepath.Join(resources, file)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if name := firstString(meta, "CFBundleIconName"); name != "" {
		catalog := filepath.Join(resources, "Assets.car")
		if _, err := os.Stat(catalog); err == nil {
			return catalog + "#" + name
		}
	}
	matches, _ := filepath.Glob(filepath.Join(resources, "*.icns"))
	if len(matches) > 0 {
		slices.Sort(matches)
		return matches[0]
	}
	return ""
}

func (s *Scanner) desktopRecord(path string, info os.FileInfo) (models.Record, bool) {
	f, err := os.Open(path)
	if err != nil {
		return models.Record{}, false
	}
	defer f.Close()

	e, err := parser.Parse(f)
	if err != nil {
		s.logger.Debug("scanner: bad desktop entry", slog.String("path", path), slog.String("error", err.Error()))
		return models.Record{}, false
	}
	if (e.Type != "" && e.Type != "Application") || e.NoDisplay || e.Hidden || e.Icon == "" {
		return models.Record{}, false
	}

	name := e.LocalizedName(s.locales...)
	if name == "" {
		name = Stem(filepath.Base(path))
	}
	r := models.Record{
		Name:       DisplayName(name),
		Path:       path,
		Extension:  "desktop",
		Kind:       models.KindApp,
		Icon:       e.Icon,
		ModifiedAt: info.ModTime(),
	}
	setPhonetic(&r, r.Name)
	return r, true
}

// readPlist decodes an XML, binary or OpenStep property list (including
// .strings files). Unreadable or malformed files yield nil.
func readPlist(path string) map[string]any {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var out map[string]any
	if _, err := plist.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// lprojDirs maps POSIX locales to the .lproj directory names bundles use.
func lprojDirs(locales []string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(names ...string) {
		for _, n := range names {
			if _, ok := seen[n]; !ok && n != "" {
				seen[n] = struct{}{}
				out = append(out, n)
			}
		}
	}
	for _, l := range locales {
		l, _, _ = strings.Cut(l, "@")
		switch l {
		case "zh_CN", "zh_SG":
			add("zh-Hans", "zh_CN", "zh_Hans")
		case "zh_TW", "zh_HK", "zh_MO":
			add("zh-Hant", "zh_TW", "zh_Hant")
		}
		add(l, strings.ReplaceAll(l, "_", "-"))
	}
	return out
}
