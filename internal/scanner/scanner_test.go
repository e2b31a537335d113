package scanner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/starford/spotter/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type collector struct {
	batches [][]models.Record
}

func (c *collector) sink(records []models.Record) error {
	c.batches = append(c.batches, records)
	return nil
}

func (c *collector) paths() []string {
	var out []string
	for _, b := range c.batches {
		for _, r := range b {
			out = append(out, r.Path)
		}
	}
	slices.Sort(out)
	return out
}

func (c *collector) byPath(path string) (models.Record, bool) {
	for _, b := range c.batches {
		for _, r := range b {
			if r.Path == path {
				return r, true
			}
		}
	}
	return models.Record{}, false
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScan_PrunesExcludedFolders(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "node_modules", "x.js"), "x")
	writeFile(t, filepath.Join(root, "a", "main.js"), "m")

	c := &collector{}
	s := New(c.sink, testLogger())
	rules := NewRules(nil, []string{"node_modules"}, nil, false)

	st, err := s.Scan(context.Background(), []string{root}, rules)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	want := []string{filepath.Join(root, "a"), filepath.Join(root, "a", "main.js")}
	if got := c.paths(); !slices.Equal(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	if st.Count != 2 || st.Canceled {
		t.Fatalf("stats = %+v", st)
	}
}

func TestScan_RecordFields(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Report.PDF"), "12345")
	if err := os.Mkdir(filepath.Join(root, "微信备份"), 0o755); err != nil {
		t.Fatal(err)
	}

	c := &collector{}
	s := New(c.sink, testLogger())
	if _, err := s.Scan(context.Background(), []string{root}, NewRules(nil, nil, nil, false)); err != nil {
		t.Fatal(err)
	}

	f, ok := c.byPath(filepath.Join(root, "Report.PDF"))
	if !ok {
		t.Fatal("file not recorded")
	}
	if f.Kind != models.KindFile || f.Extension != "pdf" || f.Size != 5 || f.Icon != "ext:pdf" {
		t.Fatalf("file record = %+v", f)
	}
	if f.ModifiedAt.IsZero() {
		t.Fatal("expected modification time")
	}

	d, ok := c.byPath(filepath.Join(root, "微信备份"))
	if !ok {
		t.Fatal("directory not recorded")
	}
	if d.Kind != models.KindDirectory || d.Extension != "" || d.Size != 0 || d.Icon != IconFolder {
		t.Fatalf("dir record = %+v", d)
	}
	if d.PhoneticFull != "weixinbeifen" || d.PhoneticAcronym != "wxbf" {
		t.Fatalf("phonetic = %q/%q", d.PhoneticFull, d.PhoneticAcronym)
	}
}

func TestScan_ExtensionRulesSkipFilesOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "photos.tmp", "keep.txt"), "k")
	writeFile(t, filepath.Join(root, "scratch.TMP"), "s")

	c := &collector{}
	s := New(c.sink, testLogger())
	if _, err := s.Scan(context.Background(), []string{root}, NewRules(nil, nil, []string{".tmp"}, false)); err != nil {
		t.Fatal(err)
	}

	want := []string{
		filepath.Join(root, "photos.tmp"),
		filepath.Join(root, "photos.tmp", "keep.txt"),
	}
	if got := c.paths(); !slices.Equal(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
}

func TestScan_HiddenEntries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".cache", "blob"), "b")
	writeFile(t, filepath.Join(root, ".env"), "e")
	writeFile(t, filepath.Join(root, "visible.txt"), "v")

	c := &collector{}
	s := New(c.sink, testLogger())
	if _, err := s.Scan(context.Background(), []string{root}, NewRules(nil, nil, nil, false)); err != nil {
		t.Fatal(err)
	}
	if got := c.paths(); !slices.Equal(got, []string{filepath.Join(root, "visible.txt")}) {
		t.Fatalf("hidden excluded: paths = %v", got)
	}

	c = &collector{}
	s = New(c.sink, testLogger())
	if _, err := s.Scan(context.Background(), []string{root}, NewRules(nil, nil, nil, true)); err != nil {
		t.Fatal(err)
	}
	if got := len(c.paths()); got != 4 {
		t.Fatalf("hidden included: got %d records, want 4", got)
	}
}

func TestScan_ExcludedPaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "private", "secret.txt"), "s")
	writeFile(t, filepath.Join(root, "src", "build", "out.o"), "o")
	writeFile(t, filepath.Join(root, "src", "main.go"), "m")

	c := &collector{}
	s := New(c.sink, testLogger())
	rules := NewRules([]string{filepath.Join(root, "private"), "**/build"}, nil, nil, false)
	if _, err := s.Scan(context.Background(), []string{root}, rules); err != nil {
		t.Fatal(err)
	}

	want := []string{filepath.Join(root, "src"), filepath.Join(root, "src", "main.go")}
	if got := c.paths(); !slices.Equal(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
}

func TestScan_Batches(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		writeFile(t, filepath.Join(root, name+".txt"), name)
	}

	c := &collector{}
	s := New(c.sink, testLogger(), WithBatchSize(2))
	st, err := s.Scan(context.Background(), []string{root}, NewRules(nil, nil, nil, false))
	if err != nil {
		t.Fatal(err)
	}
	if st.Count != 5 {
		t.Fatalf("count = %d, want 5", st.Count)
	}
	sizes := make([]int, 0, len(c.batches))
	for _, b := range c.batches {
		sizes = append(sizes, len(b))
	}
	if !slices.Equal(sizes, []int{2, 2, 1}) {
		t.Fatalf("batch sizes = %v", sizes)
	}
}

func TestScan_MissingScopeIgnored(t *testing.T) {
	c := &collector{}
	s := New(c.sink, testLogger())
	st, err := s.Scan(context.Background(), []string{filepath.Join(t.TempDir(), "nope")}, NewRules(nil, nil, nil, false))
	if err != nil {
		t.Fatal(err)
	}
	if st.Count != 0 {
		t.Fatalf("count = %d", st.Count)
	}
}

func TestScan_CancelKeepsFlushedBatches(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		writeFile(t, filepath.Join(root, name+".txt"), name)
	}

	var s *Scanner
	c := &collector{}
	sink := func(records []models.Record) error {
		_ = c.sink(records)
		s.Cancel()
		return nil
	}
	s = New(sink, testLogger(), WithBatchSize(2))

	st, err := s.Scan(context.Background(), []string{root}, NewRules(nil, nil, nil, false))
	if err != nil {
		t.Fatal(err)
	}
	if !st.Canceled {
		t.Fatal("expected canceled scan")
	}
	if st.Count != 2 || len(c.paths()) != 2 {
		t.Fatalf("count = %d, records = %v", st.Count, c.paths())
	}
}

func TestScan_ContextCanceled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &collector{}
	st, err := New(c.sink, testLogger()).Scan(ctx, []string{root}, NewRules(nil, nil, nil, false))
	if err != nil {
		t.Fatal(err)
	}
	if !st.Canceled || st.Count != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRules_Excluded(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "home", "u", "Documents")
	rules := NewRules(nil, []string{"node_modules"}, []string{"log"}, false)

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{filepath.Join(root, "a", "node_modules", "x.js"), false, true},
		{filepath.Join(root, "a", "node_modules"), true, true},
		{filepath.Join(root, "a", "main.js"), false, false},
		{filepath.Join(root, ".hidden", "x.txt"), false, true},
		{filepath.Join(root, "out.log"), false, true},
		{filepath.Join(root, "dir.log"), true, false},
	}
	for _, tt := range tests {
		if got := rules.Excluded(root, tt.path, tt.isDir); got != tt.want {
			t.Errorf("Excluded(%q, dir=%v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
		}
	}
}

func TestIsUnder(t *testing.T) {
	dir := filepath.Join(string(filepath.Separator), "a", "proj")
	if !IsUnder(filepath.Join(dir, "x"), dir) || !IsUnder(dir, dir) {
		t.Fatal("expected path under dir")
	}
	if IsUnder(dir+"-notes", dir) {
		t.Fatal("sibling with shared prefix reported under dir")
	}
}

func TestCancelBeforeScanHoldsUntilReset(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "docs", "a.txt"), "a")
	writeFile(t, filepath.Join(root, "apps", "term.desktop"), "[Desktop Entry]\nType=Application\nName=Term\nIcon=term\n")
	apps := []string{filepath.Join(root, "apps")}
	docs := []string{filepath.Join(root, "docs")}
	rules := NewRules(nil, nil, nil, false)

	c := &collector{}
	s := New(c.sink, testLogger())
	s.Cancel()

	st, err := s.ScanApplications(context.Background(), apps)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Canceled || st.Count != 0 {
		t.Fatalf("apps after cancel = %+v", st)
	}
	st, err = s.Scan(context.Background(), docs, rules)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Canceled || st.Count != 0 || len(c.paths()) != 0 {
		t.Fatalf("documents after cancel = %+v, records = %v", st, c.paths())
	}

	s.Reset()
	st, err = s.ScanApplications(context.Background(), apps)
	if err != nil {
		t.Fatal(err)
	}
	if st.Canceled || st.Count != 1 {
		t.Fatalf("apps after reset = %+v", st)
	}
}
