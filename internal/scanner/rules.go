package scanner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Rules decides which directories and files a scan skips.
//
// Excluded paths are either plain prefixes (the path and everything below it)
// or doublestar glob patterns such as "**/build". Folder names and extensions
// compare case-insensitively. Extension rules never apply to directories.
type Rules struct {
	prefixes      []string
	globs         []string
	folders       map[string]struct{}
	extensions    map[string]struct{}
	includeHidden bool
}

// NewRules compiles exclusion settings into Rules.
func NewRules(excludedPaths, folderNames, extensions []string, includeHidden bool) *Rules {
	r := &Rules{
		folders:       make(map[string]struct{}, len(folderNames)),
		extensions:    make(map[string]struct{}, len(extensions)),
		includeHidden: includeHidden,
	}
	for _, p := range excludedPaths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if isGlob(p) {
			r.globs = append(r.globs, filepath.ToSlash(p))
			continue
		}
		r.prefixes = append(r.prefixes, filepath.Clean(p))
	}
	for _, name := range folderNames {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			r.folders[name] = struct{}{}
		}
	}
	for _, ext := range extensions {
		if ext = NormalizeExtension(ext); ext != "" {
			r.extensions[ext] = struct{}{}
		}
	}
	return r
}

// NormalizeExtension lowercases ext and strips a leading dot.
func NormalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func isGlob(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// SkipDir reports whether the walk must not descend into the directory.
func (r *Rules) SkipDir(path, name string) bool {
	if !r.includeHidden && isHidden(name) {
		return true
	}
	if _, ok := r.folders[strings.ToLower(name)]; ok {
		return true
	}
	return r.pathExcluded(path)
}

// SkipFile reports whether a non-directory entry is excluded.
func (r *Rules) SkipFile(path, name string) bool {
	if !r.includeHidden && isHidden(name) {
		return true
	}
	if ext := filepath.Ext(name); ext != "" {
		if _, ok := r.extensions[NormalizeExtension(ext)]; ok {
			return true
		}
	}
	return r.pathExcluded(path)
}

// Excluded reports whether path, found below the scope root, would have been
// skipped by a scan of root. Every directory between root and path is checked,
// so descendants of excluded folders are excluded as well.
func (r *Rules) Excluded(root, path string, isDir bool) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return r.pathExcluded(path)
	}

	parts := strings.Split(rel, string(os.PathSeparator))
	cur := root
	for _, part := range parts[:len(parts)-1] {
		cur = filepath.Join(cur, part)
		if r.SkipDir(cur, part) {
			return true
		}
	}
	name := parts[len(parts)-1]
	if isDir {
		return r.SkipDir(path, name)
	}
	return r.SkipFile(path, name)
}

func (r *Rules) pathExcluded(path string) bool {
	for _, p := range r.prefixes {
		if IsUnder(path, p) {
			return true
		}
	}
	if len(r.globs) == 0 {
		return false
	}
	slashed := filepath.ToSlash(path)
	relative := strings.TrimPrefix(slashed, "/")
	for _, g := range r.globs {
		// Bad patterns are ignored rather than failing the scan.
		if ok, err := doublestar.Match(g, slashed); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(g, relative); err == nil && ok {
			return true
		}
	}
	return false
}

// IsUnder reports whether path equals dir or lies below it.
func IsUnder(path, dir string) bool {
	if path == dir {
		return true
	}
	if !strings.HasSuffix(dir, string(os.PathSeparator)) {
		dir += string(os.PathSeparator)
	}
	return strings.HasPrefix(path, dir)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
