// Package settings holds the user-editable index configuration (scopes and
// exclusion rules) and the alias table, both persisted as YAML files.
package settings

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/spotter/internal/checksum"
)

// Settings describes what gets indexed.
type Settings struct {
	DocumentScopes      []string `yaml:"document_scopes" json:"document_scopes"`
	AppScopes           []string `yaml:"app_scopes" json:"app_scopes"`
	ExcludedPaths       []string `yaml:"excluded_paths" json:"excluded_paths"`
	ExcludedExtensions  []string `yaml:"excluded_extensions" json:"excluded_extensions"`
	ExcludedFolderNames []string `yaml:"excluded_folder_names" json:"excluded_folder_names"`
	IncludeHidden       bool     `yaml:"include_hidden" json:"include_hidden"`
}

// Default returns the settings used when none were saved.
func Default() Settings {
	home, _ := os.UserHomeDir()
	s := Settings{
		DocumentScopes: []string{
			filepath.Join(home, "Documents"),
			filepath.Join(home, "Desktop"),
			filepath.Join(home, "Downloads"),
		},
		ExcludedExtensions:  []string{"tmp", "swp", "part", "crdownload"},
		ExcludedFolderNames: []string{"node_modules", ".git", "__pycache__", ".venv", "vendor", ".Trash"},
	}
	switch runtime.GOOS {
	case "darwin":
		s.AppScopes = []string{
			"/Applications",
			"/System/Applications",
			"/Applications/Utilities",
			filepath.Join(home, "Applications"),
		}
		s.ExcludedFolderNames = append(s.ExcludedFolderNames, "Library")
	default:
		s.AppScopes = []string{
			"/usr/share/applications",
			"/usr/local/share/applications",
			filepath.Join(home, ".local", "share", "applications"),
		}
	}
	return s
}

// Validate checks that every scope and plain excluded path is absolute.
// Excluded paths may also be glob patterns.
func (s *Settings) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.DocumentScopes, validation.Each(validation.By(absolutePath))),
		validation.Field(&s.AppScopes, validation.Each(validation.By(absolutePath))),
		validation.Field(&s.ExcludedPaths, validation.Each(validation.By(pathOrPattern))),
		validation.Field(&s.ExcludedExtensions, validation.Each(validation.By(notBlank))),
		validation.Field(&s.ExcludedFolderNames, validation.Each(validation.By(folderName))),
	)
}

func absolutePath(v any) error {
	p, _ := v.(string)
	if !filepath.IsAbs(expandHome(p)) {
		return errors.New("must be an absolute path")
	}
	return nil
}

func pathOrPattern(v any) error {
	p, _ := v.(string)
	if strings.ContainsAny(p, "*?[{") {
		return notBlank(v)
	}
	return absolutePath(v)
}

func notBlank(v any) error {
	if p, _ := v.(string); strings.TrimSpace(p) == "" {
		return errors.New("must not be blank")
	}
	return nil
}

func folderName(v any) error {
	if err := notBlank(v); err != nil {
		return err
	}
	if p, _ := v.(string); strings.ContainsRune(p, filepath.Separator) {
		return errors.New("must be a folder name, not a path")
	}
	return nil
}

// Normalized expands "~", cleans paths, lowercases extensions and folder
// names, and drops blanks and duplicates.
func (s Settings) Normalized() Settings {
	return Settings{
		DocumentScopes:      uniq(s.DocumentScopes, cleanPath),
		AppScopes:           uniq(s.AppScopes, cleanPath),
		ExcludedPaths:       uniq(s.ExcludedPaths, cleanPattern),
		ExcludedExtensions:  uniq(s.ExcludedExtensions, cleanExtension),
		ExcludedFolderNames: uniq(s.ExcludedFolderNames, cleanName),
		IncludeHidden:       s.IncludeHidden,
	}
}

// Fingerprint identifies the normalized settings. Records scanned under a
// different fingerprint are stale.
func (s Settings) Fingerprint() string {
	n := s.Normalized()
	data, err := yaml.Marshal(&n)
	if err != nil {
		return ""
	}
	return checksum.Sum(data)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func cleanPath(p string) string {
	return filepath.Clean(expandHome(p))
}

func cleanPattern(p string) string {
	if strings.ContainsAny(p, "*?[{") {
		return expandHome(p)
	}
	return cleanPath(p)
}

func cleanExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func cleanName(name string) string {
	return strings.ToLower(name)
}

func uniq(in []string, clean func(string) string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		v = clean(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
