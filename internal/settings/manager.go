package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/spotter/internal/apperr"
	"github.com/starford/spotter/internal/models"
	"github.com/starford/spotter/pkg/config"
)

// Manager loads and saves settings and aliases and notifies subscribers of
// saved changes. It is safe for concurrent use.
type Manager struct {
	path        string
	aliasesPath string
	logger      *slog.Logger

	mu        sync.Mutex
	current   Settings
	aliases   []models.Alias
	onChange  []func(Settings)
	onAliases []func([]models.Alias)
}

// NewManager creates a Manager for the given files. Nothing is read until
// Load or LoadAliases is called.
func NewManager(path, aliasesPath string, logger *slog.Logger) *Manager {
	return &Manager{
		path:        path,
		aliasesPath: aliasesPath,
		logger:      logger,
		current:     Default().Normalized(),
	}
}

// Load reads the settings file. A missing or malformed file yields the
// defaults; a malformed file is logged.
func (m *Manager) Load() Settings {
	s := Default()
	if err := config.LoadIfExists(m.path, &s); err != nil {
		m.logger.Warn("settings: using defaults", slog.String("path", m.path), slog.String("error", err.Error()))
		s = Default()
	}
	s = s.Normalized()

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return s
}

// Current returns the last loaded or saved settings.
func (m *Manager) Current() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Save validates, persists and publishes s.
func (m *Manager) Save(s Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("settings: %w: %w", apperr.ErrInvalid, err)
	}
	s = s.Normalized()
	if err := config.Save(m.path, &s); err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}

	m.mu.Lock()
	m.current = s
	subs := slices.Clone(m.onChange)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
	return nil
}

// OnChange registers fn to be called after every successful Save.
func (m *Manager) OnChange(fn func(Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

type aliasFile struct {
	Aliases []models.Alias `yaml:"aliases"`
}

// Validate checks every alias entry.
func (f *aliasFile) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.Aliases, validation.Each(validation.By(validAlias))),
	)
}

func validAlias(v any) error {
	a, _ := v.(models.Alias)
	switch {
	case strings.TrimSpace(a.Alias) == "":
		return errors.New("alias must not be blank")
	case strings.TrimSpace(a.Target) == "":
		return fmt.Errorf("alias %q: target must not be blank", a.Alias)
	case strings.ContainsAny(a.Alias, " \t"):
		return fmt.Errorf("alias %q: must be a single word", a.Alias)
	}
	return nil
}

// LoadAliases reads the alias file. A missing or malformed file yields no
// aliases.
func (m *Manager) LoadAliases() []models.Alias {
	var f aliasFile
	if err := config.LoadIfExists(m.aliasesPath, &f); err != nil {
		m.logger.Warn("settings: ignoring aliases", slog.String("path", m.aliasesPath), slog.String("error", err.Error()))
		f = aliasFile{}
	}
	aliases := NormalizeAliases(f.Aliases)

	m.mu.Lock()
	m.aliases = aliases
	m.mu.Unlock()
	return aliases
}

// Aliases returns the last loaded or saved aliases.
func (m *Manager) Aliases() []models.Alias {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.aliases)
}

// SaveAliases validates, persists and publishes aliases.
func (m *Manager) SaveAliases(aliases []models.Alias) error {
	f := aliasFile{Aliases: aliases}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("settings: %w: %w", apperr.ErrInvalid, err)
	}
	f.Aliases = NormalizeAliases(aliases)
	if err := config.Save(m.aliasesPath, &f); err != nil {
		return fmt.Errorf("settings: save aliases: %w", err)
	}

	m.mu.Lock()
	m.aliases = f.Aliases
	subs := slices.Clone(m.onAliases)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(slices.Clone(f.Aliases))
	}
	return nil
}

// OnAliasesChange registers fn to be called after every successful
// SaveAliases.
func (m *Manager) OnAliasesChange(fn func([]models.Alias)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAliases = append(m.onAliases, fn)
}

// NormalizeAliases lowercases keys, drops blank entries and keeps the last
// entry of a repeated key. The result is sorted by key.
func NormalizeAliases(in []models.Alias) []models.Alias {
	byKey := make(map[string]models.Alias, len(in))
	for _, a := range in {
		a.Alias = strings.ToLower(strings.TrimSpace(a.Alias))
		a.Target = strings.TrimSpace(a.Target)
		if a.Alias == "" || a.Target == "" {
			continue
		}
		if !a.External {
			a.Target = expandHome(a.Target)
		}
		byKey[a.Alias] = a
	}
	out := make([]models.Alias, 0, len(byKey))
	for _, a := range byKey {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b models.Alias) int { return strings.Compare(a.Alias, b.Alias) })
	return out
}
