package memindex

import (
	"cmp"
	"slices"
	"strings"

	"github.com/starford/spotter/internal/models"
)

// IconLink is the icon reference of alias entries pointing at external links.
const IconLink = "link"

// KindResolver reports the kind of an alias target that is not indexed.
type KindResolver func(target string) models.Kind

type aliasEntry struct {
	key    string
	alias  models.Alias
	target *Item // used when the target is not indexed
}

// aliasTable is immutable once published.
type aliasTable struct {
	entries []aliasEntry
	trie    *node
}

// SetAliases replaces the alias table. Keys are compared case-insensitively;
// when a key repeats, the last entry wins. kind may be nil, in which case
// non-link targets that are not indexed are reported as files.
func (ix *Index) SetAliases(aliases []models.Alias, kind KindResolver) {
	t := newAliasTable(aliases, kind)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	s := *ix.snap.Load()
	s.aliases = t
	ix.snap.Store(&s)
}

// Aliases returns the current alias entries ordered by key.
func (ix *Index) Aliases() []models.Alias {
	t := ix.snap.Load().aliases
	out := make([]models.Alias, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.alias)
	}
	return out
}

func newAliasTable(aliases []models.Alias, kind KindResolver) *aliasTable {
	byKey := make(map[string]models.Alias, len(aliases))
	for _, a := range aliases {
		key := strings.ToLower(strings.TrimSpace(a.Alias))
		if key == "" || strings.TrimSpace(a.Target) == "" {
			continue
		}
		a.Alias = key
		byKey[key] = a
	}

	t := &aliasTable{entries: make([]aliasEntry, 0, len(byKey))}
	for key, a := range byKey {
		t.entries = append(t.entries, aliasEntry{key: key, alias: a, target: aliasTarget(a, kind)})
	}
	slices.SortFunc(t.entries, func(a, b aliasEntry) int { return strings.Compare(a.key, b.key) })

	tw := newTrieWriter()
	for i, e := range t.entries {
		t.trie = tw.insert(t.trie, e.key, uint32(i))
	}
	return t
}

// aliasTarget builds the stand-in item for a target without a record.
func aliasTarget(a models.Alias, kind KindResolver) *Item {
	name := a.DisplayName
	if name == "" {
		name = a.Target
	}
	it := &Item{
		Name:         name,
		Path:         a.Target,
		Kind:         models.KindLink,
		Icon:         IconLink,
		LowerName:    strings.ToLower(name),
		DisplayAlias: a.Alias,
	}
	if a.External {
		return it
	}
	it.Kind = models.KindFile
	if kind != nil {
		if k := kind(a.Target); k.Valid() {
			it.Kind = k
		}
	}
	switch it.Kind {
	case models.KindDirectory:
		it.Icon = "folder"
	case models.KindApp:
		it.Icon = "app"
	default:
		it.Icon = "file"
	}
	return it
}

// SearchAlias returns the items of aliases matching query: exact key first,
// then prefix matches ordered by key length.
func (ix *Index) SearchAlias(query string) []*Item {
	q := normalize(query)
	if q == "" {
		return nil
	}
	return ix.snap.Load().searchAlias(q)
}

func (s *snapshot) searchAlias(q string) []*Item {
	handles := s.aliases.trie.lookup(q)
	if len(handles) == 0 {
		return nil
	}

	matches := make([]aliasEntry, 0, len(handles))
	for _, h := range handles {
		e := s.aliases.entries[h]
		if strings.HasPrefix(e.key, q) {
			matches = append(matches, e)
		}
	}
	slices.SortFunc(matches, func(a, b aliasEntry) int {
		if ea, eb := a.key == q, b.key == q; ea != eb {
			if ea {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(len(a.key), len(b.key)); c != 0 {
			return c
		}
		return strings.Compare(a.key, b.key)
	})

	out := make([]*Item, 0, len(matches))
	for _, e := range matches {
		out = append(out, s.resolveAlias(e))
	}
	return out
}

// resolveAlias prefers the indexed item of the target so results carry its
// real metadata, labeled with the alias.
func (s *snapshot) resolveAlias(e aliasEntry) *Item {
	if !e.alias.External {
		if h, ok := s.byPath[e.alias.Target]; ok {
			c := *s.items[h]
			c.DisplayAlias = e.alias.Alias
			if e.alias.DisplayName != "" {
				c.Name = e.alias.DisplayName
			}
			return &c
		}
	}
	return e.target
}
