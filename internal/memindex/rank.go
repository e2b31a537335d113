package memindex

import (
	"slices"
	"strings"
)

// Result limits.
const (
	PartitionLimit = 10   // results per partition
	fileTopUp      = 20   // below this many trie hits, files are scanned linearly
	fileScanLimit  = 5000 // files considered by the linear scan
)

type tier int

const (
	tierExact tier = iota
	tierPrefix
	tierContains
	tierPhonetic
	tierNone
)

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// matchTier grades how it matches q. Phonetic keys are only consulted when
// no literal tier matched and q is ASCII.
func matchTier(it *Item, q string, ascii bool) tier {
	switch {
	case it.LowerName == q || it.LowerFileName == q:
		return tierExact
	case strings.HasPrefix(it.LowerName, q) || strings.HasPrefix(it.LowerFileName, q):
		return tierPrefix
	case strings.Contains(it.LowerName, q) || strings.Contains(it.LowerFileName, q):
		return tierContains
	}
	if !ascii {
		return tierNone
	}
	if (it.PhoneticAcronym != "" && strings.HasPrefix(it.PhoneticAcronym, q)) ||
		(it.PhoneticFull != "" && strings.Contains(it.PhoneticFull, q)) ||
		(it.WordAcronym != "" && strings.HasPrefix(it.WordAcronym, q)) {
		return tierPhonetic
	}
	return tierNone
}

type match struct {
	it   *Item
	tier tier
}

// Search ranks indexed items against query. Alias matches come first, then
// at most PartitionLimit applications, directories and files, each partition
// ordered by tier and then by its own tiebreak. No path is returned twice.
//
// skip, when non-nil, hides partition items; it does not apply to aliases.
func (ix *Index) Search(query string, skip func(*Item) bool) []*Item {
	q := normalize(query)
	if q == "" {
		return nil
	}
	s := ix.snap.Load()
	ascii := isASCII(q)

	var out []*Item
	seen := make(map[string]struct{})
	emit := func(it *Item) bool {
		if _, ok := seen[it.Path]; ok {
			return false
		}
		seen[it.Path] = struct{}{}
		out = append(out, it)
		return true
	}
	visible := func(it *Item) bool {
		if it == nil {
			return false
		}
		if _, ok := seen[it.Path]; ok {
			return false
		}
		return skip == nil || !skip(it)
	}

	for _, it := range s.searchAlias(q) {
		emit(it)
	}

	// Partition order already encodes the tiebreak, so a stable sort by
	// tier is enough.
	apps := s.scan(s.parts[partApps], q, ascii, visible, 0)
	emitTop(apps, emit)

	dirs := s.scan(s.parts[partDirs], q, ascii, visible, PartitionLimit)
	emitTop(dirs, emit)

	emitTop(s.searchFiles(q, ascii, visible), emit)
	return out
}

// scan grades handles in order, stopping after limit matches when limit > 0.
func (s *snapshot) scan(handles []uint32, q string, ascii bool, visible func(*Item) bool, limit int) []match {
	var found []match
	for _, h := range handles {
		it := s.items[h]
		if !visible(it) {
			continue
		}
		if t := matchTier(it, q, ascii); t != tierNone {
			found = append(found, match{it: it, tier: t})
			if limit > 0 && len(found) == limit {
				break
			}
		}
	}
	slices.SortStableFunc(found, func(a, b match) int { return int(a.tier) - int(b.tier) })
	return found
}

func (s *snapshot) searchFiles(q string, ascii bool, visible func(*Item) bool) []match {
	hits := make(map[uint32]struct{})
	var found []match
	consider := func(h uint32) {
		if _, ok := hits[h]; ok {
			return
		}
		hits[h] = struct{}{}
		it := s.live(h)
		if !visible(it) {
			return
		}
		if t := matchTier(it, q, ascii); t != tierNone {
			found = append(found, match{it: it, tier: t})
		}
	}

	for _, h := range s.names.lookup(q) {
		consider(h)
	}
	if ascii {
		for _, h := range s.phonetic.lookup(q) {
			consider(h)
		}
	}
	if len(found) < fileTopUp {
		files := s.parts[partFiles]
		for _, h := range files[:min(len(files), fileScanLimit)] {
			consider(h)
		}
	}

	slices.SortFunc(found, func(a, b match) int {
		if a.tier != b.tier {
			return int(a.tier) - int(b.tier)
		}
		return compareRecent(a.it, b.it)
	})
	return found
}

func emitTop(ms []match, emit func(*Item) bool) {
	n := 0
	for _, m := range ms {
		if n == PartitionLimit {
			return
		}
		if emit(m.it) {
			n++
		}
	}
}
