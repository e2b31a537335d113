// Package memindex holds the query-optimized in-memory index: applications,
// directories and files partitions, prefix tries over names and phonetic keys,
// and the alias table.
//
// Readers work on an immutable snapshot published through an atomic pointer
// and never block. Writers are serialized; each mutation builds the next
// snapshot by copying only what it changes and publishes it in one store.
package memindex

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/starford/spotter/internal/models"
)

const (
	// compactMin is the number of dead arena slots below which the arena is
	// never compacted.
	compactMin = 1024
)

// Stats reports the number of live items per partition.
type Stats struct {
	Apps        int `json:"apps"`
	Directories int `json:"directories"`
	Files       int `json:"files"`
	Aliases     int `json:"aliases"`
}

// snapshot is one immutable generation of the index.
type snapshot struct {
	items  []*Item // arena; removed slots are nil
	byPath map[string]uint32
	parts  [3][]uint32
	dead   int

	names    *node
	phonetic *node
	aliases  *aliasTable
}

func emptySnapshot() *snapshot {
	return &snapshot{
		byPath:  make(map[string]uint32),
		aliases: &aliasTable{},
	}
}

func (s *snapshot) live(h uint32) *Item {
	if int(h) >= len(s.items) {
		return nil
	}
	return s.items[h]
}

// Index is safe for concurrent use.
type Index struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// New returns an empty index.
func New() *Index {
	ix := &Index{}
	ix.snap.Store(emptySnapshot())
	return ix
}

// Build replaces the whole index content with records. Aliases are kept.
func (ix *Index) Build(records []models.Record) {
	items := make([]*Item, 0, len(records))
	for _, r := range records {
		items = append(items, NewItem(r))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.snap.Store(build(items, ix.snap.Load().aliases))
}

func build(items []*Item, aliases *aliasTable) *snapshot {
	s := emptySnapshot()
	s.aliases = aliases
	t := &txn{s: s, tw: newTrieWriter(), ownItems: true, ownPaths: true}
	for _, it := range items {
		t.add(it)
	}
	t.sortTouched()
	return s
}

// Add indexes r. A path that is already indexed is left untouched.
func (ix *Index) Add(r models.Record) bool {
	var b Batch
	b.Add(r)
	return ix.Apply(b) > 0
}

// Remove drops path from the index. It reports whether path was indexed.
func (ix *Index) Remove(path string) bool {
	var b Batch
	b.Remove(path)
	return ix.Apply(b) > 0
}

// Batch is an ordered list of additions and removals applied as one
// mutation.
type Batch struct {
	ops []batchOp
}

type batchOp struct {
	remove bool
	path   string
	record models.Record
}

// Add queues the addition of r.
func (b *Batch) Add(r models.Record) {
	b.ops = append(b.ops, batchOp{path: r.Path, record: r})
}

// Remove queues the removal of path.
func (b *Batch) Remove(path string) {
	b.ops = append(b.ops, batchOp{remove: true, path: path})
}

// Len returns the number of queued operations.
func (b *Batch) Len() int { return len(b.ops) }

// Apply runs the operations of b in order and publishes the result at once.
// It returns how many operations changed the index.
func (ix *Index) Apply(b Batch) int {
	if len(b.ops) == 0 {
		return 0
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	t := begin(ix.snap.Load())
	changed := 0
	for _, op := range b.ops {
		if op.remove {
			if t.remove(op.path) {
				changed++
			}
			continue
		}
		if _, ok := t.s.byPath[op.path]; ok {
			continue
		}
		t.add(NewItem(op.record))
		changed++
	}
	if changed == 0 {
		return 0
	}

	s := t.commit()
	if s.dead > compactMin && s.dead*2 > len(s.items) {
		s = build(liveItems(s), s.aliases)
	}
	ix.snap.Store(s)
	return changed
}

func liveItems(s *snapshot) []*Item {
	out := make([]*Item, 0, len(s.items)-s.dead)
	for _, it := range s.items {
		if it != nil {
			out = append(out, it)
		}
	}
	return out
}

// Contains reports whether path is indexed.
func (ix *Index) Contains(path string) bool {
	_, ok := ix.snap.Load().byPath[path]
	return ok
}

// Get returns the indexed item for path.
func (ix *Index) Get(path string) (*Item, bool) {
	s := ix.snap.Load()
	h, ok := s.byPath[path]
	if !ok {
		return nil, false
	}
	return s.items[h], true
}

// Len returns the number of indexed items.
func (ix *Index) Len() int {
	return len(ix.snap.Load().byPath)
}

// Stats returns partition sizes.
func (ix *Index) Stats() Stats {
	s := ix.snap.Load()
	return Stats{
		Apps:        len(s.parts[partApps]),
		Directories: len(s.parts[partDirs]),
		Files:       len(s.parts[partFiles]),
		Aliases:     len(s.aliases.entries),
	}
}

// txn accumulates one mutation on a private copy of a snapshot.
type txn struct {
	s  *snapshot
	tw *trieWriter

	ownItems bool
	ownPaths bool
	touched  [3]bool
}

func begin(old *snapshot) *txn {
	s := *old
	return &txn{s: &s, tw: newTrieWriter()}
}

func (t *txn) add(it *Item) {
	if !t.ownPaths {
		t.s.byPath = cloneMap(t.s.byPath)
		t.ownPaths = true
	}
	h := uint32(len(t.s.items))
	// Appending past the old length never touches slots visible to readers.
	t.s.items = append(t.s.items, it)
	t.s.byPath[it.Path] = h

	p := partitionOf(it.Kind)
	t.touch(p)
	t.s.parts[p] = append(t.s.parts[p], h)

	if p != partFiles {
		return
	}
	t.s.names = t.tw.insert(t.s.names, it.LowerName, h)
	if it.LowerFileName != it.LowerName {
		t.s.names = t.tw.insert(t.s.names, it.LowerFileName, h)
	}
	for _, key := range []string{it.PhoneticFull, it.PhoneticAcronym, it.WordAcronym} {
		t.s.phonetic = t.tw.insert(t.s.phonetic, key, h)
	}
}

func (t *txn) remove(path string) bool {
	h, ok := t.s.byPath[path]
	if !ok {
		return false
	}
	if !t.ownPaths {
		t.s.byPath = cloneMap(t.s.byPath)
		t.ownPaths = true
	}
	if !t.ownItems {
		t.s.items = slices.Clone(t.s.items)
		t.ownItems = true
	}
	it := t.s.items[h]
	t.s.items[h] = nil
	t.s.dead++
	delete(t.s.byPath, path)
	t.touch(partitionOf(it.Kind))
	return true
}

func (t *txn) touch(p partition) {
	if !t.touched[p] {
		// Partitions are shared with the previous snapshot until touched.
		t.s.parts[p] = slices.Clone(t.s.parts[p])
		t.touched[p] = true
	}
}

func (t *txn) commit() *snapshot {
	for p, ok := range t.touched {
		if !ok {
			continue
		}
		t.s.parts[p] = slices.DeleteFunc(t.s.parts[p], func(h uint32) bool {
			return t.s.items[h] == nil
		})
	}
	t.sortTouched()
	return t.s
}

func (t *txn) sortTouched() {
	items := t.s.items
	if t.touched[partApps] {
		slices.SortFunc(t.s.parts[partApps], func(a, b uint32) int {
			return compareApps(items[a], items[b])
		})
	}
	for _, p := range []partition{partDirs, partFiles} {
		if t.touched[p] {
			slices.SortFunc(t.s.parts[p], func(a, b uint32) int {
				return compareRecent(items[a], items[b])
			})
		}
	}
}

// compareApps orders shorter names first.
func compareApps(a, b *Item) int {
	if c := cmp.Compare(utf8.RuneCountInString(a.Name), utf8.RuneCountInString(b.Name)); c != 0 {
		return c
	}
	if c := strings.Compare(a.LowerName, b.LowerName); c != 0 {
		return c
	}
	return strings.Compare(a.Path, b.Path)
}

// compareRecent orders the most recently modified first.
func compareRecent(a, b *Item) int {
	if c := b.ModifiedAt.Compare(a.ModifiedAt); c != 0 {
		return c
	}
	return strings.Compare(a.Path, b.Path)
}

func cloneMap(m map[string]uint32) map[string]uint32 {
	out := make(map[string]uint32, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
