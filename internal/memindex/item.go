package memindex

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/spotter/internal/models"
	"github.com/starford/spotter/internal/phonetic"
)

// Item is the in-memory form of a record with its search keys precomputed.
// Items returned by the index are shared and must not be modified.
type Item struct {
	Name            string
	Path            string
	Extension       string
	Kind            models.Kind
	PhoneticFull    string
	PhoneticAcronym string
	ModifiedAt      time.Time
	Size            int64
	Icon            string

	LowerName     string
	LowerFileName string
	WordAcronym   string
	DisplayAlias  string
}

// NewItem derives an Item from r.
func NewItem(r models.Record) *Item {
	it := &Item{
		Name:            r.Name,
		Path:            r.Path,
		Extension:       r.Extension,
		Kind:            r.Kind,
		PhoneticFull:    r.PhoneticFull,
		PhoneticAcronym: r.PhoneticAcronym,
		ModifiedAt:      r.ModifiedAt,
		Size:            r.Size,
		Icon:            r.Icon,
		LowerName:       strings.ToLower(r.Name),
	}

	base := filepath.Base(r.Path)
	switch r.Kind {
	case models.KindDirectory:
		it.LowerFileName = strings.ToLower(base)
		it.WordAcronym = phonetic.WordAcronym(r.Name)
	case models.KindApp:
		it.LowerFileName = strings.ToLower(stem(base))
		it.WordAcronym = phonetic.WordAcronym(r.Name)
	default:
		it.LowerFileName = strings.ToLower(stem(base))
		it.WordAcronym = phonetic.WordAcronym(stem(r.Name))
	}
	return it
}

// Record converts the item back into its persisted form.
func (it *Item) Record() models.Record {
	return models.Record{
		Name:            it.Name,
		Path:            it.Path,
		Extension:       it.Extension,
		Kind:            it.Kind,
		PhoneticFull:    it.PhoneticFull,
		PhoneticAcronym: it.PhoneticAcronym,
		Icon:            it.Icon,
		ModifiedAt:      it.ModifiedAt,
		Size:            it.Size,
	}
}

func stem(name string) string {
	ext := filepath.Ext(name)
	if ext == name {
		return name
	}
	return strings.TrimSuffix(name, ext)
}

// partition of an item kind.
type partition int

const (
	partApps partition = iota
	partDirs
	partFiles
)

func partitionOf(k models.Kind) partition {
	switch k {
	case models.KindApp:
		return partApps
	case models.KindDirectory:
		return partDirs
	default:
		return partFiles
	}
}
