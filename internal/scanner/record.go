package scanner

import (
	"io/fs"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/starford/spotter/internal/models"
	"github.com/starford/spotter/internal/phonetic"
)

// Icon references for entries without their own icon resource.
const (
	IconFolder = "folder"
	IconFile   = "file"
)

// EntryRecord builds the record of a document-scope entry from its file info.
// Symbolic links are recorded as files and never followed.
func EntryRecord(path string, info fs.FileInfo) models.Record {
	name := DisplayName(info.Name())
	r := models.Record{
		Name:       name,
		Path:       path,
		ModifiedAt: info.ModTime(),
	}
	if info.IsDir() {
		r.Kind = models.KindDirectory
		r.Icon = IconFolder
		setPhonetic(&r, name)
		return r
	}

	r.Kind = models.KindFile
	r.Size = info.Size()
	r.Extension = NormalizeExtension(filepath.Ext(name))
	r.Icon = IconFile
	if r.Extension != "" {
		r.Icon = "ext:" + r.Extension
	}
	setPhonetic(&r, Stem(name))
	return r
}

// DisplayName normalizes a file name to NFC so names read from file systems
// that store decomposed Unicode compare equal to typed queries.
func DisplayName(name string) string {
	return norm.NFC.String(name)
}

// Stem returns name without its extension. Dot files keep their full name.
func Stem(name string) string {
	ext := filepath.Ext(name)
	if ext == name {
		return name
	}
	return strings.TrimSuffix(name, ext)
}

func setPhonetic(r *models.Record, name string) {
	keys := phonetic.Transcode(name)
	r.PhoneticFull = keys.Full
	r.PhoneticAcronym = keys.Acronym
}
