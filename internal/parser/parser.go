// Package parser reads freedesktop.org desktop entry files, the application
// launchers found under share/applications on Linux desktops.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const mainGroup = "Desktop Entry"

// ErrNoEntry is returned when the input has no [Desktop Entry] group.
var ErrNoEntry = errors.New("parser: missing [Desktop Entry] group")

// Entry holds the keys of the [Desktop Entry] group that matter for indexing.
type Entry struct {
	Type      string
	Name      string
	Icon      string
	Exec      string
	NoDisplay bool
	Hidden    bool

	// names maps a locale ("zh_CN", "de") to its localized Name value.
	names map[string]string
}

// Parse reads a desktop entry. Keys outside the main group are ignored,
// and so are unknown keys inside it.
func Parse(r io.Reader) (*Entry, error) {
	var (
		e       = &Entry{names: make(map[string]string)}
		group   string
		sawMain bool
	)

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("parser: line %d: unterminated group header", lineNo)
			}
			group = line[1 : len(line)-1]
			if group == mainGroup {
				sawMain = true
			}
			continue
		}
		if group != mainGroup {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("parser: line %d: expected key=value", lineNo)
		}
		key = strings.TrimSpace(key)
		value = unescape(strings.TrimSpace(value))

		locale := ""
		if i := strings.IndexByte(key, '['); i >= 0 && strings.HasSuffix(key, "]") {
			locale = key[i+1 : len(key)-1]
			key = key[:i]
		}

		switch key {
		case "Name":
			if locale == "" {
				e.Name = value
			} else {
				e.names[locale] = value
			}
		case "Type":
			e.Type = value
		case "Icon":
			if locale == "" {
				e.Icon = value
			}
		case "Exec":
			e.Exec = value
		case "NoDisplay":
			e.NoDisplay = value == "true"
		case "Hidden":
			e.Hidden = value == "true"
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("parser: read: %w", err)
	}
	if !sawMain {
		return nil, ErrNoEntry
	}
	return e, nil
}

// LocalizedName returns the Name for the first locale in locales that has a
// translation, or the untranslated Name.
func (e *Entry) LocalizedName(locales ...string) string {
	for _, l := range locales {
		if v, ok := e.names[l]; ok && v != "" {
			return v
		}
	}
	return e.Name
}

// Locales expands a POSIX locale such as "zh_CN.UTF-8@modifier" into the
// lookup order used for localized keys: lang_COUNTRY@MODIFIER,
// lang_COUNTRY, lang@MODIFIER, lang.
func Locales(posix string) []string {
	if posix == "" || posix == "C" || posix == "POSIX" {
		return nil
	}
	rest, modifier, _ := strings.Cut(posix, "@")
	rest, _, _ = strings.Cut(rest, ".")
	lang, country, _ := strings.Cut(rest, "_")

	var out []string
	if country != "" && modifier != "" {
		out = append(out, lang+"_"+country+"@"+modifier)
	}
	if country != "" {
		out = append(out, lang+"_"+country)
	}
	if modifier != "" {
		out = append(out, lang+"@"+modifier)
	}
	return append(out, lang)
}

var unescaper = strings.NewReplacer(`\s`, " ", `\n`, "\n", `\t`, "\t", `\r`, "\r", `\\`, `\`)

func unescape(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	return unescaper.Replace(v)
}
