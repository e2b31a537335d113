// Package phonetic derives Latin search keys from display names: pinyin keys
// for names containing Chinese characters and first-letter acronyms for
// multi-word names.
package phonetic

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mozillazg/go-pinyin"
)

// Keys holds the phonetic search keys of one name. Both fields are empty for
// names that need no transliteration.
type Keys struct {
	Full    string
	Acronym string
}

// Empty reports whether no keys were derived.
func (k Keys) Empty() bool { return k.Full == "" }

var args = pinyin.NewArgs()

// Transcode returns the pinyin keys of name. Names made only of runes in the
// single-byte Latin range, or without any Han character, yield empty keys.
//
// Every Han character becomes one syllable token; runs of other letters and
// digits are kept as word tokens so mixed names such as "微信 WeChat" still
// produce a single key ("weixinwechat", "wxw").
func Transcode(name string) Keys {
	if !needsTranscoding(name) {
		return Keys{}
	}

	var (
		tokens []string
		word   strings.Builder
		han    strings.Builder
		hasHan bool
	)
	flushWord := func() {
		if word.Len() > 0 {
			tokens = append(tokens, strings.ToLower(word.String()))
			word.Reset()
		}
	}
	flushHan := func() {
		if han.Len() == 0 {
			return
		}
		for _, syllable := range pinyin.LazyPinyin(han.String(), args) {
			if syllable != "" {
				tokens = append(tokens, strings.ToLower(syllable))
				hasHan = true
			}
		}
		han.Reset()
	}

	for _, r := range name {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			han.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushHan()
			word.WriteRune(r)
		default:
			flushHan()
			flushWord()
		}
	}
	flushHan()
	flushWord()

	// Only Han characters have a pinyin reading; kana or Hangul alone get no keys.
	if !hasHan {
		return Keys{}
	}

	var full, acronym strings.Builder
	for _, tok := range tokens {
		full.WriteString(tok)
		r, _ := utf8.DecodeRuneInString(tok)
		acronym.WriteRune(r)
	}
	return Keys{Full: full.String(), Acronym: acronym.String()}
}

func needsTranscoding(name string) bool {
	for _, r := range name {
		if r > unicode.MaxLatin1 {
			return true
		}
	}
	return false
}

func isWordSeparator(r rune) bool {
	return r == ' ' || r == '-' || r == '_'
}

// WordAcronym returns the lowercase first letters of the words of name, split
// on spaces, hyphens and underscores. Single-word names and names where no
// word starts with a letter have no acronym.
func WordAcronym(name string) string {
	words := strings.FieldsFunc(name, isWordSeparator)
	if len(words) < 2 {
		return ""
	}

	var b strings.Builder
	hasLetter := false
	for _, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		b.WriteRune(unicode.ToLower(r))
	}
	if !hasLetter {
		return ""
	}
	return b.String()
}
