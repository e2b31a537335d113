// Package models defines the domain types for Spotter.
package models

import "time"

// Kind classifies an indexed entry.
type Kind string

const (
	KindApp       Kind = "app"
	KindDirectory Kind = "directory"
	KindFile      Kind = "file"
	// KindLink is only produced by aliases that point outside the file system.
	KindLink Kind = "link"
)

// Valid reports whether k is one of the persisted kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindApp, KindDirectory, KindFile:
		return true
	}
	return false
}

// Record is the persisted representation of one file system entry.
// Records are never updated in place: a change is a delete followed by an insert.
type Record struct {
	Name            string    `json:"name"`
	Path            string    `json:"path"`
	Extension       string    `json:"extension,omitempty"`
	Kind            Kind      `json:"kind"`
	PhoneticFull    string    `json:"phonetic_full,omitempty"`
	PhoneticAcronym string    `json:"phonetic_acronym,omitempty"`
	Icon            string    `json:"icon,omitempty"`
	ModifiedAt      time.Time `json:"modified_at"`
	Size            int64     `json:"size"`
}

// Alias maps a short user-defined token to a target path or external link.
type Alias struct {
	Alias       string `json:"alias" yaml:"alias"`
	Target      string `json:"target" yaml:"target"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	External    bool   `json:"external,omitempty" yaml:"external,omitempty"`
}
