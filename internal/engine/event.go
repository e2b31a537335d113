package engine

import (
	"context"
	"fmt"
)

// Op is the kind of a file system change.
type Op string

// Change kinds reported by a Monitor.
const (
	OpCreated  Op = "created"
	OpDeleted  Op = "deleted"
	OpModified Op = "modified"
	OpRenamed  Op = "renamed" // Path is the old name; the new one arrives as created
)

// Event is a single file system change.
type Event struct {
	Op   Op     `json:"op"`
	Path string `json:"path"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s:%s", e.Op, e.Path)
}

// Monitor reports changes below a set of roots until ctx is canceled.
// Directories for which skipDir returns true are not watched.
type Monitor interface {
	Watch(ctx context.Context, roots []string, skipDir func(path string) bool, emit func(Event)) error
}

// Notification kinds sent to a Notifier.
const (
	NotifyReady        = "index.ready"
	NotifyUpdated      = "index.updated"
	NotifyScanStarted  = "scan.started"
	NotifyScanFinished = "scan.finished"
)

// Notifier receives engine notifications. It is called from the engine
// goroutine and must not block.
type Notifier func(kind string, data any)
