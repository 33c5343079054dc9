package watch

import "time"

// Source says where an identifier came from upstream.
type Source string

const (
	SourceRelease Source = "release"
	SourceTag     Source = "tag"
)

// Observation is the resolver's answer for one entity on one poll.
// The zero value (empty ID) means the entity has nothing resolvable yet.
// Observations are never persisted; only ID reaches the state store.
type Observation struct {
	ID         string
	Source     Source
	URL        string
	Prerelease bool
}

func (o Observation) Empty() bool { return o.ID == "" }

// Event is one announcement of a new identifier. It is built by the detector,
// consumed once by a notifier and then dropped.
type Event struct {
	Entity     Entity
	Previous   string // empty on a first-seen announcement
	Identifier string
	Source     Source
	URL        string
	// Message is the user-facing body, formatted for Telegram HTML parse mode.
	Message    string
	ObservedAt time.Time
}

// DedupKey identifies the transition; sinks that support idempotent publishes use it.
func (e Event) DedupKey() string { return e.Entity.Key() + "@" + e.Identifier }
