// Package detect decides, for one watched entity, whether a freshly observed
// identifier is news. Everything here is pure: no I/O, no clocks except the one
// injected into Detector.
package detect

import (
	"time"

	"tagwatch/internal/watch"
)

// Kind is the outcome of comparing the last-seen identifier with the observed one.
type Kind int

const (
	// Unchanged: nothing observed, or the observation equals what was last seen.
	Unchanged Kind = iota
	// FirstSeen: nothing was seen before and something is observed now.
	FirstSeen
	// Advanced: both present and different. Plain string inequality; upstream is
	// trusted as the source of truth for "latest", so a lower version still counts.
	Advanced
)

func (k Kind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case FirstSeen:
		return "first_seen"
	case Advanced:
		return "advanced"
	default:
		return "unknown"
	}
}

// Decision is the result of Decide. Empty strings mean "absent".
type Decision struct {
	Kind     Kind
	Previous string
	Current  string
}

// Decide compares lastSeen against observed. It is total over all inputs.
func Decide(lastSeen, observed string) Decision {
	switch {
	case observed == "" || observed == lastSeen:
		return Decision{Kind: Unchanged, Previous: lastSeen, Current: lastSeen}
	case lastSeen == "":
		return Decision{Kind: FirstSeen, Current: observed}
	default:
		return Decision{Kind: Advanced, Previous: lastSeen, Current: observed}
	}
}

// Plan is what the poller should do for one entity in one cycle.
type Plan struct {
	Decision Decision
	// Notify is set when Event must be delivered before Commit is applied.
	Notify bool
	Event  watch.Event
	// Commit is the identifier to store; empty means leave the state untouched.
	Commit string
}

// Detector applies the notification policy on top of Decide.
type Detector struct {
	// NotifyOnFirstSeen announces the very first identifier of an entity.
	// Off by default: adding a repo to the watch list records a silent baseline
	// instead of flooding the channel.
	NotifyOnFirstSeen bool

	// Format renders the message body; FormatHTML when nil.
	Format func(watch.Event) string
	// Now is the clock used for Event.ObservedAt; time.Now when nil.
	Now func() time.Time
}

// Plan builds the per-entity plan from the stored identifier and a fresh observation.
func (d Detector) Plan(e watch.Entity, lastSeen string, obs watch.Observation) Plan {
	dec := Decide(lastSeen, obs.ID)
	p := Plan{Decision: dec}

	switch dec.Kind {
	case Unchanged:
		return p
	case FirstSeen:
		p.Commit = dec.Current
		if !d.NotifyOnFirstSeen {
			return p
		}
	case Advanced:
		p.Commit = dec.Current
	}

	p.Notify = true
	p.Event = d.event(e, dec, obs)
	return p
}

func (d Detector) event(e watch.Entity, dec Decision, obs watch.Observation) watch.Event {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	ev := watch.Event{
		Entity:     e,
		Previous:   dec.Previous,
		Identifier: dec.Current,
		Source:     obs.Source,
		URL:        obs.URL,
		ObservedAt: now(),
	}
	if ev.URL == "" {
		ev.URL = ReleaseURL(e, dec.Current)
	}
	format := d.Format
	if format == nil {
		format = FormatHTML
	}
	ev.Message = format(ev)
	return ev
}
