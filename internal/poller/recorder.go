package poller

import "time"

// Recorder receives cycle measurements. The observability package provides the
// Prometheus implementation.
type Recorder interface {
	CycleDone(took time.Duration, at time.Time)
	ResolveError(kind string)
	Decision(kind string)
	Notification(result string)
	PersistError()
	StateEntries(n int)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) CycleDone(time.Duration, time.Time) {}
func (NopRecorder) ResolveError(string)                {}
func (NopRecorder) Decision(string)                    {}
func (NopRecorder) Notification(string)                {}
func (NopRecorder) PersistError()                      {}
func (NopRecorder) StateEntries(int)                   {}
