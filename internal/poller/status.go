package poller

import (
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// EntityStatus is the latest outcome for one entity, served on /healthz.
type EntityStatus struct {
	Entity            string    `json:"entity"`
	LastCheck         time.Time `json:"last_check"`
	LastSeen          string    `json:"last_seen,omitempty"`
	LastDecision      string    `json:"last_decision,omitempty"`
	LastNotified      time.Time `json:"last_notified,omitempty"`
	LastError         string    `json:"last_error,omitempty"`
	LastErrorAt       time.Time `json:"last_error_at,omitempty"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
}

// StatusTable holds one EntityStatus per entity. Within a cycle each entity is
// handled by exactly one goroutine and cycles never overlap, so per-key
// read-modify-write needs no extra locking.
type StatusTable struct {
	m *xsync.Map[string, EntityStatus]
}

func NewStatusTable() *StatusTable {
	return &StatusTable{m: xsync.NewMap[string, EntityStatus]()}
}

func (t *StatusTable) update(key string, fn func(*EntityStatus)) {
	st, _ := t.m.Load(key)
	st.Entity = key
	fn(&st)
	t.m.Store(key, st)
}

func (t *StatusTable) Get(key string) (EntityStatus, bool) {
	return t.m.Load(key)
}

// Snapshot returns all statuses sorted by entity.
func (t *StatusTable) Snapshot() []EntityStatus {
	out := make([]EntityStatus, 0, t.m.Size())
	t.m.Range(func(_ string, v EntityStatus) bool {
		out = append(out, v)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}
