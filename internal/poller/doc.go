// Package poller runs the watch loop: on every tick each entity is resolved,
// compared with its stored identifier, announced when due, and committed only
// after a successful announcement. The store is persisted once per cycle.
package poller
