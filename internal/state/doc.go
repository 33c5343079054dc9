// Package state is the durable last-seen record: one identifier per watched
// entity, kept in memory and written out as a whole.
//
// Drivers:
//   - "file": a single JSON object {"owner/repo": "tag", ...}, replaced atomically
//   - "sqlite": one row per entity (build with -tags sqlite)
package state
