// Package state caches the most recent board snapshot for readers that
// must not block on the serial link.
//
// The poller writes a fresh snapshot each cycle; the HTTP API and MQTT
// publisher read the cached copy along with its age. The cache is stale,
// never invalid: while the board is down, reads keep returning the last
// snapshot with growing age, and callers decide what staleness means.
// Reads return deep copies, so callers can never mutate the cached
// snapshot.
package state
