// Package service orchestrates the bridge's runtime: the board poll
// loop, serial reconnection, MQTT session supervision, and fan-out of
// each snapshot to the cache, MQTT, SQLite history, and InfluxDB.
//
// One goroutine owns the poll loop. Each cycle it reconnects the board
// link if eligible, takes a STATUS snapshot, updates the cache, and
// publishes. Three consecutive poll failures force a disconnect so the
// link re-validates the device on the next cycle. The MQTT session is
// dialled in a second goroutine that retries on a fixed interval until
// the broker appears; the bridge keeps running against the board and
// HTTP API while the broker is down.
package service
