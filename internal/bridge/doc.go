// Package bridge connects the board to MQTT: it translates inbound
// command topics into board operations and publishes state back out.
//
// Topic layout (under the configured prefix, default "automation"):
//
//	{prefix}/relay/{n}    inbound: switch relay n (ON/1/TRUE on, else off)
//	{prefix}/output/{n}   inbound: set output n (0-100, or ON/OFF)
//	{prefix}/command      inbound: board-level RESET or STATUS
//	{prefix}/status       outbound: retained JSON snapshot
//	{prefix}/input/{n}    outbound: HIGH/LOW on input edge
//	{prefix}/bridge/status outbound: bridge online/offline (with LWT)
//
// Channel indices in topics are 1-based, matching the board protocol.
// Relay payloads fold totally (unrecognised text switches off); numeric
// output levels are clamped to 0-100. Malformed topics, unparseable
// output payloads, and out-of-range indices are logged and dropped; a
// bad MQTT message never takes the bridge down.
package bridge
