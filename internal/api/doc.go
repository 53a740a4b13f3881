// Package api provides the local HTTP REST interface to the bridge.
//
// It exposes the cached board state, relay and output control, board
// reset, and snapshot history. Reads are served from the state cache and
// never touch the serial link; writes are forwarded to the board link
// and validated before any wire contact.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
