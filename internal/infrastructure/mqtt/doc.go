// Package mqtt provides MQTT client connectivity for the automation bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The bridge uses MQTT to expose the I/O board to the rest of the home
// automation system. The broker decouples subscribers (dashboards, rule
// engines) from the serial transport:
//
//	I/O Board ↔ Bridge ↔ MQTT Broker ↔ Subscribers
//
// All topics live under a configurable prefix (default "automation"):
//
//	{prefix}/status          retained board snapshot, published each poll
//	{prefix}/relay/{n}       inbound relay commands
//	{prefix}/output/{n}      inbound output commands
//	{prefix}/input/{n}       input change events (HIGH/LOW)
//	{prefix}/command         board-level commands (RESET, STATUS)
//	{prefix}/bridge/status   bridge availability (online/offline, LWT)
//
// # Security Considerations
//
//   - TLS is recommended for non-local deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all relay commands
//	err = client.Subscribe(client.Topics().AllRelays(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a status snapshot
//	client.Publish(client.Topics().Status(), statusJSON, 1, true)
package mqtt
