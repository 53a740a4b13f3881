package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteBoardStatus writes one telemetry point for a board poll cycle.
//
// The write is non-blocking; data is batched and sent asynchronously.
// One point is written per poll with ADC voltages and input states as
// fields, tagged with the serial port the board is attached to.
//
// Parameters:
//   - port: Serial port the board is connected on (tag, low cardinality)
//   - adcs: ADC channel voltages in volts
//   - inputs: Digital input states
//
// Example:
//
//	client.WriteBoardStatus("/dev/ttyACM0", []float64{3.301, 0.012, 11.98}, []bool{true, false, false, false})
func (c *Client) WriteBoardStatus(port string, adcs []float64, inputs []bool) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]interface{}, len(adcs)+len(inputs))
	for i, v := range adcs {
		fields[fmt.Sprintf("adc_%d_volts", i)] = v
	}
	for i, v := range inputs {
		fields[fmt.Sprintf("input_%d", i)] = v
	}
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"board_status",
		map[string]string{
			"port": port,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteRelayState records a relay state change.
//
// Parameters:
//   - port: Serial port tag
//   - index: Relay index
//   - on: New relay state
func (c *Client) WriteRelayState(port string, index int, on bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"relay_state",
		map[string]string{
			"port":  port,
			"relay": fmt.Sprintf("%d", index),
		},
		map[string]interface{}{
			"on": on,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
