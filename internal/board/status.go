package board

import (
	"encoding/json"
	"fmt"
	"math"
)

// Buttons holds the momentary state of the board's user buttons.
type Buttons struct {
	A bool `json:"a"`
	B bool `json:"b"`
}

// DeviceStatus is a full snapshot of the board's I/O state, as reported
// by the STATUS command. Slices are ordered by 1-based channel index
// (element 0 is channel 1).
type DeviceStatus struct {
	Relays  []bool    `json:"relays"`
	Outputs []int     `json:"outputs"`
	Inputs  []bool    `json:"inputs"`
	ADCs    []float64 `json:"adcs"`
	Buttons Buttons   `json:"buttons"`
}

// Capabilities describes the channel counts of a connected board.
// They are discovered from the first STATUS reply, never hardcoded.
type Capabilities struct {
	Relays  int
	Outputs int
	Inputs  int
	ADCs    int
}

// Capabilities derives channel counts from a snapshot.
func (s DeviceStatus) Capabilities() Capabilities {
	return Capabilities{
		Relays:  len(s.Relays),
		Outputs: len(s.Outputs),
		Inputs:  len(s.Inputs),
		ADCs:    len(s.ADCs),
	}
}

// Clone returns a deep copy so callers cannot mutate shared slices.
func (s DeviceStatus) Clone() DeviceStatus {
	out := DeviceStatus{
		Relays:  append([]bool(nil), s.Relays...),
		Outputs: append([]int(nil), s.Outputs...),
		Inputs:  append([]bool(nil), s.Inputs...),
		ADCs:    append([]float64(nil), s.ADCs...),
		Buttons: s.Buttons,
	}
	return out
}

// ParseStatus decodes the firmware's STATUS JSON line into a DeviceStatus.
//
// The firmware prints outputs as floats ("55.0"); they are rounded to
// integer percent here so the rest of the system deals in 0-100 ints.
func ParseStatus(data []byte) (DeviceStatus, error) {
	var raw struct {
		Relays  []bool    `json:"relays"`
		Outputs []float64 `json:"outputs"`
		Inputs  []bool    `json:"inputs"`
		ADCs    []float64 `json:"adcs"`
		Buttons Buttons   `json:"buttons"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return DeviceStatus{}, fmt.Errorf("%w: malformed status payload: %v", ErrProtocol, err)
	}

	outputs := make([]int, len(raw.Outputs))
	for i, v := range raw.Outputs {
		outputs[i] = int(math.Round(v))
	}

	return DeviceStatus{
		Relays:  raw.Relays,
		Outputs: outputs,
		Inputs:  raw.Inputs,
		ADCs:    raw.ADCs,
		Buttons: raw.Buttons,
	}, nil
}
