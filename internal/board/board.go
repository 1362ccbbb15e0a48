// Package board provides access to the sensor and relay hardware of the node.
// The ADC is read through the kernel IIO drivers, the relays are driven over
// I2C; this package only exposes the reads and writes the node needs.
package board

import "fmt"

// Pin is a logical pin of the I/O expander board.
type Pin int

// Analog current inputs and relay outputs.
const (
	PinAK1 Pin = iota
	PinAK2
	PinAK3
	PinAK4
	PinK1
	PinK2
	PinK3
	PinK4
)

// CurrentPins holds the analog current inputs, in frame order.
var CurrentPins = [4]Pin{PinAK1, PinAK2, PinAK3, PinAK4}

// RelayPins holds the relay outputs, in DownlinkFrame bit order.
var RelayPins = [4]Pin{PinK1, PinK2, PinK3, PinK4}

var pinStr = []string{"AK1", "AK2", "AK3", "AK4", "K1", "K2", "K3", "K4"}

func (p Pin) String() string {
	if p < 0 || int(p) >= len(pinStr) {
		return fmt.Sprintf("Pin(%d)", int(p))
	}
	return pinStr[p]
}

// Level is a digital output level.
type Level bool

// Output levels.
const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// CurrentReader reads an analog input as current.
type CurrentReader interface {
	ReadCurrent(pin Pin) (float32, error) // amperes
}

// DigitalWriter drives a digital output.
type DigitalWriter interface {
	DigitalWrite(pin Pin, level Level) error
}

// BatteryReader reads the battery voltage.
type BatteryReader interface {
	ReadBatteryMillivolts() (int16, error)
}

// Board combines all board capabilities.
type Board interface {
	CurrentReader
	DigitalWriter
	BatteryReader
}

func relayIndex(p Pin) (int, bool) {
	for i, rp := range RelayPins {
		if rp == p {
			return i, true
		}
	}
	return 0, false
}

func currentIndex(p Pin) (int, bool) {
	for i, cp := range CurrentPins {
		if cp == p {
			return i, true
		}
	}
	return 0, false
}
