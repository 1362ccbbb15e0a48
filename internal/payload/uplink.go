// Package payload implements the fixed-layout application payloads exchanged
// with the network server.
//
// All frames are packed and little-endian. The network-server side decodes
// them by byte offset, so field order and sizes must never change.
package payload

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// CurrentChannels is the number of current channels in a CurrentFrame.
const CurrentChannels = 4

// Frame sizes in bytes.
const (
	CurrentFrameSize = 1 + CurrentChannels*4
	BatteryFrameSize = 1 + 2
)

// Uplink is implemented by the uplink frames.
type Uplink interface {
	MarshalBinary() ([]byte, error)
	// Size returns the natural (untruncated) size of the frame in bytes.
	Size() int
}

// CurrentFrame holds the current readings of the AK1..AK4 channels.
type CurrentFrame struct {
	SequenceID uint8
	Currents   [CurrentChannels]float32 // amperes
}

// Size implements Uplink.
func (f CurrentFrame) Size() int {
	return CurrentFrameSize
}

// MarshalBinary encodes the frame.
func (f CurrentFrame) MarshalBinary() ([]byte, error) {
	b := make([]byte, CurrentFrameSize)
	b[0] = f.SequenceID
	for i, c := range f.Currents {
		binary.LittleEndian.PutUint32(b[1+i*4:], math.Float32bits(c))
	}
	return b, nil
}

// UnmarshalBinary decodes the frame.
func (f *CurrentFrame) UnmarshalBinary(data []byte) error {
	if len(data) != CurrentFrameSize {
		return errors.Errorf("payload: %d bytes expected, got %d", CurrentFrameSize, len(data))
	}
	f.SequenceID = data[0]
	for i := range f.Currents {
		f.Currents[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[1+i*4:]))
	}
	return nil
}

// BatteryFrame holds the battery voltage reading.
type BatteryFrame struct {
	SequenceID        uint8
	BatteryMillivolts int16
}

// Size implements Uplink.
func (f BatteryFrame) Size() int {
	return BatteryFrameSize
}

// MarshalBinary encodes the frame.
func (f BatteryFrame) MarshalBinary() ([]byte, error) {
	b := make([]byte, BatteryFrameSize)
	b[0] = f.SequenceID
	binary.LittleEndian.PutUint16(b[1:], uint16(f.BatteryMillivolts))
	return b, nil
}

// UnmarshalBinary decodes the frame.
func (f *BatteryFrame) UnmarshalBinary(data []byte) error {
	if len(data) != BatteryFrameSize {
		return errors.Errorf("payload: %d bytes expected, got %d", BatteryFrameSize, len(data))
	}
	f.SequenceID = data[0]
	f.BatteryMillivolts = int16(binary.LittleEndian.Uint16(data[1:]))
	return nil
}

// Truncate returns the first min(len(b), limit) bytes of b. Trailing fields
// that do not fit are dropped silently.
func Truncate(b []byte, limit int) []byte {
	if limit < 0 {
		limit = 0
	}
	if len(b) <= limit {
		return b
	}
	return b[:limit]
}
