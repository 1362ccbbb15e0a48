package payload

import "github.com/pkg/errors"

// Relays is the number of relays addressed by a DownlinkFrame.
const Relays = 4

// DownlinkFrameSize is the size of the DownlinkFrame in bytes.
const DownlinkFrameSize = 1

// ErrShortDownlink is returned when a downlink is smaller than a DownlinkFrame.
var ErrShortDownlink = errors.New("payload: downlink shorter than frame")

// DownlinkFrame contains the relay command. Bit i (0..3) controls relay i+1,
// a set bit energizes the relay.
type DownlinkFrame struct {
	RelayMask uint8
}

// MarshalBinary encodes the frame.
func (f DownlinkFrame) MarshalBinary() ([]byte, error) {
	return []byte{f.RelayMask}, nil
}

// UnmarshalBinary decodes the leading bytes of data. Extra bytes are ignored.
func (f *DownlinkFrame) UnmarshalBinary(data []byte) error {
	if len(data) < DownlinkFrameSize {
		return ErrShortDownlink
	}
	f.RelayMask = data[0]
	return nil
}

// Energized returns true when relay i (0 based) must be energized.
func (f DownlinkFrame) Energized(i int) bool {
	return f.RelayMask&(1<<uint(i)) != 0
}
