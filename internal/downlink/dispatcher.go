// Package downlink applies the downlinks received by the node.
package downlink

import (
	"encoding/hex"

	log "github.com/sirupsen/logrus"

	"github.com/chonal/lora-node/internal/backend/stack"
	"github.com/chonal/lora-node/internal/board"
	"github.com/chonal/lora-node/internal/payload"
)

// Dispatcher handles received downlinks.
type Dispatcher interface {
	HandleDownlink(ind stack.Indication)
}

// RelayDispatcher drives the relays K1..K4 from the DownlinkFrame.
type RelayDispatcher struct {
	out board.DigitalWriter
}

// NewRelayDispatcher creates a RelayDispatcher writing to out.
func NewRelayDispatcher(out board.DigitalWriter) *RelayDispatcher {
	return &RelayDispatcher{out: out}
}

// HandleDownlink implements Dispatcher. Downlinks smaller than the
// DownlinkFrame are ignored.
func (d *RelayDispatcher) HandleDownlink(ind stack.Indication) {
	logIndication(ind)

	var frame payload.DownlinkFrame
	if err := frame.UnmarshalBinary(ind.Data); err != nil {
		downlinkIgnoredCounter().Inc()
		return
	}

	for i, pin := range board.RelayPins {
		level := board.Low
		if frame.Energized(i) {
			level = board.High
		}

		if err := d.out.DigitalWrite(pin, level); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"pin":   pin,
				"level": level,
			}).Error("downlink: set relay error")
			continue
		}
		relayWriteCounter(pin).Inc()
	}
}

// LogDispatcher only logs the received downlinks.
type LogDispatcher struct{}

// HandleDownlink implements Dispatcher.
func (LogDispatcher) HandleDownlink(ind stack.Indication) {
	logIndication(ind)
}

func logIndication(ind stack.Indication) {
	downlinkCounter(ind.RxSlot).Inc()

	log.WithFields(log.Fields{
		"rx_slot": ind.RxSlot,
		"size":    len(ind.Data),
		"port":    ind.Port,
		"data":    hex.EncodeToString(ind.Data),
	}).Info("downlink: downlink received")
}
