package node

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/chonal/lora-node/internal/board"
	"github.com/chonal/lora-node/internal/config"
	"github.com/chonal/lora-node/internal/downlink"
	"github.com/chonal/lora-node/internal/payload"
)

// Sampler reads the sensors into the uplink frame of the node variant.
type Sampler interface {
	Sample(seq uint8) payload.Uplink
}

// CurrentSampler samples the AK1..AK4 current inputs.
type CurrentSampler struct {
	r     board.CurrentReader
	frame payload.CurrentFrame
}

// NewCurrentSampler creates a CurrentSampler.
func NewCurrentSampler(r board.CurrentReader) *CurrentSampler {
	return &CurrentSampler{r: r}
}

// Sample implements Sampler. An input that can not be read keeps its
// previous value.
func (s *CurrentSampler) Sample(seq uint8) payload.Uplink {
	s.frame.SequenceID = seq
	for i, pin := range board.CurrentPins {
		c, err := s.r.ReadCurrent(pin)
		if err != nil {
			log.WithError(err).WithField("pin", pin).Error("node: read current error")
			continue
		}
		s.frame.Currents[i] = c
	}
	return s.frame
}

// BatterySampler samples the battery voltage.
type BatterySampler struct {
	r     board.BatteryReader
	frame payload.BatteryFrame
}

// NewBatterySampler creates a BatterySampler.
func NewBatterySampler(r board.BatteryReader) *BatterySampler {
	return &BatterySampler{r: r}
}

// Sample implements Sampler.
func (s *BatterySampler) Sample(seq uint8) payload.Uplink {
	s.frame.SequenceID = seq
	mv, err := s.r.ReadBatteryMillivolts()
	if err != nil {
		log.WithError(err).Error("node: read battery error")
	} else {
		s.frame.BatteryMillivolts = mv
	}
	return s.frame
}

// ForVariant returns the sampler and downlink dispatcher of the given
// node variant.
func ForVariant(variant string, b board.Board) (Sampler, downlink.Dispatcher, error) {
	switch variant {
	case config.VariantCurrent:
		return NewCurrentSampler(b), downlink.NewRelayDispatcher(b), nil
	case config.VariantBattery:
		return NewBatterySampler(b), downlink.LogDispatcher{}, nil
	default:
		return nil, nil, errors.Errorf("unknown node variant: %q", variant)
	}
}
