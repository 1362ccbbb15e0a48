// Package band resolves the LoRaWAN regional parameters used by the node.
package band

import (
	"github.com/pkg/errors"

	"github.com/brocaar/lorawan"
	loraband "github.com/brocaar/lorawan/band"
)

// Region wraps a regional band configured for a single uplink data-rate.
type Region struct {
	band     loraband.Band
	name     loraband.Name
	dataRate int
}

// New returns the Region for the given band name. When enabledChannels is not
// empty, all other uplink channels are disabled.
func New(name loraband.Name, dataRate int, enabledChannels []int) (*Region, error) {
	b, err := loraband.GetConfig(name, false, lorawan.DwellTimeNoLimit)
	if err != nil {
		return nil, errors.Wrap(err, "get band config error")
	}

	if _, err := b.GetDataRate(dataRate); err != nil {
		return nil, errors.Wrapf(err, "get data-rate %d error", dataRate)
	}

	if len(enabledChannels) != 0 {
		for _, c := range b.GetEnabledUplinkChannelIndices() {
			if err := b.DisableUplinkChannelIndex(c); err != nil {
				return nil, errors.Wrap(err, "disable uplink channel error")
			}
		}

		for _, c := range enabledChannels {
			if err := b.EnableUplinkChannelIndex(c); err != nil {
				return nil, errors.Wrap(err, "enable uplink channel error")
			}
		}
	}

	return &Region{
		band:     b,
		name:     name,
		dataRate: dataRate,
	}, nil
}

// Name returns the band name.
func (r *Region) Name() loraband.Name {
	return r.name
}

// DataRate returns the configured uplink data-rate index.
func (r *Region) DataRate() int {
	return r.dataRate
}

// MaxPayloadSize returns the max. application payload size (N) in bytes for
// the configured data-rate.
func (r *Region) MaxPayloadSize() (int, error) {
	mps, err := r.band.GetMaxPayloadSizeForDataRateIndex("", "", r.dataRate)
	if err != nil {
		return 0, errors.Wrap(err, "get max-payload size error")
	}
	return mps.N, nil
}

// EnabledUplinkChannels returns the enabled uplink channel indices.
func (r *Region) EnabledUplinkChannels() []int {
	return r.band.GetEnabledUplinkChannelIndices()
}
