package board

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
)

// I/O expander registers of the 4-relay board.
const (
	registerOut = 0x01
	registerCfg = 0x03
)

// DefaultRelayAddress is the I2C address of the relay expander.
const DefaultRelayAddress = 0x20

// relayCfg configures the lower nibble as inputs, the upper as outputs.
const relayCfg = 0x0f

// DefaultRelayBits maps K1..K4 to the expander output bits.
var DefaultRelayBits = []int{4, 5, 6, 7}

// Relays drives the K1..K4 relays through an I2C I/O expander.
type Relays struct {
	mu   sync.Mutex
	dev  *i2c.Dev
	bits []int
}

// NewRelays returns the relay expander at addr on the given bus. The expander
// configuration register is checked and set when needed.
func NewRelays(bus i2c.Bus, addr uint16, bits []int) (*Relays, error) {
	if addr == 0 {
		addr = DefaultRelayAddress
	}
	if len(bits) == 0 {
		bits = DefaultRelayBits
	}
	for _, b := range bits {
		if b < 0 || b > 7 {
			return nil, errors.Errorf("board: invalid relay bit %d", b)
		}
	}

	r := Relays{
		dev:  &i2c.Dev{Bus: bus, Addr: addr},
		bits: bits,
	}

	cfg := make([]byte, 1)
	if err := r.dev.Tx([]byte{registerCfg}, cfg); err != nil {
		return nil, errors.Wrap(err, "board: read relay cfg error")
	}
	if cfg[0] != relayCfg {
		log.WithField("cfg", cfg[0]).Info("board: configuring relay expander")
		if err := r.dev.Tx([]byte{registerCfg, relayCfg}, nil); err != nil {
			return nil, errors.Wrap(err, "board: write relay cfg error")
		}
	}

	return &r, nil
}

// DigitalWrite implements DigitalWriter.
func (r *Relays) DigitalWrite(pin Pin, level Level) error {
	i, ok := relayIndex(pin)
	if !ok {
		return errors.Errorf("board: %s is not a relay output", pin)
	}
	if i >= len(r.bits) {
		return errors.Errorf("board: no relay bit configured for %s", pin)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, 1)
	if err := r.dev.Tx([]byte{registerOut}, out); err != nil {
		return errors.Wrapf(err, "board: read %s error", pin)
	}

	mask := byte(1 << uint(r.bits[i]))
	if level == High {
		out[0] |= mask
	} else {
		out[0] &^= mask
	}

	if err := r.dev.Tx([]byte{registerOut, out[0]}, nil); err != nil {
		return errors.Wrapf(err, "board: write %s error", pin)
	}

	log.WithFields(log.Fields{
		"pin":   pin,
		"level": level,
	}).Debug("board: relay output set")
	return nil
}
