package board

import (
	"fmt"
	"io/ioutil"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// SysfsConfig holds the Linux sysfs board configuration.
type SysfsConfig struct {
	// IIODevice is the IIO ADC directory, e.g. /sys/bus/iio/devices/iio:device0.
	IIODevice string

	// CurrentChannels maps AK1..AK4 to ADC channels.
	CurrentChannels []int
	// MillivoltPerAmp is the current sensor sensitivity per input.
	MillivoltPerAmp []float64
	// ZeroOffsetMV is the sensor output at 0 A per input.
	ZeroOffsetMV []float64

	BatteryChannel int
	// BatteryDivider is the voltage divider ratio in front of the ADC.
	BatteryDivider float64

	// I2CBus is the I2C bus of the relay expander, empty for the first one.
	I2CBus string
	// RelayAddress is the I2C address of the relay expander.
	RelayAddress uint16
	// RelayBits maps K1..K4 to expander output bits.
	RelayBits []int
}

// Sysfs is a board reading the ADC through the Linux IIO sysfs interface and
// driving the relays through an I2C I/O expander.
type Sysfs struct {
	*Relays

	config SysfsConfig
	bus    i2c.BusCloser
}

// NewSysfs creates a new sysfs board.
func NewSysfs(c SysfsConfig) (*Sysfs, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "board: init host drivers error")
	}

	bus, err := i2creg.Open(c.I2CBus)
	if err != nil {
		return nil, errors.Wrapf(err, "board: open i2c bus %q error", c.I2CBus)
	}

	s, err := newSysfs(c, bus)
	if err != nil {
		bus.Close()
		return nil, err
	}
	return s, nil
}

func newSysfs(c SysfsConfig, bus i2c.BusCloser) (*Sysfs, error) {
	if c.IIODevice == "" {
		return nil, errors.New("board: iio_device must be set")
	}
	if c.BatteryDivider == 0 {
		c.BatteryDivider = 1
	}

	relays, err := NewRelays(bus, c.RelayAddress, c.RelayBits)
	if err != nil {
		return nil, err
	}

	return &Sysfs{
		Relays: relays,
		config: c,
		bus:    bus,
	}, nil
}

// Close closes the I2C bus.
func (s *Sysfs) Close() error {
	return s.bus.Close()
}

// ReadCurrent implements CurrentReader.
func (s *Sysfs) ReadCurrent(pin Pin) (float32, error) {
	i, ok := currentIndex(pin)
	if !ok {
		return 0, errors.Errorf("board: %s is not a current input", pin)
	}
	if i >= len(s.config.CurrentChannels) {
		return 0, errors.Errorf("board: no adc channel configured for %s", pin)
	}

	mv, err := s.readMillivolts(s.config.CurrentChannels[i])
	if err != nil {
		return 0, errors.Wrapf(err, "board: read %s error", pin)
	}

	var zero float64
	if i < len(s.config.ZeroOffsetMV) {
		zero = s.config.ZeroOffsetMV[i]
	}
	sensitivity := 1.0
	if i < len(s.config.MillivoltPerAmp) && s.config.MillivoltPerAmp[i] != 0 {
		sensitivity = s.config.MillivoltPerAmp[i]
	}

	return float32((mv - zero) / sensitivity), nil
}

// ReadBatteryMillivolts implements BatteryReader.
func (s *Sysfs) ReadBatteryMillivolts() (int16, error) {
	mv, err := s.readMillivolts(s.config.BatteryChannel)
	if err != nil {
		return 0, errors.Wrap(err, "board: read battery error")
	}

	mv = math.Round(mv * s.config.BatteryDivider)
	if mv > math.MaxInt16 {
		mv = math.MaxInt16
	}
	if mv < math.MinInt16 {
		mv = math.MinInt16
	}
	return int16(mv), nil
}

func (s *Sysfs) readMillivolts(channel int) (float64, error) {
	raw, err := readFloat(filepath.Join(s.config.IIODevice, fmt.Sprintf("in_voltage%d_raw", channel)))
	if err != nil {
		return 0, err
	}

	// per-channel scale takes precedence over the shared one
	scale, err := readFloat(filepath.Join(s.config.IIODevice, fmt.Sprintf("in_voltage%d_scale", channel)))
	if err != nil {
		scale, err = readFloat(filepath.Join(s.config.IIODevice, "in_voltage_scale"))
		if err != nil {
			return 0, err
		}
	}

	return raw * scale, nil
}

func readFloat(path string) (float64, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s error", path)
	}
	return f, nil
}
