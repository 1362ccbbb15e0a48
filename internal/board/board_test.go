package board

import (
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestSimulated(t *testing.T) {
	assert := require.New(t)

	s := NewSimulated([]float64{1.5, 2}, 3700)

	c, err := s.ReadCurrent(PinAK1)
	assert.NoError(err)
	assert.Equal(float32(1.5), c)

	c, err = s.ReadCurrent(PinAK4)
	assert.NoError(err)
	assert.Equal(float32(0), c)

	s.SetCurrent(PinAK4, 0.25)
	c, err = s.ReadCurrent(PinAK4)
	assert.NoError(err)
	assert.Equal(float32(0.25), c)

	_, err = s.ReadCurrent(PinK1)
	assert.Error(err)

	mv, err := s.ReadBatteryMillivolts()
	assert.NoError(err)
	assert.Equal(int16(3700), mv)

	assert.NoError(s.DigitalWrite(PinK2, High))
	assert.Equal(High, s.Output(PinK2))
	assert.Equal(Low, s.Output(PinK1))
	assert.Error(s.DigitalWrite(PinAK1, High))
	assert.Equal([]Write{{Pin: PinK2, Level: High}}, s.Writes())
}

func TestSimulatedBatteryClamped(t *testing.T) {
	assert := require.New(t)

	mv, err := NewSimulated(nil, 40000).ReadBatteryMillivolts()
	assert.NoError(err)
	assert.Equal(int16(math.MaxInt16), mv)

	mv, err = NewSimulated(nil, -40000).ReadBatteryMillivolts()
	assert.NoError(err)
	assert.Equal(int16(math.MinInt16), mv)
}

func TestPinString(t *testing.T) {
	assert := require.New(t)

	assert.Equal("AK3", PinAK3.String())
	assert.Equal("K4", PinK4.String())
	assert.Equal("Pin(42)", Pin(42).String())
	assert.Equal("HIGH", High.String())
}

func newIIOFixture(t *testing.T) string {
	assert := require.New(t)

	iio := filepath.Join(t.TempDir(), "iio:device0")
	assert.NoError(os.MkdirAll(iio, 0755))

	files := map[string]string{
		"in_voltage_scale":  "0.805664062\n",
		"in_voltage0_raw":   "3103\n",
		"in_voltage1_raw":   "2048\n",
		"in_voltage2_raw":   "0\n",
		"in_voltage2_scale": "1\n",
		"in_voltage7_raw":   "2000\n",
	}
	for name, content := range files {
		assert.NoError(ioutil.WriteFile(filepath.Join(iio, name), []byte(content), 0644))
	}

	return iio
}

func TestSysfs(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x20, W: []byte{0x03}, R: []byte{0x0f}},
			{Addr: 0x20, W: []byte{0x01}, R: []byte{0x01}},
			{Addr: 0x20, W: []byte{0x01, 0x21}},
			{Addr: 0x20, W: []byte{0x01}, R: []byte{0x21}},
			{Addr: 0x20, W: []byte{0x01, 0x01}},
		},
	}

	s, err := newSysfs(SysfsConfig{
		IIODevice:       newIIOFixture(t),
		CurrentChannels: []int{0, 1, 2},
		MillivoltPerAmp: []float64{100, 100, 0},
		ZeroOffsetMV:    []float64{1500, 1650},
		BatteryChannel:  7,
		BatteryDivider:  2,
		RelayBits:       []int{4, 5},
	}, &bus)
	require.NoError(t, err)

	t.Run("current", func(t *testing.T) {
		assert := require.New(t)

		c, err := s.ReadCurrent(PinAK1)
		assert.NoError(err)
		assert.InDelta(10.0, c, 0.01)

		c, err = s.ReadCurrent(PinAK2)
		assert.NoError(err)
		assert.InDelta(0.0, c, 0.01)

		// per-channel scale, no sensitivity configured
		c, err = s.ReadCurrent(PinAK3)
		assert.NoError(err)
		assert.Equal(float32(0), c)

		_, err = s.ReadCurrent(PinAK4)
		assert.Error(err)
	})

	t.Run("battery", func(t *testing.T) {
		assert := require.New(t)

		mv, err := s.ReadBatteryMillivolts()
		assert.NoError(err)
		assert.Equal(int16(3223), mv)
	})

	t.Run("relays", func(t *testing.T) {
		assert := require.New(t)

		// other expander bits are kept
		assert.NoError(s.DigitalWrite(PinK2, High))
		assert.NoError(s.DigitalWrite(PinK2, Low))

		assert.Error(s.DigitalWrite(PinK3, High))
		assert.Error(s.DigitalWrite(PinAK1, High))
		assert.NoError(s.Close())
	})

	t.Run("iio_device missing", func(t *testing.T) {
		_, err := newSysfs(SysfsConfig{}, &i2ctest.Playback{})
		require.Error(t, err)
	})
}

func TestRelays(t *testing.T) {
	t.Run("expander is configured", func(t *testing.T) {
		assert := require.New(t)

		bus := i2ctest.Playback{
			Ops: []i2ctest.IO{
				{Addr: 0x20, W: []byte{0x03}, R: []byte{0xff}},
				{Addr: 0x20, W: []byte{0x03, 0x0f}},
				{Addr: 0x20, W: []byte{0x01}, R: []byte{0x00}},
				{Addr: 0x20, W: []byte{0x01, 0x80}},
			},
		}

		r, err := NewRelays(&bus, 0, nil)
		assert.NoError(err)
		assert.NoError(r.DigitalWrite(PinK4, High))
		assert.NoError(bus.Close())
	})

	t.Run("custom address", func(t *testing.T) {
		assert := require.New(t)

		bus := i2ctest.Playback{
			Ops: []i2ctest.IO{
				{Addr: 0x27, W: []byte{0x03}, R: []byte{0x0f}},
				{Addr: 0x27, W: []byte{0x01}, R: []byte{0xf0}},
				{Addr: 0x27, W: []byte{0x01, 0xe0}},
			},
		}

		r, err := NewRelays(&bus, 0x27, nil)
		assert.NoError(err)
		assert.NoError(r.DigitalWrite(PinK1, Low))
		assert.NoError(bus.Close())
	})

	t.Run("invalid bit", func(t *testing.T) {
		_, err := NewRelays(&i2ctest.Playback{}, 0, []int{0, 8})
		require.Error(t, err)
	})

	t.Run("bus error", func(t *testing.T) {
		_, err := NewRelays(&i2ctest.Playback{DontPanic: true}, 0, nil)
		require.Error(t, err)
	})
}
