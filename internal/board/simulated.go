package board

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Write is a recorded DigitalWrite call.
type Write struct {
	Pin   Pin
	Level Level
}

// Simulated is an in-memory board. Readings are fixed until changed with
// SetCurrent or SetBatteryMillivolts; relay writes are recorded.
type Simulated struct {
	mu sync.Mutex

	currents [4]float32
	battery  int16
	outputs  [4]Level
	writes   []Write
}

// NewSimulated creates a simulated board with the given readings.
func NewSimulated(currents []float64, batteryMillivolts int) *Simulated {
	if batteryMillivolts > math.MaxInt16 {
		batteryMillivolts = math.MaxInt16
	}
	if batteryMillivolts < math.MinInt16 {
		batteryMillivolts = math.MinInt16
	}

	s := Simulated{
		battery: int16(batteryMillivolts),
	}
	for i := range s.currents {
		if i < len(currents) {
			s.currents[i] = float32(currents[i])
		}
	}
	return &s
}

// SetCurrent sets the current returned for the given input.
func (s *Simulated) SetCurrent(pin Pin, amperes float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := currentIndex(pin); ok {
		s.currents[i] = amperes
	}
}

// SetBatteryMillivolts sets the battery reading.
func (s *Simulated) SetBatteryMillivolts(mv int16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.battery = mv
}

// ReadCurrent implements CurrentReader.
func (s *Simulated) ReadCurrent(pin Pin) (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := currentIndex(pin)
	if !ok {
		return 0, errors.Errorf("board: %s is not a current input", pin)
	}
	return s.currents[i], nil
}

// ReadBatteryMillivolts implements BatteryReader.
func (s *Simulated) ReadBatteryMillivolts() (int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.battery, nil
}

// DigitalWrite implements DigitalWriter.
func (s *Simulated) DigitalWrite(pin Pin, level Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := relayIndex(pin)
	if !ok {
		return errors.Errorf("board: %s is not a relay output", pin)
	}
	s.outputs[i] = level
	s.writes = append(s.writes, Write{Pin: pin, Level: level})

	log.WithFields(log.Fields{
		"pin":   pin,
		"level": level,
	}).Debug("board: simulated relay output set")
	return nil
}

// Output returns the current level of the given relay output.
func (s *Simulated) Output(pin Pin) Level {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := relayIndex(pin)
	if !ok {
		return Low
	}
	return s.outputs[i]
}

// Writes returns the recorded writes.
func (s *Simulated) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Write, len(s.writes))
	copy(out, s.writes)
	return out
}
