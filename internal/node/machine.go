// Package node implements the duty-cycle state machine of the node.
//
// The machine is cooperative and single-threaded: Run executes one state per
// iteration and, before each state, drains the events and the downlink
// reported by the stack. All retry and timing policy belongs to the stack.
package node

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/lorawan"
	loraband "github.com/brocaar/lorawan/band"

	"github.com/chonal/lora-node/internal/backend/stack"
	"github.com/chonal/lora-node/internal/config"
	"github.com/chonal/lora-node/internal/devid"
	"github.com/chonal/lora-node/internal/downlink"
	"github.com/chonal/lora-node/internal/logging"
	"github.com/chonal/lora-node/internal/payload"
)

// Machine is the node state machine.
type Machine struct {
	stack      stack.Stack
	sampler    Sampler
	dispatcher downlink.Dispatcher

	devEUIFunc func() (lorawan.EUI64, error)
	appEUI     lorawan.EUI64
	class      stack.DeviceClass
	region     loraband.Name
	otaa       bool
	adr        bool
	confirmed  bool
	port       uint8
	dutyCycle  time.Duration
	jitter     time.Duration
	random     func(n int64) int64

	state  State
	seq    uint8
	devEUI lorawan.EUI64

	// context of the current duty-cycle, used for logging
	cycleCtx context.Context
}

// NewMachine creates a new Machine in StateInit.
func NewMachine(c config.Config, st stack.Stack, s Sampler, d downlink.Dispatcher) (*Machine, error) {
	class, err := stack.ParseDeviceClass(c.LoRaWAN.Class)
	if err != nil {
		return nil, errors.Wrap(err, "node: parse class error")
	}

	m := Machine{
		stack:      st,
		sampler:    s,
		dispatcher: d,
		appEUI:     c.LoRaWAN.AppEUI,
		class:      class,
		region:     loraband.Name(c.LoRaWAN.Region),
		otaa:       c.LoRaWAN.OTAA,
		adr:        c.LoRaWAN.ADR,
		confirmed:  c.LoRaWAN.ConfirmedUplink,
		port:       c.Node.AppPort,
		dutyCycle:  c.Node.DutyCycle,
		jitter:     c.Node.DutyCycleJitter,
		random:     rand.New(rand.NewSource(time.Now().UnixNano())).Int63n,
		state:      StateInit,
		cycleCtx:   context.Background(),
	}

	if c.Node.DevEUI != (lorawan.EUI64{}) {
		devEUI := c.Node.DevEUI
		m.devEUIFunc = func() (lorawan.EUI64, error) {
			return devEUI, nil
		}
	} else {
		file := c.Node.HardwareIDFile
		m.devEUIFunc = func() (lorawan.EUI64, error) {
			return devid.FromHardware(file)
		}
	}

	return &m, nil
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// SequenceID returns the sequence id of the next uplink.
func (m *Machine) SequenceID() uint8 {
	return m.seq
}

// DevEUI returns the DevEUI, it is set in StateInit.
func (m *Machine) DevEUI() lorawan.EUI64 {
	return m.devEUI
}

// Run runs the state machine until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) error {
	log.WithField("state", m.state).Info("node: starting state machine")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m.Drain()
		m.Step(ctx)
	}
}

// Drain handles all pending stack events and the pending downlink.
func (m *Machine) Drain() {
	for {
		select {
		case e := <-m.stack.Events():
			m.handleEvent(e)
		case ind := <-m.stack.Downlinks():
			m.dispatcher.HandleDownlink(ind)
		default:
			return
		}
	}
}

// Step executes the body of the current state.
func (m *Machine) Step(ctx context.Context) {
	stateStepCounter(m.state).Inc()

	switch m.state {
	case StateInit:
		m.init()
	case StateJoin:
		m.join(ctx)
	case StateSend:
		m.send(ctx)
	case StateCycle:
		m.cycle()
	case StateSleep:
		m.sleep(ctx)
	default:
		log.WithField("state", m.state).Warning("node: unknown state, resetting to init")
		m.state = StateInit
	}
}

func (m *Machine) handleEvent(e stack.Event) {
	switch {
	case e == stack.EventJoined && m.state == StateJoin:
		joinCounter().Inc()
		log.WithField("dev_eui", m.devEUI).Info("node: joined network")
		m.state = StateSend
	case e == stack.EventTxTimer && m.state == StateSleep:
		m.state = StateSend
	default:
		log.WithFields(log.Fields{
			"event": e,
			"state": m.state,
		}).Debug("node: ignoring stack event")
	}
}

func (m *Machine) init() {
	devEUI, err := m.devEUIFunc()
	if err != nil {
		log.WithError(err).Error("node: get dev_eui error")
	}
	m.devEUI = devEUI

	log.WithFields(log.Fields{
		"dev_eui":    m.devEUI,
		"app_eui":    m.appEUI,
		"class":      m.class,
		"region":     m.region,
		"otaa":       m.otaa,
		"adr":        m.adr,
		"confirmed":  m.confirmed,
		"port":       m.port,
		"duty_cycle": m.dutyCycle,
		"jitter":     m.jitter,
	}).Info("node: device parameters")

	if err := m.stack.Init(m.devEUI, m.class, m.region); err != nil {
		log.WithError(err).Error("node: init stack error")
	}

	m.state = StateJoin
}

func (m *Machine) join(ctx context.Context) {
	if err := m.stack.Join(ctx); err != nil {
		log.WithError(err).Error("node: join error")
	}
}

func (m *Machine) send(ctx context.Context) {
	cycleCtx, err := logging.WithContextID(ctx)
	if err != nil {
		log.WithError(err).Error("node: create context id error")
	}
	m.cycleCtx = cycleCtx
	entry := logging.Entry(cycleCtx)

	frame := m.sampler.Sample(m.seq)
	b, err := frame.MarshalBinary()
	if err != nil {
		entry.WithError(err).Error("node: marshal uplink error")
	}

	data := payload.Truncate(b, m.stack.MaxPayloadSize())
	if len(data) < len(b) {
		uplinkTruncatedCounter().Inc()
		entry.WithFields(log.Fields{
			"size":     len(b),
			"max_size": len(data),
		}).Debug("node: uplink truncated to max. payload size")
	}

	entry.WithFields(log.Fields{
		"sequence_id": m.seq,
		"size":        len(data),
	}).Info("node: sending uplink")

	if err := m.stack.Send(cycleCtx, stack.Uplink{
		Port:      m.port,
		Data:      data,
		Confirmed: m.confirmed,
	}); err != nil {
		entry.WithError(err).Error("node: send uplink error")
	}

	m.seq++
	uplinkCounter().Inc()
	sequenceIDGauge().Set(float64(m.seq))

	m.state = StateCycle
}

func (m *Machine) cycle() {
	delay := m.dutyCycle
	if m.jitter > 0 {
		delay += time.Duration(m.random(int64(m.jitter)))
	}

	logging.Entry(m.cycleCtx).WithField("delay", delay).Debug("node: scheduling next uplink")

	if err := m.stack.Cycle(delay); err != nil {
		logging.Entry(m.cycleCtx).WithError(err).Error("node: schedule cycle error")
	}

	m.state = StateSleep
}

func (m *Machine) sleep(ctx context.Context) {
	if err := m.stack.Sleep(ctx); err != nil && ctx.Err() == nil {
		logging.Entry(m.cycleCtx).WithError(err).Error("node: sleep error")
	}
}
