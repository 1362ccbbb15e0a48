package test

import (
	"context"
	"time"

	"github.com/brocaar/lorawan"
	loraband "github.com/brocaar/lorawan/band"

	"github.com/chonal/lora-node/internal/backend/stack"
)

// InitCall holds the arguments of a Stack.Init call.
type InitCall struct {
	DevEUI lorawan.EUI64
	Class  stack.DeviceClass
	Region loraband.Name
}

// Stack is a test protocol stack. All calls are recorded in buffered channels.
type Stack struct {
	MaxPayload int

	InitChan  chan InitCall
	JoinChan  chan struct{}
	SendChan  chan stack.Uplink
	CycleChan chan time.Duration
	SleepChan chan struct{}

	events    chan stack.Event
	downlinks chan stack.Indication
}

// NewStack returns a new Stack with the given max. payload size.
func NewStack(maxPayload int) *Stack {
	return &Stack{
		MaxPayload: maxPayload,
		InitChan:   make(chan InitCall, 100),
		JoinChan:   make(chan struct{}, 1000),
		SendChan:   make(chan stack.Uplink, 1000),
		CycleChan:  make(chan time.Duration, 1000),
		SleepChan:  make(chan struct{}, 1000),
		events:     make(chan stack.Event, 100),
		downlinks:  stack.NewDownlinkChan(),
	}
}

// Init method.
func (s *Stack) Init(devEUI lorawan.EUI64, class stack.DeviceClass, region loraband.Name) error {
	s.InitChan <- InitCall{DevEUI: devEUI, Class: class, Region: region}
	return nil
}

// Join method.
func (s *Stack) Join(ctx context.Context) error {
	s.JoinChan <- struct{}{}
	return nil
}

// MaxPayloadSize method.
func (s *Stack) MaxPayloadSize() int {
	return s.MaxPayload
}

// Send method.
func (s *Stack) Send(ctx context.Context, pl stack.Uplink) error {
	s.SendChan <- pl
	return nil
}

// Cycle method.
func (s *Stack) Cycle(delay time.Duration) error {
	s.CycleChan <- delay
	return nil
}

// Sleep method.
func (s *Stack) Sleep(ctx context.Context) error {
	s.SleepChan <- struct{}{}
	return nil
}

// Events method.
func (s *Stack) Events() <-chan stack.Event {
	return s.events
}

// Downlinks method.
func (s *Stack) Downlinks() <-chan stack.Indication {
	return s.downlinks
}

// Close method.
func (s *Stack) Close() error {
	return nil
}

// Emit emits the given stack event.
func (s *Stack) Emit(e stack.Event) {
	s.events <- e
}

// Deliver offers the given downlink.
func (s *Stack) Deliver(ind stack.Indication) {
	stack.Offer(s.downlinks, ind)
}
