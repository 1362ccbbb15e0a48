// Package stack defines the interface of the LoRaWAN protocol stack used by
// the node. The stack owns the MAC layer: join, retransmissions, timing and
// the delivery of downlinks.
package stack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/brocaar/lorawan"
	loraband "github.com/brocaar/lorawan/band"
)

// DeviceClass defines the LoRaWAN device class.
type DeviceClass string

// Device classes.
const (
	ClassA DeviceClass = "A"
	ClassB DeviceClass = "B"
	ClassC DeviceClass = "C"
)

// ParseDeviceClass parses a device class ("A", "b", "C", ...).
func ParseDeviceClass(s string) (DeviceClass, error) {
	switch c := DeviceClass(strings.ToUpper(s)); c {
	case ClassA, ClassB, ClassC:
		return c, nil
	default:
		return "", errors.Errorf("unknown device class: %q", s)
	}
}

// RxSlot identifies the receive window in which a downlink was received.
type RxSlot int

// Receive windows.
const (
	RXWin1 RxSlot = iota
	RXWin2
)

func (s RxSlot) String() string {
	if s == RXWin2 {
		return "RXWIN2"
	}
	return "RXWIN1"
}

// Indication holds a received downlink.
type Indication struct {
	RxSlot RxSlot
	Port   uint8
	Data   []byte
}

// Uplink holds an application payload to transmit.
type Uplink struct {
	Port      uint8
	Data      []byte
	Confirmed bool
}

// Event is an asynchronous notification of the stack.
type Event int

// Stack events.
const (
	// EventJoined is emitted when the device has joined the network.
	EventJoined Event = iota
	// EventTxTimer is emitted when the scheduled duty-cycle elapsed.
	EventTxTimer
)

var eventStr = []string{"joined", "tx_timer"}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventStr) {
		return fmt.Sprintf("Event(%d)", int(e))
	}
	return eventStr[e]
}

// Stack is the interface of a LoRaWAN protocol stack.
type Stack interface {
	Init(devEUI lorawan.EUI64, class DeviceClass, region loraband.Name) error // initialize the stack
	Join(ctx context.Context) error                                          // start the join, completion is signaled by EventJoined
	MaxPayloadSize() int                                                     // max. application payload size in bytes
	Send(ctx context.Context, pl Uplink) error                               // transmit the given uplink
	Cycle(delay time.Duration) error                                         // schedule the next EventTxTimer
	Sleep(ctx context.Context) error                                         // low-power wait until the timer or a downlink
	Events() <-chan Event                                                    // channel containing the stack events
	Downlinks() <-chan Indication                                            // single-slot channel containing the received downlink
	Close() error                                                            // close the stack
}

// NewDownlinkChan returns the single-slot downlink channel.
func NewDownlinkChan() chan Indication {
	return make(chan Indication, 1)
}

// Offer puts ind in the single-slot channel ch without blocking. A pending
// indication that was not drained yet is replaced; replaced is true in that case.
// There must be a single producer per channel.
func Offer(ch chan Indication, ind Indication) (replaced bool) {
	for {
		select {
		case ch <- ind:
			return replaced
		default:
		}

		select {
		case <-ch:
			replaced = true
		default:
		}
	}
}
