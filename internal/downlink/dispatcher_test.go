package downlink

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/chonal/lora-node/internal/backend/stack"
	"github.com/chonal/lora-node/internal/board"
)

type failingWriter struct {
	board.DigitalWriter
	fail board.Pin
}

func (w failingWriter) DigitalWrite(pin board.Pin, level board.Level) error {
	if pin == w.fail {
		return errors.New("i2c nack")
	}
	return w.DigitalWriter.DigitalWrite(pin, level)
}

func TestRelayDispatcher(t *testing.T) {
	t.Run("undersized downlink", func(t *testing.T) {
		assert := require.New(t)

		b := board.NewSimulated(nil, 0)
		d := NewRelayDispatcher(b)

		ignored := testutil.ToFloat64(downlinkIgnoredCounter())
		d.HandleDownlink(stack.Indication{RxSlot: stack.RXWin1, Port: 2})
		d.HandleDownlink(stack.Indication{RxSlot: stack.RXWin2, Port: 2, Data: []byte{}})

		assert.Len(b.Writes(), 0)
		assert.Equal(ignored+2, testutil.ToFloat64(downlinkIgnoredCounter()))
	})

	t.Run("mask 0b0101", func(t *testing.T) {
		assert := require.New(t)

		b := board.NewSimulated(nil, 0)
		d := NewRelayDispatcher(b)

		// prior state: relays 2 and 4 energized, 1 and 3 released
		d.HandleDownlink(stack.Indication{Port: 2, Data: []byte{0x0a}})
		assert.Equal(board.High, b.Output(board.PinK2))
		assert.Equal(board.High, b.Output(board.PinK4))

		d.HandleDownlink(stack.Indication{Port: 2, Data: []byte{0x05}})
		assert.Equal(board.High, b.Output(board.PinK1))
		assert.Equal(board.Low, b.Output(board.PinK2))
		assert.Equal(board.High, b.Output(board.PinK3))
		assert.Equal(board.Low, b.Output(board.PinK4))

		writes := b.Writes()
		assert.Len(writes, 8)
		assert.Equal([]board.Write{
			{Pin: board.PinK1, Level: board.High},
			{Pin: board.PinK2, Level: board.Low},
			{Pin: board.PinK3, Level: board.High},
			{Pin: board.PinK4, Level: board.Low},
		}, writes[4:])
	})

	t.Run("upper bits and trailing bytes are ignored", func(t *testing.T) {
		assert := require.New(t)

		b := board.NewSimulated(nil, 0)
		d := NewRelayDispatcher(b)

		d.HandleDownlink(stack.Indication{Port: 2, Data: []byte{0xf1, 0xff}})
		assert.Equal([]board.Write{
			{Pin: board.PinK1, Level: board.High},
			{Pin: board.PinK2, Level: board.Low},
			{Pin: board.PinK3, Level: board.Low},
			{Pin: board.PinK4, Level: board.Low},
		}, b.Writes())
	})

	t.Run("write error", func(t *testing.T) {
		assert := require.New(t)

		b := board.NewSimulated(nil, 0)
		d := NewRelayDispatcher(failingWriter{DigitalWriter: b, fail: board.PinK2})

		d.HandleDownlink(stack.Indication{Port: 2, Data: []byte{0x0f}})
		assert.Equal([]board.Write{
			{Pin: board.PinK1, Level: board.High},
			{Pin: board.PinK3, Level: board.High},
			{Pin: board.PinK4, Level: board.High},
		}, b.Writes())
	})
}

func TestLogDispatcher(t *testing.T) {
	assert := require.New(t)

	before := testutil.ToFloat64(downlinkCounter(stack.RXWin2))
	LogDispatcher{}.HandleDownlink(stack.Indication{RxSlot: stack.RXWin2, Port: 2, Data: []byte{0x01}})
	assert.Equal(before+1, testutil.ToFloat64(downlinkCounter(stack.RXWin2)))
}
