package node

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/brocaar/lorawan"
	loraband "github.com/brocaar/lorawan/band"

	"github.com/chonal/lora-node/internal/backend/stack"
	"github.com/chonal/lora-node/internal/board"
	"github.com/chonal/lora-node/internal/config"
	"github.com/chonal/lora-node/internal/payload"
	"github.com/chonal/lora-node/internal/test"
)

type MachineTestSuite struct {
	suite.Suite

	conf    config.Config
	board   *board.Simulated
	stack   *test.Stack
	machine *Machine
}

func (ts *MachineTestSuite) SetupTest() {
	assert := require.New(ts.T())

	ts.conf = test.GetConfig()
	ts.board = board.NewSimulated([]float64{1.5, 0, 2.25, 10}, 3700)
	ts.stack = test.NewStack(51)

	sampler, dispatcher, err := ForVariant(ts.conf.Node.Variant, ts.board)
	assert.NoError(err)

	ts.machine, err = NewMachine(ts.conf, ts.stack, sampler, dispatcher)
	assert.NoError(err)
}

// joined brings the machine into StateSend.
func (ts *MachineTestSuite) joined() {
	ts.machine.Step(context.Background())
	ts.machine.Step(context.Background())
	ts.stack.Emit(stack.EventJoined)
	ts.machine.Drain()
	ts.Require().Equal(StateSend, ts.machine.State())
}

// dutyCycle runs Send, Cycle and Sleep and fires the tx timer.
func (ts *MachineTestSuite) dutyCycle() stack.Uplink {
	assert := require.New(ts.T())
	ctx := context.Background()

	ts.machine.Step(ctx)
	assert.Equal(StateCycle, ts.machine.State())
	ts.machine.Step(ctx)
	assert.Equal(StateSleep, ts.machine.State())
	ts.machine.Step(ctx)
	assert.Equal(StateSleep, ts.machine.State())

	ts.stack.Emit(stack.EventTxTimer)
	ts.machine.Drain()
	assert.Equal(StateSend, ts.machine.State())

	<-ts.stack.CycleChan
	<-ts.stack.SleepChan
	return <-ts.stack.SendChan
}

func (ts *MachineTestSuite) TestInitJoin() {
	assert := require.New(ts.T())
	ctx := context.Background()

	assert.Equal(StateInit, ts.machine.State())

	ts.machine.Step(ctx)
	assert.Equal(StateJoin, ts.machine.State())
	assert.Equal(test.InitCall{
		DevEUI: lorawan.EUI64{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		Class:  stack.ClassA,
		Region: loraband.EU868,
	}, <-ts.stack.InitChan)
	assert.Equal(ts.conf.Node.DevEUI, ts.machine.DevEUI())

	ts.T().Run("Join is retried until joined", func(t *testing.T) {
		assert := require.New(t)

		for i := 0; i < 3; i++ {
			ts.machine.Drain()
			ts.machine.Step(ctx)
			assert.Equal(StateJoin, ts.machine.State())
			<-ts.stack.JoinChan
		}
	})

	ts.T().Run("TX timer is ignored while joining", func(t *testing.T) {
		assert := require.New(t)

		ts.stack.Emit(stack.EventTxTimer)
		ts.machine.Drain()
		assert.Equal(StateJoin, ts.machine.State())
	})

	ts.T().Run("Joined", func(t *testing.T) {
		assert := require.New(t)

		ts.stack.Emit(stack.EventJoined)
		ts.machine.Drain()
		assert.Equal(StateSend, ts.machine.State())
	})

	ts.T().Run("Joined is ignored outside join", func(t *testing.T) {
		assert := require.New(t)

		ts.machine.Step(ctx)
		assert.Equal(StateCycle, ts.machine.State())
		ts.stack.Emit(stack.EventJoined)
		ts.machine.Drain()
		assert.Equal(StateCycle, ts.machine.State())
	})
}

func (ts *MachineTestSuite) TestInitWithHardwareID() {
	assert := require.New(ts.T())

	ts.conf.Node.DevEUI = lorawan.EUI64{}
	ts.conf.Node.HardwareIDFile = "/does/not/exist"

	m, err := NewMachine(ts.conf, ts.stack, NewCurrentSampler(ts.board), nil)
	assert.NoError(err)

	// the machine proceeds to join, even without dev_eui
	m.Step(context.Background())
	assert.Equal(StateJoin, m.State())
	assert.Equal(lorawan.EUI64{}, (<-ts.stack.InitChan).DevEUI)
}

func (ts *MachineTestSuite) TestUplink() {
	assert := require.New(ts.T())
	ts.joined()

	pl := ts.dutyCycle()
	assert.Equal(ts.conf.Node.AppPort, pl.Port)
	assert.False(pl.Confirmed)

	var frame payload.CurrentFrame
	assert.NoError(frame.UnmarshalBinary(pl.Data))
	assert.Equal(payload.CurrentFrame{
		SequenceID: 0,
		Currents:   [4]float32{1.5, 0, 2.25, 10},
	}, frame)

	ts.T().Run("Sensor value changed", func(t *testing.T) {
		assert := require.New(t)

		ts.board.SetCurrent(board.PinAK1, 3)
		pl := ts.dutyCycle()

		var frame payload.CurrentFrame
		assert.NoError(frame.UnmarshalBinary(pl.Data))
		assert.Equal(uint8(1), frame.SequenceID)
		assert.Equal(float32(3), frame.Currents[0])
	})
}

func (ts *MachineTestSuite) TestSequenceIDWraps() {
	assert := require.New(ts.T())
	ts.joined()

	for i := 0; i < 300; i++ {
		pl := ts.dutyCycle()
		assert.Equal(byte(i%256), pl.Data[0])
	}
	assert.Equal(uint8(300%256), ts.machine.SequenceID())
}

func (ts *MachineTestSuite) TestTruncate() {
	tests := []struct {
		Name       string
		MaxPayload int
		Expected   int
	}{
		{"Fits", 51, payload.CurrentFrameSize},
		{"Exact", payload.CurrentFrameSize, payload.CurrentFrameSize},
		{"Truncated", 11, 11},
		{"Nothing", 0, 0},
	}

	for _, tst := range tests {
		ts.T().Run(tst.Name, func(t *testing.T) {
			assert := require.New(t)

			ts.SetupTest()
			ts.stack.MaxPayload = tst.MaxPayload
			ts.joined()

			pl := ts.dutyCycle()
			assert.Len(pl.Data, tst.Expected)
		})
	}
}

func (ts *MachineTestSuite) TestCycleDelay() {
	assert := require.New(ts.T())
	ts.joined()

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		ts.machine.Step(ctx)
		ts.machine.Step(ctx)
		<-ts.stack.SendChan

		delay := <-ts.stack.CycleChan
		assert.True(delay >= ts.conf.Node.DutyCycle, "delay: %s", delay)
		assert.True(delay < ts.conf.Node.DutyCycle+ts.conf.Node.DutyCycleJitter, "delay: %s", delay)

		ts.machine.state = StateSend
	}

	ts.T().Run("Without jitter", func(t *testing.T) {
		assert := require.New(t)

		ts.machine.jitter = 0
		ts.machine.Step(ctx)
		ts.machine.Step(ctx)
		<-ts.stack.SendChan
		assert.Equal(ts.conf.Node.DutyCycle, <-ts.stack.CycleChan)
	})

	ts.T().Run("Fixed random", func(t *testing.T) {
		assert := require.New(t)

		ts.machine.state = StateSend
		ts.machine.jitter = time.Second
		ts.machine.random = func(n int64) int64 { return n - 1 }
		ts.machine.Step(ctx)
		ts.machine.Step(ctx)
		<-ts.stack.SendChan
		assert.Equal(ts.conf.Node.DutyCycle+time.Second-1, <-ts.stack.CycleChan)
	})
}

func (ts *MachineTestSuite) TestUnknownState() {
	assert := require.New(ts.T())

	ts.machine.state = State(42)
	ts.machine.Step(context.Background())
	assert.Equal(StateInit, ts.machine.State())
}

func (ts *MachineTestSuite) TestDownlink() {
	assert := require.New(ts.T())
	ts.joined()

	ts.stack.Deliver(stack.Indication{RxSlot: stack.RXWin1, Port: 2, Data: []byte{0x0f}})
	ts.stack.Deliver(stack.Indication{RxSlot: stack.RXWin2, Port: 2, Data: []byte{0x05}})
	ts.machine.Drain()

	assert.Equal(board.High, ts.board.Output(board.PinK1))
	assert.Equal(board.Low, ts.board.Output(board.PinK2))
	assert.Equal(board.High, ts.board.Output(board.PinK3))
	assert.Equal(board.Low, ts.board.Output(board.PinK4))
	assert.Len(ts.board.Writes(), len(board.RelayPins))

	ts.T().Run("Undersized downlink is ignored", func(t *testing.T) {
		assert := require.New(t)

		ts.stack.Deliver(stack.Indication{RxSlot: stack.RXWin1, Port: 2})
		ts.machine.Drain()
		assert.Len(ts.board.Writes(), len(board.RelayPins))
		assert.Equal(StateSend, ts.machine.State())
	})
}

func (ts *MachineTestSuite) TestBatteryVariant() {
	assert := require.New(ts.T())

	sampler, dispatcher, err := ForVariant(config.VariantBattery, ts.board)
	assert.NoError(err)
	ts.machine, err = NewMachine(ts.conf, ts.stack, sampler, dispatcher)
	assert.NoError(err)
	ts.joined()

	pl := ts.dutyCycle()
	assert.Equal([]byte{0x00, 0x74, 0x0e}, pl.Data)

	ts.T().Run("Downlink is logged only", func(t *testing.T) {
		assert := require.New(t)

		ts.stack.Deliver(stack.Indication{RxSlot: stack.RXWin1, Port: 2, Data: []byte{0x0f}})
		ts.machine.Drain()
		assert.Len(ts.board.Writes(), 0)
	})
}

func (ts *MachineTestSuite) TestRun() {
	assert := require.New(ts.T())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(context.Canceled, ts.machine.Run(ctx))
	assert.Equal(StateInit, ts.machine.State())
}

type flakyReader struct {
	fail bool
	val  float32
}

func (r *flakyReader) ReadCurrent(pin board.Pin) (float32, error) {
	if r.fail {
		return 0, errors.New("read error")
	}
	return r.val, nil
}

func TestCurrentSampler(t *testing.T) {
	assert := require.New(t)

	r := flakyReader{val: 1.25}
	s := NewCurrentSampler(&r)

	assert.Equal(payload.CurrentFrame{
		SequenceID: 1,
		Currents:   [4]float32{1.25, 1.25, 1.25, 1.25},
	}, s.Sample(1))

	r.fail = true
	assert.Equal(payload.CurrentFrame{
		SequenceID: 2,
		Currents:   [4]float32{1.25, 1.25, 1.25, 1.25},
	}, s.Sample(2))
}

func TestMachine(t *testing.T) {
	suite.Run(t, new(MachineTestSuite))
}

func TestNewMachine(t *testing.T) {
	assert := require.New(t)

	conf := test.GetConfig()
	conf.LoRaWAN.Class = "D"
	_, err := NewMachine(conf, test.NewStack(51), nil, nil)
	assert.Error(err)

	_, _, err = ForVariant("unknown", board.NewSimulated(nil, 0))
	assert.Error(err)
}
