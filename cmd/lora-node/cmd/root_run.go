package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	loraband "github.com/brocaar/lorawan/band"

	"github.com/chonal/lora-node/internal/backend/stack"
	"github.com/chonal/lora-node/internal/backend/stack/mqtt"
	"github.com/chonal/lora-node/internal/band"
	"github.com/chonal/lora-node/internal/board"
	"github.com/chonal/lora-node/internal/config"
	"github.com/chonal/lora-node/internal/monitoring"
	"github.com/chonal/lora-node/internal/node"
)

var (
	nodeBoard   board.Board
	nodeStack   stack.Stack
	nodeMachine *node.Machine
)

func run(cmd *cobra.Command, args []string) error {
	tasks := []func() error{
		setLogLevel,
		setSyslog,
		printStartMessage,
		setupBoard,
		setupStack,
		setupMonitoring,
		setupNode,
	}

	for _, t := range tasks {
		if err := t(); err != nil {
			log.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	machineDone := make(chan struct{})
	go func() {
		errChan <- nodeMachine.Run(ctx)
		close(machineDone)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-sigChan:
		log.WithField("signal", s).Info("signal received")
	case err := <-errChan:
		log.WithError(err).Error("state machine stopped")
	}

	exitChan := make(chan struct{})
	go func() {
		log.Warning("stopping lora-node")
		if err := stop(cancel, machineDone); err != nil {
			log.Fatal(err)
		}
		exitChan <- struct{}{}
	}()
	select {
	case <-exitChan:
	case s := <-sigChan:
		log.WithField("signal", s).Info("signal received, stopping immediately")
	}

	return nil
}

// stop cancels the state machine, waits until it returned and closes the
// stack and the board.
func stop(cancel context.CancelFunc, machineDone <-chan struct{}) error {
	cancel()
	<-machineDone

	if err := nodeStack.Close(); err != nil {
		return errors.Wrap(err, "close stack error")
	}

	if c, ok := nodeBoard.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.WithError(err).Error("close board error")
		}
	}
	return nil
}

func setLogLevel() error {
	log.SetLevel(log.Level(uint8(config.C.General.LogLevel)))
	return nil
}

func printStartMessage() error {
	log.WithFields(log.Fields{
		"version": version,
		"variant": config.C.Node.Variant,
		"region":  config.C.LoRaWAN.Region,
		"class":   config.C.LoRaWAN.Class,
	}).Info("starting lora-node")
	return nil
}

func setupBoard() error {
	switch config.C.Board.Type {
	case "simulated":
		nodeBoard = board.NewSimulated(config.C.Board.Simulated.Currents, config.C.Board.Simulated.BatteryMillivolts)
	case "sysfs":
		c := config.C.Board.Sysfs
		b, err := board.NewSysfs(board.SysfsConfig{
			IIODevice:       c.IIODevice,
			CurrentChannels: c.CurrentChannels,
			MillivoltPerAmp: c.MillivoltPerAmp,
			ZeroOffsetMV:    c.ZeroOffsetMV,
			BatteryChannel:  c.BatteryChannel,
			BatteryDivider:  c.BatteryDivider,
			I2CBus:          c.I2CBus,
			RelayAddress:    c.RelayAddress,
			RelayBits:       c.RelayBits,
		})
		if err != nil {
			return errors.Wrap(err, "setup sysfs board error")
		}
		nodeBoard = b
	default:
		return errors.Errorf("unknown board type: %s", config.C.Board.Type)
	}

	log.WithField("type", config.C.Board.Type).Info("board configured")
	return nil
}

func setupStack() error {
	if _, err := band.New(loraband.Name(config.C.LoRaWAN.Region), config.C.LoRaWAN.DataRate, config.C.LoRaWAN.EnabledUplinkChannels); err != nil {
		return errors.Wrap(err, "invalid lorawan region settings")
	}

	switch config.C.Backend.Type {
	case "mqtt":
		b, err := mqtt.NewBackend(mqtt.NewConfig(config.C))
		if err != nil {
			return errors.Wrap(err, "setup mqtt stack error")
		}
		nodeStack = b
	default:
		return errors.Errorf("unknown backend type: %s", config.C.Backend.Type)
	}

	return nil
}

func setupMonitoring() error {
	var checks []monitoring.HealthChecker
	if hc, ok := nodeStack.(monitoring.HealthChecker); ok {
		checks = append(checks, hc)
	}

	if err := monitoring.Setup(config.C, checks...); err != nil {
		return errors.Wrap(err, "setup monitoring error")
	}
	return nil
}

func setupNode() error {
	sampler, dispatcher, err := node.ForVariant(config.C.Node.Variant, nodeBoard)
	if err != nil {
		return errors.Wrap(err, "setup node variant error")
	}

	nodeMachine, err = node.NewMachine(config.C, nodeStack, sampler, dispatcher)
	if err != nil {
		return errors.Wrap(err, "setup node error")
	}

	return nil
}
