package test

import (
	"os"
	"time"

	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"

	"github.com/chonal/lora-node/internal/config"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

// GetConfig returns the test configuration.
func GetConfig() config.Config {
	log.SetLevel(log.ErrorLevel)

	var c config.Config

	c.Node.Variant = config.VariantCurrent
	c.Node.DevEUI = lorawan.EUI64{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	c.Node.AppPort = 2
	c.Node.DutyCycle = 15 * time.Second
	c.Node.DutyCycleJitter = time.Second

	c.LoRaWAN.Region = "EU868"
	c.LoRaWAN.Class = "A"
	c.LoRaWAN.OTAA = true
	c.LoRaWAN.ADR = true
	c.LoRaWAN.ConfirmedNbTrials = 4
	c.LoRaWAN.AppEUI = lorawan.EUI64{0x70, 0xb3, 0xd5, 0x7e, 0xd0, 0x00, 0x00, 0x01}
	c.LoRaWAN.AppKey = lorawan.AES128Key{1, 2, 3, 4, 5, 6, 7, 8, 1, 2, 3, 4, 5, 6, 7, 8}

	c.Backend.Type = "mqtt"
	c.Backend.MQTT.Server = "tcp://127.0.0.1:1883"
	c.Backend.MQTT.EventTopicTemplate = "node/{{ .DevEUI }}/event/{{ .EventType }}"
	c.Backend.MQTT.CommandTopicTemplate = "node/{{ .DevEUI }}/command/down"
	c.Backend.MQTT.JoinMaxElapsedTime = time.Second

	if v := os.Getenv("TEST_MQTT_SERVER"); v != "" {
		c.Backend.MQTT.Server = v
	}
	if v := os.Getenv("TEST_MQTT_USERNAME"); v != "" {
		c.Backend.MQTT.Username = v
	}
	if v := os.Getenv("TEST_MQTT_PASSWORD"); v != "" {
		c.Backend.MQTT.Password = v
	}

	return c
}
