package cmd

import (
	"os"
	"text/template"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/chonal/lora-node/internal/config"
)

const configTemplate = `[general]
# Log level
#
# debug=5, info=4, warning=3, error=2, fatal=1, panic=0
log_level={{ .General.LogLevel }}

# Log to syslog.
#
# When set to true, log messages are being written to syslog.
log_to_syslog={{ .General.LogToSyslog }}


# Node settings.
[node]
# Node variant.
#
# Valid options are:
# * current: reports the 4 current inputs (AK1..AK4), drives the relays
#            (K1..K4) from downlinks
# * battery: reports the battery voltage, downlinks are logged only
variant="{{ .Node.Variant }}"

# DevEUI (HEX encoded).
#
# When left blank, the DevEUI is derived from the hardware id (see
# hardware_id_file).
dev_eui="{{ .Node.DevEUIString }}"

# Hardware id file.
#
# File containing a hardware unique id, used to derive the DevEUI. When
# left blank /etc/machine-id, /var/lib/dbus/machine-id and
# /sys/class/dmi/id/product_uuid are tried.
hardware_id_file="{{ .Node.HardwareIDFile }}"

# Application port (FPort) of the uplinks.
app_port={{ .Node.AppPort }}

# Duty-cycle.
#
# Time between two uplinks.
duty_cycle="{{ .Node.DutyCycle }}"

# Duty-cycle jitter.
#
# A random delay in [0, duty_cycle_jitter) is added to each duty-cycle.
duty_cycle_jitter="{{ .Node.DutyCycleJitter }}"


# LoRaWAN settings.
[lorawan]
# Region.
#
# Valid options are (a.o.): AS923, AU915, CN470, CN779, EU433, EU868, IN865,
# KR920, RU864, US915.
region="{{ .LoRaWAN.Region }}"

# Device class (A, B or C).
class="{{ .LoRaWAN.Class }}"

# Over-the-air activation.
#
# When set to false, activation by personalization (ABP) is used and the
# dev_addr, nwk_s_key and app_s_key settings must be set.
otaa={{ .LoRaWAN.OTAA }}

# Adaptive data-rate.
adr={{ .LoRaWAN.ADR }}

# Send confirmed uplinks.
confirmed_uplink={{ .LoRaWAN.ConfirmedUplink }}

# Number of transmissions of a confirmed uplink.
confirmed_nb_trials={{ .LoRaWAN.ConfirmedNbTrials }}

# Uplink data-rate index.
#
# Together with the region, this defines the max. application payload size.
# Uplinks exceeding this size are truncated.
data_rate={{ .LoRaWAN.DataRate }}

# Enabled uplink channels.
#
# Use this when only a sub-set of the band channels must be used. When left
# blank, the default channels of the band are used.
#
# Example (channels 0-7, e.g. the first US915 sub-band):
# enabled_uplink_channels=[0, 1, 2, 3, 4, 5, 6, 7]
enabled_uplink_channels=[{{ range $index, $element := .LoRaWAN.EnabledUplinkChannels }}{{ if $index }}, {{ end }}{{ $element }}{{ end }}]

# AppEUI / JoinEUI (HEX encoded, OTAA).
app_eui="{{ .LoRaWAN.AppEUIString }}"

# AppKey (HEX encoded, OTAA).
app_key="{{ .LoRaWAN.AppKeyString }}"

# DevAddr (HEX encoded, ABP).
dev_addr="{{ .LoRaWAN.DevAddrString }}"

# Network session key (HEX encoded, ABP).
nwk_s_key="{{ .LoRaWAN.NwkSKeyString }}"

# Application session key (HEX encoded, ABP).
app_s_key="{{ .LoRaWAN.AppSKeyString }}"


# Board settings.
[board]
# Board type.
#
# Valid options are:
# * simulated: in-memory sensor values, relay outputs are logged
# * sysfs:     Linux IIO ADC, relays on an I2C I/O expander
type="{{ .Board.Type }}"

  # Simulated board.
  [board.simulated]
  # Current of the AK1..AK4 inputs (A).
  currents=[{{ range $index, $element := .Board.Simulated.Currents }}{{ if $index }}, {{ end }}{{ $element }}{{ end }}]

  # Battery voltage (mV).
  battery_millivolts={{ .Board.Simulated.BatteryMillivolts }}

  # Linux sysfs board.
  [board.sysfs]
  # IIO ADC device.
  iio_device="{{ .Board.Sysfs.IIODevice }}"

  # ADC channels of the AK1..AK4 inputs.
  current_channels=[{{ range $index, $element := .Board.Sysfs.CurrentChannels }}{{ if $index }}, {{ end }}{{ $element }}{{ end }}]

  # Current sensor sensitivity (mV / A) of the AK1..AK4 inputs.
  millivolt_per_amp=[{{ range $index, $element := .Board.Sysfs.MillivoltPerAmp }}{{ if $index }}, {{ end }}{{ $element }}{{ end }}]

  # Current sensor output at 0 A (mV) of the AK1..AK4 inputs.
  zero_offset_mv=[{{ range $index, $element := .Board.Sysfs.ZeroOffsetMV }}{{ if $index }}, {{ end }}{{ $element }}{{ end }}]

  # ADC channel of the battery voltage.
  battery_channel={{ .Board.Sysfs.BatteryChannel }}

  # Battery voltage divider ratio.
  battery_divider={{ .Board.Sysfs.BatteryDivider }}

  # I2C bus of the relay expander (e.g. "1" or "/dev/i2c-1").
  #
  # When left blank, the first available bus is used.
  i2c_bus="{{ .Board.Sysfs.I2CBus }}"

  # I2C address of the relay expander.
  relay_address={{ .Board.Sysfs.RelayAddress }}

  # Expander output bits of the K1..K4 relays.
  relay_bits=[{{ range $index, $element := .Board.Sysfs.RelayBits }}{{ if $index }}, {{ end }}{{ $element }}{{ end }}]


# LoRaWAN stack backend.
[backend]
# Backend type.
#
# Valid options are:
# * mqtt: virtual stack, publishing uplinks as MQTT events
type="{{ .Backend.Type }}"

  # MQTT backend.
  [backend.mqtt]
  # Event topic template.
  event_topic_template="{{ .Backend.MQTT.EventTopicTemplate }}"

  # Command topic template.
  command_topic_template="{{ .Backend.MQTT.CommandTopicTemplate }}"

  # MQTT server (e.g. scheme://host:port where scheme is tcp, ssl or ws)
  server="{{ .Backend.MQTT.Server }}"

  # Connect with the given username (optional)
  username="{{ .Backend.MQTT.Username }}"

  # Connect with the given password (optional)
  password="{{ .Backend.MQTT.Password }}"

  # Quality of service level
  #
  # 0: at most once
  # 1: at least once
  # 2: exactly once
  #
  # Note: an increase of this value will decrease the performance.
  # For more information: https://www.hivemq.com/blog/mqtt-essentials-part-6-mqtt-quality-of-service-levels
  qos={{ .Backend.MQTT.QOS }}

  # Clean session
  #
  # Set the "clean session" flag in the connect message when this client
  # connects to an MQTT broker. By setting this flag you are indicating
  # that no messages saved by the broker for this client should be delivered.
  clean_session={{ .Backend.MQTT.CleanSession }}

  # Client ID
  #
  # Set the client id to be used by this client when connecting to the MQTT
  # broker. A client id must be no longer than 23 characters. When left blank,
  # a random id will be generated. This requires clean_session=true.
  client_id="{{ .Backend.MQTT.ClientID }}"

  # Maximum interval that will be waited between reconnection attempts when connection is lost.
  # Valid units are 'ms', 's', 'm', 'h'. Note that these values can be combined, e.g. '24h30m15s'.
  max_reconnect_interval="{{ .Backend.MQTT.MaxReconnectInterval }}"

  # Join timeout.
  #
  # Max. time to retry connecting to the MQTT broker on join. The join
  # is retried on the next state-machine step. 0 retries forever.
  join_max_elapsed_time="{{ .Backend.MQTT.JoinMaxElapsedTime }}"

  # CA certificate file (optional)
  #
  # Use this when setting up a secure connection (when server uses ssl://...)
  # but the certificate used by the server is not trusted by any CA certificate
  # on the server (e.g. when self generated).
  ca_cert="{{ .Backend.MQTT.CACert }}"

  # TLS certificate file (optional)
  tls_cert="{{ .Backend.MQTT.TLSCert }}"

  # TLS key file (optional)
  tls_key="{{ .Backend.MQTT.TLSKey }}"


# Monitoring settings.
[monitoring]
# IP:port to bind the monitoring endpoint to.
#
# When left blank, the monitoring endpoint will be disabled.
bind="{{ .Monitoring.Bind }}"

# Prometheus metrics endpoint.
#
# When set true, Prometheus metrics will be served at '/metrics'.
prometheus_endpoint={{ .Monitoring.PrometheusEndpoint }}

# Healthcheck endpoint.
#
# When set to true, the healthcheck endpoint will be served at '/health'.
# It returns 503 when the node is not connected to the MQTT broker.
healthcheck_endpoint={{ .Monitoring.HealthcheckEndpoint }}
`

var configCmd = &cobra.Command{
	Use:   "configfile",
	Short: "Print the lora-node configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		t := template.Must(template.New("config").Parse(configTemplate))
		err := t.Execute(os.Stdout, &config.C)
		if err != nil {
			return errors.Wrap(err, "execute config template error")
		}
		return nil
	},
}
