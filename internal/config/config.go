package config

import (
	"time"

	"github.com/brocaar/lorawan"
)

// Version defines the lora-node version.
var Version string

// Node variants.
const (
	VariantCurrent = "current"
	VariantBattery = "battery"
)

// Config defines the configuration structure.
type Config struct {
	General struct {
		LogLevel    int  `mapstructure:"log_level"`
		LogToSyslog bool `mapstructure:"log_to_syslog"`
	} `mapstructure:"general"`

	Node struct {
		Variant         string        `mapstructure:"variant"`
		DevEUI          lorawan.EUI64 `mapstructure:"-"`
		DevEUIString    string        `mapstructure:"dev_eui"`
		HardwareIDFile  string        `mapstructure:"hardware_id_file"`
		AppPort         uint8         `mapstructure:"app_port"`
		DutyCycle       time.Duration `mapstructure:"duty_cycle"`
		DutyCycleJitter time.Duration `mapstructure:"duty_cycle_jitter"`
	} `mapstructure:"node"`

	LoRaWAN struct {
		Region                string `mapstructure:"region"`
		Class                 string `mapstructure:"class"`
		OTAA                  bool   `mapstructure:"otaa"`
		ADR                   bool   `mapstructure:"adr"`
		ConfirmedUplink       bool   `mapstructure:"confirmed_uplink"`
		ConfirmedNbTrials     int    `mapstructure:"confirmed_nb_trials"`
		DataRate              int    `mapstructure:"data_rate"`
		EnabledUplinkChannels []int  `mapstructure:"enabled_uplink_channels"`

		AppEUI       lorawan.EUI64     `mapstructure:"-"`
		AppEUIString string            `mapstructure:"app_eui"`
		AppKey       lorawan.AES128Key `mapstructure:"-"`
		AppKeyString string            `mapstructure:"app_key"`

		// ABP only.
		DevAddr       lorawan.DevAddr   `mapstructure:"-"`
		DevAddrString string            `mapstructure:"dev_addr"`
		NwkSKey       lorawan.AES128Key `mapstructure:"-"`
		NwkSKeyString string            `mapstructure:"nwk_s_key"`
		AppSKey       lorawan.AES128Key `mapstructure:"-"`
		AppSKeyString string            `mapstructure:"app_s_key"`
	} `mapstructure:"lorawan"`

	Board struct {
		Type string `mapstructure:"type"`

		Simulated struct {
			Currents          []float64 `mapstructure:"currents"`
			BatteryMillivolts int       `mapstructure:"battery_millivolts"`
		} `mapstructure:"simulated"`

		Sysfs struct {
			IIODevice       string    `mapstructure:"iio_device"`
			CurrentChannels []int     `mapstructure:"current_channels"`
			MillivoltPerAmp []float64 `mapstructure:"millivolt_per_amp"`
			ZeroOffsetMV    []float64 `mapstructure:"zero_offset_mv"`
			BatteryChannel  int       `mapstructure:"battery_channel"`
			BatteryDivider  float64   `mapstructure:"battery_divider"`
			I2CBus          string    `mapstructure:"i2c_bus"`
			RelayAddress    uint16    `mapstructure:"relay_address"`
			RelayBits       []int     `mapstructure:"relay_bits"`
		} `mapstructure:"sysfs"`
	} `mapstructure:"board"`

	Backend struct {
		Type string `mapstructure:"type"`

		MQTT struct {
			Server               string
			Username             string
			Password             string
			QOS                  uint8         `mapstructure:"qos"`
			CleanSession         bool          `mapstructure:"clean_session"`
			ClientID             string        `mapstructure:"client_id"`
			CACert               string        `mapstructure:"ca_cert"`
			TLSCert              string        `mapstructure:"tls_cert"`
			TLSKey               string        `mapstructure:"tls_key"`
			EventTopicTemplate   string        `mapstructure:"event_topic_template"`
			CommandTopicTemplate string        `mapstructure:"command_topic_template"`
			MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval"`
			JoinMaxElapsedTime   time.Duration `mapstructure:"join_max_elapsed_time"`
		} `mapstructure:"mqtt"`
	} `mapstructure:"backend"`

	Monitoring struct {
		Bind                string `mapstructure:"bind"`
		PrometheusEndpoint  bool   `mapstructure:"prometheus_endpoint"`
		HealthcheckEndpoint bool   `mapstructure:"healthcheck_endpoint"`
	} `mapstructure:"monitoring"`
}

// C holds the global configuration.
var C Config
