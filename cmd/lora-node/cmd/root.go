package cmd

import (
	"bytes"
	"io/ioutil"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chonal/lora-node/internal/board"
	"github.com/chonal/lora-node/internal/config"
)

var cfgFile string
var version string

var rootCmd = &cobra.Command{
	Use:   "lora-node",
	Short: "LoRaWAN sensor / actuator node",
	Long: `lora-node samples the current or battery sensors of the board, sends them
	as LoRaWAN uplinks and drives the relay outputs from received downlinks`,
	RunE: run,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file (optional)")
	rootCmd.PersistentFlags().Int("log-level", 4, "debug=5, info=4, error=2, fatal=1, panic=0")

	viper.BindPFlag("general.log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	// default values
	viper.SetDefault("node.variant", config.VariantCurrent)
	viper.SetDefault("node.app_port", 2)
	viper.SetDefault("node.duty_cycle", 15*time.Second)
	viper.SetDefault("node.duty_cycle_jitter", time.Second)

	viper.SetDefault("lorawan.region", "EU868")
	viper.SetDefault("lorawan.class", "A")
	viper.SetDefault("lorawan.otaa", true)
	viper.SetDefault("lorawan.adr", true)
	viper.SetDefault("lorawan.confirmed_nb_trials", 4)

	viper.SetDefault("board.type", "simulated")
	viper.SetDefault("board.simulated.currents", []float64{0, 0, 0, 0})
	viper.SetDefault("board.simulated.battery_millivolts", 3700)
	viper.SetDefault("board.sysfs.iio_device", "/sys/bus/iio/devices/iio:device0")
	viper.SetDefault("board.sysfs.current_channels", []int{0, 1, 2, 3})
	viper.SetDefault("board.sysfs.millivolt_per_amp", []float64{100, 100, 100, 100})
	viper.SetDefault("board.sysfs.zero_offset_mv", []float64{0, 0, 0, 0})
	viper.SetDefault("board.sysfs.battery_channel", 4)
	viper.SetDefault("board.sysfs.battery_divider", 1)
	viper.SetDefault("board.sysfs.relay_address", board.DefaultRelayAddress)
	viper.SetDefault("board.sysfs.relay_bits", board.DefaultRelayBits)

	viper.SetDefault("backend.type", "mqtt")
	viper.SetDefault("backend.mqtt.server", "tcp://localhost:1883")
	viper.SetDefault("backend.mqtt.clean_session", true)
	viper.SetDefault("backend.mqtt.event_topic_template", "node/{{ .DevEUI }}/event/{{ .EventType }}")
	viper.SetDefault("backend.mqtt.command_topic_template", "node/{{ .DevEUI }}/command/down")
	viper.SetDefault("backend.mqtt.max_reconnect_interval", time.Minute)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute executes the root command.
func Execute(v string) {
	version = v

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func initConfig() {
	config.Version = version

	if cfgFile != "" {
		b, err := ioutil.ReadFile(cfgFile)
		if err != nil {
			log.WithError(err).WithField("config", cfgFile).Fatal("error loading config file")
		}
		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(b)); err != nil {
			log.WithError(err).WithField("config", cfgFile).Fatal("error loading config file")
		}
	} else {
		viper.SetConfigName("lora-node")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/lora-node")
		viper.AddConfigPath("/etc/lora-node")
		if err := viper.ReadInConfig(); err != nil {
			switch err.(type) {
			case viper.ConfigFileNotFoundError:
				log.Warning("No configuration file found, using defaults.")
			default:
				log.WithError(err).Fatal("read configuration file error")
			}
		}
	}

	viperBindEnvs(config.C)

	viperHooks := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := viper.Unmarshal(&config.C, viper.DecodeHook(viperHooks)); err != nil {
		log.WithError(err).Fatal("unmarshal config error")
	}

	if err := decodeCredentials(&config.C); err != nil {
		log.WithError(err).Fatal("decode credentials error")
	}
}

// decodeCredentials decodes the HEX encoded identifiers and keys. Empty
// values are left zero.
func decodeCredentials(c *config.Config) error {
	fields := []struct {
		name string
		text string
		dest interface{ UnmarshalText([]byte) error }
	}{
		{"node.dev_eui", c.Node.DevEUIString, &c.Node.DevEUI},
		{"lorawan.app_eui", c.LoRaWAN.AppEUIString, &c.LoRaWAN.AppEUI},
		{"lorawan.app_key", c.LoRaWAN.AppKeyString, &c.LoRaWAN.AppKey},
		{"lorawan.dev_addr", c.LoRaWAN.DevAddrString, &c.LoRaWAN.DevAddr},
		{"lorawan.nwk_s_key", c.LoRaWAN.NwkSKeyString, &c.LoRaWAN.NwkSKey},
		{"lorawan.app_s_key", c.LoRaWAN.AppSKeyString, &c.LoRaWAN.AppSKey},
	}

	for _, f := range fields {
		if f.text == "" {
			continue
		}
		if err := f.dest.UnmarshalText([]byte(f.text)); err != nil {
			return errors.Wrapf(err, "decode %s error", f.name)
		}
	}

	return nil
}

func viperBindEnvs(iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)
	for i := 0; i < ift.NumField(); i++ {
		v := ifv.Field(i)
		t := ift.Field(i)
		tv, ok := t.Tag.Lookup("mapstructure")
		if !ok {
			tv = strings.ToLower(t.Name)
		}
		if tv == "-" {
			continue
		}

		switch v.Kind() {
		case reflect.Struct:
			viperBindEnvs(v.Interface(), append(parts, tv)...)
		default:
			// Bash doesn't allow env variable names with a dot so
			// bind the double underscore version.
			keyDot := strings.Join(append(parts, tv), ".")
			keyUnderscore := strings.Join(append(parts, tv), "__")
			viper.BindEnv(keyDot, strings.ToUpper(keyUnderscore))
		}
	}
}
