package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the daemon configuration file.
type Config struct {
	Sensor SensorConfig `mapstructure:"sensor"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	Log    LogConfig    `mapstructure:"log"`
}

type SensorConfig struct {
	ID       string `mapstructure:"id"`
	Bus      string `mapstructure:"bus"`  // periph bus name, e.g. "1" or "/dev/i2c-1"
	Addr     uint16 `mapstructure:"addr"` // 0x5A or 0x5B
	WakePin  int    `mapstructure:"wake_pin"`
	PollMs   uint32 `mapstructure:"poll_ms"`
	JitterMs uint16 `mapstructure:"jitter_ms"`
	Simulate bool   `mapstructure:"simulate"`

	Compensation *CompensationConfig `mapstructure:"compensation"`
}

type CompensationConfig struct {
	Celsius  float64 `mapstructure:"celsius"`
	Humidity float64 `mapstructure:"humidity"` // %RH
}

type MQTTConfig struct {
	Broker       string `mapstructure:"broker"`
	ClientID     string `mapstructure:"client_id"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Prefix       string `mapstructure:"prefix"`
	QoS          byte   `mapstructure:"qos"`
	RetainValues bool   `mapstructure:"retain_values"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sensor.id", "aq0")
	v.SetDefault("sensor.bus", "1")
	v.SetDefault("sensor.addr", 0x5A)
	v.SetDefault("sensor.wake_pin", 17)
	v.SetDefault("sensor.poll_ms", 1000)
	v.SetDefault("sensor.jitter_ms", 50)
	v.SetDefault("mqtt.prefix", "ccs811")
	v.SetDefault("http.addr", ":9811")
	v.SetDefault("log.level", "info")
}

// loadConfig reads path (any format viper understands) over the defaults.
// An empty path uses defaults and CCS811_* environment overrides only.
func loadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ccs811")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if cfg.Sensor.Addr != 0x5A && cfg.Sensor.Addr != 0x5B {
		return Config{}, errors.Errorf("sensor.addr %#x: must be 0x5a or 0x5b", cfg.Sensor.Addr)
	}
	return cfg, nil
}
