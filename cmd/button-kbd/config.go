package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"
)

// systemConfigDir holds the system-wide config files.
const systemConfigDir = "/etc/button-kbd"

// findUserConfig returns the --config value from args, falling back to the
// BUTTON_KBD_CONFIG environment variable.
func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("BUTTON_KBD_CONFIG")
}

// configCandidatePaths builds the config file candidates per format. A user
// path is routed to the loader matching its extension and takes priority.
func configCandidatePaths(userPath string) (yamlPaths, tomlPaths []string) {
	if userPath != "" {
		switch filepath.Ext(userPath) {
		case ".yaml", ".yml":
			yamlPaths = append(yamlPaths, userPath)
		default:
			tomlPaths = append(tomlPaths, userPath)
		}
	}

	yamlPaths = append(yamlPaths,
		filepath.Join(systemConfigDir, "config.yaml"),
		filepath.Join(systemConfigDir, "config.yml"),
	)
	tomlPaths = append(tomlPaths, filepath.Join(systemConfigDir, "config.toml"))
	return yamlPaths, tomlPaths
}

// fileConfig is the config file layout. Keys match the flag names.
type fileConfig struct {
	LogLevel      string `toml:"log-level" yaml:"log-level"`
	LogFile       string `toml:"log-file,omitempty" yaml:"log-file,omitempty"`
	GPIOBackend   string `toml:"gpio-backend" yaml:"gpio-backend"`
	GPIORoot      string `toml:"gpio-root" yaml:"gpio-root"`
	GPIOChip      string `toml:"gpio-chip" yaml:"gpio-chip"`
	GPIOBias      string `toml:"gpio-bias" yaml:"gpio-bias"`
	DeviceName    string `toml:"device-name" yaml:"device-name"`
	DeviceVendor  int    `toml:"device-vendor" yaml:"device-vendor"`
	DeviceProduct int    `toml:"device-product" yaml:"device-product"`
	MQTTBroker    string `toml:"mqtt-broker,omitempty" yaml:"mqtt-broker,omitempty"`
	MQTTTopic     string `toml:"mqtt-topic" yaml:"mqtt-topic"`
	MQTTClientID  string `toml:"mqtt-client-id" yaml:"mqtt-client-id"`
	MQTTHeartbeat string `toml:"mqtt-heartbeat" yaml:"mqtt-heartbeat"`
	MQTTBuffer    int    `toml:"mqtt-buffer" yaml:"mqtt-buffer"`
	MQTTWS        string `toml:"mqtt-ws" yaml:"mqtt-ws"`
	Trigger       string `toml:"trigger" yaml:"trigger"`
	Bounce        string `toml:"bounce" yaml:"bounce"`
	Startup       string `toml:"startup" yaml:"startup"`
	Settle        string `toml:"settle" yaml:"settle"`
	ClockJump     string `toml:"clock-jump" yaml:"clock-jump"`
	WaitTimeout   string `toml:"wait-timeout" yaml:"wait-timeout"`
	HTTP          string `toml:"http,omitempty" yaml:"http,omitempty"`
}

func newFileConfig(c *CLI) fileConfig {
	return fileConfig{
		LogLevel:      c.Log.Level,
		LogFile:       c.Log.File,
		GPIOBackend:   c.GPIO.Backend,
		GPIORoot:      c.GPIO.Root,
		GPIOChip:      c.GPIO.Chip,
		GPIOBias:      c.GPIO.Bias,
		DeviceName:    c.Device.Name,
		DeviceVendor:  int(c.Device.Vendor),
		DeviceProduct: int(c.Device.Product),
		MQTTBroker:    c.MQTT.Broker,
		MQTTTopic:     c.MQTT.Topic,
		MQTTClientID:  c.MQTT.ClientID,
		MQTTHeartbeat: c.MQTT.Heartbeat.String(),
		MQTTBuffer:    c.MQTT.Buffer,
		MQTTWS:        c.MQTT.WS,
		Trigger:       c.Trigger,
		Bounce:        c.Bounce.String(),
		Startup:       c.Startup.String(),
		Settle:        c.Settle.String(),
		ClockJump:     c.ClockJump.String(),
		WaitTimeout:   c.WaitTimeout.String(),
		HTTP:          c.HTTP,
	}
}

// printConfig writes the effective configuration in a format the config
// loaders accept.
func printConfig(w io.Writer, c *CLI, format string) error {
	fc := newFileConfig(c)

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(format) {
	case "toml":
		data, err = toml.Marshal(fc)
	case "yaml", "yml":
		data, err = yaml.Marshal(fc)
	default:
		return fmt.Errorf("unsupported config format %q (want toml or yaml)", format)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
}
