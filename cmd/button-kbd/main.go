// Command button-kbd turns GPIO pushbuttons into keystrokes on a synthetic
// uinput keyboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"

	"github.com/sweeney/button-kbd/internal/bridge"
	"github.com/sweeney/button-kbd/internal/gpio"
	"github.com/sweeney/button-kbd/internal/keymap"
	"github.com/sweeney/button-kbd/internal/logging"
	"github.com/sweeney/button-kbd/internal/logic"
	"github.com/sweeney/button-kbd/internal/mqtt"
	"github.com/sweeney/button-kbd/internal/status"
	"github.com/sweeney/button-kbd/internal/uinput"
	"github.com/sweeney/button-kbd/internal/web"
)

// LogFlags configures diagnostics.
type LogFlags struct {
	Level string `help:"Log level: trace, debug, info, warn, error." default:"warn" enum:"trace,debug,info,warn,error" env:"BUTTON_KBD_LOG_LEVEL"`
	File  string `help:"Write logs to this file instead of stderr." type:"path" env:"BUTTON_KBD_LOG_FILE"`
}

// GPIOFlags selects and configures the line source.
type GPIOFlags struct {
	Backend string `help:"Line source: sysfs or cdev." default:"sysfs" enum:"sysfs,cdev" env:"BUTTON_KBD_GPIO_BACKEND"`
	Root    string `help:"sysfs GPIO root." default:"/sys/class/gpio" env:"BUTTON_KBD_GPIO_ROOT"`
	Chip    string `help:"GPIO character device for the cdev backend." default:"gpiochip0" env:"BUTTON_KBD_GPIO_CHIP"`
	Bias    string `help:"Line bias for the cdev backend." default:"as-is" enum:"as-is,disabled,pull-up,pull-down" env:"BUTTON_KBD_GPIO_BIAS"`
}

// DeviceFlags sets the identity of the synthetic keyboard.
type DeviceFlags struct {
	Name    string `help:"Synthetic keyboard name." default:"Dummy input device" env:"BUTTON_KBD_DEVICE_NAME"`
	Vendor  uint16 `help:"USB vendor id (decimal, default 0x1234)." default:"4660" env:"BUTTON_KBD_DEVICE_VENDOR"`
	Product uint16 `help:"USB product id (decimal, default 0x5678)." default:"22136" env:"BUTTON_KBD_DEVICE_PRODUCT"`
}

// MQTTFlags enables press and lifecycle publishing.
type MQTTFlags struct {
	Broker    string        `help:"MQTT broker URL, e.g. tcp://192.168.1.200:1883 (empty disables MQTT)." env:"BUTTON_KBD_MQTT_BROKER"`
	Topic     string        `help:"Topic prefix." default:"home/button-kbd" env:"BUTTON_KBD_MQTT_TOPIC"`
	ClientID  string        `help:"MQTT client id." default:"button-kbd" env:"BUTTON_KBD_MQTT_CLIENT_ID"`
	Heartbeat time.Duration `help:"Heartbeat interval (0 to disable)." default:"15m" env:"BUTTON_KBD_MQTT_HEARTBEAT"`
	Buffer    int           `help:"Messages kept while the broker is unreachable." default:"100" env:"BUTTON_KBD_MQTT_BUFFER"`
	WS        string        `name:"ws" help:"MQTT websocket URL for live status page updates (\"=broker\" derives ws://host:9001 from --mqtt-broker, \"off\" disables)." default:"=broker" env:"BUTTON_KBD_MQTT_WS"`
}

// CLI is the full command line.
type CLI struct {
	Config string `help:"Config file (.toml, .yaml or .yml)." type:"path" env:"BUTTON_KBD_CONFIG"`

	Log    LogFlags    `embed:"" prefix:"log-"`
	GPIO   GPIOFlags   `embed:"" prefix:"gpio-"`
	Device DeviceFlags `embed:"" prefix:"device-"`
	MQTT   MQTTFlags   `embed:"" prefix:"mqtt-"`

	Trigger     string        `help:"Resting level that dispatches: low, high or both." default:"low" enum:"low,high,both" env:"BUTTON_KBD_TRIGGER"`
	Bounce      time.Duration `help:"Lockout after an accepted transition." default:"300ms" env:"BUTTON_KBD_BOUNCE"`
	Startup     time.Duration `help:"Ignore transitions this long after startup or a clock reset." default:"1s" env:"BUTTON_KBD_STARTUP"`
	Settle      time.Duration `help:"Delay before sampling the settled level." default:"2ms" env:"BUTTON_KBD_SETTLE"`
	ClockJump   time.Duration `help:"Clock step treated as a discontinuity (0 disables)." default:"8760h" env:"BUTTON_KBD_CLOCK_JUMP"`
	WaitTimeout time.Duration `help:"Upper bound on each edge wait." default:"3s" env:"BUTTON_KBD_WAIT_TIMEOUT"`

	HTTP string `name:"http" help:"HTTP status address, e.g. :8080 (empty disables)." env:"BUTTON_KBD_HTTP"`

	PrintMap    bool   `help:"Print the key table and exit."`
	PrintState  bool   `help:"Print each line's current level and exit."`
	PrintConfig string `help:"Print the effective configuration as toml or yaml and exit." placeholder:"FORMAT"`
}

func main() {
	cli, err := parseCLI(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "button-kbd: %v\n", err)
		os.Exit(2)
	}

	logger, closers, err := logging.Setup(cli.Log.Level, cli.Log.File, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "button-kbd: setup logger: %v\n", err)
		os.Exit(2)
	}

	// Signals are taken over before any line is exported.
	sd := watchSignals(logger)
	err = run(cli, logger, os.Stdout, sd)
	sd.Stop()
	for _, c := range closers {
		_ = c.Close()
	}
	if err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// parseCLI parses args, loading config files from the standard locations
// first. Flags and environment variables override file values.
func parseCLI(args []string, opts ...kong.Option) (*CLI, error) {
	yamlPaths, tomlPaths := configCandidatePaths(findUserConfig(args))

	var cli CLI
	opts = append([]kong.Option{
		kong.Name("button-kbd"),
		kong.Description("Bridge GPIO pushbuttons to a synthetic uinput keyboard."),
		kong.UsageOnError(),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	}, opts...)

	parser, err := kong.New(&cli, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, err
	}
	return &cli, nil
}

// detectorConfig maps the timing flags onto the detector.
func (c *CLI) detectorConfig() (logic.Config, error) {
	trigger, err := logic.ParseTrigger(c.Trigger)
	if err != nil {
		return logic.Config{}, err
	}
	if c.Bounce < 0 || c.Startup < 0 || c.Settle < 0 {
		return logic.Config{}, errors.New("timing values must not be negative")
	}
	return logic.Config{
		Bounce:          c.Bounce,
		StartupSuppress: c.Startup,
		ClockJump:       c.ClockJump,
		Trigger:         trigger,
	}, nil
}

func (c *CLI) identity() uinput.Identity {
	id := uinput.DefaultIdentity()
	id.Name = c.Device.Name
	id.Vendor = c.Device.Vendor
	id.Product = c.Device.Product
	return id
}

func (c *CLI) statusConfig(table *keymap.Table) status.Config {
	keys := make(map[int]string, table.Len())
	for _, m := range table.Mappings() {
		keys[m.Line] = describeKeys(m.Keys)
	}
	return status.Config{
		Backend:     c.GPIO.Backend,
		Device:      c.Device.Name,
		Trigger:     c.Trigger,
		BounceMs:    c.Bounce.Milliseconds(),
		StartupMs:   c.Startup.Milliseconds(),
		SettleMs:    c.Settle.Milliseconds(),
		ClockJumpS:  int64(c.ClockJump.Seconds()),
		HeartbeatMs: c.MQTT.Heartbeat.Milliseconds(),
		Broker:      c.MQTT.Broker,
		HTTPAddr:    c.HTTP,
		WSBroker:    resolveWSBroker(c.MQTT.WS, c.MQTT.Broker),
		EventsTopic: mqtt.TopicsFor(c.MQTT.Topic).Events,
		Keys:        keys,
	}
}

// resolveWSBroker turns the --mqtt-ws value into the URL the status page
// connects to. "=broker" derives ws://host:9001 from the TCP broker; an empty
// result disables live updates.
func resolveWSBroker(ws, broker string) string {
	switch ws {
	case "off", "":
		return ""
	case "=broker":
	default:
		return ws
	}
	if broker == "" {
		return ""
	}
	u, err := url.Parse(broker)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}

func describeKeys(keys []keymap.KeyEvent) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, " ")
}

// acquireLines is swapped out by tests.
var acquireLines = openWatcher

// openWatcher acquires the table's lines from the configured backend.
func openWatcher(c *CLI, lines []int) (gpio.Watcher, error) {
	switch c.GPIO.Backend {
	case gpio.BackendCdev:
		w, err := gpio.NewCdevWatcher(c.GPIO.Chip, lines, gpio.Bias(c.GPIO.Bias))
		if err != nil {
			return nil, err
		}
		return w, nil
	case gpio.BackendSysfs, "":
		w, err := gpio.NewSysfsWatcher(c.GPIO.Root, lines)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	return nil, fmt.Errorf("unknown gpio backend %q", c.GPIO.Backend)
}

// run acquires the lines and the keyboard and runs the loop until sd is
// cleared. A shutdown requested during setup releases whatever was acquired
// and returns without error.
func run(cli *CLI, logger *slog.Logger, stdout io.Writer, sd *shutdown) error {
	table := keymap.Default

	if cli.PrintMap {
		printMap(stdout, table)
		return nil
	}
	if cli.PrintConfig != "" {
		return printConfig(stdout, cli, cli.PrintConfig)
	}

	detCfg, err := cli.detectorConfig()
	if err != nil {
		return fmt.Errorf("invalid timing: %w", err)
	}

	watcher, err := acquireLines(cli, table.Lines())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer closeLogged(logger, "gpio", watcher)

	if cli.PrintState {
		return printState(stdout, watcher)
	}
	if sd.Requested() {
		logger.Info("shutdown requested during setup", "signal", sd.Reason())
		return nil
	}

	device, err := uinput.NewDevice(cli.identity(), table.Codes())
	if err != nil {
		return fmt.Errorf("init uinput: %w", err)
	}
	defer closeLogged(logger, "uinput", device)

	tracker := status.NewTracker(time.Now(), cli.statusConfig(table))

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cli.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Config{
			Broker:      cli.MQTT.Broker,
			ClientID:    cli.MQTT.ClientID,
			TopicPrefix: cli.MQTT.Topic,
			BufferSize:  cli.MQTT.Buffer,
		}, logger)
		if err != nil {
			// Telemetry is optional; the keyboard keeps working without it.
			logger.Warn("mqtt disabled", "broker", cli.MQTT.Broker, "error", err)
		} else {
			publisher, mqttStatus = p, p
			defer p.Close()
			tracker.SetMQTTConnected(p.IsConnected())
			publishLifecycle(logger, publisher, tracker, "STARTUP", "")
		}
	}

	if cli.HTTP != "" {
		// Bound here so an address in use is reported before the loop starts.
		ln, err := net.Listen("tcp", cli.HTTP)
		if err != nil {
			logger.Warn("http status server disabled", "addr", cli.HTTP, "error", err)
		} else {
			srv := web.New(cli.HTTP, tracker)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server", "error", err)
				}
			}()
			defer srv.Shutdown(context.Background())
			logger.Info("http status server listening", "addr", ln.Addr().String())
		}
	}

	loop, err := bridge.New(bridge.Config{
		Watcher:     watcher,
		Emitter:     uinput.NewEmitter(device, logger),
		Table:       table,
		Detector:    logic.NewDetector(detCfg, table.Lines(), bridge.WallClock()),
		Settle:      cli.Settle,
		WaitTimeout: cli.WaitTimeout,
		Heartbeat:   cli.MQTT.Heartbeat,
		Now:         bridge.WallClock,
		Publisher:   publisher,
		MQTTStatus:  mqttStatus,
		Tracker:     tracker,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	logger.Info("started",
		"lines", table.Lines(), "backend", cli.GPIO.Backend, "trigger", detCfg.Trigger,
		"bounce", detCfg.Bounce, "startup", detCfg.StartupSuppress, "settle", cli.Settle)

	err = loop.Run(&sd.running)

	if publisher != nil {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		publishLifecycle(logger, publisher, tracker, "SHUTDOWN", sd.Reason())
	}
	return err
}

func publishLifecycle(logger *slog.Logger, publisher mqtt.Publisher, tracker *status.Tracker, event, reason string) {
	snap := tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := publisher.PublishSystem(ev); err != nil {
		logger.Warn("publish lifecycle event", "event", event, "error", err)
		return
	}
	logger.Info("published lifecycle event", "event", event)
}

func closeLogged(logger *slog.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn("close", "resource", what, "error", err)
	}
}

func printMap(w io.Writer, table *keymap.Table) {
	for _, m := range table.Mappings() {
		fmt.Fprintf(w, "%d: %s\n", m.Line, describeKeys(m.Keys))
	}
}

func printState(w io.Writer, watcher gpio.Watcher) error {
	for _, line := range watcher.Lines() {
		v, err := watcher.Level(line)
		if err != nil {
			return fmt.Errorf("read line %d: %w", line, err)
		}
		fmt.Fprintf(w, "%d: %d\n", line, v)
	}
	return nil
}
