package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ConfigFile string `yaml:"-"`
	Version    bool   `yaml:"-"`

	RedisHost string `yaml:"redis_host"`
	RedisPort int    `yaml:"redis_port"`

	DryRun      bool   `yaml:"dry_run"`
	Backend     string `yaml:"backend"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsAddr string `yaml:"metrics_addr"`

	GPIOChip         string `yaml:"gpio_chip"`
	BootloadingLine  int    `yaml:"bootloading_line"`
	Advertising1Line int    `yaml:"advertising1_line"`
	Advertising2Line int    `yaml:"advertising2_line"`
	WakeLine         int    `yaml:"wake_line"`

	BlinkPeriod time.Duration `yaml:"blink_period"`
	LightSleep  time.Duration `yaml:"light_sleep"`
	DeepSleep   time.Duration `yaml:"deep_sleep"`

	IntervalThreshold  uint16 `yaml:"interval_threshold"`
	MinInterval        uint16 `yaml:"min_interval"`
	MaxInterval        uint16 `yaml:"max_interval"`
	Latency            uint16 `yaml:"latency"`
	SupervisionTimeout uint16 `yaml:"supervision_timeout"`

	LocalName         string        `yaml:"local_name"`
	BootloaderUUID    string        `yaml:"bootloader_uuid"`
	FastInterval      time.Duration `yaml:"fast_interval"`
	FastWindow        time.Duration `yaml:"fast_window"`
	SlowInterval      time.Duration `yaml:"slow_interval"`
	SlowWindow        time.Duration `yaml:"slow_window"`
	HostConnInterval  uint16        `yaml:"host_conn_interval"`
	SerialNumber      string        `yaml:"serial_number"`
	ServiceChanged    uint16        `yaml:"service_changed_handle"`
	BootloaderService uint16        `yaml:"bootloader_service_handle"`
	FirstDescriptor   uint16        `yaml:"first_descriptor_handle"`
	SerialNumberAttr  uint16        `yaml:"serial_number_handle"`
	DisabledServices  []uint16      `yaml:"disabled_services"`

	SuspendOnPark  bool   `yaml:"suspend_on_park"`
	ParkCommand    string `yaml:"park_command"`
	DiagnosticsMax int64  `yaml:"diagnostics_max"`
}

func New() *Config {
	return &Config{
		RedisHost:          "localhost",
		RedisPort:          6379,
		DryRun:             false,
		Backend:            "bluez",
		LogLevel:           "info",
		MetricsAddr:        ":9108",
		GPIOChip:           "gpiochip0",
		BootloadingLine:    50,
		Advertising1Line:   51,
		Advertising2Line:   52,
		WakeLine:           53,
		BlinkPeriod:        500 * time.Millisecond,
		LightSleep:         10 * time.Millisecond,
		DeepSleep:          100 * time.Millisecond,
		IntervalThreshold:  0x0006,
		MinInterval:        0x0006,
		MaxInterval:        0x0006,
		Latency:            0x0000,
		SupervisionTimeout: 0x0064,
		LocalName:          "OTA-Bootloader",
		BootloaderUUID:     "00060000-f8ce-11e4-abf4-0002a5d5c51b",
		FastInterval:       20 * time.Millisecond,
		FastWindow:         30 * time.Second,
		SlowInterval:       time.Second,
		SlowWindow:         150 * time.Second,
		HostConnInterval:   0x0006,
		SerialNumber:       "123456",
		ServiceChanged:     0x000E,
		BootloaderService:  0x0020,
		FirstDescriptor:    0x0024,
		SerialNumberAttr:   0x0031,
		DisabledServices:   []uint16{0x0040, 0x0050, 0x0060, 0x0070},
		SuspendOnPark:      false,
		ParkCommand:        "suspend",
		DiagnosticsMax:     100,
	}
}

// Parse reads flags from args. When -config names a YAML file it is loaded
// and the flags are applied again on top of it.
func (c *Config) Parse(args []string) error {
	if err := c.flagSet().Parse(args); err != nil {
		return err
	}

	if c.ConfigFile != "" {
		if err := c.Load(c.ConfigFile); err != nil {
			return err
		}
		if err := c.flagSet().Parse(args); err != nil {
			return err
		}
	}

	return c.Validate()
}

func (c *Config) flagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("ble-ota-peripheral", flag.ContinueOnError)

	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "YAML configuration file")
	fs.BoolVar(&c.Version, "version", c.Version, "Print version and exit")

	fs.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis host")
	fs.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")

	fs.BoolVar(&c.DryRun, "dry-run", c.DryRun,
		"Dry run (simulated radio, no GPIO or sleep requests)")
	fs.StringVar(&c.Backend, "backend", c.Backend, "Radio backend (bluez, sim)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "Rotated log file, empty to disable")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Prometheus listen address, empty to disable")

	fs.StringVar(&c.GPIOChip, "gpio-chip", c.GPIOChip, "GPIO chip for indicators and wake button")
	fs.IntVar(&c.BootloadingLine, "bootloading-line", c.BootloadingLine, "Bootloading indicator line offset")
	fs.IntVar(&c.Advertising1Line, "advertising1-line", c.Advertising1Line, "First advertising indicator line offset")
	fs.IntVar(&c.Advertising2Line, "advertising2-line", c.Advertising2Line, "Second advertising indicator line offset")
	fs.IntVar(&c.WakeLine, "wake-line", c.WakeLine, "Wake button line offset, -1 to disable")

	fs.DurationVar(&c.BlinkPeriod, "blink-period", c.BlinkPeriod, "Advertising indicator blink half-period")
	fs.DurationVar(&c.LightSleep, "light-sleep", c.LightSleep, "Upper bound of a light sleep")
	fs.DurationVar(&c.DeepSleep, "deep-sleep", c.DeepSleep, "Upper bound of a deep sleep")

	fs.Var((*hex16)(&c.IntervalThreshold), "interval-threshold",
		"Largest accepted connection interval before an update is requested (1.25ms units)")
	fs.Var((*hex16)(&c.MinInterval), "min-interval", "Requested minimum connection interval")
	fs.Var((*hex16)(&c.MaxInterval), "max-interval", "Requested maximum connection interval")
	fs.Var((*hex16)(&c.Latency), "latency", "Requested peripheral latency")
	fs.Var((*hex16)(&c.SupervisionTimeout), "supervision-timeout", "Requested supervision timeout (10ms units)")

	fs.StringVar(&c.LocalName, "local-name", c.LocalName, "Advertised local name")
	fs.StringVar(&c.BootloaderUUID, "bootloader-uuid", c.BootloaderUUID, "Bootloader service UUID")
	fs.DurationVar(&c.FastInterval, "fast-interval", c.FastInterval, "Fast advertising interval")
	fs.DurationVar(&c.FastWindow, "fast-window", c.FastWindow, "Fast advertising window")
	fs.DurationVar(&c.SlowInterval, "slow-interval", c.SlowInterval, "Slow advertising interval")
	fs.DurationVar(&c.SlowWindow, "slow-window", c.SlowWindow, "Slow advertising window")
	fs.Var((*hex16)(&c.HostConnInterval), "host-conn-interval",
		"Connection interval reported by backends that cannot read it")
	fs.StringVar(&c.SerialNumber, "serial-number", c.SerialNumber, "Device information serial number")
	fs.Var((*hex16)(&c.ServiceChanged), "service-changed-handle", "Service changed attribute handle")
	fs.Var((*hex16)(&c.BootloaderService), "bootloader-service-handle", "Bootloader service handle")
	fs.Var((*hex16)(&c.FirstDescriptor), "first-descriptor-handle", "First bootloader characteristic descriptor handle")
	fs.Var((*hex16)(&c.SerialNumberAttr), "serial-number-handle", "Serial number attribute handle")
	fs.Var((*hex16List)(&c.DisabledServices), "disabled-services", "Comma-separated service handles to disable")

	fs.BoolVar(&c.SuspendOnPark, "suspend-on-park", c.SuspendOnPark,
		"Suspend through logind while hibernating")
	fs.StringVar(&c.ParkCommand, "park-command", c.ParkCommand, "logind sleep used while hibernating (suspend, hibernate)")
	fs.Int64Var(&c.DiagnosticsMax, "diagnostics-max", c.DiagnosticsMax, "Diagnostics kept in Redis")

	return fs
}

// Load overlays the YAML file at path.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.RedisPort <= 0 || c.RedisPort > 65535 {
		errs = append(errs, fmt.Errorf("redis port %d out of range", c.RedisPort))
	}
	switch c.Backend {
	case "bluez", "sim":
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	switch c.ParkCommand {
	case "suspend", "hibernate":
	default:
		errs = append(errs, fmt.Errorf("unknown park command %q", c.ParkCommand))
	}
	if c.BlinkPeriod <= 0 {
		errs = append(errs, errors.New("blink period must be positive"))
	}
	if c.LightSleep <= 0 || c.DeepSleep <= 0 {
		errs = append(errs, errors.New("sleep bounds must be positive"))
	}
	if c.MinInterval > c.MaxInterval {
		errs = append(errs, fmt.Errorf("min interval 0x%04x above max interval 0x%04x", c.MinInterval, c.MaxInterval))
	}
	if c.FastWindow <= 0 || c.SlowWindow <= 0 {
		errs = append(errs, errors.New("advertising windows must be positive"))
	}
	if c.DiagnosticsMax <= 0 {
		errs = append(errs, errors.New("diagnostics max must be positive"))
	}

	return errors.Join(errs...)
}

// hex16 is a uint16 flag accepting decimal or 0x-prefixed values.
type hex16 uint16

func (h *hex16) String() string { return fmt.Sprintf("0x%04x", uint16(*h)) }

func (h *hex16) Set(s string) error {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return err
	}
	*h = hex16(v)
	return nil
}

type hex16List []uint16

func (l *hex16List) String() string {
	parts := make([]string, 0, len(*l))
	for _, v := range *l {
		parts = append(parts, fmt.Sprintf("0x%04x", v))
	}
	return strings.Join(parts, ",")
}

func (l *hex16List) Set(s string) error {
	var out []uint16
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 0, 16)
		if err != nil {
			return err
		}
		out = append(out, uint16(v))
	}
	*l = out
	return nil
}
