// Package config loads the optional YAML file shared by the rover and the base. Every field
// has a default; a file only needs the values it changes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/andresmejia3/roverlink/internal/actuator"
	"github.com/andresmejia3/roverlink/internal/detect"
	"github.com/andresmejia3/roverlink/internal/link"
	"github.com/andresmejia3/roverlink/internal/nav"
	"github.com/andresmejia3/roverlink/internal/transport"
	"github.com/andresmejia3/roverlink/internal/types"
)

// Config is the complete roverlink configuration.
type Config struct {
	Link       LinkConfig       `yaml:"link"`
	Camera     CameraConfig     `yaml:"camera"`
	Detect     DetectConfig     `yaml:"detect"`
	Nav        NavConfig        `yaml:"nav"`
	Motor      MotorConfig      `yaml:"motor"`
	Classifier ClassifierConfig `yaml:"classifier"`
}

type LinkConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	TimeoutMS int    `yaml:"timeout_ms"` // 0 blocks forever
	Profile   string `yaml:"profile"`    // command, velocity, command+velocity
	Quality   int    `yaml:"quality"`    // JPEG quality 0..100
}

type CameraConfig struct {
	Device int `yaml:"device"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	// Source overrides the camera: "ffmpeg:<input>" streams any ffmpeg input instead.
	Source string `yaml:"source"`
}

type DetectConfig struct {
	Template  string  `yaml:"template"`
	Scales    int     `yaml:"scales"`
	MinScale  float64 `yaml:"min_scale"`
	MaxScale  float64 `yaml:"max_scale"`
	Threshold float64 `yaml:"threshold"`
	Backend   string  `yaml:"backend"` // opencv, go
}

type NavConfig struct {
	SettleMS   int            `yaml:"settle_ms"`
	CooldownMS int            `yaml:"cooldown_ms"`
	CenterBand int            `yaml:"center_band"`
	MinScale   float64        `yaml:"min_scale"`
	Symbols    map[int]string `yaml:"symbols"` // class -> maneuver name
	Fallback   string         `yaml:"fallback"`
}

type MotorConfig struct {
	Driver    string                    `yaml:"driver"` // serial, log
	Device    string                    `yaml:"device"`
	Baud      int                       `yaml:"baud"`
	Duty      int                       `yaml:"duty"`
	PollMS    int                       `yaml:"poll_ms"`
	Maneuvers map[string]ManeuverConfig `yaml:"maneuvers"`
}

type ManeuverConfig struct {
	Direction  string `yaml:"direction"`
	DurationMS int    `yaml:"duration_ms"`
}

type ClassifierConfig struct {
	Kind    string   `yaml:"kind"` // onnx, process, none
	Model   string   `yaml:"model"`
	Command []string `yaml:"command"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		Link: LinkConfig{
			Host:      "127.0.0.1",
			Port:      5000,
			TimeoutMS: 5000,
			Profile:   link.ProfileCommand.String(),
			Quality:   transport.DefaultQuality,
		},
		Camera: CameraConfig{Device: 0, Width: 320, Height: 240},
		Detect: DetectConfig{
			Template:  "template.png",
			Scales:    24,
			MinScale:  0.02,
			MaxScale:  0.30,
			Threshold: detect.DefaultThreshold,
			Backend:   "opencv",
		},
		Motor: MotorConfig{
			Driver: "log",
			Device: "/dev/ttyUSB0",
			Baud:   115200,
			Duty:   actuator.DefaultDuty,
			PollMS: int(actuator.DefaultPollInterval / time.Millisecond),
		},
		Classifier: ClassifierConfig{Kind: "none", Model: "digits.onnx"},
	}

	n := nav.DefaultConfig()
	cfg.Nav = NavConfig{
		SettleMS:   int(n.Settle / time.Millisecond),
		CooldownMS: int(n.Cooldown / time.Millisecond),
		CenterBand: n.CenterBand,
		MinScale:   n.MinScale,
		Symbols:    map[int]string{},
		Fallback:   n.Fallback.String(),
	}
	for class, m := range n.Symbols {
		cfg.Nav.Symbols[class] = m.String()
	}

	cfg.Motor.Maneuvers = map[string]ManeuverConfig{}
	for m, step := range actuator.DefaultTable() {
		cfg.Motor.Maneuvers[m.String()] = ManeuverConfig{
			Direction:  step.Direction.String(),
			DurationMS: int(step.Duration / time.Millisecond),
		}
	}
	return cfg
}

// Load reads path over the defaults. Maps merge key by key.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and resolves every name once so later conversions cannot fail.
func (c *Config) Validate() error {
	if c.Link.Port < 0 || c.Link.Port > 65535 {
		return fmt.Errorf("link.port %d out of range", c.Link.Port)
	}
	if c.Link.TimeoutMS < 0 {
		return fmt.Errorf("link.timeout_ms must not be negative")
	}
	if _, err := link.ParseProfile(c.Link.Profile); err != nil {
		return err
	}
	if c.Detect.Scales < 1 {
		return fmt.Errorf("detect.scales must be at least 1")
	}
	if c.Detect.MinScale <= 0 || c.Detect.MaxScale < c.Detect.MinScale {
		return fmt.Errorf("detect scale range [%g, %g] is invalid", c.Detect.MinScale, c.Detect.MaxScale)
	}
	if c.Detect.Backend != "opencv" && c.Detect.Backend != "go" {
		return fmt.Errorf("detect.backend %q (want opencv or go)", c.Detect.Backend)
	}
	switch c.Motor.Driver {
	case "serial", "log":
	default:
		return fmt.Errorf("motor.driver %q (want serial or log)", c.Motor.Driver)
	}
	switch c.Classifier.Kind {
	case "onnx", "none":
	case "process":
		if len(c.Classifier.Command) == 0 {
			return fmt.Errorf("classifier.command is required for the process classifier")
		}
	default:
		return fmt.Errorf("classifier.kind %q (want onnx, process or none)", c.Classifier.Kind)
	}
	if _, err := c.NavConfig(); err != nil {
		return err
	}
	if _, err := c.ManeuverTable(); err != nil {
		return err
	}
	return nil
}

// Timeout is the link receive timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Link.TimeoutMS) * time.Millisecond
}

func (c *Config) Profile() link.Profile {
	p, _ := link.ParseProfile(c.Link.Profile)
	return p
}

// Scales returns the detection scale set.
func (c *Config) Scales() []float64 {
	return detect.Scales(c.Detect.Scales, c.Detect.MinScale, c.Detect.MaxScale)
}

func (c *Config) NavConfig() (nav.Config, error) {
	n := nav.Config{
		Settle:     time.Duration(c.Nav.SettleMS) * time.Millisecond,
		Cooldown:   time.Duration(c.Nav.CooldownMS) * time.Millisecond,
		CenterBand: c.Nav.CenterBand,
		MinScale:   c.Nav.MinScale,
		Symbols:    make(map[int]types.Maneuver, len(c.Nav.Symbols)),
	}
	for class, name := range c.Nav.Symbols {
		m, err := types.ParseManeuver(name)
		if err != nil {
			return nav.Config{}, fmt.Errorf("nav.symbols[%d]: %w", class, err)
		}
		n.Symbols[class] = m
	}
	fb, err := types.ParseManeuver(c.Nav.Fallback)
	if err != nil {
		return nav.Config{}, fmt.Errorf("nav.fallback: %w", err)
	}
	n.Fallback = fb
	return n, nil
}

func (c *Config) ManeuverTable() (actuator.Table, error) {
	table := make(actuator.Table, len(c.Motor.Maneuvers))
	for name, mc := range c.Motor.Maneuvers {
		m, err := types.ParseManeuver(name)
		if err != nil {
			return nil, fmt.Errorf("motor.maneuvers: %w", err)
		}
		dir, err := types.ParseManual(mc.Direction)
		if err != nil {
			return nil, fmt.Errorf("motor.maneuvers[%s]: %w", name, err)
		}
		if mc.DurationMS < 0 {
			return nil, fmt.Errorf("motor.maneuvers[%s]: negative duration", name)
		}
		table[m] = actuator.Step{Direction: dir, Duration: time.Duration(mc.DurationMS) * time.Millisecond}
	}
	return table, nil
}

// ActuatorOptions fills the motor settings of o.
func (c *Config) ActuatorOptions(o actuator.Options) actuator.Options {
	o.Duty = c.Motor.Duty
	o.PollInterval = time.Duration(c.Motor.PollMS) * time.Millisecond
	return o
}
