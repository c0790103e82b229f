// Package settings loads the appliance configuration file.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jrockway/segment-clock/control/clock"
	"github.com/jrockway/segment-clock/control/gatt"
	"github.com/jrockway/segment-clock/control/tm1637"
	"github.com/rs/zerolog"
)

// Settings is everything run-clock can be told.
type Settings struct {
	Display Display
	Clock   Clock
	Alarm   Alarm
	GATT    GATT
	HTTP    HTTP
	Log     Log
}

// Display is the TM1637 module wiring.
type Display struct {
	ClockPin   string // gpioreg name of the CLK line.
	DataPin    string // gpioreg name of the DIO line.
	BitDelay   time.Duration
	Brightness uint8 // 0-7.
	On         bool
}

type Clock struct {
	Start    clock.Time
	Interval time.Duration
}

type Alarm struct {
	At      clock.Time
	Enabled bool
}

type GATT struct {
	Queue         int // Pending writes held for the consumer.
	MaxAttributes int
}

type HTTP struct {
	Bind string
}

type Log struct {
	Level string
}

// Default returns the settings used for anything the file leaves out.
func Default() Settings {
	return Settings{
		Display: Display{
			ClockPin:   "P9_12",
			DataPin:    "P9_15",
			BitDelay:   tm1637.DefaultBitDelay,
			Brightness: 3,
			On:         true,
		},
		Clock: Clock{
			Start:    clock.Noon,
			Interval: time.Second,
		},
		Alarm: Alarm{
			At:      clock.Time{Hours: 12, Minutes: 1},
			Enabled: true,
		},
		GATT: GATT{
			Queue:         16,
			MaxAttributes: 64,
		},
		HTTP: HTTP{Bind: ":8080"},
		Log:  Log{Level: "info"},
	}
}

type fileConfig struct {
	Display struct {
		ClockPin   string `toml:"clock_pin"`
		DataPin    string `toml:"data_pin"`
		BitDelay   string `toml:"bit_delay"`
		Brightness int    `toml:"brightness"`
		On         bool   `toml:"on"`
	} `toml:"display"`
	Clock struct {
		Start    string `toml:"start"`
		Interval string `toml:"interval"`
	} `toml:"clock"`
	Alarm struct {
		At      string `toml:"at"`
		Enabled bool   `toml:"enabled"`
	} `toml:"alarm"`
	GATT struct {
		Queue         int `toml:"queue"`
		MaxAttributes int `toml:"max_attributes"`
	} `toml:"gatt"`
	HTTP struct {
		Bind string `toml:"bind"`
	} `toml:"http"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// Load reads the TOML file at path on top of Default.  An empty path returns the defaults.
func Load(path string) (Settings, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if err := apply(&cfg, &raw, meta); err != nil {
		return Settings{}, fmt.Errorf("load settings from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Settings{}, fmt.Errorf("validate settings from %s: %w", path, err)
	}
	return cfg, nil
}

func apply(cfg *Settings, raw *fileConfig, meta toml.MetaData) error {
	if meta.IsDefined("display", "clock_pin") {
		cfg.Display.ClockPin = strings.TrimSpace(raw.Display.ClockPin)
	}
	if meta.IsDefined("display", "data_pin") {
		cfg.Display.DataPin = strings.TrimSpace(raw.Display.DataPin)
	}
	if meta.IsDefined("display", "bit_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Display.BitDelay))
		if err != nil {
			return fmt.Errorf("parse display.bit_delay: %w", err)
		}
		cfg.Display.BitDelay = d
	}
	if meta.IsDefined("display", "brightness") {
		if b := raw.Display.Brightness; b < 0 || b > 7 {
			return fmt.Errorf("display.brightness %d: must be 0-7", b)
		}
		cfg.Display.Brightness = uint8(raw.Display.Brightness)
	}
	if meta.IsDefined("display", "on") {
		cfg.Display.On = raw.Display.On
	}

	if meta.IsDefined("clock", "start") {
		t, err := clock.ParseTime(strings.TrimSpace(raw.Clock.Start))
		if err != nil {
			return fmt.Errorf("parse clock.start: %w", err)
		}
		cfg.Clock.Start = t
	}
	if meta.IsDefined("clock", "interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Clock.Interval))
		if err != nil {
			return fmt.Errorf("parse clock.interval: %w", err)
		}
		cfg.Clock.Interval = d
	}

	if meta.IsDefined("alarm", "at") {
		t, err := clock.ParseTime(strings.TrimSpace(raw.Alarm.At))
		if err != nil {
			return fmt.Errorf("parse alarm.at: %w", err)
		}
		cfg.Alarm.At = t
	}
	if meta.IsDefined("alarm", "enabled") {
		cfg.Alarm.Enabled = raw.Alarm.Enabled
	}

	if meta.IsDefined("gatt", "queue") {
		cfg.GATT.Queue = raw.GATT.Queue
	}
	if meta.IsDefined("gatt", "max_attributes") {
		cfg.GATT.MaxAttributes = raw.GATT.MaxAttributes
	}

	if meta.IsDefined("http", "bind") {
		cfg.HTTP.Bind = strings.TrimSpace(raw.HTTP.Bind)
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	return nil
}

// Validate checks that the settings are usable.
func (s Settings) Validate() error {
	var errs []error
	if s.Display.ClockPin == "" {
		errs = append(errs, errors.New("display.clock_pin is empty"))
	}
	if s.Display.DataPin == "" {
		errs = append(errs, errors.New("display.data_pin is empty"))
	}
	if s.Display.ClockPin != "" && s.Display.ClockPin == s.Display.DataPin {
		errs = append(errs, fmt.Errorf("display.clock_pin and display.data_pin are both %s", s.Display.ClockPin))
	}
	if s.Display.BitDelay < 0 {
		errs = append(errs, fmt.Errorf("display.bit_delay %v is negative", s.Display.BitDelay))
	}
	if s.Display.Brightness > 7 {
		errs = append(errs, fmt.Errorf("display.brightness %d: must be 0-7", s.Display.Brightness))
	}
	if !s.Clock.Start.Valid() {
		errs = append(errs, fmt.Errorf("clock.start %s is not a time of day", s.Clock.Start))
	}
	if s.Clock.Interval <= 0 {
		errs = append(errs, fmt.Errorf("clock.interval %v must be positive", s.Clock.Interval))
	}
	if !s.Alarm.At.Valid() {
		errs = append(errs, fmt.Errorf("alarm.at %s is not a time of day", s.Alarm.At))
	}
	if s.GATT.Queue < 1 {
		errs = append(errs, fmt.Errorf("gatt.queue %d must be at least 1", s.GATT.Queue))
	}
	if s.GATT.MaxAttributes < 1 || s.GATT.MaxAttributes > gatt.MaxHandles {
		errs = append(errs, fmt.Errorf("gatt.max_attributes %d must be between 1 and %d", s.GATT.MaxAttributes, gatt.MaxHandles))
	}
	if _, err := zerolog.ParseLevel(s.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}
