package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrockway/segment-clock/control/clock"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clock.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load with no file: %v", err)
	}
	if got, want := cfg.Clock.Start, clock.Noon; got != want {
		t.Errorf("start:\n  got: %v\n want: %v", got, want)
	}
	if got, want := cfg.Alarm.At, (clock.Time{Hours: 12, Minutes: 1}); got != want {
		t.Errorf("alarm:\n  got: %v\n want: %v", got, want)
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
[display]
clock_pin = " GPIO5 "
data_pin = "GPIO6"
bit_delay = "5us"
brightness = 7
on = false

[clock]
start = "06:59:50"

[alarm]
at = "07:00"

[log]
level = "debug"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := Default()
	want.Display = Display{ClockPin: "GPIO5", DataPin: "GPIO6", BitDelay: 5 * time.Microsecond, Brightness: 7, On: false}
	want.Clock.Start = clock.Time{Hours: 6, Minutes: 59, Seconds: 50}
	want.Alarm.At = clock.Time{Hours: 7}
	want.Log.Level = "debug"
	if got := cfg; got != want {
		t.Errorf("settings:\n  got: %+v\n want: %+v", got, want)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeFile(t, `
[alarm]
enabled = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	want.Alarm.Enabled = false
	if got := cfg; got != want {
		t.Errorf("settings:\n  got: %+v\n want: %+v", got, want)
	}
}

func TestLoadErrors(t *testing.T) {
	testData := []struct {
		name, content string
	}{
		{"syntax", `[display`},
		{"bad duration", "[display]\nbit_delay = \"soon\"\n"},
		{"brightness", "[display]\nbrightness = 9\n"},
		{"bad start", "[clock]\nstart = \"25:00:00\"\n"},
		{"bad alarm", "[alarm]\nat = \"noon\"\n"},
		{"zero interval", "[clock]\ninterval = \"0s\"\n"},
		{"same pins", "[display]\nclock_pin = \"GPIO5\"\ndata_pin = \"GPIO5\"\n"},
		{"empty queue", "[gatt]\nqueue = 0\n"},
		{"too many attributes", "[gatt]\nmax_attributes = 70000\n"},
		{"log level", "[log]\nlevel = \"loud\"\n"},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, test.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
