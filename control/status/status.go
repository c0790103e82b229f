// Package status serves a human-readable page describing what the clock is doing.
package status

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"image"
	"image/png"
	"net/http"
	"sync"
	"time"

	"github.com/jrockway/segment-clock/control/clock"
	"github.com/jrockway/segment-clock/control/gatt"
	"github.com/jrockway/segment-clock/control/screen"
	"github.com/jrockway/segment-clock/control/tm1637"
	"github.com/rs/zerolog"
)

// recentWrites is how many configuration writes the page remembers.
const recentWrites = 10

var (
	//go:embed status.html.tmpl
	statusHTML string
	funcMap    = template.FuncMap{
		"hex":      formatHex,
		"image":    formatImage,
		"since":    formatSince,
		"unixtime": formatUnixTime,
	}
	page = template.Must(template.New("status").Funcs(funcMap).Parse(statusHTML))
)

// Face is what's on the display.  *screen.Screen implements it.
type Face interface {
	Current() (tm1637.Frame, clock.Time)
}

// AlarmState is the alarm setting.  *alarm.Alarm implements it.
type AlarmState interface {
	Get() (clock.Time, bool)
}

// Status is the slowly-changing part of the page.  Zero fields in an Update leave the old value.
type Status struct {
	Started    time.Time
	Hardware   string // Pins the display is on, or why there is no display.
	Brightness string
	ConfigErr  string // Why the configuration service is not running, if it isn't.
}

// Write is one remembered configuration write.
type Write struct {
	At      time.Time
	Channel string
	Len     int
	Text    string
}

// Page renders the status page.  It is also a gatt.Sink that remembers the last few writes.
type Page struct {
	face  Face
	alarm AlarmState
	log   zerolog.Logger

	mu     sync.RWMutex
	status Status  // must hold mu.
	recent []Write // must hold mu.  Newest first.
}

// New returns a page that reads the display from face and the alarm from alarm.  Either may be nil.
func New(face Face, alarm AlarmState, log zerolog.Logger) *Page {
	return &Page{face: face, alarm: alarm, log: log}
}

// Update merges the non-zero fields of s into the page.
func (p *Page) Update(s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !s.Started.IsZero() {
		p.status.Started = s.Started
	}
	if s.Hardware != "" {
		p.status.Hardware = s.Hardware
	}
	if s.Brightness != "" {
		p.status.Brightness = s.Brightness
	}
	if s.ConfigErr != "" {
		p.status.ConfigErr = s.ConfigErr
	}
}

// Deliver remembers req.
func (p *Page) Deliver(req gatt.WriteRequest) {
	w := Write{At: time.Now(), Channel: req.Channel.String(), Len: req.Payload.Len(), Text: req.Payload.String()}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recent = append([]Write{w}, p.recent...)
	if len(p.recent) > recentWrites {
		p.recent = p.recent[:recentWrites]
	}
}

type view struct {
	Status
	Now          time.Time
	Face         *image.NRGBA
	Frame        tm1637.Frame
	Shown        clock.Time
	Alarm        clock.Time
	AlarmEnabled bool
	HaveAlarm    bool
	Recent       []Write
}

func (p *Page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v := view{Now: time.Now()}
	if p.face != nil {
		v.Frame, v.Shown = p.face.Current()
		v.Face = screen.Preview(v.Frame, v.Shown.String())
	}
	if p.alarm != nil {
		v.Alarm, v.AlarmEnabled = p.alarm.Get()
		v.HaveAlarm = true
	}
	p.mu.RLock()
	v.Status = p.status
	v.Recent = append([]Write(nil), p.recent...)
	p.mu.RUnlock()

	w.Header().Set("content-type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := page.Execute(w, v); err != nil {
		p.log.Error().Err(err).Msg("execute status template")
	}
}

func formatHex(x interface{}) string { return fmt.Sprintf("%x", x) }

func formatUnixTime(t time.Time) string { return t.In(time.UTC).Format(time.UnixDate) }

func formatSince(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Truncate(time.Second).String()
}

func formatImage(img *image.NRGBA) template.URL {
	if img == nil {
		return template.URL("data:text/plain,no%20display")
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return template.URL("data:text/plain,error")
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()))
}
