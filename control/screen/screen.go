// Package screen shows the clock on the 7-segment display, and retains what it showed for
// debugging the rest of the program without the display attached.
package screen

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"sync"

	"github.com/jrockway/segment-clock/control/clock"
	"github.com/jrockway/segment-clock/control/latest"
	"github.com/jrockway/segment-clock/control/tm1637"
	"github.com/rs/zerolog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	digitWidth  = 40 // Preview size of one digit cell, including spacing.
	digitHeight = 70
	stroke      = 6  // Segment thickness.
	margin      = 10 // Border around the digits.
	captionRoom = 20 // Space under the digits for the caption.

	colonMask = 0x80 // Lights the separator on the first digit.
)

var (
	lit   = color.NRGBA{R: 0xff, G: 0x20, B: 0x10, A: 0xff}
	unlit = color.NRGBA{R: 0x30, G: 0x08, B: 0x08, A: 0xff}
	bg    = color.NRGBA{A: 0xff}
	text  = color.NRGBA{R: 0xa0, G: 0xa0, B: 0xa0, A: 0xff}
)

// Segments is the part of the display driver the screen needs.  *tm1637.Dev implements it.
type Segments interface {
	SetSegments(segments []byte, pos uint8) error
}

// Screen is the clock face.
type Screen struct {
	dev Segments
	log zerolog.Logger

	frameMu sync.Mutex
	frame   tm1637.Frame // must hold frameMu to read or write.
	shown   clock.Time   // must hold frameMu to read or write.
}

// New returns a Screen that draws on dev.  A nil dev keeps only the preview, for running without
// hardware.
func New(dev Segments, log zerolog.Logger) *Screen {
	return &Screen{dev: dev, log: log}
}

// Show draws HH:MM for t, with dots as described on tm1637.FormatDecimal.
func (s *Screen) Show(t clock.Time, dots byte) error {
	digits := tm1637.FormatDecimal(t.HHMM(), dots, true, tm1637.Digits)
	s.frameMu.Lock()
	copy(s.frame[:], digits)
	s.shown = t
	s.frameMu.Unlock()
	if s.dev == nil {
		return nil
	}
	if err := s.dev.SetSegments(digits, 0); err != nil {
		return fmt.Errorf("show %s: %w", t, err)
	}
	return nil
}

// Run shows every time read from r until the context is cancelled, blinking the separator once
// per new time.  If drawing falls behind, r simply skips to the newest time.
func (s *Screen) Run(ctx context.Context, r *latest.Reader[clock.Time]) error {
	colon := true
	for {
		t, err := r.Read(ctx)
		if err != nil {
			return fmt.Errorf("display: %w", err)
		}
		colon = !colon
		var dots byte
		if colon {
			dots = colonMask
		}
		if err := s.Show(t, dots); err != nil {
			s.log.Error().Err(err).Msg("problem updating display")
		}
	}
}

// Current returns the segments last drawn and the time they show.
func (s *Screen) Current() (tm1637.Frame, clock.Time) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	return s.frame, s.shown
}

// ServeHTTP serves the current display as a PNG.
func (s *Screen) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	frame, shown := s.Current()
	w.Header().Add("content-type", "image/png")
	w.WriteHeader(http.StatusOK)
	if err := png.Encode(w, Preview(frame, shown.String())); err != nil {
		s.log.Debug().Err(err).Msg("encoding preview image")
	}
}

// Preview draws frame the way the module would show it, with caption printed underneath.
func Preview(frame tm1637.Frame, caption string) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2*margin+len(frame)*digitWidth, 2*margin+digitHeight+captionRoom))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	for i, pattern := range frame {
		drawDigit(img, image.Pt(margin+i*digitWidth, margin), pattern)
	}
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(text),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(margin, margin+digitHeight+captionRoom-4),
	}
	drawer.DrawString(caption)
	return img
}

// segmentRects returns where each of the 7 segments and the dot sit inside a digit cell whose
// top-left corner is at o, in segment bit order (A..G, DP).
func segmentRects(o image.Point) [8]image.Rectangle {
	w, h := digitWidth-2*stroke-4, digitHeight-stroke-4 // Drawn area, leaving room for the dot.
	mid := h / 2
	r := func(x0, y0, x1, y1 int) image.Rectangle {
		return image.Rect(o.X+x0, o.Y+y0, o.X+x1, o.Y+y1)
	}
	return [8]image.Rectangle{
		r(stroke, 0, w-stroke, stroke),       // A
		r(w-stroke, stroke, w, mid),          // B
		r(w-stroke, mid+stroke, w, h-stroke), // C
		r(stroke, h-stroke, w-stroke, h),     // D
		r(0, mid+stroke, stroke, h-stroke),   // E
		r(0, stroke, stroke, mid),            // F
		r(stroke, mid, w-stroke, mid+stroke), // G
		r(w+2, h-stroke, w+2+stroke, h),      // DP
	}
}

func drawDigit(img draw.Image, o image.Point, pattern byte) {
	for bit, rect := range segmentRects(o) {
		c := unlit
		if pattern&(1<<bit) != 0 {
			c = lit
		}
		draw.Draw(img, rect, image.NewUniform(c), image.Point{}, draw.Src)
	}
}
