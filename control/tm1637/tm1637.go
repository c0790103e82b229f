// Package tm1637 drives a TM1637 4-digit 7-segment module by bit-banging its two-wire bus
// (CLK, DIO) from periph.io GPIO pins.
//
// The bus looks like I2C but is not: there is no device address, bytes go LSB first, and the chip
// pulls DIO low on the ninth clock to acknowledge each byte.  Every line transition is followed
// by the configured bit delay, which is a busy spin rather than a sleep, so a full frame blocks
// the calling goroutine for roughly 6 bytes * 9 clocks * 3 delays.  Call it from a goroutine that
// can afford that.
//
// A Dev is not safe for concurrent use.  Exactly one goroutine may talk to the bus at a time.
package tm1637

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/net/trace"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/host/v3/cpu"
)

const (
	cmdData    = 0x40 // data command: write, auto-increment address
	cmdAddress = 0xC0 // address command: OR in the first digit position
	cmdDisplay = 0x80 // display control: OR in brightness and the on bit

	displayOn = 0x08

	// DefaultBitDelay is a safe pause for long jumper wires; the chip itself is fine with 2µs.
	DefaultBitDelay = 100 * time.Microsecond

	// Digits is the width of the module.
	Digits = 4
)

var (
	nackCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tm1637_nacks_total",
		Help: "count of bytes the display did not acknowledge",
	})
	frameCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tm1637_frames_total",
		Help: "count of segment frames written to the display",
	})
	frameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tm1637_frame_seconds",
		Help:    "time spent clocking one frame out to the display",
		Buckets: prometheus.ExponentialBuckets(1e-5, 2, 16),
	})
)

// Dev is one display.  It owns both of its pins; nothing else may drive them.
type Dev struct {
	clk      gpio.PinOut
	dio      gpio.PinIO
	bitDelay time.Duration
	delay    func(time.Duration)

	brightness byte // low 3 bits brightness, bit 3 on/off.

	log    zerolog.Logger
	events trace.EventLog
}

// Option configures a Dev.
type Option func(*Dev)

// WithDelay replaces the busy-wait used between line transitions.  Tests pass a no-op.
func WithDelay(f func(time.Duration)) Option {
	return func(d *Dev) { d.delay = f }
}

// WithLogger sets the logger used for bus problems.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dev) { d.log = l }
}

// New claims the clock and data lines, drives both low, and remembers the bit delay.  Call it once
// per pair of pins; a second Dev on the same pins will fight the first.
func New(clk gpio.PinOut, dio gpio.PinIO, bitDelay time.Duration, opts ...Option) (*Dev, error) {
	d := &Dev{
		clk:        clk,
		dio:        dio,
		bitDelay:   bitDelay,
		delay:      cpu.Nanospin,
		brightness: 0x07 | displayOn,
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(d)
	}
	if err := clk.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("drive clock pin %s low: %w", clk, err)
	}
	if err := dio.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("drive data pin %s low: %w", dio, err)
	}
	d.events = trace.NewEventLog("bus", fmt.Sprintf("tm1637 clk=%s dio=%s", clk, dio))
	d.events.Printf("initialized; bit delay %s", bitDelay)
	return d, nil
}

// SetBrightness sets the brightness (0-7) and on/off state sent with every later frame.  It does
// not touch the bus.
func (d *Dev) SetBrightness(level uint8, on bool) {
	d.brightness = level & 0x07
	if on {
		d.brightness |= displayOn
	}
}

// Brightness returns the level and on/off state last set.
func (d *Dev) Brightness() (level uint8, on bool) {
	return d.brightness & 0x07, d.brightness&displayOn != 0
}

// SetSegments writes already-encoded segments to consecutive digits starting at pos (masked to
// 0-3), then resends the display control byte.  len(segments) must not exceed Digits.
//
// A byte the display does not acknowledge is counted and logged but does not stop the frame;
// the only errors returned come from the GPIO pins themselves.
func (d *Dev) SetSegments(segments []byte, pos uint8) error {
	start := time.Now()
	b := &bus{d: d}

	b.start()
	b.writeByte(cmdData)
	b.stop()

	b.start()
	b.writeByte(cmdAddress + (pos & 0x03))
	for _, s := range segments {
		b.writeByte(s)
	}
	b.stop()

	b.start()
	b.writeByte(cmdDisplay + (d.brightness & 0x0f))
	b.stop()

	if b.err != nil {
		d.events.Errorf("frame %x at %d: %v", segments, pos, b.err)
		return fmt.Errorf("write segments: %w", b.err)
	}
	frameCounter.Inc()
	frameDuration.Observe(time.Since(start).Seconds())
	if b.nacks > 0 {
		d.events.Errorf("frame %x at %d: %d bytes not acknowledged", segments, pos, b.nacks)
		d.log.Debug().Int("nacks", b.nacks).Hex("segments", segments).Msg("display did not acknowledge")
	}
	return nil
}

// Clear blanks all four digits.
func (d *Dev) Clear() error {
	var blank Frame
	return d.SetSegments(blank[:], 0)
}

// ShowNumberDec shows num in base 10 without any dots lit.
func (d *Dev) ShowNumberDec(num int, leadingZero bool, length, pos uint8) error {
	return d.ShowNumberDecEx(num, 0, leadingZero, length, pos)
}

// ShowNumberDecEx shows num in base 10 on length digits starting at pos.  Bit 7 of dots lights
// the separator on the first of those digits, bit 6 the second, and so on.
func (d *Dev) ShowNumberDecEx(num int, dots byte, leadingZero bool, length, pos uint8) error {
	return d.SetSegments(FormatDecimal(num, dots, leadingZero, length), pos)
}

// ShowNumberHexEx is ShowNumberDecEx in base 16.
func (d *Dev) ShowNumberHexEx(num uint16, dots byte, leadingZero bool, length, pos uint8) error {
	return d.SetSegments(FormatHex(num, dots, leadingZero, length), pos)
}

// Close blanks the display and releases the event log.
func (d *Dev) Close() error {
	var blank Frame
	return d.CloseShowing(blank[:])
}

// CloseShowing leaves segments on the display, starting at the first digit, and releases the
// event log.  The Dev must not be used afterwards.
func (d *Dev) CloseShowing(segments []byte) error {
	err := d.SetSegments(segments, 0)
	d.events.Finish()
	return err
}

// bus sequences one frame.  After the first GPIO error every further step is a no-op, so the
// frame code can read straight through without checking each line change.
type bus struct {
	d     *Dev
	err   error
	nacks int
}

func (b *bus) out(p gpio.PinOut, l gpio.Level) {
	if b.err != nil {
		return
	}
	if err := p.Out(l); err != nil {
		b.err = fmt.Errorf("drive %s %s: %w", p, l, err)
	}
}

func (b *bus) wait() {
	if b.err != nil {
		return
	}
	b.d.delay(b.d.bitDelay)
}

// start is DIO falling while CLK is high.
func (b *bus) start() {
	b.out(b.d.dio, gpio.High)
	b.out(b.d.clk, gpio.High)
	b.wait()
	b.out(b.d.dio, gpio.Low)
	b.wait()
	b.out(b.d.clk, gpio.Low)
}

// stop is DIO rising while CLK is high.
func (b *bus) stop() {
	b.out(b.d.clk, gpio.Low)
	b.wait()
	b.out(b.d.dio, gpio.Low)
	b.wait()
	b.out(b.d.clk, gpio.High)
	b.wait()
	b.out(b.d.dio, gpio.High)
}

// writeByte clocks v out LSB first and samples the acknowledge bit.
func (b *bus) writeByte(v byte) {
	for i := 0; i < 8; i++ {
		b.out(b.d.clk, gpio.Low)
		b.wait()
		b.out(b.d.dio, v&0x01 != 0)
		b.wait()
		b.out(b.d.clk, gpio.High)
		b.wait()
		v >>= 1
	}

	// Release DIO and let the chip pull it low.
	b.out(b.d.clk, gpio.Low)
	b.out(b.d.dio, gpio.High)
	b.wait()
	b.out(b.d.clk, gpio.High)
	b.wait()
	if b.err == nil && b.d.dio.Read() != gpio.Low {
		b.nacks++
		nackCounter.Inc()
	}
	b.out(b.d.clk, gpio.Low)
	b.wait()
}
