package tm1637

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/jrockway/segment-clock/control/segment"
)

// render turns digits back into text: blank is ' ', minus is '-', anything else its hex digit.
func render(t *testing.T, digits []byte) string {
	t.Helper()
	var out []byte
	for _, d := range digits {
		switch d &^ segment.DP {
		case segment.Blank:
			out = append(out, ' ')
		case segment.Minus:
			out = append(out, '-')
		default:
			v, ok := segment.Decode(d)
			if !ok {
				t.Fatalf("undecodable segment pattern %08b", d)
			}
			out = append(out, "0123456789abcdef"[v])
		}
	}
	return string(out)
}

func TestFormatDecimal(t *testing.T) {
	testData := []struct {
		num         int
		leadingZero bool
		length      uint8
		want        string
	}{
		{0, false, 4, "   0"},
		{0, true, 4, "0000"},
		{0, false, 1, "0"},
		{7, false, 4, "   7"},
		{7, true, 4, "0007"},
		{1200, true, 4, "1200"},
		{905, true, 4, "0905"},
		{905, false, 4, " 905"},
		{9999, false, 4, "9999"},
		{12345, false, 4, "2345"},
		{70000, false, 4, "4464"}, // low 16 bits only
		{65536, false, 4, "   0"},
		{-70000, false, 4, "4464"},
		{0, false, 0, ""},
		{0, true, 0, ""},
		{42, false, 2, "42"},
		{-5, false, 4, "  -5"},
		{-42, false, 4, " -42"},
		{-999, false, 4, "-999"},
		{-1234, false, 4, "1234"}, // no room for the sign
		{-5, true, 4, "00-5"},
	}
	for _, test := range testData {
		t.Run(fmt.Sprintf("%d/%v/%d", test.num, test.leadingZero, test.length), func(t *testing.T) {
			got := render(t, FormatDecimal(test.num, 0, test.leadingZero, test.length))
			if want := test.want; got != want {
				t.Errorf("format:\n  got: %q\n want: %q", got, want)
			}
		})
	}
}

func TestFormatDecimalRoundTrip(t *testing.T) {
	for n := 0; n <= 9999; n++ {
		got := render(t, FormatDecimal(n, 0, true, 4))
		if want := fmt.Sprintf("%04d", n); got != want {
			t.Fatalf("round trip:\n  got: %q\n want: %q", got, want)
		}
	}
}

func TestFormatZeroUnpadded(t *testing.T) {
	for length := uint8(1); length <= Digits; length++ {
		digits := FormatDecimal(0, 0, false, length)
		if got, want := len(digits), int(length); got != want {
			t.Fatalf("length:\n  got: %v\n want: %v", got, want)
		}
		for i, d := range digits[:length-1] {
			if d != segment.Blank {
				t.Errorf("length %d: position %d not blank: %08b", length, i, d)
			}
		}
		if got, want := digits[length-1], segment.Encode(0); got != want {
			t.Errorf("length %d: last digit:\n  got: %08b\n want: %08b", length, got, want)
		}
	}
}

func TestFormatNegativeSingleDash(t *testing.T) {
	for n := -999; n < 0; n++ {
		digits := FormatDecimal(n, 0, false, 4)
		text := render(t, digits)
		dashes := 0
		for _, c := range text {
			if c == '-' {
				dashes++
			}
		}
		if dashes != 1 {
			t.Fatalf("%d rendered as %q: want exactly one dash", n, text)
		}
		if want := fmt.Sprintf("%4d", n); text != want {
			t.Fatalf("format %d:\n  got: %q\n want: %q", n, text, want)
		}
	}
}

func TestFormatHex(t *testing.T) {
	testData := []struct {
		num         uint16
		leadingZero bool
		want        string
	}{
		{0, false, "   0"},
		{0xff, false, "  ff"},
		{0xff, true, "00ff"},
		{0xbeef, false, "beef"},
		{0x1000, false, "1000"},
	}
	for _, test := range testData {
		got := render(t, FormatHex(test.num, 0, test.leadingZero, 4))
		if want := test.want; got != want {
			t.Errorf("format %#x:\n  got: %q\n want: %q", test.num, got, want)
		}
	}
}

func TestDots(t *testing.T) {
	testData := []struct {
		dots byte
		want []byte
	}{
		{0x00, []byte{0x00, 0x00, 0x00, 0x00}},
		{0x80, []byte{0x80, 0x00, 0x00, 0x00}},
		{0x40, []byte{0x00, 0x80, 0x00, 0x00}},
		{0xf0, []byte{0x80, 0x80, 0x80, 0x80}},
		{0x50, []byte{0x00, 0x80, 0x00, 0x80}},
		{0x0f, []byte{0x00, 0x00, 0x00, 0x00}},
	}
	for _, test := range testData {
		digits := FormatDecimal(8888, test.dots, false, 4)
		got := make([]byte, len(digits))
		for i, d := range digits {
			got[i] = d & segment.DP
		}
		if want := test.want; !reflect.DeepEqual(got, want) {
			t.Errorf("dots %#x:\n  got: %x\n want: %x", test.dots, got, want)
		}
	}
}
