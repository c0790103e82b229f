package tm1637

import "github.com/jrockway/segment-clock/control/segment"

// Frame holds the encoded segments for every digit of the module, leftmost first.
type Frame [Digits]byte

// FormatDecimal encodes num in base 10 into length digits, most significant first.  Leading
// zeros are blank unless leadingZero is set.  A negative number gets a minus sign in the first
// zero position left of its digits; if there is no room, the sign is dropped.  dots is applied
// as described on ShowNumberDecEx.
//
// Only the low 16 bits of the magnitude are shown, as on the module's firmware: 70000 shows as
// 4464.  length must be at least 1 and at most Digits; a length of 0 formats nothing.
func FormatDecimal(num int, dots byte, leadingZero bool, length uint8) []byte {
	if num < 0 {
		return format(10, uint(uint16(-num)), true, dots, leadingZero, length)
	}
	return format(10, uint(uint16(num)), false, dots, leadingZero, length)
}

// FormatHex is FormatDecimal in base 16.
func FormatHex(num uint16, dots byte, leadingZero bool, length uint8) []byte {
	return format(16, uint(num), false, dots, leadingZero, length)
}

func format(base, num uint, negative bool, dots byte, leadingZero bool, length uint8) []byte {
	var f Frame
	digits := f[:length]
	if length == 0 {
		return digits
	}

	if num == 0 && !leadingZero {
		// Plain zero shows a single 0 on the right, not a row of blanks.
		digits[length-1] = segment.Encode(0)
	} else {
		for i := int(length) - 1; i >= 0; i-- {
			digit := byte(num % base)
			if digit == 0 && num == 0 && !leadingZero {
				digits[i] = segment.Blank
			} else {
				digits[i] = segment.Encode(digit)
			}
			if digit == 0 && num == 0 && negative {
				digits[i] = segment.Minus
				negative = false
			}
			num /= base
		}
	}

	if dots != 0 {
		showDots(dots, digits)
	}
	return digits
}

// showDots ORs bit 7 of dots into the first digit, bit 6 into the second, and so on.
func showDots(dots byte, digits []byte) {
	for i := range digits {
		digits[i] |= dots & 0x80
		dots <<= 1
	}
}
