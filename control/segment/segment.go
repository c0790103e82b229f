// Package segment maps digits to 7-segment patterns.
//
// Bit 0 is segment A and bit 6 is segment G; bit 7 drives the decimal point (or the colon, on
// modules that wire it there).
//
//	 A
//	---
//	F| |B
//	-G-
//	E| |C
//	---
//	 D
package segment

const (
	A  byte = 1 << 0
	B  byte = 1 << 1
	C  byte = 1 << 2
	D  byte = 1 << 3
	E  byte = 1 << 4
	F  byte = 1 << 5
	G  byte = 1 << 6
	DP byte = 1 << 7

	// Minus is a lone middle bar.
	Minus = G
	// Blank lights nothing.
	Blank byte = 0
)

var digits = [16]byte{
	A | B | C | D | E | F,     // 0
	B | C,                     // 1
	A | B | D | E | G,         // 2
	A | B | C | D | G,         // 3
	B | C | F | G,             // 4
	A | C | D | F | G,         // 5
	A | C | D | E | F | G,     // 6
	A | B | C,                 // 7
	A | B | C | D | E | F | G, // 8
	A | B | C | D | F | G,     // 9
	A | B | C | E | F | G,     // A
	C | D | E | F | G,         // b
	A | D | E | F,             // C
	B | C | D | E | G,         // d
	A | D | E | F | G,         // E
	A | E | F | G,             // F
}

// Encode returns the pattern for the low 4 bits of v.
func Encode(v byte) byte {
	return digits[v&0x0f]
}

// Decode is the inverse of Encode.  The decimal point is ignored.  ok is false for patterns that
// are not a hex digit (blank and minus included).
func Decode(pattern byte) (v byte, ok bool) {
	pattern &^= DP
	for i, p := range digits {
		if p == pattern {
			return byte(i), true
		}
	}
	return 0, false
}
