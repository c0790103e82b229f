package segment

import "testing"

func TestEncode(t *testing.T) {
	testData := []struct {
		in   byte
		want byte
	}{
		{0, 0b00111111},
		{1, 0b00000110},
		{2, 0b01011011},
		{3, 0b01001111},
		{4, 0b01100110},
		{5, 0b01101101},
		{6, 0b01111101},
		{7, 0b00000111},
		{8, 0b01111111},
		{9, 0b01101111},
		{0xa, 0b01110111},
		{0xb, 0b01111100},
		{0xc, 0b00111001},
		{0xd, 0b01011110},
		{0xe, 0b01111001},
		{0xf, 0b01110001},
		{0x13, 0b01001111}, // masked to 3
		{0xf0, 0b00111111}, // masked to 0
	}
	for _, test := range testData {
		if got, want := Encode(test.in), test.want; got != want {
			t.Errorf("encode %#x:\n  got: %08b\n want: %08b", test.in, got, want)
		}
	}
}

func TestDecode(t *testing.T) {
	for i := byte(0); i < 16; i++ {
		got, ok := Decode(Encode(i) | DP)
		if !ok {
			t.Errorf("decode %x: not a digit", i)
			continue
		}
		if want := i; got != want {
			t.Errorf("decode:\n  got: %x\n want: %x", got, want)
		}
	}
	if _, ok := Decode(Minus); ok {
		t.Error("minus decoded as a digit")
	}
	if _, ok := Decode(Blank); ok {
		t.Error("blank decoded as a digit")
	}
}
