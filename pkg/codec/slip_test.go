package codec

import (
	"bytes"
	"testing"
)

func TestSLIPRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01, 0x02, 0x03},
		{slipEnd, 0x01, slipEnd},
		{slipEsc, slipEsc, 0x02},
		{slipEnd, slipEsc, 0x00, slipEnd},
	}
	for _, c := range cases {
		encoded := slipEncode(c)
		if encoded[len(encoded)-1] != slipEnd {
			t.Fatalf("encoded form does not end with END: %v", encoded)
		}
		for _, b := range encoded[:len(encoded)-1] {
			if b == slipEnd {
				t.Fatalf("embedded END byte before the trailing one: %v", encoded)
			}
		}
		decoded, ok := slipDecode(encoded)
		if !ok {
			t.Fatalf("slipDecode(slipEncode(%v)) ok=false", c)
		}
		if !bytes.Equal(decoded, c) {
			t.Fatalf("round trip mismatch: got %v, want %v", decoded, c)
		}
	}
}

func TestSLIPDecodeInvalidEscape(t *testing.T) {
	raw := []byte{slipEsc, 0x42, slipEnd}
	if _, ok := slipDecode(raw); ok {
		t.Fatalf("expected decode failure for ESC followed by a non-escape byte")
	}
}

func TestSLIPValidateEmptyFrame(t *testing.T) {
	c := SLIP{}
	if err := c.Validate(nil); err == nil || err.Code != "EMPTY_FRAME" {
		t.Errorf("Validate(nil) = %+v, want EMPTY_FRAME", err)
	}
	if err := c.Validate([]byte{slipEnd}); err != nil {
		t.Errorf("Validate = %+v, want nil", err)
	}
}
