package codec

import (
	"testing"

	"github.com/librescoot/commwatch/pkg/model"
)

func TestEFuseDecodeADC(t *testing.T) {
	raw := []byte{0xAA, 0x01, 0x00, 0x02, 0x08, 0x00, 0x5C, 0x94, 0xBB}
	c := EFuse{}

	frame, ok := c.Decode(raw)
	if !ok {
		t.Fatalf("Decode returned ok=false for well-formed frame")
	}
	if frame.Checksum == nil || !frame.Checksum.Valid {
		t.Fatalf("expected checksum.valid=true, got %+v", frame.Checksum)
	}

	var adcRaw uint16
	var voltage string
	for _, f := range frame.Fields {
		switch f.Name {
		case "adc_raw":
			adcRaw = f.Value.(uint16)
		case "voltage":
			voltage = f.Value.(string)
		}
	}
	if adcRaw != 2048 {
		t.Errorf("adc_raw = %d, want 2048", adcRaw)
	}
	if voltage != "1.650" {
		t.Errorf("voltage = %q, want \"1.650\"", voltage)
	}

	if err := c.Validate(raw); err != nil {
		t.Errorf("Validate = %+v, want nil", err)
	}
}

func TestEFuseCRCMismatch(t *testing.T) {
	raw := []byte{0xAA, 0x01, 0x00, 0x02, 0x08, 0x00, 0x00, 0x00, 0xBB}
	c := EFuse{}

	frame, ok := c.Decode(raw)
	if !ok {
		t.Fatalf("Decode returned ok=false, want a frame with checksum.valid=false")
	}
	if frame.Checksum.Valid {
		t.Errorf("expected checksum.valid=false")
	}

	err := c.Validate(raw)
	if err == nil || err.Code != "CRC_MISMATCH" {
		t.Errorf("Validate = %+v, want CRC_MISMATCH", err)
	}
}

func TestEFuseLengthMismatch(t *testing.T) {
	raw := []byte{0xAA, 0x01, 0x00, 0x05, 0x08, 0x00, 0x5D, 0xAE, 0xBB}
	c := EFuse{}

	if _, ok := c.Decode(raw); ok {
		t.Errorf("Decode should return ok=false on length mismatch")
	}
	err := c.Validate(raw)
	if err == nil || err.Code != "LENGTH_MISMATCH" {
		t.Errorf("Validate = %+v, want LENGTH_MISMATCH", err)
	}
}

func TestEFuseFrameTooShort(t *testing.T) {
	c := EFuse{}
	raw := []byte{0xAA, 0x01, 0x00}
	if _, ok := c.Decode(raw); ok {
		t.Errorf("Decode should return ok=false for short frame")
	}
	err := c.Validate(raw)
	if err == nil || err.Code != "FRAME_TOO_SHORT" {
		t.Errorf("Validate = %+v, want FRAME_TOO_SHORT", err)
	}
}

func TestEFuseInvalidMarkers(t *testing.T) {
	c := EFuse{}

	badStart := []byte{0x00, 0x01, 0x00, 0x02, 0x08, 0x00, 0x5D, 0xAE, 0xBB}
	if err := c.Validate(badStart); err == nil || err.Code != "INVALID_START_MARKER" {
		t.Errorf("Validate(badStart) = %+v, want INVALID_START_MARKER", err)
	}

	badEnd := []byte{0xAA, 0x01, 0x00, 0x02, 0x08, 0x00, 0x5D, 0xAE, 0x00}
	if err := c.Validate(badEnd); err == nil || err.Code != "INVALID_END_MARKER" {
		t.Errorf("Validate(badEnd) = %+v, want INVALID_END_MARKER", err)
	}
}

func TestEFuseRoundTrip(t *testing.T) {
	c := EFuse{}
	for typ := 0; typ <= 255; typ += 37 {
		payload := []byte{0x01, 0x02, 0x03, 0x04}
		encoded, err := c.Encode([]model.FrameField{
			{Name: "type", Value: byte(typ)},
			{Name: "payload", Value: payload},
		})
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		frame, ok := c.Decode(encoded)
		if !ok {
			t.Fatalf("Decode(Encode(...)) returned ok=false for type=%d", typ)
		}
		if frame.Checksum == nil || !frame.Checksum.Valid {
			t.Fatalf("round trip produced invalid checksum for type=%d", typ)
		}
		gotType, _ := fieldByName(frame.Fields, "type")
		if gotType.Value.(byte) != byte(typ) {
			t.Errorf("type = %v, want %d", gotType.Value, typ)
		}
		gotPayload, _ := fieldByName(frame.Fields, "payload")
		if string(gotPayload.Value.([]byte)) != string(payload) {
			t.Errorf("payload = %v, want %v", gotPayload.Value, payload)
		}
	}
}

func TestEFuseEncodeMissingType(t *testing.T) {
	c := EFuse{}
	_, err := c.Encode([]model.FrameField{{Name: "payload", Value: []byte{1, 2}}})
	if err == nil {
		t.Fatalf("expected error for missing type field")
	}
}

func TestEFuseStatusFields(t *testing.T) {
	c := EFuse{}
	encoded, err := c.Encode([]model.FrameField{
		{Name: "type", Value: byte(0x02)},
		{Name: "payload", Value: []byte{0x03}},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	frame, ok := c.Decode(encoded)
	if !ok {
		t.Fatalf("Decode returned ok=false")
	}
	ready, _ := fieldByName(frame.Fields, "ready")
	errF, _ := fieldByName(frame.Fields, "error")
	if ready.Value != true || errF.Value != true {
		t.Errorf("ready=%v error=%v, want both true for status=0x03", ready.Value, errF.Value)
	}
}
