package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/librescoot/commwatch/pkg/crc"
	"github.com/librescoot/commwatch/pkg/model"
)

const (
	efuseStartMarker = 0xAA
	efuseEndMarker   = 0xBB
	efuseMinFrameLen = 7

	efuseTypeADC    = 0x01
	efuseTypeStatus = 0x02
	efuseTypeConfig = 0x03
)

// EFuse implements the custom delimited frame with length+CRC16 described
// in spec.md §4.2.1:
//
//	0xAA | type:u8 | length:u16be | payload[length] | crc:u16be | 0xBB
type EFuse struct{}

func (EFuse) Name() string { return "efuse" }

// efuseTotalLen returns the total frame length implied by a declared
// payload length.
func efuseTotalLen(payloadLen int) int { return 7 + payloadLen }

func (EFuse) Decode(raw []byte) (*model.DecodedFrame, bool) {
	if len(raw) < efuseMinFrameLen {
		return nil, false
	}
	if raw[0] != efuseStartMarker {
		return nil, false
	}
	if raw[len(raw)-1] != efuseEndMarker {
		return nil, false
	}

	typ := raw[1]
	length := int(binary.BigEndian.Uint16(raw[2:4]))
	if efuseTotalLen(length) != len(raw) {
		return nil, false
	}

	payload := raw[4 : 4+length]
	crcBytes := raw[4+length : 4+length+2]
	expected := binary.BigEndian.Uint16(crcBytes)
	calculated := crc.CRC16CCITTFALSE(raw[1 : 4+length])

	fields := []model.FrameField{
		{Name: "type", Value: typ, Type: model.FieldUint8, Raw: raw[1:2], Offset: 1},
		{Name: "length", Value: uint16(length), Type: model.FieldUint16, Raw: raw[2:4], Offset: 2},
		{Name: "payload", Value: append([]byte(nil), payload...), Type: model.FieldBytes, Raw: payload, Offset: 4},
	}
	fields = append(fields, efuseDecodePayload(typ, payload)...)

	return &model.DecodedFrame{
		Protocol: "efuse",
		Fields:   fields,
		Checksum: &model.ChecksumInfo{
			Type:       "crc16-ccitt-false",
			Expected:   uint64(expected),
			Calculated: uint64(calculated),
			Valid:      expected == calculated,
		},
	}, true
}

func efuseDecodePayload(typ byte, payload []byte) []model.FrameField {
	switch typ {
	case efuseTypeADC:
		if len(payload) < 2 {
			return nil
		}
		adcRaw := uint16(payload[0])<<8 | uint16(payload[1])
		voltage := float64(adcRaw) * 3.3 / 4095
		return []model.FrameField{
			{Name: "adc_raw", Value: adcRaw, Type: model.FieldUint16, Raw: payload[0:2], Offset: 4},
			{Name: "voltage", Value: fmt.Sprintf("%.3f", voltage), Type: model.FieldString, Raw: payload[0:2], Offset: 4, Unit: "V"},
		}
	case efuseTypeStatus:
		if len(payload) < 1 {
			return nil
		}
		status := payload[0]
		return []model.FrameField{
			{Name: "status", Value: status, Type: model.FieldUint8, Raw: payload[0:1], Offset: 4},
			{Name: "ready", Value: status&0x01 != 0, Type: model.FieldUint8, Raw: payload[0:1], Offset: 4},
			{Name: "error", Value: status&0x02 != 0, Type: model.FieldUint8, Raw: payload[0:1], Offset: 4},
		}
	case efuseTypeConfig:
		if len(payload) < 4 {
			return nil
		}
		configValue := binary.BigEndian.Uint32(payload[0:4])
		return []model.FrameField{
			{Name: "config_value", Value: configValue, Type: model.FieldUint32, Raw: payload[0:4], Offset: 4},
		}
	default:
		return nil
	}
}

func (EFuse) Encode(fields []model.FrameField) ([]byte, error) {
	typField, ok := fieldByName(fields, "type")
	if !ok {
		return nil, missingField("type")
	}
	typ, err := asByte(typField.Value)
	if err != nil {
		return nil, fmt.Errorf("efuse: field \"type\": %w", err)
	}

	var payload []byte
	if payloadField, ok := fieldByName(fields, "payload"); ok {
		payload, err = asBytes(payloadField.Value)
		if err != nil {
			return nil, fmt.Errorf("efuse: field \"payload\": %w", err)
		}
	}

	buf := make([]byte, 0, efuseTotalLen(len(payload)))
	buf = append(buf, efuseStartMarker, typ)
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(payload)))
	buf = append(buf, lenBuf...)
	buf = append(buf, payload...)

	sum := crc.CRC16CCITTFALSE(buf[1:])
	crcBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(crcBuf, sum)
	buf = append(buf, crcBuf...)
	buf = append(buf, efuseEndMarker)

	return buf, nil
}

func (EFuse) Validate(raw []byte) *model.FrameError {
	if len(raw) < efuseMinFrameLen {
		return &model.FrameError{Code: "FRAME_TOO_SHORT", Message: "efuse frame shorter than minimum of 7 bytes", Severity: model.SeverityError}
	}
	if raw[0] != efuseStartMarker {
		return &model.FrameError{Code: "INVALID_START_MARKER", Message: "efuse frame does not begin with 0xAA", Severity: model.SeverityError}
	}
	if raw[len(raw)-1] != efuseEndMarker {
		return &model.FrameError{Code: "INVALID_END_MARKER", Message: "efuse frame does not end with 0xBB", Severity: model.SeverityError}
	}
	length := int(binary.BigEndian.Uint16(raw[2:4]))
	if efuseTotalLen(length) != len(raw) {
		return &model.FrameError{Code: "LENGTH_MISMATCH", Message: "declared payload length does not match frame length", Severity: model.SeverityError}
	}
	payload := raw[4 : 4+length]
	crcBytes := raw[4+length : 4+length+2]
	expected := binary.BigEndian.Uint16(crcBytes)
	calculated := crc.CRC16CCITTFALSE(raw[1 : 4+length])
	_ = payload
	if expected != calculated {
		return &model.FrameError{Code: "CRC_MISMATCH", Message: "efuse CRC16 does not match frame contents", Severity: model.SeverityError}
	}
	return nil
}

func asByte(v any) (byte, error) {
	switch n := v.(type) {
	case byte:
		return n, nil
	case int:
		return byte(n), nil
	case uint16:
		return byte(n), nil
	case uint32:
		return byte(n), nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}

func asBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
