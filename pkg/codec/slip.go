package codec

import (
	"fmt"

	"github.com/librescoot/commwatch/pkg/model"
)

const (
	slipEnd    = 0xC0
	slipEsc    = 0xDB
	slipEscEnd = 0xDC
	slipEscEsc = 0xDD
)

// SLIP implements RFC 1055 framing (spec.md §4.2.3).
type SLIP struct{}

func (SLIP) Name() string { return "slip" }

func slipEncode(data []byte) []byte {
	out := make([]byte, 0, len(data)+2)
	for _, b := range data {
		switch b {
		case slipEnd:
			out = append(out, slipEsc, slipEscEnd)
		case slipEsc:
			out = append(out, slipEsc, slipEscEsc)
		default:
			out = append(out, b)
		}
	}
	out = append(out, slipEnd)
	return out
}

// slipDecode unescapes raw up to and including the first END byte. ok is
// false if an ESC byte is followed by anything other than ESC_END or
// ESC_ESC.
func slipDecode(raw []byte) ([]byte, bool) {
	out := make([]byte, 0, len(raw))
	i := 0
	for i < len(raw) {
		b := raw[i]
		switch b {
		case slipEnd:
			return out, true
		case slipEsc:
			if i+1 >= len(raw) {
				return nil, false
			}
			switch raw[i+1] {
			case slipEscEnd:
				out = append(out, slipEnd)
			case slipEscEsc:
				out = append(out, slipEsc)
			default:
				return nil, false
			}
			i += 2
		default:
			out = append(out, b)
			i++
		}
	}
	return out, true
}

func (SLIP) Decode(raw []byte) (*model.DecodedFrame, bool) {
	decoded, ok := slipDecode(raw)
	if !ok {
		return nil, false
	}
	return &model.DecodedFrame{
		Protocol: "slip",
		Fields: []model.FrameField{
			{Name: "payload", Value: decoded, Type: model.FieldBytes, Raw: raw, Offset: 0},
		},
	}, true
}

func (SLIP) Encode(fields []model.FrameField) ([]byte, error) {
	payloadField, ok := fieldByName(fields, "payload")
	if !ok {
		return nil, missingField("payload")
	}
	payload, err := asBytes(payloadField.Value)
	if err != nil {
		return nil, fmt.Errorf("slip: field \"payload\": %w", err)
	}
	return slipEncode(payload), nil
}

func (SLIP) Validate(raw []byte) *model.FrameError {
	if len(raw) == 0 {
		return &model.FrameError{Code: "EMPTY_FRAME", Message: "slip frame is empty", Severity: model.SeverityError}
	}
	return nil
}
