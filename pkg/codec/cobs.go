package codec

import (
	"fmt"

	"github.com/librescoot/commwatch/pkg/model"
)

// COBS implements Consistent Overhead Byte Stuffing without a trailing
// delimiter byte in the encoded representation (spec.md §4.2.2).
type COBS struct{}

func (COBS) Name() string { return "cobs" }

func cobsEncode(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/254+2)
	out = append(out, 0) // placeholder for the first code byte
	codeIdx := 0
	code := byte(1)

	for _, b := range data {
		if b == 0 {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0)
			code = 1
			continue
		}
		out = append(out, b)
		code++
		if code == 0xFF {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0)
			code = 1
		}
	}
	out[codeIdx] = code
	return out
}

func cobsDecode(data []byte) ([]byte, bool) {
	out := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		code := data[i]
		if code == 0 {
			return nil, false
		}
		i++
		end := i + int(code) - 1
		if end > len(data) {
			return nil, false
		}
		out = append(out, data[i:end]...)
		i = end
		if code < 0xFF && i < len(data) {
			out = append(out, 0)
		}
	}
	return out, true
}

func (COBS) Decode(raw []byte) (*model.DecodedFrame, bool) {
	decoded, ok := cobsDecode(raw)
	if !ok {
		return nil, false
	}
	return &model.DecodedFrame{
		Protocol: "cobs",
		Fields: []model.FrameField{
			{Name: "payload", Value: decoded, Type: model.FieldBytes, Raw: raw, Offset: 0},
		},
	}, true
}

func (COBS) Encode(fields []model.FrameField) ([]byte, error) {
	payloadField, ok := fieldByName(fields, "payload")
	if !ok {
		return nil, missingField("payload")
	}
	payload, err := asBytes(payloadField.Value)
	if err != nil {
		return nil, fmt.Errorf("cobs: field \"payload\": %w", err)
	}
	return cobsEncode(payload), nil
}

func (COBS) Validate(raw []byte) *model.FrameError {
	if len(raw) == 0 {
		return &model.FrameError{Code: "EMPTY_FRAME", Message: "cobs frame is empty", Severity: model.SeverityError}
	}
	if _, ok := cobsDecode(raw); !ok {
		return &model.FrameError{Code: "INVALID_COBS", Message: "cobs frame contains an invalid code byte", Severity: model.SeverityError}
	}
	return nil
}
