package codec

import (
	"fmt"

	"github.com/librescoot/commwatch/pkg/model"
)

// ASCII interprets bytes as 7-bit text, best-effort (spec.md §4.2.4).
type ASCII struct{}

func (ASCII) Name() string { return "ascii" }

func (ASCII) Decode(raw []byte) (*model.DecodedFrame, bool) {
	runes := make([]rune, len(raw))
	for i, b := range raw {
		if b < 0x80 {
			runes[i] = rune(b)
		} else {
			runes[i] = '�'
		}
	}
	return &model.DecodedFrame{
		Protocol: "ascii",
		Fields: []model.FrameField{
			{Name: "text", Value: string(runes), Type: model.FieldString, Raw: raw, Offset: 0},
		},
	}, true
}

func (ASCII) Encode(fields []model.FrameField) ([]byte, error) {
	textField, ok := fieldByName(fields, "text")
	if !ok {
		return nil, missingField("text")
	}
	s, ok := textField.Value.(string)
	if !ok {
		return nil, fmt.Errorf("ascii: field \"text\" must be a string, got %T", textField.Value)
	}
	return []byte(s), nil
}

func isASCIIPrintable(b byte) bool {
	if b >= 0x20 {
		return true
	}
	return b == '\t' || b == '\n' || b == '\r'
}

func (ASCII) Validate(raw []byte) *model.FrameError {
	for _, b := range raw {
		if !isASCIIPrintable(b) {
			return &model.FrameError{Code: "NON_PRINTABLE", Message: "ascii frame contains a non-printable byte", Severity: model.SeverityWarning}
		}
	}
	return nil
}
