package codec

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/librescoot/commwatch/pkg/model"
)

// Hex renders raw bytes as a space-separated lowercase hex string. Decode
// always succeeds (spec.md §4.2.4).
type Hex struct{}

func (Hex) Name() string { return "hex" }

func (Hex) Decode(raw []byte) (*model.DecodedFrame, bool) {
	parts := make([]string, len(raw))
	for i, b := range raw {
		parts[i] = hex.EncodeToString([]byte{b})
	}
	return &model.DecodedFrame{
		Protocol: "hex",
		Fields: []model.FrameField{
			{Name: "hex", Value: strings.Join(parts, " "), Type: model.FieldString, Raw: raw, Offset: 0},
			{Name: "raw", Value: raw, Type: model.FieldBytes, Raw: raw, Offset: 0},
		},
	}, true
}

func (Hex) Encode(fields []model.FrameField) ([]byte, error) {
	if rawField, ok := fieldByName(fields, "raw"); ok {
		return asBytes(rawField.Value)
	}
	hexField, ok := fieldByName(fields, "hex")
	if !ok {
		return nil, missingField("hex")
	}
	s, ok := hexField.Value.(string)
	if !ok {
		return nil, fmt.Errorf("hex: field \"hex\" must be a string, got %T", hexField.Value)
	}
	s = strings.Join(strings.Fields(s), "")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex: odd-length hex string")
	}
	return hex.DecodeString(s)
}

func (Hex) Validate(raw []byte) *model.FrameError {
	return nil
}
