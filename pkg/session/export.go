package session

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/librescoot/commwatch/pkg/model"
)

// ExportCSV writes the session log to w as CSV with header
// "Timestamp,Direction,Length,Hex". Timestamp is the frame's nanosecond
// timestamp rendered as a millisecond float; Hex is always double-quoted,
// lowercase, space-separated. Written by hand rather than encoding/csv
// because the Hex column must be quoted unconditionally, which
// encoding/csv's quote-only-when-needed writer does not do.
func ExportCSV(w io.Writer, frames []model.ProtocolFrame) error {
	if _, err := io.WriteString(w, "Timestamp,Direction,Length,Hex\n"); err != nil {
		return err
	}
	for _, f := range frames {
		line := fmt.Sprintf("%s,%s,%d,\"%s\"\n",
			formatMillis(f.Timestamp), f.Direction, len(f.Raw), hexSpaced(f.Raw))
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

func formatMillis(timestampNS int64) string {
	return strconv.FormatFloat(float64(timestampNS)/1_000_000, 'f', -1, 64)
}

func hexSpaced(raw []byte) string {
	parts := make([]string, len(raw))
	for i, b := range raw {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, " ")
}

// exportFrame is the JSON wire shape of one ProtocolFrame: id and direction
// as-is, timestamp as a decimal string of nanoseconds, raw as a byte array,
// decoded/error included only when present.
type exportFrame struct {
	ID        uint64              `json:"id"`
	Timestamp string              `json:"timestamp"`
	Direction model.Direction     `json:"direction"`
	Raw       []int               `json:"raw"`
	Decoded   *model.DecodedFrame `json:"decoded,omitempty"`
	Error     *model.FrameError   `json:"error,omitempty"`
}

type exportDocument struct {
	Version string        `json:"version"`
	Frames  []exportFrame `json:"frames"`
}

// ExportJSON writes the session log to w as the pretty-printed
// {"version": "1.0", "frames": [...]} document.
func ExportJSON(w io.Writer, frames []model.ProtocolFrame) error {
	doc := exportDocument{Version: "1.0", Frames: make([]exportFrame, len(frames))}
	for i, f := range frames {
		raw := make([]int, len(f.Raw))
		for j, b := range f.Raw {
			raw[j] = int(b)
		}
		doc.Frames[i] = exportFrame{
			ID:        f.ID,
			Timestamp: strconv.FormatInt(f.Timestamp, 10),
			Direction: f.Direction,
			Raw:       raw,
			Decoded:   f.Decoded,
			Error:     f.Error,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
