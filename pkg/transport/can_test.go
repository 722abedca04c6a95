package transport

import (
	"bytes"
	"testing"

	"github.com/librescoot/commwatch/pkg/model"
)

func TestCANNormalize(t *testing.T) {
	data := []byte{0x02, 0x01, 0x0C, 0, 0, 0, 0, 0}
	got := canNormalize(0x7E0, false, data)
	want := []byte{0x00, 0x00, 0x07, 0xE0, 0x08, 0x02, 0x01, 0x0C, 0x00, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("canNormalize = % X, want % X", got, want)
	}
}

func TestCANFilterMatchesMaskAndExtended(t *testing.T) {
	ext := false
	f := model.CANFilter{ID: 0x100, Mask: 0x700, Extended: &ext}

	if !canFilterMatches(0x123, false, f) {
		t.Errorf("expected id 0x123 to match mask 0x700 against filter id 0x100")
	}
	if canFilterMatches(0x223, false, f) {
		t.Errorf("expected id 0x223 to NOT match mask 0x700 against filter id 0x100")
	}
	if canFilterMatches(0x123, true, f) {
		t.Errorf("expected extended mismatch to reject")
	}
}

func TestCANFilterUnsetExtendedMatchesEither(t *testing.T) {
	f := model.CANFilter{ID: 0x100, Mask: 0x700}
	if !canFilterMatches(0x123, true, f) || !canFilterMatches(0x123, false, f) {
		t.Errorf("filter with unset Extended should match either extended value")
	}
}

func TestCANFiltersPassAnyMatch(t *testing.T) {
	filters := []model.CANFilter{
		{ID: 0x200, Mask: 0x700},
		{ID: 0x100, Mask: 0x700},
	}
	if !canFiltersPass(0x123, false, filters) {
		t.Errorf("expected message to pass when any filter matches")
	}
	if canFiltersPass(0x523, false, filters) {
		t.Errorf("expected message to be rejected when no filter matches")
	}
}

func TestCANFiltersPassEmptyMeansAllPass(t *testing.T) {
	if !canFiltersPass(0x999, false, nil) {
		t.Errorf("empty filter set should admit every message")
	}
}
