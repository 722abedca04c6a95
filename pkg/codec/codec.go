// Package codec implements the stateless protocol codecs: efuse, cobs,
// slip, hex, and ascii. Every codec exposes decode, encode, and validate as
// pure functions over byte slices (§4.2 of the spec).
package codec

import (
	"errors"
	"fmt"

	"github.com/librescoot/commwatch/pkg/model"
)

// ErrMissingRequiredField is returned by Encode when a mandatory field is
// absent from the input field list.
var ErrMissingRequiredField = errors.New("missing-required-field")

// Codec is the (decode, encode, validate) capability set a protocol
// implements. Decode never fails — it returns (nil, false) for any input it
// cannot structurally parse. Validate is independent of Decode and may
// report an error even when Decode returns nothing.
type Codec interface {
	// Name returns the protocol identifier used in DecodedFrame.Protocol
	// and as the codec's key in a Registry.
	Name() string
	// Decode attempts to structurally parse raw. ok is false if raw cannot
	// be parsed as this protocol; Decode never panics or returns partial
	// garbage.
	Decode(raw []byte) (frame *model.DecodedFrame, ok bool)
	// Encode constructs the canonical on-wire representation from fields.
	// Returns ErrMissingRequiredField (wrapped) when a mandatory field is
	// absent.
	Encode(fields []model.FrameField) ([]byte, error)
	// Validate reports the first structural problem found in raw, or nil
	// if raw is well-formed.
	Validate(raw []byte) *model.FrameError
}

func fieldByName(fields []model.FrameField, name string) (model.FrameField, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return model.FrameField{}, false
}

func missingField(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingRequiredField, name)
}

// DefaultDecoders lists the built-in codecs in their fixed registry order;
// NewRegistry seeds a Registry from it.
var DefaultDecoders = []Codec{
	&EFuse{},
	&COBS{},
	&SLIP{},
	&Hex{},
	&ASCII{},
}

// Registry maps protocol name to Codec instance.
type Registry struct {
	codecs map[string]Codec
	order  []string
}

// NewRegistry builds a registry seeded with DefaultDecoders, in order.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[string]Codec)}
	for _, c := range DefaultDecoders {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a codec under its Name().
func (r *Registry) Register(c Codec) {
	if _, exists := r.codecs[c.Name()]; !exists {
		r.order = append(r.order, c.Name())
	}
	r.codecs[c.Name()] = c
}

// Get returns the codec registered under name, if any.
func (r *Registry) Get(name string) (Codec, bool) {
	c, ok := r.codecs[name]
	return c, ok
}

// Names returns the registered protocol names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
