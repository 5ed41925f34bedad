package envdiff

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// MarkerVar is the variable the shell carries between invocations. It
// holds the encoded State of the previous export.
const MarkerVar = "ENVOLUNTARY_ENV_STATE"

// StateVersion is bumped whenever the encoded layout changes.
const StateVersion = 1

// maxStateSize bounds decompression of a marker value.
const maxStateSize = 4 << 20

// ErrIncompatibleState is returned for markers written by another version.
var ErrIncompatibleState = errors.New("incompatible environment state")

// Managed records one variable the engine set.
type Managed struct {
	Name  string `cbor:"n"`
	Value string `cbor:"v"`
	// Previous is the value the variable had before the engine first set
	// it. Nil means it was unset.
	Previous *string `cbor:"p,omitempty"`
}

// State is the engine's memory between shell prompts.
type State struct {
	Version         int       `cbor:"ver"`
	FlakeReferences []string  `cbor:"refs,omitempty"`
	Managed         []Managed `cbor:"managed,omitempty"`
	// Released names were changed by the user after activation and are
	// left alone until every environment is unloaded.
	Released []string `cbor:"released,omitempty"`
}

// Empty reports whether nothing is loaded.
func (s State) Empty() bool {
	return len(s.FlakeReferences) == 0 && len(s.Managed) == 0 && len(s.Released) == 0
}

// Lookup finds a managed variable by name.
func (s State) Lookup(name string) (Managed, bool) {
	for _, m := range s.Managed {
		if m.Name == name {
			return m, true
		}
	}
	return Managed{}, false
}

// Names returns the managed variable names in order.
func (s State) Names() []string {
	out := make([]string, 0, len(s.Managed))
	for _, m := range s.Managed {
		out = append(out, m.Name)
	}
	return out
}

var encMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Environment values are arbitrary bytes, so text strings that are not
// valid UTF-8 are decoded as-is.
var decMode = func() cbor.DecMode {
	mode, err := cbor.DecOptions{UTF8: cbor.UTF8DecodeInvalid}.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// EncodeState serializes s as base64(zstd(cbor(s))).
func EncodeState(s State) (string, error) {
	s.Version = StateVersion
	raw, err := encMode.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding state: %w", err)
	}
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		return "", fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer enc.Close()
	return base64.StdEncoding.EncodeToString(enc.EncodeAll(raw, nil)), nil
}

// DecodeState parses a marker value produced by EncodeState.
func DecodeState(value string) (State, error) {
	compressed, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return State{}, fmt.Errorf("decoding state: %w", err)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxStateSize))
	if err != nil {
		return State{}, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return State{}, fmt.Errorf("decompressing state: %w", err)
	}
	var s State
	if err := decMode.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("decoding state: %w", err)
	}
	if s.Version != StateVersion {
		return State{}, fmt.Errorf("%w: version %d", ErrIncompatibleState, s.Version)
	}
	return s, nil
}
