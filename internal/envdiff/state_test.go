package envdiff

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestEncodeDecodeState(t *testing.T) {
	prev := "old"
	s := State{
		Version:         StateVersion,
		FlakeReferences: []string{"/home/u/proj", "github:owner/repo"},
		Managed: []Managed{
			{Name: "FOO", Value: "bar", Previous: &prev},
			{Name: "PATH", Value: "/nix/store/x/bin"},
		},
		Released: []string{"EDITOR"},
	}
	encoded, err := EncodeState(s)
	if err != nil {
		t.Fatalf("EncodeState() error: %v", err)
	}
	if strings.ContainsAny(encoded, " \n'\"") {
		t.Errorf("encoded state is not shell-safe: %q", encoded)
	}
	got, err := DecodeState(encoded)
	if err != nil {
		t.Fatalf("DecodeState() error: %v", err)
	}
	if !reflect.DeepEqual(got, s) {
		t.Errorf("DecodeState() = %+v, want %+v", got, s)
	}
}

func TestEncodeStateDeterministic(t *testing.T) {
	s := State{FlakeReferences: []string{"/p"}, Managed: []Managed{{Name: "A", Value: "1"}}}
	a, err := EncodeState(s)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeState(s)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("encoding is not deterministic")
	}
}

func TestDecodeStateGarbage(t *testing.T) {
	for _, in := range []string{"", "not base64!", "aGVsbG8="} {
		if _, err := DecodeState(in); err == nil {
			t.Errorf("DecodeState(%q) expected error", in)
		}
	}
}

func TestDecodeStateIncompatible(t *testing.T) {
	raw, err := encMode.Marshal(State{Version: StateVersion + 1})
	if err != nil {
		t.Fatal(err)
	}
	good, err := EncodeState(State{FlakeReferences: []string{"/p"}})
	if err != nil {
		t.Fatal(err)
	}
	// Re-encode the bumped payload with the same framing.
	bumped := reencode(t, raw)
	if _, err := DecodeState(good); err != nil {
		t.Fatalf("DecodeState(good) error: %v", err)
	}
	if _, err := DecodeState(bumped); !errors.Is(err, ErrIncompatibleState) {
		t.Errorf("DecodeState(bumped) = %v, want ErrIncompatibleState", err)
	}
}

func TestEncodeDecodeStateInvalidUTF8(t *testing.T) {
	prev := "x\xfe"
	s := State{
		Version:         StateVersion,
		FlakeReferences: []string{"/p"},
		Managed:         []Managed{{Name: "BLOB", Value: "a\xffb", Previous: &prev}},
	}
	encoded, err := EncodeState(s)
	if err != nil {
		t.Fatalf("EncodeState() error: %v", err)
	}
	got, err := DecodeState(encoded)
	if err != nil {
		t.Fatalf("DecodeState() error: %v", err)
	}
	if !reflect.DeepEqual(got, s) {
		t.Errorf("DecodeState() = %+v, want %+v", got, s)
	}
}
