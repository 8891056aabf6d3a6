package sir

import (
	"strings"
	"testing"

	cerr "cortex/internal/errors"
)

func validSIR() *SIR {
	return &SIR{
		Intent:       "Parses the request body into a typed struct",
		Inputs:       []string{"r *http.Request"},
		Outputs:      []string{"*Payload", "error"},
		SideEffects:  []string{},
		Dependencies: []string{"encoding/json"},
		ErrorModes:   []string{"malformed JSON", "empty body"},
		Confidence:   0.9,
	}
}

func TestValidate(t *testing.T) {
	if err := validSIR().Validate(); err != nil {
		t.Fatalf("valid summary rejected: %v", err)
	}

	empty := validSIR()
	empty.Intent = ""
	if err := empty.Validate(); err == nil {
		t.Error("empty intent should fail validation")
	} else if cerr.CodeOf(err) != cerr.Validation {
		t.Errorf("want VALIDATION code, got %v", cerr.CodeOf(err))
	}

	for _, c := range []float64{-0.01, 1.01, 2} {
		bad := validSIR()
		bad.Confidence = c
		if err := bad.Validate(); err == nil {
			t.Errorf("confidence %v should fail validation", c)
		}
	}

	// Bounds are inclusive
	for _, c := range []float64{0, 1} {
		ok := validSIR()
		ok.Confidence = c
		if err := ok.Validate(); err != nil {
			t.Errorf("confidence %v should be accepted: %v", c, err)
		}
	}
}

func TestHashIgnoresListOrder(t *testing.T) {
	a := validSIR()
	b := validSIR()
	b.ErrorModes = []string{"empty body", "malformed JSON"}
	b.Outputs = []string{"error", "*Payload"}

	ha, err := a.Hash()
	if err != nil {
		t.Fatal(err)
	}
	hb, err := b.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Error("list order changed the hash")
	}
}

func TestHashIgnoresDuplicates(t *testing.T) {
	a := validSIR()
	b := validSIR()
	b.Dependencies = []string{"encoding/json", "encoding/json"}

	ha, _ := a.Hash()
	hb, _ := b.Hash()
	if ha != hb {
		t.Error("duplicate list entries changed the hash")
	}
}

func TestHashSensitivity(t *testing.T) {
	a := validSIR()
	b := validSIR()
	b.Intent = "Different intent"

	ha, _ := a.Hash()
	hb, _ := b.Hash()
	if ha == hb {
		t.Error("different intent should produce a different hash")
	}
	if len(ha) != 64 {
		t.Errorf("hash should be 64 hex chars, got %d", len(ha))
	}
}

func TestCanonicalKeyOrder(t *testing.T) {
	data, err := validSIR().CanonicalJSON()
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)

	keys := []string{"confidence", "dependencies", "error_modes", "inputs", "intent", "outputs", "side_effects"}
	last := -1
	for _, k := range keys {
		idx := strings.Index(s, `"`+k+`"`)
		if idx < 0 {
			t.Fatalf("key %q missing from canonical form: %s", k, s)
		}
		if idx < last {
			t.Fatalf("key %q out of canonical order: %s", k, s)
		}
		last = idx
	}
}

func TestParse(t *testing.T) {
	data, _ := validSIR().CanonicalJSON()
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if parsed.Intent != validSIR().Intent {
		t.Errorf("intent = %q", parsed.Intent)
	}

	if _, err := Parse([]byte("{not json")); err == nil {
		t.Error("malformed JSON should fail")
	}
	if _, err := Parse([]byte(`{"intent":"","confidence":0.5}`)); err == nil {
		t.Error("parsed summary must still validate")
	}
}
