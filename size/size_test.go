package size

import "testing"

func TestUnspecified(t *testing.T) {
	if Unspecified.IsSpecified() {
		t.Error("Unspecified reports as specified")
	}
	if !Of(100).IsSpecified() {
		t.Error("concrete size reports as unspecified")
	}
}

func TestOfNegative(t *testing.T) {
	if Of(-1) != Unspecified {
		t.Error("negative input did not map to Unspecified")
	}
}

func TestUnmarshalText(t *testing.T) {
	var s Size
	if err := s.UnmarshalText([]byte("1 KB")); err != nil {
		t.Fatal("unmarshal failed:", err)
	}
	if s.Uint64() != 1000 {
		t.Errorf("unexpected size: %d", s.Uint64())
	}
}

func TestHumanize(t *testing.T) {
	if Unspecified.Humanize() != "-" {
		t.Error("expected unspecified size to humanize as \"-\"")
	}
	if Of(0).Humanize() == "-" {
		t.Error("zero size should not humanize as unspecified")
	}
}
