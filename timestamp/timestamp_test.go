package timestamp

import (
	"testing"
	"time"
)

func TestUnspecified(t *testing.T) {
	if Unspecified.IsSpecified() {
		t.Fatal("Unspecified reports as specified")
	}
}

func TestRoundTrip(t *testing.T) {
	now := time.Now().Truncate(100 * time.Nanosecond)
	converted := FromSystemTime(now)
	if !converted.IsSpecified() {
		t.Fatal("converted time reports as unspecified")
	}
	back := converted.ToSystemTime()
	if !back.Equal(now.UTC()) {
		t.Fatalf("round trip mismatch: %v != %v", back, now.UTC())
	}
}

func TestBefore(t *testing.T) {
	a := FromSystemTime(time.Unix(100, 0))
	b := FromSystemTime(time.Unix(200, 0))
	if !a.Before(b) {
		t.Error("earlier time not reported as before")
	}
	if b.Before(a) {
		t.Error("later time reported as before")
	}
}

func TestEqual(t *testing.T) {
	a := FromSystemTime(time.Unix(100, 0))
	b := FromSystemTime(time.Unix(100, 0))
	if !a.Equal(b) {
		t.Error("equal times compared unequal")
	}
}

func TestStringUnspecified(t *testing.T) {
	if Unspecified.String() != "" {
		t.Error("unspecified time did not render as empty string")
	}
}
