// Package size provides a byte-count value type that distinguishes a known
// size from an unspecified one, used throughout the index's constraint
// pattern matching.
package size

import (
	"github.com/dustin/go-humanize"
)

// Size is a non-negative byte count, or the Unspecified sentinel.
type Size uint64

// Unspecified is the sentinel value representing "no size given," used when
// a RepoFile is being used as a query constraint pattern rather than a
// persisted row.
const Unspecified Size = ^Size(0)

// Of wraps a concrete byte count.
func Of(n int64) Size {
	if n < 0 {
		return Unspecified
	}
	return Size(n)
}

// IsSpecified reports whether s carries a concrete value.
func (s Size) IsSpecified() bool {
	return s != Unspecified
}

// Uint64 returns the raw byte count. It must not be called on an
// unspecified size.
func (s Size) Uint64() uint64 {
	return uint64(s)
}

// Humanize renders s in human-friendly units (e.g. "1.2 MB"), using the
// same go-humanize package UnmarshalText uses to parse sizes back out of
// text. An unspecified size renders as "-".
func (s Size) Humanize() string {
	if !s.IsSpecified() {
		return "-"
	}
	return humanize.Bytes(uint64(s))
}

// String implements fmt.Stringer with a comma-grouped decimal rendering
// (e.g. "1,234"), the form the session log columns use. An unspecified size
// renders as the empty string.
func (s Size) String() string {
	if !s.IsSpecified() {
		return ""
	}
	return humanize.Comma(int64(s))
}

// UnmarshalText allows a Size to be parsed out of a human-friendly or
// numeric byte-count string, e.g. a configuration value.
func (s *Size) UnmarshalText(text []byte) error {
	value, err := humanize.ParseBytes(string(text))
	if err != nil {
		return err
	}
	*s = Size(value)
	return nil
}
