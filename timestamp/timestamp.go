// Package timestamp provides a single tick-based time value type that the
// rest of the core uses instead of comparing raw platform file times or
// time.Time values directly.
package timestamp

import (
	"os"
	"time"
)

// Time is a monotonic tick count, in units of 100 nanoseconds since the
// Windows FILETIME epoch (1601-01-01). Using the same tick and epoch as
// Windows' native file time representation lets Windows stat results be
// stored without any precision loss; on POSIX, conversions go through
// time.Time and lose nothing coarser than 100ns, well below the resolution
// any supported filesystem reports.
type Time int64

// Unspecified is the sentinel value meaning "no time given."
const Unspecified Time = -1

// windowsEpochOffset is the number of 100ns ticks between the Windows
// FILETIME epoch (1601-01-01) and the Unix epoch (1970-01-01).
const windowsEpochOffset int64 = 116444736000000000

// IsSpecified reports whether t carries a concrete value.
func (t Time) IsSpecified() bool {
	return t != Unspecified
}

// FromSystemTime converts a standard library time.Time into a Time.
func FromSystemTime(t time.Time) Time {
	unixTicks := t.UnixNano() / 100
	return Time(unixTicks + windowsEpochOffset)
}

// ToSystemTime converts t back into a standard library time.Time. It must
// not be called on an unspecified Time.
func (t Time) ToSystemTime() time.Time {
	unixTicks := int64(t) - windowsEpochOffset
	return time.Unix(0, unixTicks*100).UTC()
}

// FromFileInfo extracts the modification time of a stat result into a Time,
// going through the system-time representation os.FileInfo already
// provides. This is the file-time-to-system-time conversion spec.md
// requires the core to route every platform-specific stat result through.
func FromFileInfo(info os.FileInfo) Time {
	return FromSystemTime(info.ModTime())
}

// Before reports whether t occurs before other. Both must be specified.
func (t Time) Before(other Time) bool {
	return t < other
}

// Equal reports whether t and other represent the same instant.
func (t Time) Equal(other Time) bool {
	return t == other
}

// String renders t for logging and CSV export, matching the "YYYY-MM-DD
// HH:MM:SS" column format of the session log.
func (t Time) String() string {
	if !t.IsSpecified() {
		return ""
	}
	return t.ToSystemTime().Local().Format("2006-01-02 15:04:05")
}
