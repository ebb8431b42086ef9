// Package openmode defines the closed set of file-open modes a transfer can
// request, and their translation to os.OpenFile flags. It replaces the
// bitwise-complement encoding trick the original implementation used to pack
// both the semantic mode and the raw open(2) flags into a single integer
// (see the design notes in SPEC_FULL.md) with an explicit tagged variant.
package openmode

import (
	"fmt"
	"os"
)

// Mode is a closed enumeration of file-open intents.
type Mode int

const (
	// Read opens an existing file for reading only. Admissible only for
	// requestFileRead.
	Read Mode = iota
	// New creates the file and fails if it already exists.
	New
	// OverWrite creates the file, truncating it if it already exists.
	OverWrite
	// Resume opens an existing file (or creates it) for writing at its
	// current end-of-file offset.
	Resume
	// SkipExisting refuses to open if the target already exists. Distinct
	// from New: both reject a pre-existing file, but SkipExisting carries
	// a policy bit callers can use to treat that condition as "nothing to
	// do" rather than an error.
	SkipExisting
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "read"
	case New:
		return "new"
	case OverWrite:
		return "overwrite"
	case Resume:
		return "resume"
	case SkipExisting:
		return "skip-existing"
	default:
		return fmt.Sprintf("openmode(%d)", int(m))
	}
}

// Parse turns a wire-form mode token (used in the "write-file-<mode>"
// control command) back into a Mode. Tokens are the decimal ordinal
// values above, matching the historical wire encoding.
func Parse(s string) (Mode, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("openmode: invalid mode token %q: %w", s, err)
	}
	m := Mode(n)
	switch m {
	case Read, New, OverWrite, Resume, SkipExisting:
		return m, nil
	default:
		return 0, fmt.Errorf("openmode: unknown mode token %q", s)
	}
}

// WritableModes is the set of modes admissible for requestFileWrite.
var WritableModes = map[Mode]bool{
	New:          true,
	OverWrite:    true,
	Resume:       true,
	SkipExisting: true,
}

// GetFileWriteModes is the set of modes admissible for getFile's
// destination record — SkipExisting is deliberately excluded, since we
// never want to stream bytes into a file whose whole point was to refuse
// to be touched if it exists.
var GetFileWriteModes = map[Mode]bool{
	New:       true,
	OverWrite: true,
	Resume:    true,
}

// OSFlags translates a Mode into the os.OpenFile flags/perm needed to open
// path under that intent.
func OSFlags(m Mode) (flags int, perm os.FileMode) {
	switch m {
	case Read:
		return os.O_RDONLY, 0
	case New:
		return os.O_RDWR | os.O_CREATE | os.O_EXCL, 0644
	case OverWrite:
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC, 0644
	case Resume:
		return os.O_RDWR | os.O_CREATE, 0644
	case SkipExisting:
		return os.O_RDWR | os.O_CREATE | os.O_EXCL, 0644
	default:
		return os.O_RDONLY, 0
	}
}
