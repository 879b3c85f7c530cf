package util

import (
	"strings"
	"time"

	"github.com/davidscholberg/go-durationfmt"
	"github.com/par2lab/par2verify/internal/schema"
)

// Ptr converts a value of type [T] to a pointer of type [*T].
func Ptr[T any](v T) *T {
	return &v
}

// IsPar2Base reports whether path names a PAR2 index file rather than one
// of its numbered recovery volumes (".volNN+MM.par2").
func IsPar2Base(path string) bool {
	lower := strings.ToLower(path)

	if !strings.HasSuffix(lower, schema.Par2Extension) {
		return false
	}

	return !strings.Contains(lower, ".vol")
}

// FmtDur formats d for human-readable progress and summary output.
func FmtDur(d time.Duration) string {
	d = d.Round(time.Second)

	str, err := durationfmt.Format(d, "%d days, %h hours %m minutes %s seconds")
	if err != nil {
		return "?"
	}

	return str
}
