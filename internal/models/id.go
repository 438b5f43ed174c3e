package models

import (
	"fmt"
	mrand "math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

func NewID(prefix string) string {
	t := time.Now()
	entropy := ulid.Monotonic(mrand.New(mrand.NewSource(t.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return fmt.Sprintf("%s_%s", prefix, id.String())
}

// ValidID reports whether id is a well-formed prefixed ULID, e.g. "ntf_01H...".
// Job payloads referencing anything else are malformed and must not be retried.
func ValidID(prefix, id string) bool {
	want := prefix + "_"
	if !strings.HasPrefix(id, want) {
		return false
	}
	_, err := ulid.ParseStrict(id[len(want):])
	return err == nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
