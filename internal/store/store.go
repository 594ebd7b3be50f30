// Package store holds the in-memory state of the console: stored credentials,
// the activity log and customer conversation state. Nothing here survives a restart.
package store

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Clock is the time source injected into every store.
type Clock func() time.Time

func newULID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}
