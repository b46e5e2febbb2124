package pool

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrBadConfig is the sentinel wrapped by every construction-time
// validation failure.
var ErrBadConfig = errors.New("pool: bad config")

// ErrOutOfMemory is the sentinel wrapped when the chunk provider cannot
// supply a new backing region.
var ErrOutOfMemory = errors.New("pool: chunk provider out of memory")

// badConfig wraps ErrBadConfig with a specific violated constraint.
func badConfig(format string, args ...interface{}) error {
	return errors.Wrap(ErrBadConfig, fmt.Sprintf(format, args...))
}

// outOfMemory wraps ErrOutOfMemory with the request that failed.
func outOfMemory(arenaKind string, arenaIdx int, requestedBytes int, cause error) error {
	return errors.Wrapf(ErrOutOfMemory, "%s arena %d: requested %d bytes: %v", arenaKind, arenaIdx, requestedBytes, cause)
}

// Overflow (requested capacity exceeds the arena's max, falling back to the
// unpooled huge path) is explicitly not an error — there is no
// ErrOverflow; callers observe it only as a Buffer whose Capacity() came
// from the huge path instead of a pooled chunk.
