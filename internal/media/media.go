// Package media models local capture and remote playback for a call. The
// call manager sees only the Source interface and the Stream/RemoteStream
// ownership rules; what actually produces frames is an integration choice.
package media

import (
	"context"
	"fmt"

	"github.com/mivton/callkit/internal/config"
)

// AccessError reports that local capture could not be acquired: permission
// denied, no device, or the underlying source failing to start. It is
// terminal for the call attempt — the manager does not retry.
type AccessError struct {
	Reason string
	Err    error
}

func (e *AccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media access failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("media access failed (%s)", e.Reason)
}

func (e *AccessError) Unwrap() error { return e.Err }

// Source produces local capture streams. Acquire is called at most once per
// call session; the returned Stream is owned by that session and released
// via Close exactly once when the session ends.
type Source interface {
	Acquire(ctx context.Context, c config.MediaConstraints) (*Stream, error)
}
