package uid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RequestID returns a correlation id for one bridged request:
// "<prefix>-<unix millis>-<uuid>". Two calls never return the same id;
// a collision would be a bug in uuid, not something callers handle.
func RequestID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), uuid.NewString())
}

// ClientID returns the short id attached to a connection for logging
// and the connect greeting.
func ClientID() string {
	return uuid.NewString()[:8]
}
