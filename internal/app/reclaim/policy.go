package reclaim

import (
	"os"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
)

// RetryPolicy bounds how often a locked file is retried.
type RetryPolicy struct {
	MaxAttempts int           // Total delete attempts before giving up
	Step        time.Duration // Linear backoff step
}

// DefaultRetryPolicy returns five attempts spaced 3s, 6s, 9s and 12s apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Step: 3 * time.Second}
}

// Backoff returns the delay before the attempt following failed attempt n (1-based).
func (p RetryPolicy) Backoff(n int) time.Duration {
	return time.Duration(n) * p.Step
}

// Exhausted reports whether no attempt may follow failed attempt n.
func (p RetryPolicy) Exhausted(n int) bool {
	return n >= p.MaxAttempts
}

// isLocked reports whether err means the file is held open by another process.
func isLocked(err error) bool {
	return errors.Is(err, syscall.EBUSY) || os.IsPermission(err)
}
