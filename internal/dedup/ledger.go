// Package dedup suppresses duplicate processing of redelivered webhook
// events. The channel provider retries deliveries on timeout, so every
// inbound message id passes through the ledger before the pipeline runs.
package dedup

import (
	"context"
	"time"
)

// Window is how long a message id is remembered after first sight.
const Window = 5 * time.Minute

// SweepSpec is the cron expression for the eviction sweep.
const SweepSpec = "* * * * *"

// Ledger gates inbound message processing.
//
// ShouldProcess atomically records the first sight of a message id and
// reports whether the caller owns processing for it. Subsequent calls for
// the same id within the eviction window return false, whether or not a
// reply has gone out yet; this is what keeps a concurrent redelivery from
// racing the in-flight turn. Implementations fail open: when the backing
// store is unreachable the message is processed rather than dropped.
type Ledger interface {
	ShouldProcess(ctx context.Context, messageID string) bool
	MarkResponded(ctx context.Context, messageID string)
	Sweep(ctx context.Context, now time.Time)
}
