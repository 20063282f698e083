// Package msgq carries typed messages between police and gang processes over one
// multiplexed channel. A routing key selects the logical mailbox; see Key.
package msgq

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmpty is returned by TryReceive when no message waits under the key.
	// It is the normal outcome of a poll, not a failure.
	ErrEmpty = errors.New("no message")
	// ErrFull is returned by Send when the channel has no room. Callers may retry.
	ErrFull = errors.New("message channel full")
	// ErrClosed is returned once the channel has been destroyed.
	ErrClosed = errors.New("message channel closed")
)

// Channel is the shared message channel.
//
// Thread-safety: implementations are safe for concurrent use.
type Channel interface {
	// Send enqueues m under m.Key without blocking.
	Send(m Message) error
	// Receive blocks until a message with the key arrives or ctx is done.
	Receive(ctx context.Context, key Key) (Message, error)
	// TryReceive returns the oldest message with the key, or ErrEmpty.
	TryReceive(key Key) (Message, error)
	// Destroy removes the channel. Called once, by its owner, at shutdown.
	Destroy() error
}

// pollInterval paces Receive on channels that have no blocking primitive the
// context can interrupt.
const pollInterval = time.Millisecond

// SendRetry sends m, retrying on ErrFull up to attempts times with backoff between
// tries. Any other error is returned immediately.
func SendRetry(ctx context.Context, ch Channel, m Message, attempts int, backoff time.Duration) error {
	var err error
	for i := 0; i < max(attempts, 1); i++ {
		if err = ch.Send(m); !errors.Is(err, ErrFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
