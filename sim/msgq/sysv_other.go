//go:build !(linux && (amd64 || arm64))

package msgq

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by OpenSysV where System V queues are not wired up.
// Use NewMemory with an in-process run instead.
var ErrUnsupported = errors.New("System V message queues are not supported on this platform")

// SysV is unavailable on this platform.
type SysV struct{}

func OpenSysV(key int) (*SysV, error) { return nil, ErrUnsupported }

func (q *SysV) Send(Message) error                            { return ErrUnsupported }
func (q *SysV) TryReceive(Key) (Message, error)               { return Message{}, ErrUnsupported }
func (q *SysV) Receive(context.Context, Key) (Message, error) { return Message{}, ErrUnsupported }
func (q *SysV) Destroy() error                                { return nil }
