//go:build linux && (amd64 || arm64)

package msgq

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// msgbuf mirrors struct msgbuf with a fixed PayloadSize body.
type msgbuf struct {
	mtype int64
	mtext [PayloadSize]byte
}

// SysV is a System V message queue shared by every process that opens the same key.
type SysV struct {
	id int
}

// OpenSysV opens the queue for key, creating it if needed.
func OpenSysV(key int) (*SysV, error) {
	id, _, errno := unix.Syscall(unix.SYS_MSGGET, uintptr(key), uintptr(unix.IPC_CREAT|0o600), 0)
	if errno != 0 {
		return nil, fmt.Errorf("msgget %#x: %w", key, errno)
	}
	return &SysV{id: int(id)}, nil
}

func (q *SysV) Send(m Message) error {
	if m.Key <= 0 {
		return fmt.Errorf("send: invalid routing key %d", m.Key)
	}
	buf := msgbuf{mtype: int64(m.Key)}
	m.Encode(buf.mtext[:])
	_, _, errno := unix.Syscall6(unix.SYS_MSGSND, uintptr(q.id), uintptr(unsafe.Pointer(&buf)),
		PayloadSize, unix.IPC_NOWAIT, 0, 0)
	switch errno {
	case 0:
		return nil
	case unix.EAGAIN:
		return ErrFull
	case unix.EIDRM, unix.EINVAL:
		return ErrClosed
	}
	return fmt.Errorf("msgsnd: %w", errno)
}

func (q *SysV) TryReceive(key Key) (Message, error) {
	var buf msgbuf
	for {
		n, _, errno := unix.Syscall6(unix.SYS_MSGRCV, uintptr(q.id), uintptr(unsafe.Pointer(&buf)),
			PayloadSize, uintptr(key), unix.IPC_NOWAIT, 0)
		switch errno {
		case 0:
			return Decode(Key(buf.mtype), buf.mtext[:n])
		case unix.EINTR:
			continue
		case unix.ENOMSG:
			return Message{}, ErrEmpty
		case unix.EIDRM, unix.EINVAL:
			return Message{}, ErrClosed
		}
		return Message{}, fmt.Errorf("msgrcv: %w", errno)
	}
}

// Receive polls with non-blocking reads: a blocking msgrcv cannot observe ctx.
func (q *SysV) Receive(ctx context.Context, key Key) (Message, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		m, err := q.TryReceive(key)
		if !errors.Is(err, ErrEmpty) {
			return m, err
		}
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *SysV) Destroy() error {
	_, _, errno := unix.Syscall(unix.SYS_MSGCTL, uintptr(q.id), unix.IPC_RMID, 0)
	if errno != 0 && errno != unix.EIDRM && errno != unix.EINVAL {
		return fmt.Errorf("msgctl IPC_RMID: %w", errno)
	}
	return nil
}
