package msgq

import (
	"context"
	"sync"
)

// Memory is an in-process Channel with the same semantics as the kernel queue:
// per-key FIFO order and a bound on the total number of queued messages.
type Memory struct {
	mu       sync.Mutex
	capacity int
	queued   int
	boxes    map[Key][]Message
	changed  chan struct{} // closed and replaced on every Send
	closed   bool
}

// NewMemory returns an in-process channel holding at most capacity messages
// (unbounded when capacity <= 0).
func NewMemory(capacity int) *Memory {
	return &Memory{
		capacity: capacity,
		boxes:    make(map[Key][]Message),
		changed:  make(chan struct{}),
	}
}

func (c *Memory) Send(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.capacity > 0 && c.queued >= c.capacity {
		return ErrFull
	}
	c.boxes[m.Key] = append(c.boxes[m.Key], m)
	c.queued++
	close(c.changed)
	c.changed = make(chan struct{})
	return nil
}

func (c *Memory) TryReceive(key Key) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, _, err := c.pop(key)
	return m, err
}

func (c *Memory) Receive(ctx context.Context, key Key) (Message, error) {
	for {
		c.mu.Lock()
		m, changed, err := c.pop(key)
		c.mu.Unlock()
		if err != ErrEmpty {
			return m, err
		}
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-changed:
		}
	}
}

// pop removes the head of key's mailbox. Caller holds mu.
func (c *Memory) pop(key Key) (Message, <-chan struct{}, error) {
	if c.closed {
		return Message{}, nil, ErrClosed
	}
	box := c.boxes[key]
	if len(box) == 0 {
		return Message{}, c.changed, ErrEmpty
	}
	m := box[0]
	if len(box) == 1 {
		delete(c.boxes, key)
	} else {
		c.boxes[key] = box[1:]
	}
	c.queued--
	return m, nil, nil
}

func (c *Memory) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.boxes = nil
	close(c.changed)
	return nil
}

// Pending returns the number of queued messages under key.
func (c *Memory) Pending(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.boxes[key])
}

// Drain removes and returns every queued message under key.
func (c *Memory) Drain(key Key) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	box := c.boxes[key]
	delete(c.boxes, key)
	c.queued -= len(box)
	return box
}
