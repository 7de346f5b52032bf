package bus

import (
	"context"
	"errors"
	"sync"
)

var ErrBusClosed = errors.New("message bus closed")

// MessageBus is an unbounded in-process queue from channel adapters to the
// agent loop. Publishing never blocks; consuming blocks until a message,
// cancellation, or Close.
type MessageBus struct {
	mu      sync.Mutex
	inbound []InboundMessage
	ready   chan struct{}
	done    chan struct{}
	closed  bool
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(msg InboundMessage) error {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return ErrBusClosed
	}
	mb.inbound = append(mb.inbound, msg)
	mb.mu.Unlock()
	mb.notify()
	return nil
}

// ConsumeInbound returns the next inbound message and whether the read succeeded.
// The bool is false when the context is cancelled, or the bus is closed and drained.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	for {
		mb.mu.Lock()
		if len(mb.inbound) > 0 {
			msg := mb.inbound[0]
			mb.inbound[0] = InboundMessage{}
			mb.inbound = mb.inbound[1:]
			more := len(mb.inbound) > 0
			mb.mu.Unlock()
			if more {
				// hand the wake-up on to the next waiting consumer
				mb.notify()
			}
			return msg, true
		}
		closed := mb.closed
		mb.mu.Unlock()
		if closed {
			return InboundMessage{}, false
		}

		select {
		case <-mb.ready:
		case <-mb.done:
		case <-ctx.Done():
			return InboundMessage{}, false
		}
	}
}

// Len reports the number of queued inbound messages.
func (mb *MessageBus) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.inbound)
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.done)
}

func (mb *MessageBus) notify() {
	select {
	case mb.ready <- struct{}{}:
	default:
	}
}
