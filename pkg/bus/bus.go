package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MessageBus connects channel adapters to the menu engine. Adapters
// publish inbound events; the engine publishes outbound directives.
type MessageBus struct {
	inbound  chan InboundEvent
	outbound chan OutboundDirective
	closed   bool
	dropped  droppedCounters
	mu       sync.RWMutex
}

type droppedCounters struct {
	inbound  atomic.Uint64
	outbound atomic.Uint64
}

const publishTimeout = 100 * time.Millisecond

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundEvent, 100),
		outbound: make(chan OutboundDirective, 100),
	}
}

func (mb *MessageBus) PublishInbound(ev InboundEvent) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}

	select {
	case mb.inbound <- ev:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case mb.inbound <- ev:
		case <-timer.C:
			mb.dropped.inbound.Add(1)
		}
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundEvent, bool) {
	select {
	case ev, ok := <-mb.inbound:
		if !ok {
			return InboundEvent{}, false
		}
		return ev, true
	case <-ctx.Done():
		return InboundEvent{}, false
	}
}

func (mb *MessageBus) PublishOutbound(d OutboundDirective) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}

	select {
	case mb.outbound <- d:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case mb.outbound <- d:
		case <-timer.C:
			mb.dropped.outbound.Add(1)
		}
	}
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundDirective, bool) {
	select {
	case d, ok := <-mb.outbound:
		if !ok {
			return OutboundDirective{}, false
		}
		return d, true
	case <-ctx.Done():
		return OutboundDirective{}, false
	}
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
	close(mb.outbound)
}

func (mb *MessageBus) DroppedInbound() uint64 {
	return mb.dropped.inbound.Load()
}

func (mb *MessageBus) DroppedOutbound() uint64 {
	return mb.dropped.outbound.Load()
}
