package websocket

import (
	"errors"
	"sync"

	"github.com/stemsi/lms-backend/internal/session"
)

var ErrAlreadySubscribed = errors.New("signal bridge already has a subscriber")

// SignalBridge forwards signal actions read from the socket to the session.
type SignalBridge struct {
	mu      sync.Mutex
	handler session.SignalHandler
}

func NewSignalBridge() *SignalBridge {
	return &SignalBridge{}
}

func (b *SignalBridge) Subscribe(h session.SignalHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handler != nil {
		return ErrAlreadySubscribed
	}
	b.handler = h
	return nil
}

func (b *SignalBridge) Unsubscribe() {
	b.mu.Lock()
	b.handler = nil
	b.mu.Unlock()
}

// Deliver hands sig to the subscriber and reports whether the client must block the
// default action. Signals without a subscriber are dropped.
func (b *SignalBridge) Deliver(sig session.Signal) bool {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	if h == nil {
		return false
	}
	return h(sig)
}
