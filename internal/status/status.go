// File: internal/status/status.go

// Package status carries human readable progress lines from the automation
// to whoever is watching: the log, and any subscribed display.
package status

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is one progress line.
type Message struct {
	ID        string
	Timestamp time.Time
	Text      string
}

// Publisher accepts progress lines. Publish must never block or fail.
type Publisher interface {
	Publish(text string)
}

// Notifier is a fire-and-forget Publisher that fans messages out to
// subscribers. Messages are dropped, and counted, rather than blocking the
// publisher when buffers are full.
type Notifier struct {
	logger     *zap.Logger
	in         chan Message
	bufferSize int
	dropped    atomic.Int64

	mu          sync.RWMutex
	subscribers []chan Message

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	isShutdown   atomic.Bool
}

// NewNotifier creates a Notifier whose queue and subscriber buffers hold
// bufferSize messages.
func NewNotifier(logger *zap.Logger, bufferSize int) *Notifier {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Notifier{
		logger:       logger.Named("status"),
		in:           make(chan Message, bufferSize),
		bufferSize:   bufferSize,
		shutdownChan: make(chan struct{}),
	}
}

// Publish queues text for delivery.
func (n *Notifier) Publish(text string) {
	if n.isShutdown.Load() {
		return
	}
	msg := Message{ID: uuid.NewString(), Timestamp: time.Now().UTC(), Text: text}
	select {
	case n.in <- msg:
	default:
		n.dropped.Add(1)
	}
}

// Publishf formats and publishes a message.
func (n *Notifier) Publishf(format string, args ...interface{}) {
	n.Publish(fmt.Sprintf(format, args...))
}

// Dropped returns how many messages were discarded because a buffer was full.
func (n *Notifier) Dropped() int64 { return n.dropped.Load() }

// Subscribe returns a channel receiving every delivered message and a
// function to stop receiving. The channel is closed on Shutdown.
func (n *Notifier) Subscribe() (<-chan Message, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.isShutdown.Load() {
		ch := make(chan Message)
		close(ch)
		return ch, func() {}
	}
	ch := make(chan Message, n.bufferSize)
	n.subscribers = append(n.subscribers, ch)

	unsubscribe := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, sub := range n.subscribers {
			if sub == ch {
				n.subscribers = append(n.subscribers[:i:i], n.subscribers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsubscribe
}

// Run delivers queued messages until ctx is done or Shutdown is called.
// Messages still queued at that point are delivered before returning.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case msg := <-n.in:
			n.deliver(msg)
		case <-ctx.Done():
			n.drain()
			return
		case <-n.shutdownChan:
			n.drain()
			return
		}
	}
}

func (n *Notifier) drain() {
	for {
		select {
		case msg := <-n.in:
			n.deliver(msg)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(msg Message) {
	n.logger.Info(msg.Text, zap.String("status_id", msg.ID))

	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subscribers {
		select {
		case ch <- msg:
		default:
			n.dropped.Add(1)
		}
	}
}

// Shutdown stops accepting messages and closes every subscriber channel.
func (n *Notifier) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.isShutdown.Store(true)
		close(n.shutdownChan)

		n.mu.Lock()
		defer n.mu.Unlock()
		for _, ch := range n.subscribers {
			close(ch)
		}
		n.subscribers = nil

		if d := n.dropped.Load(); d > 0 {
			n.logger.Debug("Status messages dropped.", zap.Int64("count", d))
		}
	})
}

// Nop discards every message.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(string) {}
