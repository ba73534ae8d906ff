// Package bus implements the inter-bot message bus described in spec.md
// §4.11: bounded direct mailboxes, named shared channels, and one-shot
// reply channels for request/response exchanges between bots.
//
// Grounded on internal/multiagent/swarm.go's InMemorySwarmContext
// (publish/subscribe over a buffered channel, best-effort non-blocking
// send) for the broadcast side, and internal/hooks/tool_hooks.go's
// ApprovalWorkflow (pending map keyed by request ID, one-shot response
// channel, select over response/timeout/ctx.Done) for the reply side.
package bus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boternity/boternity/internal/loopguard"
	"github.com/boternity/boternity/pkg/models"
)

// ErrNotRegistered is returned by Send/SendAndWait when the recipient bot
// has no registered mailbox.
var ErrNotRegistered = errors.New("bus: recipient not registered")

// ErrChannelFull is returned by Send when the recipient's mailbox is at
// capacity.
var ErrChannelFull = errors.New("bus: mailbox full")

// ErrLoopDetected is returned by Send when the loop guard rejects the
// sender/recipient pair (rate limit for the current window exceeded).
var ErrLoopDetected = errors.New("bus: loop detected")

// ErrReplyTimeout is returned by SendAndWait when no reply arrives before
// the deadline.
var ErrReplyTimeout = errors.New("bus: reply timed out")

const (
	// MailboxCapacity is the bound on each bot's direct mailbox.
	MailboxCapacity = 256
	// ChannelCapacity is the bound on each broadcast channel.
	ChannelCapacity = 1024
)

// Bus is the shared message bus. Safe for concurrent use.
type Bus struct {
	guard *loopguard.Guard

	mailboxMu sync.RWMutex
	mailboxes map[string]chan *models.BotMessage

	channelMu sync.RWMutex
	channels  map[string]chan *models.BotMessage

	pendingMu sync.Mutex
	pending   map[string]chan *models.BotMessage
}

// New creates an empty Bus. guard may be nil, in which case loop
// protection is skipped (useful for tests exercising bus mechanics in
// isolation).
func New(guard *loopguard.Guard) *Bus {
	return &Bus{
		guard:     guard,
		mailboxes: make(map[string]chan *models.BotMessage),
		channels:  make(map[string]chan *models.BotMessage),
		pending:   make(map[string]chan *models.BotMessage),
	}
}

// RegisterBot creates id's mailbox (if it doesn't already exist) and
// returns its receive end.
func (b *Bus) RegisterBot(id string) <-chan *models.BotMessage {
	b.mailboxMu.Lock()
	defer b.mailboxMu.Unlock()
	if ch, ok := b.mailboxes[id]; ok {
		return ch
	}
	ch := make(chan *models.BotMessage, MailboxCapacity)
	b.mailboxes[id] = ch
	return ch
}

// Send performs a loop-guard check, then attempts a non-blocking push to
// msg.Recipient.BotID's mailbox.
func (b *Bus) Send(msg *models.BotMessage) error {
	recipient := msg.Recipient.BotID
	if b.guard != nil {
		if err := b.guard.Check(msg.SenderBotID, recipient); err != nil {
			return fmt.Errorf("%w: %v", ErrLoopDetected, err)
		}
	}

	b.mailboxMu.RLock()
	ch, ok := b.mailboxes[recipient]
	b.mailboxMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, recipient)
	}

	select {
	case ch <- msg:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrChannelFull, recipient)
	}
}

// SendAndWait installs a one-shot reply channel keyed by msg.ID, sends
// msg, and waits up to timeout for a matching Reply. The reply channel is
// always cleaned up before returning.
func (b *Bus) SendAndWait(msg *models.BotMessage, timeout time.Duration) (*models.BotMessage, error) {
	replyCh := make(chan *models.BotMessage, 1)
	b.pendingMu.Lock()
	b.pending[msg.ID] = replyCh
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, msg.ID)
		b.pendingMu.Unlock()
	}()

	if err := b.Send(msg); err != nil {
		return nil, err
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: %s", ErrReplyTimeout, msg.ID)
	}
}

// Reply delivers msg via the one-shot channel installed for originalID.
// If the caller already timed out (or never called SendAndWait), the
// reply is silently dropped.
func (b *Bus) Reply(originalID string, msg *models.BotMessage) {
	b.pendingMu.Lock()
	replyCh, ok := b.pending[originalID]
	b.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case replyCh <- msg:
	default:
	}
}

// Subscribe creates channel (if absent) and returns its receiver. Every
// caller for the same channel name gets the same shared Go channel.
func (b *Bus) Subscribe(channel string) <-chan *models.BotMessage {
	b.channelMu.Lock()
	defer b.channelMu.Unlock()
	ch, ok := b.channels[channel]
	if !ok {
		ch = make(chan *models.BotMessage, ChannelCapacity)
		b.channels[channel] = ch
	}
	return ch
}

// Publish pushes msg once onto the channel's shared buffer. Because all
// subscribers read from that one Go channel, each message is received by
// exactly one of them; it is not copied to every subscriber. Publishing to
// a channel nobody has subscribed to is a no-op rather than an error.
func (b *Bus) Publish(msg *models.BotMessage) {
	b.channelMu.RLock()
	ch, ok := b.channels[msg.Recipient.Channel]
	b.channelMu.RUnlock()
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		// Best-effort: a full broadcast channel drops rather than blocks
		// the publisher.
	}
}
