// Package event provides the per-session broadcast bus using watermill.
//
// Each session key maps to one long-lived topic. Topics are created on
// first demand and survive actor restarts, so a subscriber that
// reconnects after a worker was recycled observes the same stream with
// no gap. Delivery is broadcast with a bounded buffer per subscriber;
// when a subscriber falls behind, its oldest unread events are dropped
// rather than blocking publishers.
package event

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/oklog/ulid/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/quillworks/quill/internal/logging"
	"github.com/quillworks/quill/pkg/types"
)

// SubscriberBuffer is the bounded capacity of one subscriber's channel.
const SubscriberBuffer = 1024

// Bus is the process-wide session event broker.
type Bus struct {
	pubsub *gochannel.GoChannel

	// topics records which session keys have a live topic. Entries are
	// never removed while the bus is open; a topic outlives any one
	// session worker.
	topics *xsync.MapOf[string, struct{}]

	closeOnce sync.Once
	closed    chan struct{}
}

// NewBus creates a new session event bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: SubscriberBuffer,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		topics: xsync.NewMapOf[string, struct{}](),
		closed: make(chan struct{}),
	}
}

// topicName maps a session key to its watermill topic.
func topicName(sessionKey string) string {
	return "session." + sessionKey
}

// EnsureTopic lazily creates the topic for a session key. Idempotent.
func (b *Bus) EnsureTopic(sessionKey string) {
	b.topics.LoadOrStore(sessionKey, struct{}{})
}

// HasTopic reports whether a topic exists for the session key.
func (b *Bus) HasTopic(sessionKey string) bool {
	_, ok := b.topics.Load(sessionKey)
	return ok
}

// Publish sends a stream event to all subscribers of a session.
// Publishing never blocks on slow subscribers.
func (b *Bus) Publish(sessionKey string, ev types.StreamEvent) {
	select {
	case <-b.closed:
		return
	default:
	}

	b.EnsureTopic(sessionKey)

	payload, err := json.Marshal(ev)
	if err != nil {
		logging.Error().Err(err).
			Str("sessionKey", sessionKey).
			Str("eventType", string(ev.Type)).
			Msg("event bus: marshal failed")
		return
	}

	msg := message.NewMessage(ulid.Make().String(), payload)
	if err := b.pubsub.Publish(topicName(sessionKey), msg); err != nil {
		logging.Error().Err(err).
			Str("sessionKey", sessionKey).
			Msg("event bus: publish failed")
	}
}

// Subscribe attaches to a session's event stream. The returned channel
// is closed when ctx is cancelled, the unsubscribe function is called,
// or the bus shuts down.
func (b *Bus) Subscribe(ctx context.Context, sessionKey string) (<-chan types.StreamEvent, func(), error) {
	b.EnsureTopic(sessionKey)

	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := b.pubsub.Subscribe(subCtx, topicName(sessionKey))
	if err != nil {
		cancel()
		return nil, nil, err
	}

	out := make(chan types.StreamEvent, SubscriberBuffer)
	go pump(msgs, out, sessionKey)

	return out, cancel, nil
}

// pump drains watermill messages into the subscriber channel, acking
// immediately so publishers never block. When the subscriber channel is
// full the oldest unread event is discarded to make room.
func pump(msgs <-chan *message.Message, out chan types.StreamEvent, sessionKey string) {
	defer close(out)

	for msg := range msgs {
		msg.Ack()

		var ev types.StreamEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			logging.Warn().Err(err).
				Str("sessionKey", sessionKey).
				Msg("event bus: dropping undecodable event")
			continue
		}

	deliver:
		for {
			select {
			case out <- ev:
				break deliver
			default:
				// Buffer full: drop the oldest unread event.
				select {
				case <-out:
				default:
				}
			}
		}
	}
}

// Close shuts the bus down and disconnects all subscribers.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		err = b.pubsub.Close()
	})
	return err
}
