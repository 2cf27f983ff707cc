// Package notify delivers lifecycle notifications over Redis Pub/Sub.
//
// Delivery is at-most-once: a subscriber that is not connected when a
// notification is published never sees it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/redis/go-redis/v9"
)

// Notification is the payload published for every lifecycle message.
type Notification struct {
	DocumentID string   `json:"document_id"`
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
	SentAtMs   int64    `json:"sent_at_ms"`
}

// Publisher publishes notifications on the instance notifications channel.
type Publisher struct {
	rdb     *redis.Client
	channel string
	now     func() time.Time
}

// NewPublisher creates a publisher sharing store's Redis connection.
func NewPublisher(store *datasheet.Client) *Publisher {
	return &Publisher{
		rdb:     store.RedisClient(),
		channel: datasheet.NotificationsChannel(store.InstanceName()),
		now:     time.Now,
	}
}

// Notify publishes one notification. It satisfies lifecycle.Notifier.
func (p *Publisher) Notify(ctx context.Context, recipients []string, documentID, message string) error {
	payload, err := json.Marshal(Notification{
		DocumentID: documentID,
		Recipients: recipients,
		Message:    message,
		SentAtMs:   p.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Subscription represents an active subscription to notifications.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *Notification
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of notifications.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *Notification {
	return s.events
}

// Errors returns decode failures. The subscription skips the bad message and continues.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe listens for notifications on store's instance. It returns once
// Redis has confirmed the subscription, so nothing published afterwards is missed.
func Subscribe(ctx context.Context, store *datasheet.Client) (*Subscription, error) {
	pubsub := store.RedisClient().Subscribe(ctx, datasheet.NotificationsChannel(store.InstanceName()))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to notifications: %w", err)
	}

	eventsChan := make(chan *Notification, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var n Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal notification: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &n:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// For reports whether actor is among the notification's recipients.
func (n *Notification) For(actor string) bool {
	for _, r := range n.Recipients {
		if r == actor {
			return true
		}
	}
	return false
}
