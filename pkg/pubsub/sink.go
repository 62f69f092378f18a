package pubsub

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront/pkg/outbox"
)

const deliverTimeout = 15 * time.Second

// TopicSink delivers outbox messages to one topic with ordering keys on.
type TopicSink struct {
	topic     string
	publisher *pubsub.Publisher
}

// Sink returns an ordered outbox sink for topic.
func (c *Client) Sink(topic string) *TopicSink {
	p := c.Publisher(topic)
	if p != nil {
		p.EnableMessageOrdering = true
	}
	return &TopicSink{topic: topic, publisher: p}
}

// Deliver publishes msg and waits for the server ack. An ordering key that
// failed is resumed so later messages for the aggregate are not stuck.
func (s *TopicSink) Deliver(ctx context.Context, msg outbox.Message) error {
	if s == nil || s.publisher == nil {
		return fmt.Errorf("%w: no publisher for topic %q", outbox.ErrUndeliverable, s.topicName())
	}
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	result := s.publisher.Publish(ctx, &pubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.OrderingKey,
	})
	if _, err := result.Get(ctx); err != nil {
		if msg.OrderingKey != "" {
			s.publisher.ResumePublish(msg.OrderingKey)
		}
		switch status.Code(err) {
		case codes.NotFound, codes.PermissionDenied, codes.InvalidArgument:
			return fmt.Errorf("%w: %v", outbox.ErrUndeliverable, err)
		}
		return fmt.Errorf("publish to %q: %w", s.topic, err)
	}
	return nil
}

// Stop flushes pending messages.
func (s *TopicSink) Stop() {
	if s != nil && s.publisher != nil {
		s.publisher.Stop()
	}
}

func (s *TopicSink) topicName() string {
	if s == nil {
		return ""
	}
	return s.topic
}
