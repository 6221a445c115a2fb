// internal/cache/redis.go
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/metrics"
	"github.com/jason-s-yu/velada/internal/realtime"
	"github.com/redis/go-redis/v9"
)

// ErrSubscriptionClosed is returned by Next once the subscription has been closed.
var ErrSubscriptionClosed = errors.New("subscription closed")

// ChannelPrefix namespaces the pub/sub channels carrying session events.
const ChannelPrefix = "velada:games:"

// ConnectRedis creates a client and verifies it with a ping.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// SessionChannel returns the pub/sub channel for a session's events.
func SessionChannel(sessionID uuid.UUID) string {
	return ChannelPrefix + sessionID.String()
}

// Publisher fans session events out to every server instance through Redis pub/sub.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish encodes the event and sends it on the session's channel.
func (p *Publisher) Publish(ctx context.Context, kind realtime.EventKind, sessionID uuid.UUID, payload any) error {
	data, err := realtime.Encode(kind, sessionID, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", kind, err)
	}
	if err := p.rdb.Publish(ctx, SessionChannel(sessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s for %s: %w", kind, sessionID, err)
	}
	metrics.EventsPublished.WithLabelValues(string(kind)).Inc()
	return nil
}

// Subscription delivers raw event messages of one session.
type Subscription interface {
	// Next blocks until the next message arrives. It returns ctx.Err() on cancellation and
	// an error once the subscription is closed.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// redisSubscription reads the connection directly rather than through PubSub.Channel, which
// drops messages once its buffer fills. A consumer that falls behind is cut off by the
// server's pubsub output limit and Next returns the resulting error.
type redisSubscription struct {
	ps *redis.PubSub
}

// Subscribe listens on the session's channel. The subscription is confirmed before it returns,
// so no event published afterwards is missed.
func (p *Publisher) Subscribe(ctx context.Context, sessionID uuid.UUID) (Subscription, error) {
	ps := p.rdb.Subscribe(ctx, SessionChannel(sessionID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", sessionID, err)
	}
	return &redisSubscription{ps: ps}, nil
}

func (s *redisSubscription) Next(ctx context.Context) ([]byte, error) {
	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrSubscriptionClosed, err)
	}
	return []byte(msg.Payload), nil
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
