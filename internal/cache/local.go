package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/metrics"
	"github.com/jason-s-yu/velada/internal/realtime"
)

// localBuffer is the per-subscriber backlog of LocalBus. A subscriber that falls further
// behind is closed, so its stream ends instead of silently skipping events.
const localBuffer = 64

// LocalBus is an in-process replacement for Publisher, for single-instance servers and tests.
type LocalBus struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[*localSubscription]struct{}
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[uuid.UUID]map[*localSubscription]struct{})}
}

func (b *LocalBus) Publish(_ context.Context, kind realtime.EventKind, sessionID uuid.UUID, payload any) error {
	data, err := realtime.Encode(kind, sessionID, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", kind, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[sessionID] {
		select {
		case sub.ch <- data:
		default:
			b.remove(sub)
			sub.once.Do(func() { close(sub.done) })
		}
	}
	metrics.EventsPublished.WithLabelValues(string(kind)).Inc()
	return nil
}

func (b *LocalBus) Subscribe(_ context.Context, sessionID uuid.UUID) (Subscription, error) {
	sub := &localSubscription{
		bus:       b,
		sessionID: sessionID,
		ch:        make(chan []byte, localBuffer),
		done:      make(chan struct{}),
	}
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*localSubscription]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

// remove drops a subscription from the fan-out. The caller holds b.mu.
func (b *LocalBus) remove(sub *localSubscription) {
	delete(b.subs[sub.sessionID], sub)
	if len(b.subs[sub.sessionID]) == 0 {
		delete(b.subs, sub.sessionID)
	}
}

// Subscribers returns the number of open subscriptions for a session.
func (b *LocalBus) Subscribers(sessionID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

type localSubscription struct {
	bus       *LocalBus
	sessionID uuid.UUID
	ch        chan []byte
	done      chan struct{}
	once      sync.Once
}

func (s *localSubscription) Next(ctx context.Context) ([]byte, error) {
	// a closed subscription reports so even with messages still buffered
	select {
	case <-s.done:
		return nil, ErrSubscriptionClosed
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSubscriptionClosed
	case data := <-s.ch:
		return data, nil
	}
}

func (s *localSubscription) Close() error {
	s.bus.mu.Lock()
	s.bus.remove(s)
	s.bus.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	return nil
}
