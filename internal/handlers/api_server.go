// internal/handlers/api_server.go
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/auth"
	"github.com/jason-s-yu/velada/internal/cache"
	"github.com/jason-s-yu/velada/internal/models"
	"github.com/jason-s-yu/velada/internal/realtime"
	"github.com/sirupsen/logrus"
)

// defaultPingInterval keeps idle event connections alive through proxies.
const defaultPingInterval = 25 * time.Second

// Store is the persistence the API serves from.
type Store interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) (uuid.UUID, error)
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.Session, error)
	AddTable(ctx context.Context, sessionID uuid.UUID, table models.Table) (*models.Table, error)
	SaveTable(ctx context.Context, sessionID uuid.UUID, table models.Table) (*models.Table, error)
	ListSessionsLight(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
	GetActiveSession(ctx context.Context) (*models.Session, error)
	GetRoster(ctx context.Context) ([]models.Player, error)
	SavePlayer(ctx context.Context, p *models.Player) error
}

// Events publishes session events and hands out subscriptions to them.
type Events interface {
	Publish(ctx context.Context, kind realtime.EventKind, sessionID uuid.UUID, payload any) error
	Subscribe(ctx context.Context, sessionID uuid.UUID) (cache.Subscription, error)
}

// APIServer holds the dependencies shared by every handler.
type APIServer struct {
	Store  Store
	Events Events
	Keys   *auth.Keys
	Logger *logrus.Logger

	// OriginPatterns are passed to websocket.Accept.
	OriginPatterns []string
	PingInterval   time.Duration

	// Now defaults to time.Now; hand timestamps come from it.
	Now func() time.Time

	locks sync.Map // uuid.UUID => *sync.Mutex
}

func (s *APIServer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *APIServer) pingInterval() time.Duration {
	if s.PingInterval > 0 {
		return s.PingInterval
	}
	return defaultPingInterval
}

// lock serializes read-modify-write cycles on one session within this process.
func (s *APIServer) lock(sessionID uuid.UUID) func() {
	mu, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// publish sends an event after a successful write. Failures are logged, not returned.
func (s *APIServer) publish(ctx context.Context, kind realtime.EventKind, sessionID uuid.UUID, payload any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, kind, sessionID, payload); err != nil {
		s.Logger.WithFields(logrus.Fields{
			"session": sessionID,
			"type":    kind,
		}).Warnf("event publish failed: %v", err)
	}
}
