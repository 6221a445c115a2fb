// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/game"
	"github.com/jason-s-yu/velada/internal/models"
	"github.com/jason-s-yu/velada/internal/realtime"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	intentLoad          = "load"
	intentRefresh       = "refresh"
	intentStartNewRound = "start_new_round"
	intentAddTable      = "add_table"
	intentChangeStatus  = "change_status"
	intentStartHand     = "start_hand"
	intentScoreHand     = "score_hand"
)

// reconcileTimeout bounds a re-read triggered by the realtime channel.
const reconcileTimeout = 15 * time.Second

// Store is the persistence contract the orchestrator reads and writes through.
// GetSession and the write operations return an error matching game.ErrNotFound when the
// session does not exist.
type Store interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) (uuid.UUID, error)
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.Session, error)
	AddTable(ctx context.Context, sessionID uuid.UUID, table models.Table) (*models.Table, error)
	SaveTable(ctx context.Context, sessionID uuid.UUID, table models.Table) (*models.Table, error)
	ListSessionsLight(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
	GetActiveSession(ctx context.Context) (*models.Session, error)
	GetRoster(ctx context.Context) ([]models.Player, error)
}

// Channel is the handle of an open realtime channel.
type Channel interface {
	Close()
	Disable()
}

// ChannelOpener opens a realtime channel for a session. onState receives every connection
// state transition in order.
type ChannelOpener func(sessionID uuid.UUID, onEvent func(realtime.Event), onFallback func(), onState func(realtime.State)) Channel

// RealtimeOpener returns a ChannelOpener backed by realtime.Open.
func RealtimeOpener(cfg realtime.Config, enabled bool, logger *logrus.Logger, opts ...realtime.Option) ChannelOpener {
	return func(sessionID uuid.UUID, onEvent func(realtime.Event), onFallback func(), onState func(realtime.State)) Channel {
		all := append([]realtime.Option{
			realtime.WithLogger(logger),
			realtime.WithStateHandler(onState),
		}, opts...)
		return realtime.Open(cfg, sessionID, enabled, onEvent, onFallback, all...)
	}
}

// ReadModel is the view state of the selected session.
type ReadModel struct {
	Session          *models.Session
	RosterByID       map[uuid.UUID]models.Player
	IsLoading        bool
	Err              *IntentError
	ConnectionStatus realtime.State

	// Updating holds the keys of mutations still in flight, e.g. "round:<tableID>".
	Updating map[string]bool
}

// Options configures an Orchestrator.
type Options struct {
	Logger *logrus.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// OnChange receives a snapshot after every read model change. Calls are serialized and
	// never overlap; OnChange must not call back into the Orchestrator.
	OnChange func(ReadModel)

	// OnNotFound is called when the selected session does not exist, so the caller can
	// navigate away.
	OnNotFound func(sessionID uuid.UUID)
}

// Orchestrator owns the read model of one selected session. It routes user intents
// through the game engine, persists them, and re-reads the authoritative state.
type Orchestrator struct {
	store      Store
	open       ChannelOpener
	logger     *logrus.Logger
	now        func() time.Time
	onChange   func(ReadModel)
	onNotFound func(uuid.UUID)

	mu         sync.Mutex
	sessionID  uuid.UUID
	generation uint64
	channel    Channel
	model      ReadModel
	inflight   map[string]int

	// notifyMu serializes OnChange so snapshots are delivered in the order they were taken.
	notifyMu sync.Mutex
}

// New creates an idle orchestrator. open may be nil, in which case no realtime channel
// is opened and the read model only changes through intents and Refresh.
func New(store Store, open ChannelOpener, opts Options) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		open:       open,
		logger:     opts.Logger,
		now:        opts.Now,
		onChange:   opts.OnChange,
		onNotFound: opts.OnNotFound,
		inflight:   make(map[string]int),
		model:      ReadModel{ConnectionStatus: realtime.StateDisabled},
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Activate selects a session: it loads the session and roster concurrently, then opens the
// realtime channel. Any previously selected session is released first. Results of fetches
// started for an earlier selection are discarded.
func (o *Orchestrator) Activate(ctx context.Context, sessionID uuid.UUID) error {
	o.mu.Lock()
	prev := o.channel
	o.channel = nil
	o.generation++
	gen := o.generation
	o.sessionID = sessionID
	o.inflight = make(map[string]int)
	o.model = ReadModel{IsLoading: true, ConnectionStatus: realtime.StateDisconnected}
	o.mu.Unlock()

	if prev != nil {
		prev.Disable()
	}
	o.emit()

	session, roster, err := o.load(ctx, sessionID)

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return errStale
	}
	o.model.IsLoading = false
	if err != nil {
		o.model.Err = classify(intentLoad, err)
		o.model.ConnectionStatus = realtime.StateDisabled
		o.mu.Unlock()
		o.emit()
		o.logger.WithField("session", sessionID).Warnf("load failed: %v", err)
		if errors.Is(err, game.ErrNotFound) && o.onNotFound != nil {
			o.onNotFound(sessionID)
		}
		return err
	}
	o.model.Session = session
	o.model.RosterByID = rosterIndex(roster)
	o.mu.Unlock()
	o.emit()

	if o.open == nil {
		o.setConnection(gen, realtime.StateDisabled)
		return nil
	}
	ch := o.open(sessionID,
		func(ev realtime.Event) { o.handleEvent(gen, ev) },
		func() { o.reconcile(gen) },
		func(s realtime.State) { o.setConnection(gen, s) },
	)

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		ch.Disable()
		return nil
	}
	o.channel = ch
	o.mu.Unlock()
	return nil
}

// Deactivate releases the selected session and its channel. Late results are ignored.
func (o *Orchestrator) Deactivate() {
	o.mu.Lock()
	o.generation++
	ch := o.channel
	o.channel = nil
	o.sessionID = uuid.Nil
	o.inflight = make(map[string]int)
	o.model = ReadModel{ConnectionStatus: realtime.StateDisabled}
	o.mu.Unlock()

	if ch != nil {
		ch.Disable()
	}
	o.emit()
}

// Snapshot returns a deep copy of the read model.
func (o *Orchestrator) Snapshot() ReadModel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() ReadModel {
	m := o.model
	m.Session = o.model.Session.Clone()
	if o.model.RosterByID != nil {
		m.RosterByID = make(map[uuid.UUID]models.Player, len(o.model.RosterByID))
		for id, p := range o.model.RosterByID {
			m.RosterByID[id] = p
		}
	}
	m.Updating = make(map[string]bool, len(o.inflight))
	for key := range o.inflight {
		m.Updating[key] = true
	}
	return m
}

// DismissError clears the surfaced error.
func (o *Orchestrator) DismissError() {
	o.mu.Lock()
	o.model.Err = nil
	o.mu.Unlock()
	o.emit()
}

// AvailablePlayers lists roster players not seated at any table of the selected session.
func (o *Orchestrator) AvailablePlayers() []models.Player {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.model.Session == nil {
		return nil
	}
	taken := game.SelectedPlayers(o.model.Session)
	var out []models.Player
	for id, p := range o.model.RosterByID {
		if !taken[id] {
			out = append(out, p)
		}
	}
	sortPlayers(out)
	return out
}

// Refresh re-reads the session and roster.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.mu.Lock()
	gen, id := o.generation, o.sessionID
	o.mu.Unlock()
	if id == uuid.Nil {
		return classify(intentRefresh, ErrNotActive)
	}

	session, roster, err := o.load(ctx, id)
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return errStale
	}
	if err != nil {
		ie := classify(intentRefresh, err)
		o.model.Err = ie
		o.mu.Unlock()
		o.emit()
		return ie
	}
	o.model.Session = session
	o.model.RosterByID = rosterIndex(roster)
	o.mu.Unlock()
	o.emit()
	return nil
}

// StartNewRound archives the table's hands, resets its scores and persists the table.
func (o *Orchestrator) StartNewRound(ctx context.Context, tableID uuid.UUID) error {
	return o.mutate(ctx, intentStartNewRound, "round:"+tableID.String(), func(s *models.Session) error {
		return o.writeTable(ctx, s, tableID, func(cur *models.Session) (*models.Session, error) {
			return game.StartNewRound(cur, tableID, o.now())
		})
	})
}

// StartHand opens a new hand at the table.
func (o *Orchestrator) StartHand(ctx context.Context, tableID uuid.UUID) error {
	return o.mutate(ctx, intentStartHand, "hand:"+tableID.String(), func(s *models.Session) error {
		return o.writeTable(ctx, s, tableID, func(cur *models.Session) (*models.Session, error) {
			return game.StartHand(cur, tableID, o.now())
		})
	})
}

// ScoreHand closes the open hand, crediting points to the given pair.
func (o *Orchestrator) ScoreHand(ctx context.Context, tableID, pairID uuid.UUID, points int) error {
	return o.mutate(ctx, intentScoreHand, "hand:"+tableID.String(), func(s *models.Session) error {
		return o.writeTable(ctx, s, tableID, func(cur *models.Session) (*models.Session, error) {
			return game.ScoreHand(cur, tableID, pairID, points, o.now())
		})
	})
}

// writeTable runs a table operation against the local copy first, so rule violations never
// reach the store. It then applies the operation to the stored session and writes back that
// one table, leaving other tables and the status as the store has them.
func (o *Orchestrator) writeTable(ctx context.Context, local *models.Session, tableID uuid.UUID, apply func(*models.Session) (*models.Session, error)) error {
	if _, err := apply(local); err != nil {
		return err
	}
	current, err := o.store.GetSession(ctx, local.ID)
	if err != nil {
		return persistence(err)
	}
	if current == nil {
		return game.ErrNotFound
	}
	next, err := apply(current)
	if err != nil {
		return err
	}
	_, err = o.store.SaveTable(ctx, local.ID, next.Tables[next.FindTable(tableID)])
	return persistence(err)
}

// AddTable validates the proposed table and asks the store to append it. The store assigns
// the table number.
func (o *Orchestrator) AddTable(ctx context.Context, table models.Table) error {
	return o.mutate(ctx, intentAddTable, "tables", func(s *models.Session) error {
		if _, err := game.AddTable(s, table); err != nil {
			return err
		}
		_, err := o.store.AddTable(ctx, s.ID, table)
		return persistence(err)
	})
}

// ChangeStatus moves the session to another lifecycle state.
func (o *Orchestrator) ChangeStatus(ctx context.Context, status models.Status) error {
	o.mu.Lock()
	key := "status:" + o.sessionID.String()
	o.mu.Unlock()

	return o.mutate(ctx, intentChangeStatus, key, func(s *models.Session) error {
		if _, err := game.ChangeStatus(s, status); err != nil {
			return err
		}
		_, err := o.store.UpdateSessionStatus(ctx, s.ID, status)
		return persistence(err)
	})
}

// mutate runs apply against a copy of the current session, then re-reads the session from
// the store. On failure the read model is left as it was and the error is surfaced.
func (o *Orchestrator) mutate(ctx context.Context, intent, key string, apply func(*models.Session) error) error {
	o.mu.Lock()
	if o.model.Session == nil {
		o.mu.Unlock()
		return classify(intent, ErrNotActive)
	}
	session := o.model.Session.Clone()
	gen := o.generation
	o.inflight[key]++
	o.mu.Unlock()
	o.emit()

	err := apply(session)

	o.mu.Lock()
	current := gen == o.generation
	if current {
		if o.inflight[key]--; o.inflight[key] <= 0 {
			delete(o.inflight, key)
		}
	}
	if err != nil {
		ie := classify(intent, err)
		if current {
			o.model.Err = ie
		}
		o.mu.Unlock()
		o.emit()
		o.logger.WithFields(logrus.Fields{
			"session": session.ID,
			"intent":  intent,
			"kind":    ie.Kind,
		}).Warnf("intent failed: %v", err)
		return ie
	}
	o.mu.Unlock()

	if !current {
		return nil
	}
	return o.reread(ctx, gen, intent)
}

// reread fetches the authoritative session after a write or a push hint.
func (o *Orchestrator) reread(ctx context.Context, gen uint64, intent string) error {
	o.mu.Lock()
	id := o.sessionID
	o.mu.Unlock()

	session, err := o.store.GetSession(ctx, id)
	if err == nil && session == nil {
		err = game.ErrNotFound
	}
	if err != nil {
		err = persistence(err)
	}

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return errStale
	}
	if err != nil {
		ie := classify(intent, err)
		o.model.Err = ie
		o.mu.Unlock()
		o.emit()
		if ie.Kind == KindNotFound && o.onNotFound != nil {
			o.onNotFound(id)
		}
		return ie
	}
	o.model.Session = session
	o.mu.Unlock()
	o.emit()
	return nil
}

func (o *Orchestrator) load(ctx context.Context, id uuid.UUID) (*models.Session, []models.Player, error) {
	var (
		session *models.Session
		roster  []models.Player
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := o.store.GetSession(gctx, id)
		if err != nil {
			return persistence(err)
		}
		if s == nil {
			return game.ErrNotFound
		}
		session = s
		return nil
	})
	g.Go(func() error {
		r, err := o.store.GetRoster(gctx)
		if err != nil {
			return persistence(err)
		}
		roster = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return session, roster, nil
}

func (o *Orchestrator) handleEvent(gen uint64, ev realtime.Event) {
	o.mu.Lock()
	if gen != o.generation || o.model.Session == nil {
		o.mu.Unlock()
		return
	}
	if ev.SessionID != uuid.Nil && ev.SessionID != o.model.Session.ID {
		o.mu.Unlock()
		return
	}
	next, ok := applyEvent(o.model.Session, ev)
	if ok {
		o.model.Session = next
	}
	o.mu.Unlock()

	if !ok {
		o.logger.WithField("type", ev.Type).Debug("event not applied locally, re-reading")
		o.reconcile(gen)
		return
	}
	o.emit()
}

// reconcile re-reads the session in the background. It is called from the channel's read
// goroutine, which must not block on the store.
func (o *Orchestrator) reconcile(gen uint64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()
		if err := o.reread(ctx, gen, intentRefresh); err != nil && !errors.Is(err, errStale) {
			o.logger.Warnf("reconcile failed: %v", err)
		}
	}()
}

// setConnection records the channel state. Events published while the channel was down are
// lost, so coming back from reconnecting re-reads the session.
func (o *Orchestrator) setConnection(gen uint64, s realtime.State) {
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return
	}
	prev := o.model.ConnectionStatus
	o.model.ConnectionStatus = s
	o.mu.Unlock()
	o.emit()

	if prev == realtime.StateReconnecting && s == realtime.StateConnected {
		o.reconcile(gen)
	}
}

func (o *Orchestrator) emit() {
	if o.onChange == nil {
		return
	}
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	o.onChange(o.Snapshot())
}
