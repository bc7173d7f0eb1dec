// Package session holds the authenticated patient identity and API token for
// one browser profile. Every tab of the profile has its own Store handle over
// the same shared kvstore; handles converge by watching the change feed.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-kiosk/internal/kvstore"
	"github.com/wolfman30/clinic-kiosk/internal/observability/metrics"
	"github.com/wolfman30/clinic-kiosk/internal/patient"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

// State is the store's view of the session.
type State int

const (
	// StateLoading means the first Load has not completed yet. Consumers must
	// not treat it as signed out.
	StateLoading State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "loading"
	}
}

// Snapshot is an immutable copy of the session state.
type Snapshot struct {
	State    State
	Token    string
	Identity *patient.Identity
}

// Authenticated reports whether a full session is present.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated
}

// Reason says what produced an Event.
type Reason string

const (
	ReasonLoaded      Reason = "loaded"
	ReasonEstablished Reason = "established"
	ReasonCleared     Reason = "cleared"
	ReasonExternal    Reason = "external_change"
)

// Event is delivered to subscribers after every state transition.
type Event struct {
	Snapshot Snapshot
	Reason   Reason
	// ExternalSignOut is set when another context removed the session while
	// this one still considered it live.
	ExternalSignOut bool
}

// SignedOut reports whether the caller should send the tab back to the entry
// screen.
func (e Event) SignedOut() bool {
	return e.Reason == ReasonCleared || e.ExternalSignOut
}

const (
	tokenField = "token"
	userField  = "user"
)

// Store is one context's handle on a profile's persisted session.
type Store struct {
	kv        kvstore.Store
	profileID string
	origin    string
	logger    *logging.Logger
	metrics   *metrics.KioskMetrics

	mu      sync.RWMutex
	snap    Snapshot
	version uint64

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records repairs and cross-tab events.
func WithMetrics(m *metrics.KioskMetrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithOrigin overrides the generated context identifier.
func WithOrigin(origin string) Option {
	return func(s *Store) {
		if origin != "" {
			s.origin = origin
		}
	}
}

// NewStore creates a handle in the Loading state.
func NewStore(kv kvstore.Store, profileID string, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		profileID: profileID,
		origin:    uuid.NewString(),
		logger:    logging.Default(),
		snap:      Snapshot{State: StateLoading},
		subs:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Origin identifies this handle's writes on the change feed.
func (s *Store) Origin() string { return s.origin }

func (s *Store) key(field string) string {
	return "profile:" + s.profileID + ":" + field
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// State returns the current state.
func (s *Store) State() State {
	return s.Snapshot().State
}

// Token returns the API token, or "" when not authenticated.
func (s *Store) Token() string {
	return s.Snapshot().Token
}

// Load reads the persisted session. Malformed or partial state is removed
// and reported as no session; the repair is never surfaced as an error.
// A transition made while the read was in flight wins over the loaded state.
func (s *Store) Load(ctx context.Context) Snapshot {
	s.mu.RLock()
	version := s.version
	s.mu.RUnlock()

	snap := s.read(ctx)

	s.mu.Lock()
	if s.version != version {
		current := s.snap
		s.mu.Unlock()
		return current
	}
	s.snap = snap
	s.version++
	s.mu.Unlock()

	s.notify(Event{Snapshot: snap, Reason: ReasonLoaded})
	return snap
}

// Establish persists a new session. An invalid payload fails with
// ErrInvalidCredentialPayload and leaves any existing session in place.
func (s *Store) Establish(ctx context.Context, token string, identity patient.Identity) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredentialPayload)
	}
	if err := identity.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentialPayload, err)
	}
	payload, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("session: encode identity: %w", err)
	}

	if err := s.kv.SetMany(ctx, s.origin, map[string]string{
		s.key(tokenField): token,
		s.key(userField):  string(payload),
	}); err != nil {
		return fmt.Errorf("session: establish: %w", err)
	}

	snap := Snapshot{State: StateAuthenticated, Token: token, Identity: &identity}
	s.set(snap)
	s.logger.Info("session established", "profile_id", s.profileID, "patient_id", identity.ID)
	s.notify(Event{Snapshot: snap, Reason: ReasonEstablished})
	return nil
}

// Clear removes the persisted session. The in-memory state becomes
// Unauthenticated even if the delete fails.
func (s *Store) Clear(ctx context.Context) error {
	err := s.kv.Delete(ctx, s.origin, s.key(tokenField), s.key(userField))

	snap := Snapshot{State: StateUnauthenticated}
	s.set(snap)
	s.logger.Info("session cleared", "profile_id", s.profileID)
	s.notify(Event{Snapshot: snap, Reason: ReasonCleared})

	if err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// Subscribe registers fn for every subsequent Event. The returned func
// removes the subscription.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Watch subscribes to the change feed and follows changes made by other
// contexts in the background until ctx is done. The subscription is active
// when Watch returns.
func (s *Store) Watch(ctx context.Context) error {
	feed, err := s.kv.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("session: watch: %w", err)
	}
	go s.follow(ctx, feed)
	return nil
}

func (s *Store) follow(ctx context.Context, feed <-chan kvstore.Change) {
	tokenKey, userKey := s.key(tokenField), s.key(userField)
	for change := range feed {
		if change.Origin == s.origin {
			continue
		}
		if change.Key != tokenKey && change.Key != userKey {
			continue
		}

		prev := s.Snapshot()
		snap := s.read(ctx)
		s.set(snap)

		ev := Event{Snapshot: snap, Reason: ReasonExternal}
		if change.Deleted && snap.State == StateUnauthenticated && prev.State != StateUnauthenticated {
			ev.ExternalSignOut = true
			s.metrics.ObserveSessionEvent("external_sign_out")
			s.logger.Info("session removed by another context", "profile_id", s.profileID)
		} else {
			s.metrics.ObserveSessionEvent("external_change")
		}
		s.notify(ev)
	}
}

func (s *Store) read(ctx context.Context) Snapshot {
	unauth := Snapshot{State: StateUnauthenticated}

	tokenKey, userKey := s.key(tokenField), s.key(userField)
	values, err := s.kv.GetMany(ctx, tokenKey, userKey)
	if err != nil {
		s.logger.Error("session: read", "profile_id", s.profileID, "error", err)
		return unauth
	}
	token, hasToken := values[tokenKey]
	raw, hasUser := values[userKey]

	if !hasToken && !hasUser {
		return unauth
	}
	if !hasToken || !hasUser || token == "" || raw == "" {
		s.repair(ctx, "partial session")
		return unauth
	}

	var identity patient.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		s.repair(ctx, "unparsable identity")
		return unauth
	}
	if err := identity.Validate(); err != nil {
		s.repair(ctx, err.Error())
		return unauth
	}
	return Snapshot{State: StateAuthenticated, Token: token, Identity: &identity}
}

func (s *Store) repair(ctx context.Context, reason string) {
	s.logger.Warn("session: clearing corrupted state", "profile_id", s.profileID, "reason", reason)
	s.metrics.ObserveSessionEvent("repaired")
	if err := s.kv.Delete(ctx, s.origin, s.key(tokenField), s.key(userField)); err != nil {
		s.logger.Error("session: repair failed", "profile_id", s.profileID, "error", err)
	}
}

func (s *Store) set(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.version++
	s.mu.Unlock()
}

func (s *Store) notify(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
