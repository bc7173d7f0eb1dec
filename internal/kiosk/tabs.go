// Package kiosk serves the kiosk screens. Each browser tab gets its own Tab
// holding the per-tab flows; tabs of one browser profile share a session
// through the shared kvstore.
package kiosk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/clinic-kiosk/internal/auth"
	"github.com/wolfman30/clinic-kiosk/internal/calendar"
	"github.com/wolfman30/clinic-kiosk/internal/draft"
	"github.com/wolfman30/clinic-kiosk/internal/kvstore"
	"github.com/wolfman30/clinic-kiosk/internal/modes"
	"github.com/wolfman30/clinic-kiosk/internal/nav"
	"github.com/wolfman30/clinic-kiosk/internal/observability/metrics"
	"github.com/wolfman30/clinic-kiosk/internal/session"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

// API is the clinic API surface the kiosk uses.
type API interface {
	auth.Authenticator
	modes.Gateway
	calendar.Gateway
	Health(ctx context.Context) error
}

// TabsConfig wires every tab's flows.
type TabsConfig struct {
	// Shared is visible to every tab of a profile.
	Shared kvstore.Store
	// TabLocal holds per-tab drafts.
	TabLocal kvstore.Store
	API      API
	Logger   *logging.Logger
	Metrics  *metrics.KioskMetrics

	Location       *time.Location
	DayStartHour   int
	DayEndHour     int
	WalkInDoctorID int64
	IdleTimeout    time.Duration
}

// LiveMessage is pushed to a tab's open pages.
type LiveMessage struct {
	Type     string `json:"type"`
	Location string `json:"location,omitempty"`
	State    string `json:"state,omitempty"`
}

// Tab is one browser tab's state.
type Tab struct {
	ID        string
	ProfileID string
	Session   *session.Store
	Draft     *draft.Cache
	Auth      *auth.Flow
	Modes     *modes.Selector
	Calendar  *calendar.Calendar

	ctx         context.Context
	cancel      context.CancelFunc
	loaded      chan struct{}
	unsubscribe func()
	logger      *logging.Logger

	mu       sync.Mutex
	lastSeen time.Time
	conns    map[*liveConn]struct{}
}

// liveConn is one open page. Writes to it are serialized by its own lock so
// a slow page never holds up the tab.
type liveConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *liveConn) send(msg LiveMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.JSON.Send(c.ws, msg)
}

// Loaded is closed once the tab's first session load has finished.
func (t *Tab) Loaded() <-chan struct{} { return t.loaded }

// WaitLoaded blocks until the first load finishes, ctx ends, or max elapses.
func (t *Tab) WaitLoaded(ctx context.Context, max time.Duration) bool {
	timer := time.NewTimer(max)
	defer timer.Stop()
	select {
	case <-t.loaded:
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}

func (t *Tab) touch(now time.Time) {
	t.mu.Lock()
	t.lastSeen = now
	t.mu.Unlock()
}

func (t *Tab) idleSince() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeen
}

func (t *Tab) live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *Tab) attach(ws *websocket.Conn) (*liveConn, func()) {
	conn := &liveConn{ws: ws}
	t.mu.Lock()
	t.conns[conn] = struct{}{}
	t.mu.Unlock()
	return conn, func() {
		t.mu.Lock()
		delete(t.conns, conn)
		t.mu.Unlock()
	}
}

// push sends msg to every open page of the tab. The tab lock is held only to
// snapshot the pages.
func (t *Tab) push(msg LiveMessage) {
	t.mu.Lock()
	conns := make([]*liveConn, 0, len(t.conns))
	for conn := range t.conns {
		conns = append(conns, conn)
	}
	t.mu.Unlock()

	for _, conn := range conns {
		if err := conn.send(msg); err != nil {
			t.logger.Debug("kiosk: live push failed", "tab_id", t.ID, "error", err)
			t.mu.Lock()
			delete(t.conns, conn)
			t.mu.Unlock()
			_ = conn.ws.Close()
		}
	}
}

// onSession keeps the tab's flows consistent with the session and tells open
// pages about changes made by other tabs.
func (t *Tab) onSession(ev session.Event) {
	if ev.SignedOut() {
		t.Auth.Reset()
		t.Calendar.CloseDetail()
	}
	if ev.Reason != session.ReasonExternal {
		return
	}
	if ev.ExternalSignOut {
		t.push(LiveMessage{Type: "redirect", Location: nav.To(nav.Entry).URL(t.ID)})
		return
	}
	t.push(LiveMessage{Type: "session", State: ev.Snapshot.State.String()})
}

func (t *Tab) close() {
	t.unsubscribe()
	t.cancel()
	t.mu.Lock()
	for conn := range t.conns {
		_ = conn.ws.Close()
	}
	t.conns = map[*liveConn]struct{}{}
	t.mu.Unlock()
}

// Tabs is the registry of live tabs.
type Tabs struct {
	cfg  TabsConfig
	base context.Context
	now  func() time.Time

	mu   sync.Mutex
	tabs map[string]*Tab
}

// NewTabs creates a registry. Tabs live until evicted or until ctx ends.
func NewTabs(ctx context.Context, cfg TabsConfig) *Tabs {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TabLocal == nil {
		cfg.TabLocal = cfg.Shared
	}
	return &Tabs{
		cfg:  cfg,
		base: ctx,
		now:  time.Now,
		tabs: make(map[string]*Tab),
	}
}

func tabKey(profileID, tabID string) string {
	return profileID + "/" + tabID
}

// Get returns the tab, creating it on first use. A new tab starts in the
// Loading state; its first session load runs in the background.
func (ts *Tabs) Get(profileID, tabID string) (*Tab, error) {
	key := tabKey(profileID, tabID)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if tab, ok := ts.tabs[key]; ok {
		tab.touch(ts.now())
		return tab, nil
	}

	tab, err := ts.open(profileID, tabID)
	if err != nil {
		return nil, err
	}
	tab.touch(ts.now())
	ts.tabs[key] = tab
	return tab, nil
}

// Lookup returns an existing tab.
func (ts *Tabs) Lookup(profileID, tabID string) (*Tab, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	tab, ok := ts.tabs[tabKey(profileID, tabID)]
	return tab, ok
}

// Len reports the number of live tabs.
func (ts *Tabs) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.tabs)
}

func (ts *Tabs) open(profileID, tabID string) (*Tab, error) {
	cfg := ts.cfg
	tabLogger := cfg.Logger.With("profile_id", profileID, "tab_id", tabID)

	ctx, cancel := context.WithCancel(ts.base)
	sess := session.NewStore(cfg.Shared, profileID,
		session.WithLogger(tabLogger),
		session.WithMetrics(cfg.Metrics),
	)
	cache := draft.NewCache(cfg.TabLocal, profileID, tabID, tabLogger)

	tab := &Tab{
		ID:        tabID,
		ProfileID: profileID,
		Session:   sess,
		Draft:     cache,
		Auth:      auth.NewFlow(cfg.API, sess, cache, auth.WithLogger(tabLogger), auth.WithMetrics(cfg.Metrics)),
		Modes: modes.NewSelector(cfg.API, sess,
			modes.WithLogger(tabLogger),
			modes.WithMetrics(cfg.Metrics),
			modes.WithWalkInDoctor(cfg.WalkInDoctorID),
		),
		Calendar: calendar.New(cfg.API,
			calendar.WithLocation(cfg.Location),
			calendar.WithDayBounds(cfg.DayStartHour, cfg.DayEndHour),
			calendar.WithLogger(tabLogger),
			calendar.WithMetrics(cfg.Metrics),
		),
		ctx:    ctx,
		cancel: cancel,
		loaded: make(chan struct{}),
		logger: tabLogger,
		conns:  make(map[*liveConn]struct{}),
	}
	tab.unsubscribe = sess.Subscribe(tab.onSession)

	if err := sess.Watch(ctx); err != nil {
		tab.unsubscribe()
		cancel()
		return nil, fmt.Errorf("kiosk: open tab: %w", err)
	}
	go func() {
		defer close(tab.loaded)
		sess.Load(ctx)
	}()

	tabLogger.Debug("tab opened")
	return tab, nil
}

// Sweep closes tabs idle longer than the configured timeout. Tabs with an
// open live connection are kept.
func (ts *Tabs) Sweep() int {
	if ts.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := ts.now().Add(-ts.cfg.IdleTimeout)

	ts.mu.Lock()
	var idle []*Tab
	for key, tab := range ts.tabs {
		if tab.live() == 0 && tab.idleSince().Before(cutoff) {
			idle = append(idle, tab)
			delete(ts.tabs, key)
		}
	}
	ts.mu.Unlock()

	for _, tab := range idle {
		tab.close()
		tab.logger.Debug("tab evicted")
	}
	return len(idle)
}

// Run sweeps idle tabs every interval until ctx ends, then closes all tabs.
func (ts *Tabs) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			ts.Close()
			return
		case <-ticker.C:
			if n := ts.Sweep(); n > 0 {
				ts.cfg.Logger.Info("evicted idle tabs", "count", n)
			}
		}
	}
}

// Close closes every tab.
func (ts *Tabs) Close() {
	ts.mu.Lock()
	tabs := ts.tabs
	ts.tabs = make(map[string]*Tab)
	ts.mu.Unlock()
	for _, tab := range tabs {
		tab.close()
	}
}
