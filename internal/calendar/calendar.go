// Package calendar is the week view of bookable slots with its selection,
// detail panel, booking and cancellation.
package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/clinic-kiosk/internal/confirmation"
	"github.com/wolfman30/clinic-kiosk/internal/gateway"
	"github.com/wolfman30/clinic-kiosk/internal/observability/metrics"
	"github.com/wolfman30/clinic-kiosk/internal/slots"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

// Direction moves the visible week.
type Direction string

const (
	Previous Direction = "previous"
	Next     Direction = "next"
	Today    Direction = "today"
)

// ParseDirection validates a direction received from a form.
func ParseDirection(raw string) (Direction, error) {
	switch d := Direction(raw); d {
	case Previous, Next, Today:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, raw)
}

// Event is a slot placed on the calendar.
type Event struct {
	Title string
	Start time.Time
	End   time.Time
	Slot  slots.Slot
}

// Gateway is the subset of the clinic API the calendar calls.
type Gateway interface {
	GetSlots(ctx context.Context) ([]slots.Slot, error)
	DeleteSlot(ctx context.Context, slotID int64) error
	BookSlot(ctx context.Context, req gateway.BookSlotRequest) (*gateway.Booking, error)
}

// State is the calendar's view state. Selected and DetailOpen always agree.
type State struct {
	Anchor     time.Time
	Selected   *slots.Slot
	DetailOpen bool
}

// Calendar is one tab's slot calendar.
type Calendar struct {
	api      Gateway
	now      func() time.Time
	loc      *time.Location
	dayStart int
	dayEnd   int
	logger   *logging.Logger
	metrics  *metrics.KioskMetrics

	mu       sync.Mutex
	mounted  bool
	anchor   time.Time
	events   []Event
	selected *slots.Slot
	seq      uint64
}

// Option configures a Calendar.
type Option func(*Calendar)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Calendar) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the kiosk timezone used for display and for timestamps
// the API sends without a zone.
func WithLocation(loc *time.Location) Option {
	return func(c *Calendar) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithDayBounds sets the visible hours, [start, end).
func WithDayBounds(start, end int) Option {
	return func(c *Calendar) {
		if start >= 0 && end <= 24 && start < end {
			c.dayStart, c.dayEnd = start, end
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Calendar) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics counts stale responses and failed actions.
func WithMetrics(m *metrics.KioskMetrics) Option {
	return func(c *Calendar) {
		c.metrics = m
	}
}

// New creates an unmounted calendar.
func New(api Gateway, opts ...Option) *Calendar {
	c := &Calendar{
		api:      api,
		now:      time.Now,
		loc:      time.UTC,
		dayStart: 8,
		dayEnd:   20,
		logger:   logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mount anchors the calendar on today the first time it is shown and
// fetches the inventory.
func (c *Calendar) Mount(ctx context.Context) error {
	c.mu.Lock()
	if !c.mounted {
		c.mounted = true
		c.anchor = c.now().In(c.loc)
	}
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// Unmount forgets the anchor and selection so the next Mount starts over on
// today with a fresh fetch.
func (c *Calendar) Unmount() {
	c.mu.Lock()
	c.mounted = false
	c.selected = nil
	c.mu.Unlock()
}

// Mounted reports whether Mount has run.
func (c *Calendar) Mounted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mounted
}

// Refresh re-fetches the full inventory. Only the response to the most
// recently issued fetch is applied.
func (c *Calendar) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	raw, err := c.api.GetSlots(ctx)
	if err != nil {
		c.logger.Warn("calendar: fetch slots failed", "error", err)
		return fmt.Errorf("calendar: refresh: %w", err)
	}
	events := c.toEvents(raw)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		c.metrics.ObserveStaleResponse()
		c.logger.Debug("calendar: discarding stale inventory", "seq", seq, "latest", c.seq)
		return nil
	}
	c.events = events
	return nil
}

// Navigate moves the visible week and refreshes. An unmounted calendar
// moves relative to today.
func (c *Calendar) Navigate(ctx context.Context, dir Direction) error {
	c.mu.Lock()
	if !c.mounted {
		c.anchor = c.now().In(c.loc)
	}
	switch dir {
	case Previous:
		c.anchor = c.anchor.AddDate(0, 0, -7)
	case Next:
		c.anchor = c.anchor.AddDate(0, 0, 7)
	case Today:
		c.anchor = c.now().In(c.loc)
	default:
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}
	c.mounted = true
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// SelectEvent opens the detail panel on the event's slot.
func (c *Calendar) SelectEvent(ev Event) {
	slot := ev.Slot
	c.mu.Lock()
	c.selected = &slot
	c.mu.Unlock()
}

// SelectSlot selects a slot by id from the loaded inventory.
func (c *Calendar) SelectSlot(slotID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if ev.Slot.ID == slotID {
			slot := ev.Slot
			c.selected = &slot
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrUnknownSlot, slotID)
}

// CloseDetail clears the selection.
func (c *Calendar) CloseDetail() {
	c.mu.Lock()
	c.selected = nil
	c.mu.Unlock()
}

// State returns a copy of the view state.
func (c *Calendar) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Calendar) stateLocked() State {
	st := State{Anchor: c.anchor}
	if c.selected != nil {
		slot := *c.selected
		st.Selected = &slot
		st.DetailOpen = true
	}
	return st
}

// Events returns the loaded events in inventory order.
func (c *Calendar) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// DeleteSelected cancels the selected slot. On success the panel closes and
// the inventory is re-fetched; on failure the panel stays open.
func (c *Calendar) DeleteSelected(ctx context.Context) error {
	slot, err := c.selection()
	if err != nil {
		return err
	}

	if err := c.api.DeleteSlot(ctx, slot.ID); err != nil {
		c.logger.Error("calendar: delete slot failed", "slot_id", slot.ID, "error", err)
		c.metrics.ObserveActionFailure("delete_slot")
		return &ActionError{Action: "delete", SlotID: slot.ID, Err: err}
	}

	c.closeIfSelected(slot.ID)
	c.logger.Info("slot deleted", "slot_id", slot.ID)
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("calendar: refresh after delete failed", "slot_id", slot.ID, "error", err)
	}
	return nil
}

// BookSelected books the selected slot for patientID and returns the
// confirmation values copied from it.
func (c *Calendar) BookSelected(ctx context.Context, patientID int64) (confirmation.Params, error) {
	slot, err := c.selection()
	if err != nil {
		return confirmation.Params{}, err
	}
	params := confirmation.FromSlot(slot)

	booking, err := c.api.BookSlot(ctx, gateway.BookSlotRequest{SlotID: slot.ID, PatientID: patientID})
	if err != nil {
		c.logger.Error("calendar: book slot failed", "slot_id", slot.ID, "error", err)
		c.metrics.ObserveActionFailure("book_slot")
		return confirmation.Params{}, &ActionError{Action: "book", SlotID: slot.ID, Err: err}
	}
	if booking != nil && booking.DoctorID != 0 && params.DoctorID == "" {
		params.DoctorID = fmt.Sprint(booking.DoctorID)
	}

	c.closeIfSelected(slot.ID)
	c.logger.Info("slot booked", "slot_id", slot.ID, "patient_id", patientID)
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("calendar: refresh after booking failed", "slot_id", slot.ID, "error", err)
	}
	return params, nil
}

func (c *Calendar) selection() (slots.Slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return slots.Slot{}, ErrNoSelection
	}
	return *c.selected, nil
}

func (c *Calendar) closeIfSelected(slotID int64) {
	c.mu.Lock()
	if c.selected != nil && c.selected.ID == slotID {
		c.selected = nil
	}
	c.mu.Unlock()
}

func (c *Calendar) toEvents(raw []slots.Slot) []Event {
	events := make([]Event, 0, len(raw))
	for _, s := range raw {
		start, end, err := s.Interval(c.loc)
		if err != nil {
			c.logger.Warn("calendar: dropping invalid slot", "slot_id", s.ID, "error", err)
			continue
		}
		start, end = start.In(c.loc), end.In(c.loc)
		events = append(events, Event{
			Title: start.Format("15:04") + " - " + end.Format("15:04"),
			Start: start,
			End:   end,
			Slot:  s,
		})
	}
	return events
}
