// Package modes handles the choice between joining the walk-in queue and
// booking an appointment, plus sign-out.
package modes

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/wolfman30/clinic-kiosk/internal/gateway"
	"github.com/wolfman30/clinic-kiosk/internal/nav"
	"github.com/wolfman30/clinic-kiosk/internal/observability/metrics"
	"github.com/wolfman30/clinic-kiosk/internal/patient"
	"github.com/wolfman30/clinic-kiosk/internal/slots"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

// Query keys carried to the queue screen.
const (
	QueryPosition      = "position"
	QueryEstimatedWait = "estimated_wait"
)

// Gateway is the subset of the clinic API the selector calls.
type Gateway interface {
	JoinQueue(ctx context.Context, req gateway.JoinQueueRequest) (*gateway.QueueTicket, error)
	GetSlots(ctx context.Context) ([]slots.Slot, error)
}

// SessionClearer ends the session.
type SessionClearer interface {
	Clear(ctx context.Context) error
}

// Selector runs the mode screen's actions. Every action navigates even when
// its remote call fails.
type Selector struct {
	api      Gateway
	session  SessionClearer
	doctorID int64
	logger   *logging.Logger
	metrics  *metrics.KioskMetrics
}

// Option configures a Selector.
type Option func(*Selector)

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics counts failed best-effort actions.
func WithMetrics(m *metrics.KioskMetrics) Option {
	return func(s *Selector) {
		s.metrics = m
	}
}

// WithWalkInDoctor routes walk-ins to a specific doctor's queue. Zero lets
// the clinic API choose.
func WithWalkInDoctor(doctorID int64) Option {
	return func(s *Selector) {
		s.doctorID = doctorID
	}
}

// NewSelector creates a Selector.
func NewSelector(api Gateway, sess SessionClearer, opts ...Option) *Selector {
	s := &Selector{
		api:     api,
		session: sess,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WalkIn asks the clinic to queue the patient and moves to the queue screen.
// The ticket, when one came back, travels in the query.
func (s *Selector) WalkIn(ctx context.Context, identity patient.Identity) nav.Outcome {
	cmd := nav.To(nav.Queue)
	ticket, err := s.api.JoinQueue(ctx, gateway.JoinQueueRequest{DoctorID: s.doctorID, PatientID: identity.ID})
	if err != nil {
		s.logger.Warn("modes: join queue failed", "patient_id", identity.ID, "error", err)
		s.metrics.ObserveActionFailure("join_queue")
		return nav.Outcome{Navigate: cmd, Err: fmt.Errorf("modes: walk-in: %w", err)}
	}
	if ticket != nil {
		cmd.Query = url.Values{}
		cmd.Query.Set(QueryPosition, strconv.Itoa(ticket.Position))
		if ticket.EstimatedWait != "" {
			cmd.Query.Set(QueryEstimatedWait, ticket.EstimatedWait)
		}
	}
	s.logger.Info("patient joined walk-in queue", "patient_id", identity.ID)
	return nav.Outcome{Navigate: cmd}
}

// Appointment warms the slot inventory and moves to the calendar, which
// fetches again on mount.
func (s *Selector) Appointment(ctx context.Context) nav.Outcome {
	cmd := nav.To(nav.Slots)
	if _, err := s.api.GetSlots(ctx); err != nil {
		s.logger.Warn("modes: slot prefetch failed", "error", err)
		s.metrics.ObserveActionFailure("prefetch_slots")
		return nav.Outcome{Navigate: cmd, Err: fmt.Errorf("modes: prefetch: %w", err)}
	}
	return nav.Outcome{Navigate: cmd}
}

// Logout clears the session and returns to the entry screen.
func (s *Selector) Logout(ctx context.Context) nav.Outcome {
	cmd := nav.To(nav.Entry)
	if err := s.session.Clear(ctx); err != nil {
		s.logger.Error("modes: logout failed", "error", err)
		s.metrics.ObserveActionFailure("logout")
		return nav.Outcome{Navigate: cmd, Err: err}
	}
	return nav.Outcome{Navigate: cmd}
}
