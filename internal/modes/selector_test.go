package modes

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-kiosk/internal/gateway"
	"github.com/wolfman30/clinic-kiosk/internal/kvstore"
	"github.com/wolfman30/clinic-kiosk/internal/nav"
	"github.com/wolfman30/clinic-kiosk/internal/observability/metrics"
	"github.com/wolfman30/clinic-kiosk/internal/patient"
	"github.com/wolfman30/clinic-kiosk/internal/session"
	"github.com/wolfman30/clinic-kiosk/internal/slots"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

type fakeGateway struct {
	joinReq  gateway.JoinQueueRequest
	ticket   *gateway.QueueTicket
	joinErr  error
	slotsErr error
	fetches  int
}

func (f *fakeGateway) JoinQueue(_ context.Context, req gateway.JoinQueueRequest) (*gateway.QueueTicket, error) {
	f.joinReq = req
	return f.ticket, f.joinErr
}

func (f *fakeGateway) GetSlots(context.Context) ([]slots.Slot, error) {
	f.fetches++
	return nil, f.slotsErr
}

type failingClearer struct{}

func (failingClearer) Clear(context.Context) error { return errors.New("redis down") }

var jane = patient.Identity{ID: 7, NationalID: "123", Name: "Jane Doe", Phone: "555"}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelMatches(m, label) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelMatches(m *dto.Metric, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetValue() == value {
			return true
		}
	}
	return false
}

func TestWalkInCarriesTicket(t *testing.T) {
	api := &fakeGateway{ticket: &gateway.QueueTicket{Position: 3, EstimatedWait: "45 minutes"}}
	sel := NewSelector(api, nil, WithWalkInDoctor(2), WithLogger(logging.New("error")))

	out := sel.WalkIn(context.Background(), jane)
	require.NoError(t, out.Err)
	assert.Equal(t, gateway.JoinQueueRequest{DoctorID: 2, PatientID: 7}, api.joinReq)
	assert.Equal(t, nav.Queue, out.Navigate.To)
	assert.Equal(t, "3", out.Navigate.Query.Get(QueryPosition))
	assert.Equal(t, "45 minutes", out.Navigate.Query.Get(QueryEstimatedWait))
}

func TestWalkInFailureStillNavigates(t *testing.T) {
	reg := prometheus.NewRegistry()
	api := &fakeGateway{joinErr: &gateway.APIError{StatusCode: 409, Message: "Patient already in queue"}}
	sel := NewSelector(api, nil, WithLogger(logging.New("error")), WithMetrics(metrics.NewKioskMetrics(reg)))

	out := sel.WalkIn(context.Background(), jane)
	assert.Error(t, out.Err)
	assert.Equal(t, nav.Queue, out.Navigate.To)
	assert.Empty(t, out.Navigate.Query)
	assert.Equal(t, float64(1), counterValue(t, reg, "kiosk_actions_failures_total", "join_queue"))
}

func TestAppointmentPrefetchFailureStillNavigates(t *testing.T) {
	api := &fakeGateway{slotsErr: errors.New("timeout")}
	sel := NewSelector(api, nil, WithLogger(logging.New("error")))

	out := sel.Appointment(context.Background())
	assert.Error(t, out.Err)
	assert.Equal(t, nav.Slots, out.Navigate.To)
	assert.Equal(t, 1, api.fetches)
}

func TestAppointmentNavigatesToCalendar(t *testing.T) {
	sel := NewSelector(&fakeGateway{}, nil)
	out := sel.Appointment(context.Background())
	assert.NoError(t, out.Err)
	assert.Equal(t, nav.Slots, out.Navigate.To)
}

func TestLogoutClearsSession(t *testing.T) {
	ctx := context.Background()
	sess := session.NewStore(kvstore.NewMemoryStore(), "p", session.WithLogger(logging.New("error")))
	require.NoError(t, sess.Establish(ctx, "tok", jane))

	out := NewSelector(&fakeGateway{}, sess).Logout(ctx)
	assert.NoError(t, out.Err)
	assert.Equal(t, nav.Entry, out.Navigate.To)
	assert.Equal(t, session.StateUnauthenticated, sess.State())
}

func TestLogoutFailureStillNavigates(t *testing.T) {
	out := NewSelector(&fakeGateway{}, failingClearer{}, WithLogger(logging.New("error"))).Logout(context.Background())
	assert.Error(t, out.Err)
	assert.Equal(t, nav.Entry, out.Navigate.To)
}
