package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/clinic-kiosk/internal/auth"
	"github.com/wolfman30/clinic-kiosk/internal/calendar"
	"github.com/wolfman30/clinic-kiosk/internal/confirmation"
	"github.com/wolfman30/clinic-kiosk/internal/gateway"
	"github.com/wolfman30/clinic-kiosk/internal/guard"
	httpmiddleware "github.com/wolfman30/clinic-kiosk/internal/http/middleware"
	"github.com/wolfman30/clinic-kiosk/internal/modes"
	"github.com/wolfman30/clinic-kiosk/internal/nav"
	"github.com/wolfman30/clinic-kiosk/internal/patient"
	"github.com/wolfman30/clinic-kiosk/internal/session"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

const (
	// noticeKey carries a one-off message to the calendar screen.
	noticeKey = "notice"

	entryLoadWait = 2 * time.Second
	healthTimeout = 3 * time.Second
)

type ctxKey string

const tabCtxKey ctxKey = "kiosk.tab"

// Config holds the handler's collaborators.
type Config struct {
	Tabs   *Tabs
	API    API
	Logger *logging.Logger

	ProfileSecret string
	ProfileTTL    time.Duration
	SecureCookies bool
	// AuthLimiter guards POST /auth. Optional.
	AuthLimiter func(http.Handler) http.Handler

	QRSize   int
	Location *time.Location
}

// Handler serves the kiosk screens and actions.
type Handler struct {
	cfg    Config
	views  *views
	logger *logging.Logger
}

// NewHandler parses the screen templates.
func NewHandler(cfg Config) (*Handler, error) {
	v, err := loadViews()
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.QRSize <= 0 {
		cfg.QRSize = confirmation.DefaultQRSize
	}
	return &Handler{cfg: cfg, views: v, logger: cfg.Logger}, nil
}

// Routes returns the kiosk's routes. Protected screens sit behind the route
// guard.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(httpmiddleware.ProfileCookie(h.cfg.ProfileSecret, h.cfg.ProfileTTL, h.cfg.SecureCookies))
	r.Use(h.withTab)

	r.Get("/", h.Entry)
	submit := http.Handler(http.HandlerFunc(h.Submit))
	if h.cfg.AuthLimiter != nil {
		submit = h.cfg.AuthLimiter(submit)
	}
	r.Method(http.MethodPost, "/auth", submit)
	r.Post("/auth/draft", h.SaveDraft)
	r.Post("/logout", h.Logout)
	r.Get("/live", h.Live)

	r.Group(func(protected chi.Router) {
		protected.Use(guard.Require(h.SessionState))
		protected.Get("/modes", h.Modes)
		protected.Post("/modes/walk-in", h.WalkIn)
		protected.Post("/modes/appointment", h.Appointment)
		protected.Get("/queue", h.Queue)
		protected.Get("/slots", h.Slots)
		protected.Post("/slots/navigate", h.SlotsNavigate)
		protected.Post("/slots/select", h.SlotsSelect)
		protected.Post("/slots/close", h.SlotsClose)
		protected.Post("/slots/delete", h.SlotsDelete)
		protected.Post("/slots/book", h.SlotsBook)
		protected.Get("/confirmation", h.Confirmation)
	})
	return r
}

// withTab resolves the tab named by the "tab" parameter. A page load without
// one is redirected to a fresh tab id; other requests are rejected.
func (h *Handler) withTab(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profileID, ok := httpmiddleware.ProfileFromContext(r.Context())
		if !ok {
			http.Error(w, "missing profile", http.StatusUnauthorized)
			return
		}

		tabID := r.FormValue("tab")
		if _, err := uuid.Parse(tabID); err != nil {
			if r.Method == http.MethodGet && r.Header.Get("Upgrade") == "" {
				q := r.URL.Query()
				q.Set("tab", uuid.NewString())
				http.Redirect(w, r, r.URL.Path+"?"+q.Encode(), http.StatusSeeOther)
				return
			}
			http.Error(w, "missing or invalid tab", http.StatusBadRequest)
			return
		}

		tab, err := h.cfg.Tabs.Get(profileID, tabID)
		if err != nil {
			h.logger.Error("kiosk: open tab failed", "tab_id", tabID, "error", err)
			http.Error(w, "kiosk unavailable", http.StatusServiceUnavailable)
			return
		}
		ctx := context.WithValue(r.Context(), tabCtxKey, tab)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TabFromContext returns the request's tab.
func TabFromContext(ctx context.Context) (*Tab, bool) {
	tab, ok := ctx.Value(tabCtxKey).(*Tab)
	return tab, ok
}

// SessionState resolves the guard's input for a request.
func (h *Handler) SessionState(r *http.Request) (session.State, string) {
	tab, ok := TabFromContext(r.Context())
	if !ok {
		return session.StateUnauthenticated, ""
	}
	return tab.Session.State(), tab.ID
}

// apiContext carries the tab's token to clinic API calls.
func apiContext(r *http.Request, tab *Tab) context.Context {
	return gateway.WithToken(r.Context(), tab.Session.Token())
}

func (h *Handler) navigate(w http.ResponseWriter, r *http.Request, tab *Tab, cmd *nav.Command) {
	if cmd == nil {
		cmd = nav.To(nav.Entry)
	}
	http.Redirect(w, r, cmd.URL(tab.ID), http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, status int, name, title string, tab *Tab, data any) {
	if err := h.views.render(w, status, name, page{Title: title, TabID: tab.ID, Data: data}); err != nil {
		h.logger.Error("kiosk: render failed", "page", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

type entryData struct {
	Draft   patient.Credentials
	Message string
}

// Entry shows the sign-in form, or skips it when the profile is already
// signed in.
func (h *Handler) Entry(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	if !tab.WaitLoaded(r.Context(), entryLoadWait) {
		w.Header().Set("Refresh", guard.PendingRetry)
		w.WriteHeader(http.StatusAccepted)
		return
	}
	view := tab.Auth.Enter(r.Context())
	if view.Navigate != nil {
		h.navigate(w, r, tab, view.Navigate)
		return
	}
	h.render(w, http.StatusOK, "entry.html", "Sign in", tab, entryData{Draft: view.Draft, Message: view.Message})
}

func credentialsFrom(r *http.Request) patient.Credentials {
	return patient.Credentials{
		NationalID: r.PostFormValue("ssn"),
		Phone:      r.PostFormValue("phone"),
	}
}

// Submit verifies the sign-in form.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	tab.WaitLoaded(r.Context(), entryLoadWait)
	creds := credentialsFrom(r)
	res := tab.Auth.Submit(r.Context(), creds)
	if res.Navigate != nil {
		h.navigate(w, r, tab, res.Navigate)
		return
	}

	status := http.StatusOK
	message := res.Message
	switch {
	case errors.Is(res.Err, auth.ErrSubmitInProgress):
		status = http.StatusConflict
		message = "Your sign-in is already being checked"
	case errors.Is(res.Err, auth.ErrValidation):
		status = http.StatusUnprocessableEntity
	}
	h.render(w, status, "entry.html", "Sign in", tab, entryData{Draft: creds, Message: message})
}

// SaveDraft stores the in-progress form. Failures are only logged.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	if err := tab.Auth.Edit(r.Context(), credentialsFrom(r)); err != nil {
		h.logger.Debug("kiosk: draft not saved", "tab_id", tab.ID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Logout ends the profile's session in every tab.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	out := tab.Modes.Logout(r.Context())
	h.navigate(w, r, tab, out.Navigate)
}

type modesData struct {
	Name string
}

// Modes shows the walk-in / appointment choice.
func (h *Handler) Modes(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	data := modesData{}
	if id := tab.Session.Snapshot().Identity; id != nil {
		data.Name = id.Name
	}
	h.render(w, http.StatusOK, "modes.html", "Choose", tab, data)
}

// WalkIn joins the queue and moves to the queue screen.
func (h *Handler) WalkIn(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	snap := tab.Session.Snapshot()
	if snap.Identity == nil {
		h.navigate(w, r, tab, nav.To(nav.Entry))
		return
	}
	out := tab.Modes.WalkIn(apiContext(r, tab), *snap.Identity)
	h.navigate(w, r, tab, out.Navigate)
}

// Appointment moves to the calendar. Each entry re-mounts it, so the next
// GET /slots starts on today with a fresh inventory.
func (h *Handler) Appointment(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	out := tab.Modes.Appointment(apiContext(r, tab))
	tab.Calendar.Unmount()
	h.navigate(w, r, tab, out.Navigate)
}

type queueData struct {
	Position      string
	EstimatedWait string
}

// Queue shows the walk-in ticket.
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	q := r.URL.Query()
	h.render(w, http.StatusOK, "queue.html", "Queue", tab, queueData{
		Position:      q.Get(modes.QueryPosition),
		EstimatedWait: q.Get(modes.QueryEstimatedWait),
	})
}

type direction struct {
	Value calendar.Direction
	Label string
}

var directions = []direction{
	{calendar.Previous, "Previous Week"},
	{calendar.Today, "Today"},
	{calendar.Next, "Next Week"},
}

type slotsData struct {
	Week       calendar.WeekView
	Notice     string
	Directions []direction
}

// Slots shows the week grid. The first visit mounts the calendar.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	notice := r.URL.Query().Get(noticeKey)
	if !tab.Calendar.Mounted() {
		if err := tab.Calendar.Mount(apiContext(r, tab)); err != nil {
			notice = "Could not load slots"
		}
	}
	h.render(w, http.StatusOK, "slots.html", "Appointments", tab, slotsData{
		Week:       tab.Calendar.Week(),
		Notice:     notice,
		Directions: directions,
	})
}

func slotsWithNotice(notice string) *nav.Command {
	cmd := nav.To(nav.Slots)
	if notice != "" {
		cmd.Query = url.Values{noticeKey: []string{notice}}
	}
	return cmd
}

// SlotsNavigate moves the visible week.
func (h *Handler) SlotsNavigate(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	dir, err := calendar.ParseDirection(r.PostFormValue("direction"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	notice := ""
	if err := tab.Calendar.Navigate(apiContext(r, tab), dir); err != nil {
		notice = "Could not load slots"
	}
	h.navigate(w, r, tab, slotsWithNotice(notice))
}

// SlotsSelect opens the detail panel.
func (h *Handler) SlotsSelect(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	slotID, err := strconv.ParseInt(r.PostFormValue("slot_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid slot_id", http.StatusBadRequest)
		return
	}
	notice := ""
	if err := tab.Calendar.SelectSlot(slotID); err != nil {
		notice = "That slot is no longer available"
	}
	h.navigate(w, r, tab, slotsWithNotice(notice))
}

// SlotsClose closes the detail panel.
func (h *Handler) SlotsClose(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	tab.Calendar.CloseDetail()
	h.navigate(w, r, tab, nav.To(nav.Slots))
}

// SlotsDelete cancels the selected slot. A failure leaves the panel open.
func (h *Handler) SlotsDelete(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	notice := ""
	if err := tab.Calendar.DeleteSelected(apiContext(r, tab)); err != nil {
		notice = "Could not cancel the slot"
		if errors.Is(err, calendar.ErrNoSelection) {
			notice = "Select a slot first"
		}
	}
	h.navigate(w, r, tab, slotsWithNotice(notice))
}

// SlotsBook books the selected slot and shows the confirmation.
func (h *Handler) SlotsBook(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	snap := tab.Session.Snapshot()
	if snap.Identity == nil {
		h.navigate(w, r, tab, nav.To(nav.Entry))
		return
	}
	params, err := tab.Calendar.BookSelected(apiContext(r, tab), snap.Identity.ID)
	if err != nil {
		notice := "Select a slot first"
		var actionErr *calendar.ActionError
		if errors.As(err, &actionErr) {
			notice = gateway.Message(actionErr.Err, "Booking failed")
		}
		h.navigate(w, r, tab, slotsWithNotice(notice))
		return
	}
	h.navigate(w, r, tab, &nav.Command{To: nav.Confirmation, Query: params.Query()})
}

// Confirmation renders the booked appointment from the query alone.
func (h *Handler) Confirmation(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	view, err := confirmation.Build(confirmation.FromQuery(r.URL.Query()), h.cfg.QRSize, h.cfg.Location)
	if err != nil {
		h.logger.Error("kiosk: build confirmation failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.render(w, http.StatusOK, "confirmation.html", "Confirmed", tab, view)
}

// Live upgrades to a websocket that receives the tab's cross-tab updates.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	tab, _ := TabFromContext(r.Context())
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveLive(tab, conn)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveLive(tab *Tab, conn *websocket.Conn) {
	live, detach := tab.attach(conn)
	defer detach()

	if err := live.send(LiveMessage{Type: "hello", State: tab.Session.State().String()}); err != nil {
		return
	}
	h.logger.Debug("kiosk: live connection opened", "tab_id", tab.ID)

	for {
		var msg LiveMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("kiosk: live connection closed", "tab_id", tab.ID, "error", err)
			return
		}
		if msg.Type == "ping" {
			_ = live.send(LiveMessage{Type: "pong"})
		}
	}
}

// Health reports liveness and whether the clinic API answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	api := "ok"
	if h.cfg.API != nil {
		if err := h.cfg.API.Health(ctx); err != nil {
			h.logger.Warn("kiosk: clinic API health check failed", "error", err)
			api = "unavailable"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "clinic_api": api})
}
