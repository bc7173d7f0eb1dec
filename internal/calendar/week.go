package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/wolfman30/clinic-kiosk/internal/slots"
)

// Placement is an event positioned inside one day's visible window, as
// percentages of the window height.
type Placement struct {
	Event
	Top    float64
	Height float64
}

// Day is one column of the week grid.
type Day struct {
	Date   time.Time
	Label  string
	Events []Placement
}

// WeekView is the grid for the anchor's week, Sunday first.
type WeekView struct {
	Start      time.Time
	Days       []Day
	Hours      []string
	Selected   *slots.Slot
	DetailOpen bool
}

// Label names the week, e.g. "Jun 2 - Jun 8, 2024".
func (w WeekView) Label() string {
	if len(w.Days) == 0 {
		return ""
	}
	last := w.Days[len(w.Days)-1].Date
	return w.Start.Format("Jan 2") + " - " + last.Format("Jan 2, 2006")
}

// WeekStart returns midnight of the Sunday on or before t, in t's location.
func WeekStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// Week lays out the loaded events for the visible week. Events outside the
// daily window are kept in inventory but not placed. Events sharing a start
// time keep their inventory order.
func (c *Calendar) Week() WeekView {
	c.mu.Lock()
	st := c.stateLocked()
	events := append([]Event(nil), c.events...)
	anchor := c.anchor
	c.mu.Unlock()

	if anchor.IsZero() {
		anchor = c.now()
	}
	anchor = anchor.In(c.loc)

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})

	start := WeekStart(anchor)
	view := WeekView{
		Start:      start,
		Days:       make([]Day, 0, 7),
		Selected:   st.Selected,
		DetailOpen: st.DetailOpen,
	}
	for h := c.dayStart; h < c.dayEnd; h++ {
		view.Hours = append(view.Hours, fmt.Sprintf("%02d:00", h))
	}

	for i := 0; i < 7; i++ {
		date := start.AddDate(0, 0, i)
		from := time.Date(date.Year(), date.Month(), date.Day(), c.dayStart, 0, 0, 0, c.loc)
		to := time.Date(date.Year(), date.Month(), date.Day(), c.dayEnd, 0, 0, 0, c.loc)
		window := to.Sub(from)

		day := Day{Date: date, Label: date.Format("Mon 02/01")}
		for _, ev := range events {
			if !ev.Start.Before(to) || !ev.End.After(from) {
				continue
			}
			top, bottom := ev.Start, ev.End
			if top.Before(from) {
				top = from
			}
			if bottom.After(to) {
				bottom = to
			}
			day.Events = append(day.Events, Placement{
				Event:  ev,
				Top:    percent(top.Sub(from), window),
				Height: percent(bottom.Sub(top), window),
			})
		}
		view.Days = append(view.Days, day)
	}
	return view
}

func percent(part, whole time.Duration) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
