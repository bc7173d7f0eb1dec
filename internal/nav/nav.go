// Package nav describes screen transitions as values. Flows return a Command
// and the HTTP layer executes it, so state owners never navigate themselves.
package nav

import "net/url"

// Screen is a navigable kiosk screen.
type Screen string

const (
	Entry        Screen = "entry"
	Modes        Screen = "modes"
	Slots        Screen = "slots"
	Queue        Screen = "queue"
	Confirmation Screen = "confirmation"
)

var paths = map[Screen]string{
	Entry:        "/",
	Modes:        "/modes",
	Slots:        "/slots",
	Queue:        "/queue",
	Confirmation: "/confirmation",
}

// Path returns the route for the screen.
func (s Screen) Path() string {
	if p, ok := paths[s]; ok {
		return p
	}
	return "/"
}

// Command asks the caller to move the tab to a screen.
type Command struct {
	To    Screen
	Query url.Values
}

// To builds a command without parameters.
func To(s Screen) *Command {
	return &Command{To: s}
}

// URL renders the destination for tabID. The tab parameter always wins over
// a same-named query value.
func (c *Command) URL(tabID string) string {
	q := url.Values{}
	for k, vs := range c.Query {
		q[k] = append([]string(nil), vs...)
	}
	if tabID != "" {
		q.Set("tab", tabID)
	}
	if len(q) == 0 {
		return c.To.Path()
	}
	return c.To.Path() + "?" + q.Encode()
}

// Outcome is the result of a best-effort action: the caller navigates to
// Navigate regardless of Err, which is informational only.
type Outcome struct {
	Navigate *Command
	Err      error
}
