package kiosk

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = []string{"entry.html", "modes.html", "queue.html", "slots.html", "confirmation.html"}

type page struct {
	Title string
	TabID string
	Data  any
}

type views struct {
	pages map[string]*template.Template
}

func loadViews() (*views, error) {
	funcs := template.FuncMap{
		"pct": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	}
	v := &views{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		tpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("kiosk: parse %s: %w", name, err)
		}
		v.pages[name] = tpl
	}
	return v, nil
}

// render executes into a buffer first so a template failure never leaves a
// half-written page.
func (v *views) render(w http.ResponseWriter, status int, name string, data page) error {
	tpl, ok := v.pages[name]
	if !ok {
		return fmt.Errorf("kiosk: unknown page %s", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("kiosk: render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}
