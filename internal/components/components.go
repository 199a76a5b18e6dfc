// Package components renders the ButtonStudio pages as templ components.
//
// Components are plain templ.ComponentFunc values so they compose with any
// other templ component and render through templ's HTTP handler.
package components

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/buttonstudio/internal/manifest"
	"github.com/conneroisu/buttonstudio/internal/studio"
)

// Asset paths served by the application server.
const (
	StylesheetPath = "/static/css/styles.css"
	ScriptPath     = "/static/js/island.js"
)

// VisualizerBars is the number of placeholder bars drawn by AudioVisualizer.
const VisualizerBars = 12

// htmlWriter stops writing after the first error so components can emit
// markup without checking every call.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (hw *htmlWriter) raw(s string) {
	if hw.err != nil {
		return
	}
	_, hw.err = io.WriteString(hw.w, s)
}

func (hw *htmlWriter) text(s string) {
	hw.raw(templ.EscapeString(s))
}

func (hw *htmlWriter) rawf(format string, args ...any) {
	if hw.err != nil {
		return
	}
	_, hw.err = fmt.Fprintf(hw.w, format, args...)
}

func (hw *htmlWriter) render(ctx context.Context, c templ.Component) {
	if hw.err != nil || c == nil {
		return
	}
	hw.err = c.Render(ctx, hw.w)
}

// AppShell is the HTML document wrapping every page. With devReload set the
// page reloads itself when the server announces a manifest change.
func AppShell(title string, devReload bool, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		hw.raw(`<meta name="viewport" content="width=device-width, initial-scale=1.0">`)
		hw.raw(`<title>`)
		hw.text(title)
		hw.raw(`</title>`)
		hw.rawf(`<link rel="stylesheet" href="%s">`, StylesheetPath)
		hw.raw(`</head><body`)
		if devReload {
			hw.raw(` data-dev-reload="true"`)
		}
		hw.raw(`>`)
		hw.render(ctx, body)
		hw.rawf(`<script type="module" src="%s"></script>`, ScriptPath)
		hw.raw(`</body></html>`)
		return hw.err
	})
}

// NotFound is the 404 page body.
func NotFound(path string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<main class="not-found"><h1>404 - Page not found</h1><p>The page <code>`)
		hw.text(path)
		hw.raw(`</code> does not exist.</p><a href="/">Go back home</a></main>`)
		return hw.err
	})
}

// Counter is the counter island: a value with -1 and +1 buttons. The island
// script finds it through data-island and posts to the counter API.
func Counter(id string, value int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		escaped := templ.EscapeString(id)
		hw.rawf(`<div class="counter" data-island="counter" data-counter-id="%s">`, escaped)
		hw.rawf(`<button type="button" data-action="decrement" aria-label="Decrement %s">-1</button>`, escaped)
		hw.rawf(`<p class="counter-value" aria-live="polite">%s</p>`, strconv.Itoa(value))
		hw.rawf(`<button type="button" data-action="increment" aria-label="Increment %s">+1</button>`, escaped)
		hw.raw(`</div>`)
		return hw.err
	})
}

// RainbowBorder wraps child in an animated rainbow border.
func RainbowBorder(child templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<div class="rainbow-border"><div class="rainbow-border-inner">`)
		hw.render(ctx, child)
		hw.raw(`</div></div>`)
		return hw.err
	})
}

// AudioVisualizer draws placeholder bars and the audio status. Bars only
// animate while recording.
func AudioVisualizer(status studio.AudioStatus) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		label := cases.Title(language.English).String(string(status))

		hw.rawf(`<section class="audio-visualizer" data-island="audio" data-status="%s">`, templ.EscapeString(string(status)))
		hw.raw(`<div class="bars`)
		if status.IsRecording() {
			hw.raw(` active`)
		}
		hw.raw(`" aria-hidden="true">`)
		for i := 0; i < VisualizerBars; i++ {
			hw.rawf(`<span class="bar" style="animation-delay: %dms"></span>`, i*80)
		}
		hw.raw(`</div><p class="audio-status" role="status">`)
		hw.text(label)
		hw.raw(`</p><button type="button" data-action="toggle-audio">`)
		if status.IsRecording() {
			hw.raw(`Stop`)
		} else {
			hw.raw(`Record`)
		}
		hw.raw(`</button></section>`)
		return hw.err
	})
}

// HomeProps carries the state rendered on the home page.
type HomeProps struct {
	Title     string
	CounterID string
	Count     int
	Audio     studio.AudioStatus
}

// Home is the studio page body.
func Home(props HomeProps) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<main class="studio"><header><h1>`)
		hw.text(props.Title)
		hw.raw(`</h1><p>Try updating this message in <code>routes/index.tsx</code> and refresh.</p></header>`)
		hw.render(ctx, RainbowBorder(AudioVisualizer(props.Audio)))
		hw.render(ctx, Counter(props.CounterID, props.Count))
		hw.raw(`</main>`)
		return hw.err
	})
}

// ManifestTable lists the collected routes and islands.
func ManifestTable(entries []manifest.Entry) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<main class="manifest"><h1>Manifest</h1>`)
		if len(entries) == 0 {
			hw.raw(`<p class="empty">No routes or islands found.</p></main>`)
			return hw.err
		}
		hw.raw(`<table><thead><tr><th>Kind</th><th>File</th><th>Pattern</th><th>Identifier</th></tr></thead><tbody>`)
		for _, e := range entries {
			hw.rawf(`<tr data-kind="%s"><td>`, templ.EscapeString(string(e.Kind)))
			hw.text(string(e.Kind))
			hw.raw(`</td><td><code>`)
			hw.text(e.File)
			hw.raw(`</code></td><td>`)
			hw.text(e.Pattern)
			hw.raw(`</td><td><code>`)
			hw.text(e.Identifier)
			hw.raw(`</code></td></tr>`)
		}
		hw.raw(`</tbody></table></main>`)
		return hw.err
	})
}

// ManifestError is shown on the manifest page when collection fails.
func ManifestError(message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<main class="manifest"><h1>Manifest</h1><pre class="error" role="alert">`)
		hw.text(message)
		hw.raw(`</pre></main>`)
		return hw.err
	})
}
