// Package overlay renders the request queues as a self-refreshing HTML page for a
// streaming software browser source.
package overlay

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strconv"

	"github.com/onnwee/tank-queue/ledger"
)

//go:embed queue.html.tmpl
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "queue.html.tmpl"))

// Options control what the page shows. Output is a pure function of state and Options.
type Options struct {
	Lines          int    // rows shown before the "+N in queue" footer
	NormalIconPath string // image shown for normal-lane rows
	EmptyText      string
	RefreshSeconds int
}

func (o Options) withDefaults() Options {
	if o.Lines <= 0 {
		o.Lines = 5
	}
	if o.EmptyText == "" {
		o.EmptyText = "No requests in the queue"
	}
	if o.RefreshSeconds <= 0 {
		o.RefreshSeconds = 2
	}
	return o
}

type row struct {
	Supporter bool
	Amount    string
	Glyph     string
	Icon      string
	Label     string
}

type page struct {
	Refresh   int
	EmptyText string
	Rows      []row
	Remaining int
}

var glyphs = map[ledger.Category]string{
	ledger.CategoryArty:      "A",
	ledger.CategoryBlacklist: "B",
	ledger.CategoryTroll:     "T",
}

// Render builds the overlay page. Supporter rows come first, then normal rows, up to
// opts.Lines in total.
func Render(st *ledger.State, opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	p := page{Refresh: opts.RefreshSeconds, EmptyText: opts.EmptyText}
	total := 0
	if st != nil {
		total = st.Len()
		for _, it := range st.SupporterQueue {
			if len(p.Rows) >= opts.Lines {
				break
			}
			r := row{Supporter: true, Amount: it.TipAmount, Glyph: "★", Label: label(it)}
			if g, ok := glyphs[it.SpecialType]; ok {
				r.Glyph = g
			}
			p.Rows = append(p.Rows, r)
		}
		for _, it := range st.NormalQueue {
			if len(p.Rows) >= opts.Lines {
				break
			}
			r := row{Icon: opts.NormalIconPath, Label: label(it)}
			if g, ok := glyphs[it.SpecialType]; ok {
				r.Label += " [" + g + "]"
			}
			p.Rows = append(p.Rows, r)
		}
	}
	p.Remaining = total - len(p.Rows)

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("render overlay: %w", err)
	}
	return buf.Bytes(), nil
}

func label(it ledger.QueueItem) string {
	if it.Mult > 1 {
		return it.Tank + " x" + strconv.Itoa(it.Mult)
	}
	return it.Tank
}

// WriteFile renders st and replaces path atomically so a browser source never reads a
// half-written page.
func WriteFile(path string, st *ledger.State, opts Options) error {
	html, err := Render(st, opts)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".overlay-*.html")
	if err != nil {
		return fmt.Errorf("create temp overlay: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(html); err != nil {
		tmp.Close()
		return fmt.Errorf("write overlay: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close overlay: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod overlay: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace overlay %s: %w", path, err)
	}
	return nil
}
