package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"github.com/aretw0/chatflow/pkg/domain"
)

// NewRenderer returns a function that renders markdown using glamour.
// Without a usable terminal style the text is returned unchanged.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(72),
	)
	if err != nil {
		return func(s string) (string, error) { return s, nil }
	}
	return r.Render
}

// Printer writes bot messages to a terminal.
type Printer struct {
	w      io.Writer
	render func(string) (string, error)
	plain  bool
}

// NewPrinter creates a Printer. plain disables markdown rendering and colors.
func NewPrinter(w io.Writer, plain bool) *Printer {
	p := &Printer{w: w, plain: plain}
	if !plain {
		p.render = NewRenderer()
	}
	return p
}

// Effects prints deliverable effects as chat bubbles and diagnostics as warnings.
func (p *Printer) Effects(effects []domain.Effect) {
	for _, e := range effects {
		switch {
		case e.Type == domain.EffectDiagnostic:
			p.line("!", e.Text, "#f87171")
		case e.IsDeliverable():
			p.message(e.Text)
			for i, opt := range e.Options {
				p.line(fmt.Sprintf("[%d]", i+1), opt, "#a78bfa")
			}
		}
	}
}

// Status prints the session status after a step.
func (p *Printer) Status(s *domain.Session) {
	if s == nil {
		return
	}
	switch s.Status {
	case domain.StatusCompleted:
		p.line("*", "conversation completed", "#34d399")
	case domain.StatusAborted:
		p.line("*", "conversation aborted: "+s.AbortReason, "#f87171")
	}
}

func (p *Printer) message(text string) {
	if p.plain {
		fmt.Fprintf(p.w, "bot> %s\n", text)
		return
	}
	out, err := p.render(text)
	if err != nil {
		out = text
	}
	fmt.Fprintln(p.w, strings.TrimRight(out, "\n"))
}

func (p *Printer) line(prefix, text, color string) {
	if p.plain {
		fmt.Fprintf(p.w, "%s %s\n", prefix, text)
		return
	}
	profile := termenv.ColorProfile()
	fmt.Fprintf(p.w, "%s %s\n", termenv.String(prefix).Foreground(profile.Color(color)).Bold(), text)
}
