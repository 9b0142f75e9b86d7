// Package ui prints coloured command output: status lines, tables and
// error messages with suggestions.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Printer writes status lines to one writer
type Printer struct {
	w       io.Writer
	noColor bool
}

// NewPrinter creates a printer. Colour is also off when the writer is not a
// terminal, as decided by fatih/color.
func NewPrinter(w io.Writer, noColor bool) *Printer {
	return &Printer{w: w, noColor: noColor}
}

func (p *Printer) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if p.noColor {
		c.DisableColor()
	}
	return c
}

// Success prints a green check line
func (p *Printer) Success(format string, args ...interface{}) {
	p.paint(color.FgGreen, color.Bold).Fprintf(p.w, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Info prints a plain line
func (p *Printer) Info(format string, args ...interface{}) {
	p.paint(color.FgCyan).Fprintf(p.w, "%s\n", fmt.Sprintf(format, args...))
}

// Warn prints a yellow line
func (p *Printer) Warn(format string, args ...interface{}) {
	p.paint(color.FgYellow).Fprintf(p.w, "! %s\n", fmt.Sprintf(format, args...))
}

// ErrorOptions describes one failure
type ErrorOptions struct {
	Context     string
	Problem     string
	Hint        string
	Suggestions []string
}

// Error prints a failure with its optional hint and suggestions
//
//	✗ ENTITY NOT FOUND: Pte
//	   Did you mean: Pet?
func (p *Printer) Error(opts ErrorOptions) {
	red := p.paint(color.FgRed, color.Bold)
	if opts.Context != "" {
		red.Fprintf(p.w, "✗ %s: %s\n", strings.ToUpper(opts.Context), opts.Problem)
	} else {
		red.Fprintf(p.w, "✗ %s\n", opts.Problem)
	}
	if opts.Hint != "" {
		p.paint(color.FgWhite).Fprintf(p.w, "   %s\n", opts.Hint)
	}
	if len(opts.Suggestions) > 0 {
		p.paint(color.FgYellow).Fprintf(p.w, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}
}
