// Package output renders command results for terminals and pipes.
package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Styles are the status styles used across commands.
type Styles struct {
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Muted   lipgloss.Style
	Header  lipgloss.Style
}

// Renderer writes styled output. Colors are only emitted when out is a
// terminal.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	styles *Styles
}

// NewRenderer creates a renderer writing to out and errOut.
func NewRenderer(out, errOut io.Writer) *Renderer {
	lr := lipgloss.NewRenderer(out)
	return &Renderer{
		out:    out,
		errOut: errOut,
		styles: &Styles{
			Success: lr.NewStyle().Foreground(lipgloss.Color("#8BC34A")),
			Error:   lr.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true),
			Warning: lr.NewStyle().Foreground(lipgloss.Color("#FFC107")),
			Muted:   lr.NewStyle().Faint(true),
			Header:  lr.NewStyle().Bold(true),
		},
	}
}

// Writer returns the primary output.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns the diagnostic output.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// Styles returns the renderer's styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Success prints a line marked as succeeded.
func (r *Renderer) Success(format string, args ...any) {
	_, _ = fmt.Fprintln(r.out, r.styles.Success.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Warning prints a line marked as a warning on the diagnostic output.
func (r *Renderer) Warning(format string, args ...any) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render("! "+fmt.Sprintf(format, args...)))
}

// Failure prints a line marked as failed.
func (r *Renderer) Failure(format string, args ...any) {
	_, _ = fmt.Fprintln(r.out, r.styles.Error.Render("✗ "+fmt.Sprintf(format, args...)))
}

// Muted prints a de-emphasized line.
func (r *Renderer) Muted(format string, args ...any) {
	_, _ = fmt.Fprintln(r.out, r.styles.Muted.Render(fmt.Sprintf(format, args...)))
}

// Header prints a bold heading.
func (r *Renderer) Header(text string) {
	_, _ = fmt.Fprintln(r.out, r.styles.Header.Render(text))
}

// Println writes plain text.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Table renders rows under header.
func (r *Renderer) Table(header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
}
