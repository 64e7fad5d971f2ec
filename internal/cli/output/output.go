// Package output renders command results for terminals, plain text
// consumers, and JSON pipelines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Mode selects the rendering style.
type Mode string

const (
	// ModeAuto picks text on a terminal and markdown otherwise.
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// ParseMode converts a flag value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeAuto, ModeText, ModeMarkdown, ModeJSON:
		return Mode(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("invalid output format %q (expected auto, text, markdown, or json)", s)
	}
}

// Renderer writes user-facing command output. Diagnostics logging goes
// through slog; the renderer carries only the results a user asked for.
type Renderer struct {
	Out  io.Writer
	Err  io.Writer
	mode Mode
}

// NewRenderer creates a renderer writing to the given streams.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	return &Renderer{Out: out, Err: errOut, mode: mode}
}

// EffectiveMode resolves ModeAuto against the output stream.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if f, ok := r.Out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return ModeText
	}
	return ModeMarkdown
}

// Println writes a line to stdout.
func (r *Renderer) Println(a ...any) {
	fmt.Fprintln(r.Out, a...)
}

// Printf writes formatted output to stdout.
func (r *Renderer) Printf(format string, a ...any) {
	fmt.Fprintf(r.Out, format, a...)
}

// Errorf writes formatted output to stderr.
func (r *Renderer) Errorf(format string, a ...any) {
	fmt.Fprintf(r.Err, format, a...)
}

// Header writes a section heading.
func (r *Renderer) Header(text string) {
	fmt.Fprintln(r.Out, FormatHeader(text, r.EffectiveMode()))
}

// KeyValue writes an aligned key/value line.
func (r *Renderer) KeyValue(key, value string) {
	fmt.Fprintln(r.Out, FormatKeyValue(key, value, r.EffectiveMode()))
}

// JSON writes v as indented JSON to stdout.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatHeader renders a heading for the given mode.
func FormatHeader(text string, mode Mode) string {
	if mode == ModeMarkdown {
		return "## " + text
	}
	return text + "\n" + strings.Repeat("-", len(text))
}

// FormatKeyValue renders a key/value pair for the given mode.
func FormatKeyValue(key, value string, mode Mode) string {
	if mode == ModeMarkdown {
		return fmt.Sprintf("- **%s**: %s", key, value)
	}
	return fmt.Sprintf("%-12s %s", key+":", value)
}
