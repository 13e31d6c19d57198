package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	bold  = "\033[1m"
	reset = "\033[0m"
)

// Printer writes the human-facing progress lines and tables. Structured diagnostics go to the
// zap logger instead.
type Printer struct {
	out    io.Writer
	styled bool
	last   outputKind
}

type outputKind int

const (
	outputNone outputKind = iota
	outputApp
	outputDetail
)

// NewPrinter creates a Printer that writes to out. Styling is enabled only when out is a
// terminal.
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = io.Discard
	}
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{out: out, styled: styled, last: outputNone}
}

// App writes bold application output, separated from preceding detail lines by a blank line.
func (p *Printer) App(text string) error {
	if text == "" {
		return nil
	}
	if p.last == outputDetail {
		if _, err := io.WriteString(p.out, "\n"); err != nil {
			return err
		}
	}
	if err := p.write(text, p.styled); err != nil {
		return err
	}
	p.last = outputApp
	return nil
}

func (p *Printer) Appf(format string, args ...any) error {
	return p.App(fmt.Sprintf(format, args...))
}

// Detail writes an indented, unstyled line under the most recent App line.
func (p *Printer) Detail(text string) error {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	if err := p.write(strings.Join(lines, "\n"), false); err != nil {
		return err
	}
	p.last = outputDetail
	return nil
}

func (p *Printer) Detailf(format string, args ...any) error {
	return p.Detail(fmt.Sprintf(format, args...))
}

// Block writes preformatted text such as a summary table verbatim.
func (p *Printer) Block(text string) error {
	if text == "" {
		return nil
	}
	if err := p.write(text, false); err != nil {
		return err
	}
	p.last = outputNone
	return nil
}

func (p *Printer) write(text string, styled bool) error {
	text = ensureTrailingNewline(text)
	if styled {
		text = bold + strings.TrimSuffix(text, "\n") + reset + "\n"
	}
	_, err := io.WriteString(p.out, text)
	return err
}

func ensureTrailingNewline(text string) string {
	if strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}
