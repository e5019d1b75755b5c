package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// Prompter reads answers from In and writes questions to Out. Secret input
// is hidden when In is a terminal.
type Prompter struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// NewPrompter returns a Prompter on stdin/stderr.
func NewPrompter() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stderr}
}

func (p *Prompter) readLine() (string, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Secret prompts for a credential without echoing it.
func (p *Prompter) Secret(prompt string) (string, error) {
	fmt.Fprint(p.Out, prompt+": ")

	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := p.readLine()
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return line, nil
}

// Line prompts for a visible value. An empty answer returns def.
func (p *Prompter) Line(prompt, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.Out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprint(p.Out, prompt+": ")
	}
	line, err := p.readLine()
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

// Choice lists options and returns the 0-based index picked.
func (p *Prompter) Choice(prompt string, options []string) (int, error) {
	fmt.Fprintln(p.Out, prompt)
	for i, opt := range options {
		fmt.Fprintf(p.Out, "  %d. %s\n", i+1, opt)
	}
	fmt.Fprint(p.Out, "Enter choice: ")

	line, err := p.readLine()
	if err != nil {
		return -1, fmt.Errorf("reading choice: %w", err)
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return -1, fmt.Errorf("invalid choice %q", line)
	}
	if n < 1 || n > len(options) {
		return -1, fmt.Errorf("choice %d out of range [1-%d]", n, len(options))
	}
	return n - 1, nil
}

// Confirm asks a yes/no question. Anything but y/yes is no.
func (p *Prompter) Confirm(prompt string) (bool, error) {
	fmt.Fprint(p.Out, prompt+" [y/N]: ")
	line, err := p.readLine()
	if err != nil {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	answer := strings.ToLower(line)
	return answer == "y" || answer == "yes", nil
}
