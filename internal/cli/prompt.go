package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// PromptResult contains the result of a user prompt interaction.
type PromptResult struct {
	// Accepted is true if the user accepted the prompt (typed "y" or "Y")
	Accepted bool
	// Cancelled is true if input ended with a read error
	Cancelled bool
}

// errNoInput is returned when a required prompt gets no answer.
var errNoInput = errors.New("no input")

// prompter reads answers line by line from one shared buffer so consecutive
// prompts do not lose input.
type prompter struct {
	w    io.Writer
	r    *bufio.Reader
	file *os.File
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	p := &prompter{w: cmd.ErrOrStderr(), r: bufio.NewReader(in)}
	if f, ok := in.(*os.File); ok && isTerminal(f) {
		p.file = f
	}
	return p
}

func (p *prompter) readLine() (string, error) {
	line, err := p.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if errors.Is(err, io.EOF) && line == "" {
		return "", errNoInput
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Line prompts for a single value.
func (p *prompter) Line(label string) (string, error) {
	fmt.Fprintf(p.w, "%s: ", label)
	v, err := p.readLine()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return v, nil
}

// Password prompts for a password. On a terminal the input is not echoed.
func (p *prompter) Password() (string, error) {
	fmt.Fprint(p.w, "Password: ")
	var (
		password string
		err      error
	)
	if p.file != nil {
		var raw []byte
		raw, err = term.ReadPassword(int(p.file.Fd()))
		fmt.Fprintln(p.w)
		password = string(raw)
	} else {
		password, err = p.readLine()
	}
	if err != nil && !errors.Is(err, errNoInput) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}

// Confirm asks a yes/no question. Empty input, EOF and anything other than
// y/yes decline.
func (p *prompter) Confirm(question string) PromptResult {
	fmt.Fprintf(p.w, "? %s [y/N] ", question)
	answer, err := p.readLine()
	if err != nil {
		if errors.Is(err, errNoInput) {
			return PromptResult{Accepted: false}
		}
		return PromptResult{Cancelled: true}
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return PromptResult{Accepted: true}
	default:
		return PromptResult{Accepted: false}
	}
}

// isInteractive reports whether the command reads from a terminal.
func isInteractive(cmd *cobra.Command) bool {
	f, ok := cmd.InOrStdin().(*os.File)
	return ok && isTerminal(f)
}
