// Package prompt asks the operator single-line questions on a terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoInput is returned when the input ends before an answer is given.
var ErrNoInput = errors.New("no input")

type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints question, reads one line and returns it trimmed. A blank line
// followed by a newline is a valid, empty answer.
func (p *Prompter) Ask(question string) (string, error) {
	if p == nil || p.in == nil {
		return "", fmt.Errorf("prompter not initialized")
	}
	if _, err := io.WriteString(p.out, question); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read answer: %w", err)
		}
		if line == "" {
			return "", ErrNoInput
		}
	}
	// The line break after the answer.
	_, _ = io.WriteString(p.out, "\n")
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question. Only "y" or "Y" count as yes; anything
// else, including end of input, is no.
func (p *Prompter) Confirm(question string) (bool, error) {
	answer, err := p.Ask(question)
	if errors.Is(err, ErrNoInput) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return answer == "y" || answer == "Y", nil
}
