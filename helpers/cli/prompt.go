// Package cli asks questions on terminal with go-prompt,
// or reads answers line by line from non-terminal stdin.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
)

type Asker struct {
	out   io.Writer
	lines *bufio.Scanner // nil when interactive
}

// NewStdio returns interactive Asker when stdin is a terminal.
func NewStdio() *Asker {
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return &Asker{out: os.Stdout}
	}
	return NewReader(os.Stdin, os.Stdout)
}

// NewReader takes answers from r, one per line. Exhausted input means default answers.
func NewReader(r io.Reader, out io.Writer) *Asker {
	return &Asker{out: out, lines: bufio.NewScanner(r)}
}

func (a *Asker) Printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

// Ask shows question with default in brackets, empty answer means def.
func (a *Asker) Ask(question, def string) string {
	q := fmt.Sprintf("%s [%s]: ", question, def)
	var answer string
	if a.lines == nil {
		answer = prompt.Input(q, noSuggest)
	} else {
		fmt.Fprint(a.out, q)
		if a.lines.Scan() {
			answer = a.lines.Text()
		}
		fmt.Fprintln(a.out, answer)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return def
	}
	return answer
}

// AskValid repeats question until check accepts the answer.
// Non-interactive input gives up after first invalid default.
func (a *Asker) AskValid(question, def string, check func(string) error) (string, error) {
	for {
		answer := a.Ask(question, def)
		err := check(answer)
		if err == nil {
			return answer, nil
		}
		fmt.Fprintln(a.out, err)
		if a.lines != nil && answer == def {
			return "", err
		}
	}
}

func (a *Asker) Confirm(question string, def bool) bool {
	d := "y/N"
	if def {
		d = "Y/n"
	}
	switch strings.ToLower(a.Ask(question, d)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	return def
}

func noSuggest(prompt.Document) []prompt.Suggest { return nil }
