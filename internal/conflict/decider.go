package conflict

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Decider answers whether the on-disk version of a changed filter file
// should replace the persisted one
type Decider interface {
	Decide(change ExternalChange) bool
}

// DeciderFunc adapts a function to the Decider interface
type DeciderFunc func(change ExternalChange) bool

// Decide calls f
func (f DeciderFunc) Decide(change ExternalChange) bool {
	return f(change)
}

// Policy is a fixed answer used by non-interactive callers
type Policy string

const (
	// PolicyAccept always reloads the file from disk
	PolicyAccept Policy = "accept"
	// PolicyKeep always keeps the persisted copy
	PolicyKeep Policy = "keep"
)

// ParsePolicy converts a configuration string into a Policy
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyAccept:
		return PolicyAccept, nil
	case PolicyKeep:
		return PolicyKeep, nil
	default:
		return "", fmt.Errorf("unknown reload policy %q (want accept or keep)", s)
	}
}

// Decide implements Decider
func (p Policy) Decide(change ExternalChange) bool {
	return p != PolicyKeep
}

// Prompt asks the question on a terminal, showing the diff first. An empty
// answer or end of input accepts the on-disk version.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompt creates a Prompt reading answers from in and writing to out
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

// Decide implements Decider
func (p *Prompt) Decide(change ExternalChange) bool {
	if change.Diff != "" {
		fmt.Fprint(p.out, change.Diff)
	}
	fmt.Fprintf(p.out, "Filter file %s has been modified on disk. Reload it? [Y/n] ", change.Filename)

	answer, err := p.in.ReadString('\n')
	if err != nil && answer == "" {
		fmt.Fprintln(p.out)
		return true
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "n", "no":
		return false
	default:
		return true
	}
}
