package model

import (
	"strings"

	"github.com/alessio/shellescape"
)

// Command is a structured remote invocation. Arguments are quoted
// individually when the command is composed into a shell string.
type Command struct {
	Args  []string `json:"args"`
	User  string   `json:"user,omitempty"`
	Dir   string   `json:"dir,omitempty"`
	Stdin string   `json:"-"`
}

// NewCommand creates a command from an argument vector
func NewCommand(args ...string) Command {
	return Command{Args: args}
}

// Shell creates a command that hands script to sh -c verbatim
func Shell(script string) Command {
	return Command{Args: []string{"sh", "-c", script}}
}

// As returns a copy of the command that runs under user's login shell
func (c Command) As(user string) Command {
	c.User = user
	return c
}

// In returns a copy of the command that runs from dir
func (c Command) In(dir string) Command {
	c.Dir = dir
	return c
}

// WithStdin returns a copy of the command that is fed input on stdin
func (c Command) WithStdin(input string) Command {
	c.Stdin = input
	return c
}

// Empty reports whether there is nothing to run
func (c Command) Empty() bool {
	return len(c.Args) == 0 || strings.TrimSpace(strings.Join(c.Args, "")) == ""
}

// String composes the command for a POSIX shell
func (c Command) String() string {
	inner := shellescape.QuoteCommand(c.Args)
	if c.Dir != "" {
		inner = "cd " + shellescape.Quote(c.Dir) + " && " + inner
	}
	if c.User == "" {
		return inner
	}
	return "sudo su - " + shellescape.Quote(c.User) + " -c " + shellescape.Quote(inner)
}
