// console_output.go - Guest console text sink

package main

import (
	"io"
	"os"

	"golang.org/x/term"
)

// ConsoleOutput delivers guest console text (Deci2 kPuts traffic) to the
// host. Games emit CRLF pairs; when stdout is a pipe the carriage returns
// are stripped so captured logs stay clean, while a real terminal gets the
// bytes untouched.
type ConsoleOutput struct {
	out        io.Writer
	isTerminal bool
}

func NewConsoleOutput() *ConsoleOutput {
	return &ConsoleOutput{
		out:        os.Stdout,
		isTerminal: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

func (c *ConsoleOutput) Write(data []byte) (int, error) {
	if c.isTerminal {
		return c.out.Write(data)
	}
	filtered := make([]byte, 0, len(data))
	for _, b := range data {
		if b == '\r' {
			continue
		}
		filtered = append(filtered, b)
	}
	if _, err := c.out.Write(filtered); err != nil {
		return 0, err
	}
	return len(data), nil
}
