package main

import (
	"fmt"
	"io"

	"github.com/ZanzyTHEbar/keysieve/sieve/ports"
)

type console struct {
	out io.Writer
	err io.Writer
}

var _ ports.Interactor = (*console)(nil)

func newConsole(out, err io.Writer) *console {
	return &console{out: out, err: err}
}

func (c *console) Output(message string) {
	fmt.Fprintln(c.out, message)
}

func (c *console) Warning(message string) {
	fmt.Fprintf(c.err, "warning: %s\n", message)
}

func (c *console) Error(message string, err error) {
	if err == nil {
		fmt.Fprintf(c.err, "error: %s\n", message)
		return
	}
	fmt.Fprintf(c.err, "error: %s: %v\n", message, err)
}
