package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/benbjohnson/mimic"
	"github.com/benbjohnson/mimic/libc"
)

// SymbolsCommand represents a command for listing function summaries.
type SymbolsCommand struct{}

// NewSymbolsCommand returns a new instance of SymbolsCommand.
func NewSymbolsCommand() *SymbolsCommand {
	return &SymbolsCommand{}
}

// Run executes the "symbols" subcommand.
func (cmd *SymbolsCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mimic-symbols", flag.ContinueOnError)
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	}

	m := mimic.NewMachine(mimic.AMD64)
	libc.Register(m)
	for _, symbol := range m.Symbols() {
		fmt.Println(symbol)
	}
	return nil
}

func (cmd *SymbolsCommand) usage() {
	fmt.Fprintln(os.Stderr, `
usage: mimic symbols

Prints the name of every registered function summary.
`[1:])
}
