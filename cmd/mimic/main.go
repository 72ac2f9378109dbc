package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err == flag.ErrHelp {
		os.Exit(1)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var cmd string
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "", "-h", "--help", "help":
		usage()
		return flag.ErrHelp
	case "call":
		return NewCallCommand().Run(ctx, args)
	case "symbols":
		return NewSymbolsCommand().Run(ctx, args)
	default:
		return fmt.Errorf(`mimic %s: unknown command`, cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `
Mimic executes C standard library functions symbolically.

Usage:

	mimic <command> [arguments]

The commands are:

	call        invoke a function summary on a fresh state
	symbols     list registered function summaries
	help        this screen
`[1:])
}
