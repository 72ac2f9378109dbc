package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/mimic"
	"github.com/benbjohnson/mimic/libc"
	"github.com/benbjohnson/mimic/z3"
	"github.com/davecgh/go-spew/spew"
)

// CallCommand represents a command for invoking a single function summary.
type CallCommand struct{}

// NewCallCommand returns a new instance of CallCommand.
func NewCallCommand() *CallCommand {
	return &CallCommand{}
}

// Run executes the "call" subcommand.
func (cmd *CallCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mimic-call", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file")
	archName := fs.String("arch", "", "target architecture")
	verbose := fs.Bool("v", false, "verbose")
	debug := fs.Bool("debug", false, "dump config and state")
	var env stringSlice
	fs.Var(&env, "env", "environment entry")
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() == 0 {
		return fmt.Errorf("symbol required")
	}

	config := mimic.DefaultConfig()
	if *configPath != "" {
		var err error
		if config, err = mimic.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	if *archName != "" {
		config.Arch = *archName
	}
	config.Env = append(config.Env, env...)

	arch, ok := mimic.ArchByName(config.Arch)
	if !ok {
		return fmt.Errorf("unknown arch: %q", config.Arch)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}

	solver := z3.NewSolver()
	defer solver.Close()
	if config.Limits.SolverTimeoutMillis > 0 {
		solver.SetTimeout(time.Duration(config.Limits.SolverTimeoutMillis) * time.Millisecond)
	}

	m := mimic.NewMachine(arch)
	m.Solver = solver
	m.Limits = config.Limits
	m.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	libc.Register(m)

	state := m.NewState()
	if len(config.Env) > 0 {
		state.SetupEnviron(config.Env)
	}

	callArgs := make([]mimic.Expr, 0, fs.NArg()-1)
	for _, raw := range fs.Args()[1:] {
		expr, err := parseArg(state, arch, raw)
		if err != nil {
			return err
		}
		callArgs = append(callArgs, expr)
	}

	ret, err := m.Call(state, fs.Arg(0), callArgs...)
	if err != nil {
		return err
	}
	cmd.printResult(m, state, ret)

	if *debug {
		spew.Fdump(os.Stderr, config)
		fmt.Fprintln(os.Stderr, state.Dump())
	}
	return nil
}

func (cmd *CallCommand) printResult(m *mimic.Machine, state *mimic.ExecutionState, ret mimic.Expr) {
	switch ret := ret.(type) {
	case nil:
		fmt.Println("(no return value)")
	case *mimic.ConstantExpr:
		fmt.Printf("ret = %d (%#x)\n", ret.Value, ret.Value)
	default:
		fmt.Printf("ret = %s\n", ret)
		if value, err := m.Eval(state, ret); err != nil {
			fmt.Printf("no solution: %v\n", err)
		} else {
			fmt.Printf("example = %d (%#x)\n", value.Value, value.Value)
		}
	}

	for _, std := range []struct {
		fd   uint64
		name string
	}{{1, "stdout"}, {2, "stderr"}} {
		stream := state.Stream(std.fd)
		if stream == nil || len(stream.Data) == 0 {
			continue
		}
		if b, ok := stream.Bytes(); ok {
			fmt.Printf("%s: %q\n", std.name, b)
		} else {
			fmt.Printf("%s: %d bytes, some symbolic\n", std.name, len(stream.Data))
		}
	}

	if state.Terminated() {
		fmt.Printf("state terminated: %s (%s)\n", state.Status(), state.Reason())
	}
}

// parseArg converts one command line argument into a call argument.
//
//	sym        fresh symbolic value, pointer width
//	sym:N      fresh symbolic value, N bits wide
//	buf:N      fresh N byte allocation, passes its address
//	integer    constant, pointer width
//	string     null-terminated string allocation, passes its address
func parseArg(state *mimic.ExecutionState, arch mimic.Arch, raw string) (mimic.Expr, error) {
	if raw == "sym" {
		return state.NewSymbolic(arch.PointerWidth), nil
	}
	if s, ok := strings.CutPrefix(raw, "sym:"); ok {
		width, err := strconv.ParseUint(s, 10, 32)
		if err != nil || width == 0 || width > 64 || width%8 != 0 {
			return nil, fmt.Errorf("invalid symbolic width: %q", raw)
		}
		return state.NewSymbolic(uint(width)), nil
	}
	if s, ok := strings.CutPrefix(raw, "buf:"); ok {
		size, err := strconv.ParseUint(s, 10, 32)
		if err != nil || size == 0 {
			return nil, fmt.Errorf("invalid buffer size: %q", raw)
		}
		addr, _ := state.Alloc(uint(size))
		return addr, nil
	}
	if v, err := strconv.ParseUint(raw, 0, 64); err == nil {
		return mimic.NewConstantExpr(v, arch.PointerWidth), nil
	}
	return state.AllocString(raw), nil
}

// stringSlice accumulates repeated flag values.
type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func (cmd *CallCommand) usage() {
	fmt.Fprintln(os.Stderr, `
usage: mimic call [arguments] <symbol> [arg...]

Invokes a function summary on a fresh execution state and prints the
result. Call arguments parse as integers when possible. The forms "sym",
"sym:N" and "buf:N" pass symbolic values and buffers, any other string
is allocated null-terminated and passed by address.

Arguments:

	-config path
	    Load configuration from a TOML file.

	-arch name
	    Target architecture (default amd64).

	-env KEY=VALUE
	    Add an environment entry. May be repeated.

	-v
	    Enable verbose logging.

	-debug
	    Dump the configuration and final state to stderr.
`[1:])
}
