package mimic

import (
	"fmt"
	"log/slog"
	"sort"
)

// Solver represents a constraint solver.
type Solver interface {
	// Solve returns whether the constraints are satisfiable.
	// Returns initial values for the given arrays if satisfiable.
	Solve(constraints []Expr, arrays []*Array) (satisfiable bool, values [][]byte, err error)
}

// Summary models the effect of a named function on an execution state.
// It returns the function's return value expression, or nil if the
// function has no return value.
type Summary func(c *Call) (Expr, error)

// Machine dispatches calls to registered function summaries and answers
// solver queries over execution states.
type Machine struct {
	arch       Arch
	fns        map[string]Summary
	stateIDSeq int

	// Per-call scan and buffer bounds. Modify before use.
	Limits Limits

	// Constraint solver used for all queries. Must be set before use.
	Solver Solver

	// Destination for diagnostic logging.
	Logger *slog.Logger
}

// NewMachine returns a new instance of Machine for the given architecture.
func NewMachine(arch Arch) *Machine {
	return &Machine{
		arch:   arch,
		fns:    make(map[string]Summary),
		Limits: DefaultLimits(),
		Logger: slog.Default(),
	}
}

// Arch returns the machine architecture.
func (m *Machine) Arch() Arch {
	return m.arch
}

// NewState returns a new root execution state attached to the machine.
func (m *Machine) NewState() *ExecutionState {
	s := newExecutionState(m)
	s.id = m.nextStateID()
	return s
}

func (m *Machine) nextStateID() int {
	m.stateIDSeq++
	return m.stateIDSeq
}

// Register registers a summary for a symbol name.
// Re-registering a symbol replaces the previous summary.
func (m *Machine) Register(symbol string, fn Summary) {
	m.fns[symbol] = fn
}

// Summary returns the summary registered for a symbol, if any.
func (m *Machine) Summary(symbol string) Summary {
	return m.fns[symbol]
}

// Symbols returns the names of all registered summaries, sorted.
func (m *Machine) Symbols() []string {
	a := make([]string, 0, len(m.fns))
	for symbol := range m.fns {
		a = append(a, symbol)
	}
	sort.Strings(a)
	return a
}

// Call invokes the summary registered for symbol against the given state.
// Returns ErrNoSummary if the symbol has no registered summary.
func (m *Machine) Call(state *ExecutionState, symbol string, args ...Expr) (Expr, error) {
	fn := m.fns[symbol]
	if fn == nil {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoSummary)
	}

	m.Logger.Debug("call", "symbol", symbol, "state", state.ID(), "args", len(args))

	ret, err := fn(&Call{machine: m, state: state, symbol: symbol, args: args})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	return ret, nil
}

// MayBeTrue returns true if cond can be true under the state's constraints.
// Constant conditions are answered without a solver call.
func (m *Machine) MayBeTrue(s *ExecutionState, cond Expr) (bool, error) {
	if IsConstantTrue(cond) {
		return true, nil
	} else if IsConstantFalse(cond) {
		return false, nil
	}

	constraints := AddConstraint(append([]Expr{}, s.constraints...), cond)
	satisfiable, _, err := m.Solver.Solve(constraints, FindArrays(constraints...))
	if err != nil {
		return false, err
	}
	return satisfiable, nil
}

// MustBeTrue returns true if cond holds under every solution to the
// state's constraints.
func (m *Machine) MustBeTrue(s *ExecutionState, cond Expr) (bool, error) {
	mayBeFalse, err := m.MayBeTrue(s, NewIsZeroExpr(cond))
	if err != nil {
		return false, err
	}
	return !mayBeFalse, nil
}

// Min returns the lowest value expr can take under the state's constraints.
func (m *Machine) Min(s *ExecutionState, expr Expr) (uint64, error) {
	if expr, ok := expr.(*ConstantExpr); ok {
		return expr.Value, nil
	}

	if err := m.checkSatisfiable(s); err != nil {
		return 0, err
	}

	// Binary search for the lowest satisfying value.
	width := ExprWidth(expr)
	lo, hi := uint64(0), bitmask(width)
	for lo < hi {
		mid := lo + ((hi - lo) / 2)
		ok, err := m.MayBeTrue(s, NewBinaryExpr(ULE, expr, NewConstantExpr(mid, width)))
		if err != nil {
			return 0, err
		} else if ok {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, nil
}

// Max returns the highest value expr can take under the state's constraints.
func (m *Machine) Max(s *ExecutionState, expr Expr) (uint64, error) {
	if expr, ok := expr.(*ConstantExpr); ok {
		return expr.Value, nil
	}

	if err := m.checkSatisfiable(s); err != nil {
		return 0, err
	}

	// Binary search for the highest satisfying value.
	width := ExprWidth(expr)
	lo, hi := uint64(0), bitmask(width)
	for lo < hi {
		mid := lo + ((hi - lo) / 2) + ((hi - lo) & 1)
		ok, err := m.MayBeTrue(s, NewBinaryExpr(UGE, expr, NewConstantExpr(mid, width)))
		if err != nil {
			return 0, err
		} else if ok {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

func (m *Machine) checkSatisfiable(s *ExecutionState) error {
	satisfiable, _, err := m.Solver.Solve(s.constraints, FindArrays(s.constraints...))
	if err != nil {
		return err
	} else if !satisfiable {
		return ErrUnsatisfiable
	}
	return nil
}

// Eval returns one satisfying value for expr under the state's constraints.
func (m *Machine) Eval(s *ExecutionState, expr Expr) (*ConstantExpr, error) {
	if expr, ok := expr.(*ConstantExpr); ok {
		return expr, nil
	}

	arrays := FindArrays(append(append([]Expr{}, s.constraints...), expr)...)
	satisfiable, values, err := m.Solver.Solve(s.constraints, arrays)
	if err != nil {
		return nil, err
	} else if !satisfiable {
		return nil, ErrUnsatisfiable
	}
	return NewExprEvaluator(arrays, values).Evaluate(expr)
}

// EvalBytes returns one satisfying value for n bytes of memory starting
// at addr. Fully concrete memory is answered without a solver call.
func (m *Machine) EvalBytes(s *ExecutionState, addr *ConstantExpr, n uint64) ([]byte, error) {
	exprs := make([]Expr, n)
	concrete := true
	for i := uint64(0); i < n; i++ {
		expr, err := s.Load(addr.Add(NewConstantExpr(i, addr.Width)), Width8)
		if err != nil {
			return nil, err
		}
		exprs[i] = expr
		if !IsConstantExpr(expr) {
			concrete = false
		}
	}

	b := make([]byte, n)
	if concrete {
		for i, expr := range exprs {
			b[i] = byte(expr.(*ConstantExpr).Value)
		}
		return b, nil
	}

	arrays := FindArrays(append(append([]Expr{}, s.constraints...), exprs...)...)
	satisfiable, values, err := m.Solver.Solve(s.constraints, arrays)
	if err != nil {
		return nil, err
	} else if !satisfiable {
		return nil, ErrUnsatisfiable
	}

	evaluator := NewExprEvaluator(arrays, values)
	for i, expr := range exprs {
		value, err := evaluator.Evaluate(expr)
		if err != nil {
			return nil, err
		}
		b[i] = byte(value.Value)
	}
	return b, nil
}

// Call represents a single invocation of a function summary.
type Call struct {
	machine *Machine
	state   *ExecutionState
	symbol  string
	args    []Expr
}

// Machine returns the machine dispatching the call.
func (c *Call) Machine() *Machine { return c.machine }

// State returns the execution state the call operates on.
func (c *Call) State() *ExecutionState { return c.state }

// Symbol returns the symbol name the call was dispatched under.
func (c *Call) Symbol() string { return c.symbol }

// Args returns all call argument expressions.
func (c *Call) Args() []Expr { return c.args }

// Arg returns the i-th call argument expression.
func (c *Call) Arg(i int) Expr {
	assert(i < len(c.args), "%s: arg out of range: %d", c.symbol, i)
	return c.args[i]
}

// NArg returns the number of call arguments.
func (c *Call) NArg() int { return len(c.args) }

// Arch returns the machine architecture.
func (c *Call) Arch() Arch { return c.machine.arch }

// Logger returns the machine logger annotated with call context.
func (c *Call) Logger() *slog.Logger {
	return c.machine.Logger.With("symbol", c.symbol, "state", c.state.ID())
}

// Inline invokes another summary against the same state.
func (c *Call) Inline(symbol string, args ...Expr) (Expr, error) {
	return c.machine.Call(c.state, symbol, args...)
}

// Eval returns one satisfying value for expr.
func (c *Call) Eval(expr Expr) (*ConstantExpr, error) {
	return c.machine.Eval(c.state, expr)
}

// EvalAddr concretizes a pointer argument. If the pointer is symbolic, the
// chosen address is pinned with an equality constraint so later queries
// agree with the concretization.
func (c *Call) EvalAddr(expr Expr) (*ConstantExpr, error) {
	if expr, ok := expr.(*ConstantExpr); ok {
		return expr, nil
	}

	addr, err := c.machine.Eval(c.state, expr)
	if err != nil {
		return nil, err
	}
	c.state.AddConstraint(NewBinaryExpr(EQ, expr, addr))
	c.Logger().Debug("pointer concretized", "addr", addr.Value)
	return addr, nil
}

// EvalBytes returns one satisfying value for n bytes of memory at addr.
func (c *Call) EvalBytes(addr *ConstantExpr, n uint64) ([]byte, error) {
	return c.machine.EvalBytes(c.state, addr, n)
}

// Min returns the lowest value expr can take.
func (c *Call) Min(expr Expr) (uint64, error) {
	return c.machine.Min(c.state, expr)
}

// Max returns the highest value expr can take.
func (c *Call) Max(expr Expr) (uint64, error) {
	return c.machine.Max(c.state, expr)
}

// MayBeTrue returns true if cond can be true in the call's state.
func (c *Call) MayBeTrue(cond Expr) (bool, error) {
	return c.machine.MayBeTrue(c.state, cond)
}

// MustBeTrue returns true if cond holds in every solution of the call's state.
func (c *Call) MustBeTrue(cond Expr) (bool, error) {
	return c.machine.MustBeTrue(c.state, cond)
}
