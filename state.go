package mimic

import (
	"bytes"
	"fmt"

	"github.com/benbjohnson/immutable"
)

// ExecutionState represents a path under exploration.
type ExecutionState struct {
	id int

	// Machine this is executed within.
	machine *Machine

	// Execution hierarchy.
	parent   *ExecutionState
	children []*ExecutionState

	// Shows whether state is running, exited, or terminated by error state.
	status ExecutionStatus
	reason string

	// Heap memory address space.
	heap *immutable.SortedMap[uint64, *Array]

	// Constraints collected so far during execution.
	constraints []Expr

	// Pointer to the NULL-terminated block of environment string pointers.
	environ *ConstantExpr

	// Buffers returned by callee-owned-storage functions, keyed by symbol.
	singletons map[string]*ConstantExpr

	// Registered signal handlers, keyed by signal number.
	sigHandlers map[uint64]Expr

	// Open output streams, keyed by file descriptor.
	streams map[uint64]*Stream

	// File system visible to path functions.
	fs FileSystem
}

func newExecutionState(machine *Machine) *ExecutionState {
	s := &ExecutionState{
		machine:     machine,
		status:      ExecutionStatusRunning,
		heap:        immutable.NewSortedMap[uint64, *Array](nil),
		singletons:  make(map[string]*ConstantExpr),
		sigHandlers: make(map[uint64]Expr),
		streams:     make(map[uint64]*Stream),
		fs:          NewMapFileSystem("/"),
	}
	for _, fd := range []uint64{0, 1, 2} {
		s.streams[fd] = &Stream{FD: fd}
	}
	return s
}

// ID returns an autoincrementing ID assigned by the machine.
func (s *ExecutionState) ID() int { return s.id }

// Machine returns the parent machine of this state.
func (s *ExecutionState) Machine() *Machine {
	return s.machine
}

func (s *ExecutionState) Constraints() []Expr {
	return s.constraints
}

// Clone returns a copy of the state including deep copies of the constraints
// and per-state side tables. However, this does not clone child states.
func (s *ExecutionState) Clone() *ExecutionState {
	constraints := make([]Expr, len(s.constraints))
	copy(constraints, s.constraints)

	singletons := make(map[string]*ConstantExpr, len(s.singletons))
	for k, v := range s.singletons {
		singletons[k] = v
	}

	sigHandlers := make(map[uint64]Expr, len(s.sigHandlers))
	for k, v := range s.sigHandlers {
		sigHandlers[k] = v
	}

	streams := make(map[uint64]*Stream, len(s.streams))
	for fd, stream := range s.streams {
		streams[fd] = stream.Clone()
	}

	return &ExecutionState{
		machine:     s.machine,
		parent:      s.parent,
		status:      s.status,
		heap:        s.heap,
		constraints: constraints,
		environ:     s.environ,
		singletons:  singletons,
		sigHandlers: sigHandlers,
		streams:     streams,
		fs:          s.fs,
	}
}

// Status returns the current status of the state.
// See Reason() for additional information if status is in an error state.
func (s *ExecutionState) Status() ExecutionStatus {
	return s.status
}

// Reason returns additional information about the status of the state.
func (s *ExecutionState) Reason() string {
	return s.reason
}

// Terminated returns true if the state completes execution of a path.
func (s *ExecutionState) Terminated() bool {
	return s.status != ExecutionStatusRunning
}

// Exit marks the state as cleanly exited with the given status value.
func (s *ExecutionState) Exit(status Expr) {
	s.status = ExecutionStatusExited
	if status, ok := status.(*ConstantExpr); ok {
		s.reason = fmt.Sprintf("exit status %d", status.Value)
	} else {
		s.reason = "exit status symbolic"
	}
}

// Fail marks the state as terminated by an unrecoverable error.
func (s *ExecutionState) Fail(reason string) {
	s.status = ExecutionStatusFailed
	s.reason = reason
}

// Fork returns a child copy of the given state with the additional constraint.
func (s *ExecutionState) Fork(constraint Expr) *ExecutionState {
	child := s.Clone()
	child.parent = s
	child.id = s.machine.nextStateID()
	if constraint != nil {
		child.AddConstraint(constraint)
	}
	s.children = append(s.children, child)
	return child
}

// Forked returns true if state has a child state.
func (s *ExecutionState) Forked() bool {
	return len(s.children) > 0
}

// Values computes initial values for all symbolic expressions.
func (s *ExecutionState) Values() ([]*Array, [][]byte, error) {
	arrays := FindArrays(s.constraints...)

	satisfiable, values, err := s.machine.Solver.Solve(s.constraints, arrays)
	if err != nil {
		return nil, nil, err
	} else if !satisfiable {
		return nil, nil, ErrUnsatisfiable
	}
	return arrays, values, nil
}

// AddConstraint adds a constraint to the state. Panic if expr is a constant false.
func (s *ExecutionState) AddConstraint(expr Expr) {
	if expr, ok := expr.(*ConstantExpr); ok {
		assert(expr.IsTrue(), "invalid false constraint")
	}

	// Split logical conjunctions into two separate constraints.
	if expr, ok := expr.(*BinaryExpr); ok && expr.Op == AND {
		s.AddConstraint(expr.LHS)
		s.AddConstraint(expr.RHS)
		return
	}

	s.constraints = append(s.constraints, expr)
}

// AddConstraint adds expr to constraints and returns the new constraint list.
// If expr is a binary AND expression then its LHS & RHS are split into
// independent constraints.
func AddConstraint(a []Expr, expr Expr) []Expr {
	if expr, ok := expr.(*BinaryExpr); ok && expr.Op == AND {
		a = AddConstraint(a, expr.LHS)
		a = AddConstraint(a, expr.RHS)
		return a
	}
	return append(a, expr)
}

// Alloc a new array on the heap.
func (s *ExecutionState) Alloc(size uint) (*ConstantExpr, *Array) {
	assert(size <= s.machine.arch.MaxAllocSize(), "alloc: size too large: %d", size)
	addr := s.nextAddr()
	array := NewArray(addr, size)
	s.heap = s.heap.Set(addr, array)
	return NewConstantExpr(addr, s.machine.arch.PointerWidth), array
}

// AllocBytes allocates a new array on the heap initialized with concrete bytes.
func (s *ExecutionState) AllocBytes(value []byte) (*ConstantExpr, *Array) {
	addr, array := s.Alloc(uint(len(value)))
	for i, b := range value {
		array.storeByte(NewConstantExpr64(uint64(i)), NewConstantExpr(uint64(b), 8))
	}
	return addr, array
}

// AllocString allocates a NUL-terminated string on the heap and returns its address.
func (s *ExecutionState) AllocString(value string) *ConstantExpr {
	addr, _ := s.AllocBytes(append([]byte(value), 0))
	return addr
}

// NewSymbolic allocates a fresh unconstrained value of the given bit width.
func (s *ExecutionState) NewSymbolic(width uint) Expr {
	_, array := s.Alloc(minBytes(width))
	return array.Select(NewConstantExpr(0, Width32), width, s.machine.arch.LittleEndian)
}

// nextAddr returns the next available address on the heap.
// Ensures the address is always non-zero.
func (s *ExecutionState) nextAddr() uint64 {
	itr := s.heap.Iterator()
	itr.Last()
	if k, v, ok := itr.Prev(); ok {
		return k + uint64(v.Size)
	}
	return uint64(s.machine.arch.PointerWidth)
}

func (s *ExecutionState) findAllocByAddr(addr *ConstantExpr) *Array {
	if value, ok := s.heap.Get(addr.Value); ok {
		return value
	}
	return nil
}

func (s *ExecutionState) findAllocContainingAddr(addr *ConstantExpr) (base *ConstantExpr, array *Array) {
	// Seek to the given address or the next available address.
	itr := s.heap.Iterator()
	if itr.Seek(addr.Value); itr.Done() {
		itr.Last()
	}

	// Move backwards until address range too low.
	for !itr.Done() {
		key, value, _ := itr.Prev()

		if addr.Value >= key && addr.Value < key+uint64(value.Size) {
			return NewConstantExpr(key, s.machine.arch.PointerWidth), value
		} else if addr.Value > key+uint64(value.Size) {
			break // target address above allocation, exit
		}
	}
	return nil, nil
}

// Free releases the allocation starting exactly at addr.
// Returns false if addr is not the base of a live allocation.
func (s *ExecutionState) Free(addr *ConstantExpr) bool {
	if array := s.findAllocByAddr(addr); array == nil {
		return false
	}
	s.heap = s.heap.Delete(addr.Value)
	return true
}

// Load reads a value of the given bit width from memory at addr.
func (s *ExecutionState) Load(addr *ConstantExpr, width uint) (Expr, error) {
	base, array := s.findAllocContainingAddr(addr)
	if array == nil {
		return nil, fmt.Errorf("load: %w: addr=%d", ErrNoAllocation, addr.Value)
	}
	return array.Select(newSubExpr(addr, base), width, s.machine.arch.LittleEndian), nil
}

// Store updates the bytes at addr with value.
func (s *ExecutionState) Store(addr *ConstantExpr, value Expr) error {
	base, array := s.findAllocContainingAddr(addr)
	if array == nil {
		return fmt.Errorf("store: %w: addr=%d", ErrNoAllocation, addr.Value)
	}
	newArray := array.Store(newSubExpr(addr, base), value, s.machine.arch.LittleEndian)
	s.heap = s.heap.Set(base.Value, newArray)
	return nil
}

// Copy copies the bytes in the value array to the given address.
func (s *ExecutionState) Copy(addr *ConstantExpr, value *Array) error {
	base, array := s.findAllocContainingAddr(addr)
	if array == nil {
		return fmt.Errorf("copy: %w: addr=%d", ErrNoAllocation, addr.Value)
	}

	newArray := array.Clone()
	for i := uint64(0); i < uint64(value.Size); i++ {
		index := newAddExpr(newSubExpr(addr, base), NewConstantExpr64(i))
		newArray.storeByte(index, value.selectByte(NewConstantExpr64(i)))
	}
	s.heap = s.heap.Set(base.Value, newArray)
	return nil
}

// SizeofAlloc returns the distance in bytes from addr to the end of its
// enclosing allocation. Returns false if addr points outside the heap.
func (s *ExecutionState) SizeofAlloc(addr *ConstantExpr) (uint64, bool) {
	base, array := s.findAllocContainingAddr(addr)
	if array == nil {
		return 0, false
	}
	return uint64(array.Size) - (addr.Value - base.Value), true
}

// Environ returns the address of the environment pointer block, if set.
func (s *ExecutionState) Environ() *ConstantExpr {
	return s.environ
}

// SetEnviron sets the address of the environment pointer block.
func (s *ExecutionState) SetEnviron(addr *ConstantExpr) {
	s.environ = addr
}

// SetupEnviron allocates "KEY=VALUE" strings for each entry in vars along
// with a NULL-terminated pointer block referencing them. The pointer block
// address is saved as the state's environment and returned.
func (s *ExecutionState) SetupEnviron(vars []string) *ConstantExpr {
	ptrs := make([]*ConstantExpr, len(vars))
	for i, v := range vars {
		ptrs[i] = s.AllocString(v)
	}

	ptrBytes := s.machine.arch.PointerBytes()
	addr, array := s.Alloc(uint(ptrBytes) * uint(len(vars)+1))
	for i, ptr := range ptrs {
		array = array.Store(NewConstantExpr64(uint64(i)*ptrBytes), ptr, s.machine.arch.LittleEndian)
	}
	array = array.Store(NewConstantExpr64(uint64(len(vars))*ptrBytes), NewConstantExpr(0, s.machine.arch.PointerWidth), s.machine.arch.LittleEndian)
	s.heap = s.heap.Set(addr.Value, array)

	s.environ = addr
	return addr
}

// Singleton returns the callee-owned buffer registered under key, if any.
func (s *ExecutionState) Singleton(key string) (*ConstantExpr, bool) {
	addr, ok := s.singletons[key]
	return addr, ok
}

// SetSingleton registers a callee-owned buffer address under key.
func (s *ExecutionState) SetSingleton(key string, addr *ConstantExpr) {
	s.singletons[key] = addr
}

// SignalHandler returns the handler registered for a signal.
// Unregistered signals report a handler of -1.
func (s *ExecutionState) SignalHandler(sig uint64) Expr {
	if h, ok := s.sigHandlers[sig]; ok {
		return h
	}
	return NewConstantExpr(^uint64(0), s.machine.arch.PointerWidth)
}

// SetSignalHandler registers a handler expression for a signal.
func (s *ExecutionState) SetSignalHandler(sig uint64, handler Expr) {
	s.sigHandlers[sig] = handler
}

// Stream returns the open stream for a file descriptor, if any.
func (s *ExecutionState) Stream(fd uint64) *Stream {
	return s.streams[fd]
}

// OpenStream returns the stream for fd, opening it if necessary.
func (s *ExecutionState) OpenStream(fd uint64) *Stream {
	if stream := s.streams[fd]; stream != nil {
		return stream
	}
	stream := &Stream{FD: fd}
	s.streams[fd] = stream
	return stream
}

// FS returns the file system visible to the state.
func (s *ExecutionState) FS() FileSystem {
	return s.fs
}

// SetFS sets the file system visible to the state.
func (s *ExecutionState) SetFS(fs FileSystem) {
	s.fs = fs
}

// Dump returns the contents of the state as a string.
func (s *ExecutionState) Dump() string {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, "EXECUTION STATE")
	fmt.Fprintln(&buf, "===============")
	fmt.Fprintf(&buf, "status=%s\n", s.status)
	fmt.Fprintf(&buf, "reason=%s\n", s.reason)
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== HEAP")
	fmt.Fprintln(&buf, s.dumpHeap())
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== STREAMS")
	for fd, stream := range s.streams {
		fmt.Fprintf(&buf, "fd=%d n=%d\n", fd, len(stream.Data))
	}
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== CONSTRAINTS")
	for i, expr := range s.constraints {
		fmt.Fprintf(&buf, "%d. %s\n", i, expr.String())
	}
	return buf.String()
}

func (s *ExecutionState) dumpHeap() string {
	var buf bytes.Buffer
	itr := s.heap.Iterator()
	for {
		k, v, ok := itr.Next()
		if !ok {
			return buf.String()
		}
		fmt.Fprintf(&buf, "%08d %s\n", k, v.String())
		for upd := v.Updates; upd != nil; upd = upd.Next {
			fmt.Fprintf(&buf, "  + UPD: I=%s; V=%s\n", upd.Index.String(), upd.Value.String())
		}
		fmt.Fprintln(&buf, "")
	}
}

// ExecutionStatus represents the current status of the execution state.
// The state will also include a reason if the status is not running.
type ExecutionStatus string

const (
	ExecutionStatusRunning = ExecutionStatus("running") // has future states
	ExecutionStatusExited  = ExecutionStatus("exited")  // process exited
	ExecutionStatusFailed  = ExecutionStatus("failed")  // unrecoverable error
)

// Stream represents an open output stream such as stdout or stderr.
// Writes append byte expressions in order.
type Stream struct {
	FD   uint64
	Data []Expr
}

// Clone returns a copy of the stream.
func (st *Stream) Clone() *Stream {
	data := make([]Expr, len(st.Data))
	copy(data, st.Data)
	return &Stream{FD: st.FD, Data: data}
}

// Write appends byte expressions to the stream.
func (st *Stream) Write(exprs ...Expr) {
	st.Data = append(st.Data, exprs...)
}

// Bytes returns the stream contents if every byte is concrete.
func (st *Stream) Bytes() ([]byte, bool) {
	b := make([]byte, len(st.Data))
	for i, expr := range st.Data {
		value, ok := expr.(*ConstantExpr)
		if !ok {
			return nil, false
		}
		b[i] = byte(value.Value)
	}
	return b, true
}
