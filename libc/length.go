package libc

import (
	"fmt"

	"github.com/benbjohnson/mimic"
)

// lengthResult describes one string length probe.
//
// Len is the length in characters at pointer width. It is constant when the
// terminator position is definite and symbolic otherwise, in which case the
// constraints binding it have already been added to the state. MaxNullIndex
// is the highest byte offset at which the terminator may occur, callers use
// it to bound loads over the string.
type lengthResult struct {
	Addr         *mimic.ConstantExpr
	Len          mimic.Expr
	MaxNullIndex uint64
}

// strlenInline measures a narrow string the way an inlined strlen call
// would: it scans for the null terminator up to the string ceiling and
// returns a length bounded by the scan.
func strlenInline(c *mimic.Call, s mimic.Expr) (*lengthResult, error) {
	addr, err := c.EvalAddr(s)
	if err != nil {
		return nil, err
	}
	state := c.State()
	m := c.Machine()

	maxBytes := m.Limits.MaxStringChars
	remain, ok := state.SizeofAlloc(addr)
	if !ok {
		return nil, fmt.Errorf("strlen: %w: addr=%d", mimic.ErrNoAllocation, addr.Value)
	} else if remain < maxBytes {
		maxBytes = remain
	}

	def := addr.Add(mimic.NewConstantExpr(maxBytes, addr.Width))
	result, err := m.Find(state, addr, mimic.NewConstantExpr(0, mimic.Width8), maxBytes, mimic.FindOptions{Default: def})
	if err != nil {
		return nil, err
	}
	for _, constraint := range result.Constraints {
		state.AddConstraint(constraint)
	}

	maxNull := result.MaxIndex()
	if len(result.Offsets) == 0 {
		maxNull = maxBytes
	}

	return &lengthResult{
		Addr:         addr,
		Len:          mimic.NewBinaryExpr(mimic.SUB, result.Addr, addr),
		MaxNullIndex: maxNull,
	}, nil
}

// wcslenInline measures a wide string in 4-byte strides.
func wcslenInline(c *mimic.Call, s mimic.Expr) (*lengthResult, error) {
	addr, err := c.EvalAddr(s)
	if err != nil {
		return nil, err
	}
	state := c.State()
	m := c.Machine()

	maxBytes := m.Limits.MaxStringChars * WcharBytes
	remain, ok := state.SizeofAlloc(addr)
	if !ok {
		return nil, fmt.Errorf("wcslen: %w: addr=%d", mimic.ErrNoAllocation, addr.Value)
	} else if remain < maxBytes {
		maxBytes = remain - (remain % WcharBytes)
	}

	def := addr.Add(mimic.NewConstantExpr(maxBytes, addr.Width))
	result, err := m.Find(state, addr, mimic.NewConstantExpr(0, wcharBits), maxBytes, mimic.FindOptions{
		CharBytes: WcharBytes,
		Default:   def,
	})
	if err != nil {
		return nil, err
	}
	for _, constraint := range result.Constraints {
		state.AddConstraint(constraint)
	}

	maxNull := result.MaxIndex()
	if len(result.Offsets) == 0 {
		maxNull = maxBytes
	}

	stride := mimic.NewConstantExpr(WcharBytes, addr.Width)
	return &lengthResult{
		Addr:         addr,
		Len:          mimic.NewBinaryExpr(mimic.UDIV, mimic.NewBinaryExpr(mimic.SUB, result.Addr, addr), stride),
		MaxNullIndex: maxNull,
	}, nil
}

// Strlen models strlen. The returned length is constant when the terminator
// position is definite and symbolic otherwise.
func Strlen(c *mimic.Call) (mimic.Expr, error) {
	lr, err := strlenInline(c, c.Arg(0))
	if err != nil {
		return nil, err
	}
	return lr.Len, nil
}

// Wcslen models wcslen. Length is counted in wide characters.
func Wcslen(c *mimic.Call) (mimic.Expr, error) {
	lr, err := wcslenInline(c, c.Arg(0))
	if err != nil {
		return nil, err
	}
	return lr.Len, nil
}
