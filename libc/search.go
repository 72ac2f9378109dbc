package libc

import (
	"github.com/benbjohnson/mimic"
)

// Strrchr models strrchr loosely. Instead of locating the exact last match
// the summary returns a fresh pointer constrained to be either null or a
// position within the string. Callers that branch on the result explore both
// outcomes.
func Strrchr(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()

	lr, err := strlenInline(c, c.Arg(0))
	if err != nil {
		return nil, err
	}

	var bound uint64
	if lenConst, ok := lr.Len.(*mimic.ConstantExpr); ok {
		c.Logger().Debug("concrete string length", "len", lenConst.Value)
		bound = lenConst.Value + 1
	} else {
		c.Logger().Debug("symbolic string length", "maxNullIndex", lr.MaxNullIndex)
		bound = lr.MaxNullIndex
	}

	ret := state.NewSymbolic(ptrWidth(c))
	state.AddConstraint(mimic.NewBinaryExpr(mimic.OR,
		mimic.NewAllExpr(
			mimic.NewBinaryExpr(mimic.UGE, ret, lr.Addr),
			mimic.NewBinaryExpr(mimic.ULT, ret, lr.Addr.Add(ptrConst(c, bound))),
		),
		mimic.NewBinaryExpr(mimic.EQ, ret, nullPtr(c)),
	))
	return ret, nil
}

// Wcschr models wcschr. The scan bound follows the string length when it is
// definite, otherwise the number of symbolic candidates is capped.
func Wcschr(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()
	m := c.Machine()

	lr, err := wcslenInline(c, c.Arg(0))
	if err != nil {
		return nil, err
	}
	wc := wcharPattern(c.Arg(1))

	opt := mimic.FindOptions{CharBytes: WcharBytes, Default: nullPtr(c)}
	var maxBytes uint64
	if lenConst, ok := lr.Len.(*mimic.ConstantExpr); ok {
		c.Logger().Debug("concrete string length", "len", lenConst.Value)
		maxBytes = lenConst.Value*WcharBytes + WcharBytes
	} else {
		c.Logger().Debug("symbolic string length", "maxNullIndex", lr.MaxNullIndex)
		lenMax, err := c.Max(lr.Len)
		if err != nil {
			return nil, err
		}
		maxSym := lenMax + 1
		if limit := uint64(m.Limits.MaxSymbolicChars); maxSym > limit {
			maxSym = limit
		}
		opt.MaxSymbolic = int(maxSym)
		maxBytes = m.Limits.MaxStringChars
	}

	result, err := m.Find(state, lr.Addr, wc, maxBytes, opt)
	if err != nil {
		return nil, err
	}
	for _, constraint := range result.Constraints {
		state.AddConstraint(constraint)
	}

	// A non-null result must point within the string.
	chrpos := mimic.NewBinaryExpr(mimic.SUB, result.Addr, lr.Addr)
	lenBytes := mimic.NewBinaryExpr(mimic.MUL, lr.Len, ptrConst(c, WcharBytes))
	state.AddConstraint(mimic.NewBinaryExpr(mimic.OR,
		mimic.NewBinaryExpr(mimic.EQ, result.Addr, nullPtr(c)),
		mimic.NewBinaryExpr(mimic.ULE, chrpos, lenBytes),
	))
	return result.Addr, nil
}

// Wcsrchr models wcsrchr by scanning forward past each match until no later
// match is possible, keeping the last search result.
func Wcsrchr(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()
	m := c.Machine()

	lr, err := wcslenInline(c, c.Arg(0))
	if err != nil {
		return nil, err
	}
	lenMax, err := c.Max(lr.Len)
	if err != nil {
		return nil, err
	}
	maxBytes := lenMax * WcharBytes
	wc := wcharPattern(c.Arg(1))

	var best *mimic.FindResult
	for offset := uint64(0); offset < maxBytes; {
		start := lr.Addr.Add(ptrConst(c, offset))
		result, err := m.Find(state, start, wc, maxBytes-offset, mimic.FindOptions{
			CharBytes: WcharBytes,
			Default:   nullPtr(c),
		})
		if err != nil {
			return nil, err
		}
		if isNullPtr(c, result.Addr) {
			break
		}

		best = result
		if len(result.Offsets) == 0 {
			break
		}
		offset += result.Offsets[0] + WcharBytes
	}

	if best == nil {
		return nullPtr(c), nil
	}
	for _, constraint := range best.Constraints {
		state.AddConstraint(constraint)
	}
	return best.Addr, nil
}

// Wcspbrk models wcspbrk by searching the string for each character of the
// accept set and keeping the earliest provable match.
func Wcspbrk(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()
	m := c.Machine()

	lr, err := wcslenInline(c, c.Arg(0))
	if err != nil {
		return nil, err
	}
	acc, err := wcslenInline(c, c.Arg(1))
	if err != nil {
		return nil, err
	}
	accMax, err := c.Max(acc.Len)
	if err != nil {
		return nil, err
	}

	var best *mimic.FindResult
	for idx := uint64(0); idx < accMax; idx++ {
		ch, err := state.Load(acc.Addr.Add(ptrConst(c, idx*WcharBytes)), wcharBits)
		if err != nil {
			return nil, err
		}
		if mimic.IsConstantTrue(mimic.NewBinaryExpr(mimic.EQ, ch, mimic.NewConstantExpr(0, wcharBits))) {
			break
		}

		result, err := m.Find(state, lr.Addr, wcharPattern(ch), lr.MaxNullIndex, mimic.FindOptions{
			CharBytes: WcharBytes,
			Default:   nullPtr(c),
		})
		if err != nil {
			return nil, err
		}
		if isNullPtr(c, result.Addr) {
			continue
		}

		if best == nil {
			best = result
		} else if addr, ok := result.Addr.(*mimic.ConstantExpr); ok {
			if prev, ok := best.Addr.(*mimic.ConstantExpr); ok && addr.Value < prev.Value {
				best = result
			}
		}
	}

	if best == nil {
		return nullPtr(c), nil
	}
	for _, constraint := range best.Constraints {
		state.AddConstraint(constraint)
	}
	return best.Addr, nil
}
