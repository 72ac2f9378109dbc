package libc

import (
	"strconv"
	"strings"

	"github.com/benbjohnson/mimic"
)

// Mbsrtowcs models mbsrtowcs assuming a single-byte encoding. Units below
// 0x80 widen by zero extension, anything else becomes a fresh symbolic wide
// character. The conversion stops at, and includes, a definite terminator.
// The caller's source cursor advances past the consumed bytes. A null dest
// selects count-only mode. The shift state argument is ignored.
func Mbsrtowcs(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()
	m := c.Machine()
	warn := true

	countOnly := isNullPtr(c, c.Arg(0))
	var dest *mimic.ConstantExpr
	if !countOnly {
		var err error
		if dest, err = c.EvalAddr(c.Arg(0)); err != nil {
			return nil, err
		}
	}

	srcCur, err := c.EvalAddr(c.Arg(1))
	if err != nil {
		return nil, err
	}
	srcBaseExpr, err := loadPointer(c, srcCur)
	if err != nil {
		return nil, err
	}
	srcBase, err := c.EvalAddr(srcBaseExpr)
	if err != nil {
		return nil, err
	}

	lenMax, err := c.Max(c.Arg(2))
	if err != nil {
		return nil, err
	}
	if lenMax > m.Limits.MaxConvertChars {
		lenMax = m.Limits.MaxConvertChars
	}

	var count uint64
	for offset := uint64(0); offset < lenMax; offset++ {
		b, err := state.Load(srcBase.Add(ptrConst(c, offset)), mimic.Width8)
		if err != nil {
			return nil, err
		}

		var wc mimic.Expr
		if mimic.IsConstantTrue(mimic.NewBinaryExpr(mimic.ULT, b, mimic.NewConstantExpr(0x80, mimic.Width8))) {
			wc = mimic.NewCastExpr(b, wcharBits, false)
		} else {
			if warn {
				c.Logger().Warn("assuming source string is all ASCII")
				warn = false
			}
			wc = state.NewSymbolic(wcharBits)
		}
		count++
		if !countOnly {
			if err := state.Store(dest.Add(ptrConst(c, offset*WcharBytes)), wc); err != nil {
				return nil, err
			}
		}
		if mimic.IsConstantTrue(mimic.NewBinaryExpr(mimic.EQ, b, mimic.NewConstantExpr(0, mimic.Width8))) {
			break
		}
	}

	if err := state.Store(srcCur, srcBase.Add(ptrConst(c, count))); err != nil {
		return nil, err
	}
	return ptrConst(c, count), nil
}

// Wcsrtombs models wcsrtombs, the inverse of Mbsrtowcs. Wide characters
// below 0x80 narrow to their low byte, anything else becomes a fresh
// symbolic byte.
func Wcsrtombs(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()
	m := c.Machine()
	warn := true

	countOnly := isNullPtr(c, c.Arg(0))
	var dest *mimic.ConstantExpr
	if !countOnly {
		var err error
		if dest, err = c.EvalAddr(c.Arg(0)); err != nil {
			return nil, err
		}
	}

	srcCur, err := c.EvalAddr(c.Arg(1))
	if err != nil {
		return nil, err
	}
	srcBaseExpr, err := loadPointer(c, srcCur)
	if err != nil {
		return nil, err
	}
	srcBase, err := c.EvalAddr(srcBaseExpr)
	if err != nil {
		return nil, err
	}

	lenMax, err := c.Max(c.Arg(2))
	if err != nil {
		return nil, err
	}
	if lenMax > m.Limits.MaxConvertChars {
		lenMax = m.Limits.MaxConvertChars
	}

	var count uint64
	for offset := uint64(0); offset < lenMax; offset++ {
		wc, err := state.Load(srcBase.Add(ptrConst(c, offset*WcharBytes)), wcharBits)
		if err != nil {
			return nil, err
		}

		var b mimic.Expr
		if mimic.IsConstantTrue(mimic.NewBinaryExpr(mimic.ULT, wc, mimic.NewConstantExpr(0x80, wcharBits))) {
			b = mimic.NewExtractExpr(wc, 0, mimic.Width8)
		} else {
			if warn {
				c.Logger().Warn("assuming source string is all ASCII")
				warn = false
			}
			b = state.NewSymbolic(mimic.Width8)
		}
		count++
		if !countOnly {
			if err := state.Store(dest.Add(ptrConst(c, offset)), b); err != nil {
				return nil, err
			}
		}
		if mimic.IsConstantTrue(mimic.NewBinaryExpr(mimic.EQ, wc, mimic.NewConstantExpr(0, wcharBits))) {
			break
		}
	}

	if err := state.Store(srcCur, srcBase.Add(ptrConst(c, count*WcharBytes))); err != nil {
		return nil, err
	}
	return ptrConst(c, count), nil
}

// Towupper models towupper for the ASCII range. The result is computed
// branchlessly so a symbolic character that must be ASCII stays tied to its
// input. Characters that may be non-ASCII produce a fresh unconstrained
// result.
func Towupper(c *mimic.Call) (mimic.Expr, error) {
	wc := c.Arg(0)
	w := mimic.ExprWidth(wc)

	ascii, err := c.Machine().MustBeTrue(c.State(), mimic.NewBinaryExpr(mimic.ULT, wc, mimic.NewConstantExpr(0x80, w)))
	if err != nil {
		return nil, err
	} else if !ascii {
		c.Logger().Warn("possibly non-ASCII character, returning unconstrained result")
		return c.State().NewSymbolic(w), nil
	}

	lower := mimic.NewAllExpr(
		mimic.NewBinaryExpr(mimic.UGE, wc, mimic.NewConstantExpr('a', w)),
		mimic.NewBinaryExpr(mimic.ULE, wc, mimic.NewConstantExpr('z', w)),
	)
	delta := mimic.NewBinaryExpr(mimic.MUL, mimic.NewCastExpr(lower, w, false), mimic.NewConstantExpr(32, w))
	return mimic.NewBinaryExpr(mimic.SUB, wc, delta), nil
}

// Atol models atol. The digits must be concrete enough to evaluate, anything
// else degrades to an unconstrained result.
func Atol(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()
	m := c.Machine()

	if !mimic.IsConstantExpr(c.Arg(0)) {
		c.Logger().Debug("symbolic string pointer, returning unconstrained result")
		return state.NewSymbolic(ptrWidth(c)), nil
	}
	s := c.Arg(0).(*mimic.ConstantExpr)

	result, err := m.Find(state, s, mimic.NewConstantExpr(0, mimic.Width8), maxAtolBytes, mimic.FindOptions{
		Default: s.Add(ptrConst(c, maxAtolBytes)),
	})
	if err != nil {
		return nil, err
	}
	if len(result.Offsets) == 0 || result.Offsets[0] == 0 {
		c.Logger().Debug("unbounded or empty string, returning unconstrained result")
		return state.NewSymbolic(ptrWidth(c)), nil
	}

	b, err := c.EvalBytes(s, result.Offsets[0])
	if err != nil {
		return nil, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		c.Logger().Warn("unparsable integer string", "s", string(b))
		return state.NewSymbolic(ptrWidth(c)), nil
	}
	return ptrConst(c, uint64(v)), nil
}
