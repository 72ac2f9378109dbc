package libc

import (
	"fmt"

	"github.com/benbjohnson/mimic"
)

// Memcpy models memcpy. A symbolic byte count is concretized to its maximum
// satisfiable value and clamped to the bounds of both allocations. Copied
// bytes keep their symbolic values.
func Memcpy(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()

	dst, err := c.EvalAddr(c.Arg(0))
	if err != nil {
		return nil, err
	}
	src, err := c.EvalAddr(c.Arg(1))
	if err != nil {
		return nil, err
	}
	n, err := c.Max(c.Arg(2))
	if err != nil {
		return nil, err
	}

	srcRemain, ok := state.SizeofAlloc(src)
	if !ok {
		return nil, fmt.Errorf("memcpy: %w: addr=%d", mimic.ErrNoAllocation, src.Value)
	}
	dstRemain, ok := state.SizeofAlloc(dst)
	if !ok {
		return nil, fmt.Errorf("memcpy: %w: addr=%d", mimic.ErrNoAllocation, dst.Value)
	}
	if n > srcRemain {
		c.Logger().Debug("count clamped to source allocation", "n", n, "remain", srcRemain)
		n = srcRemain
	}
	if n > dstRemain {
		c.Logger().Debug("count clamped to destination allocation", "n", n, "remain", dstRemain)
		n = dstRemain
	}
	if n == 0 {
		return c.Arg(0), nil
	}

	exprs, err := readBytes(c, src, n)
	if err != nil {
		return nil, err
	}
	if err := storeBytes(c, dst, exprs); err != nil {
		return nil, err
	}
	return c.Arg(0), nil
}

// Mempcpy models mempcpy, which is memcpy returning one past the last
// written byte.
func Mempcpy(c *mimic.Call) (mimic.Expr, error) {
	if _, err := c.Inline("memcpy", c.Arg(0), c.Arg(1), c.Arg(2)); err != nil {
		return nil, err
	}
	return mimic.NewBinaryExpr(mimic.ADD, c.Arg(0), c.Arg(2)), nil
}

// Wmempcpy models wmempcpy. The count argument is in wide characters.
func Wmempcpy(c *mimic.Call) (mimic.Expr, error) {
	n := mimic.NewBinaryExpr(mimic.MUL, c.Arg(2), ptrConst(c, WcharBytes))
	return c.Inline("mempcpy", c.Arg(0), c.Arg(1), n)
}

// Strncpy models strncpy. It copies min(n, strlen(src)+1) bytes with both
// bounds concretized to their maximums. The destination is not zero padded.
func Strncpy(c *mimic.Call) (mimic.Expr, error) {
	lr, err := strlenInline(c, c.Arg(1))
	if err != nil {
		return nil, err
	}
	nMax, err := c.Max(c.Arg(2))
	if err != nil {
		return nil, err
	}
	lenMax, err := c.Max(lr.Len)
	if err != nil {
		return nil, err
	}

	count := lenMax + 1
	if nMax < count {
		count = nMax
	}
	if count == 0 {
		return c.Arg(0), nil
	}
	if _, err := c.Inline("memcpy", c.Arg(0), lr.Addr, ptrConst(c, count)); err != nil {
		return nil, err
	}
	return c.Arg(0), nil
}

// Strncat models strncat. The copy starts at the destination terminator and
// transfers at most n source characters plus the terminator.
func Strncat(c *mimic.Call) (mimic.Expr, error) {
	src, err := strlenInline(c, c.Arg(1))
	if err != nil {
		return nil, err
	}
	dst, err := strlenInline(c, c.Arg(0))
	if err != nil {
		return nil, err
	}
	num := c.Arg(2)

	limit := src.Len
	if mimic.IsConstantTrue(mimic.NewBinaryExpr(mimic.UGT, src.Len, num)) {
		limit = num
	}

	dstEnd := mimic.NewBinaryExpr(mimic.ADD, c.Arg(0), dst.Len)
	n := mimic.NewBinaryExpr(mimic.ADD, limit, ptrConst(c, 1))
	if _, err := c.Inline("strncpy", dstEnd, c.Arg(1), n); err != nil {
		return nil, err
	}
	return c.Arg(0), nil
}

// Wcscpy models wcscpy. The whole source string including its terminator is
// copied with one memcpy.
func Wcscpy(c *mimic.Call) (mimic.Expr, error) {
	lr, err := wcslenInline(c, c.Arg(1))
	if err != nil {
		return nil, err
	}

	n := mimic.NewBinaryExpr(mimic.ADD,
		mimic.NewBinaryExpr(mimic.MUL, lr.Len, ptrConst(c, WcharBytes)),
		ptrConst(c, WcharBytes))
	if _, err := c.Inline("memcpy", c.Arg(0), lr.Addr, n); err != nil {
		return nil, err
	}
	return c.Arg(0), nil
}

// Wcsncpy models wcsncpy. Wide characters are copied one stride at a time
// and the copy stops after a definite terminator. The destination is not
// zero padded.
func Wcsncpy(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()
	m := c.Machine()

	dst, err := c.EvalAddr(c.Arg(0))
	if err != nil {
		return nil, err
	}
	src, err := c.EvalAddr(c.Arg(1))
	if err != nil {
		return nil, err
	}
	nMax, err := c.Max(c.Arg(2))
	if err != nil {
		return nil, err
	}
	if nMax > m.Limits.MaxStringChars {
		c.Logger().Warn("count clamped to string ceiling", "n", nMax, "max", m.Limits.MaxStringChars)
		nMax = m.Limits.MaxStringChars
	}

	for off := uint64(0); off < nMax*WcharBytes; off += WcharBytes {
		wc, err := state.Load(src.Add(ptrConst(c, off)), wcharBits)
		if err != nil {
			return nil, err
		}
		if err := state.Store(dst.Add(ptrConst(c, off)), wc); err != nil {
			return nil, err
		}
		if mimic.IsConstantTrue(mimic.NewBinaryExpr(mimic.EQ, wc, mimic.NewConstantExpr(0, wcharBits))) {
			break
		}
	}
	return c.Arg(0), nil
}
