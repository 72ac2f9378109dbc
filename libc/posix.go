package libc

import (
	"path"

	"github.com/benbjohnson/mimic"
)

// Malloc models malloc. A symbolic size is concretized to its maximum
// satisfiable value, capped by the architecture allocation limit.
func Malloc(c *mimic.Call) (mimic.Expr, error) {
	size, err := c.Max(c.Arg(0))
	if err != nil {
		return nil, err
	}
	if limit := uint64(c.Arch().MaxAllocSize()); size > limit {
		c.Logger().Warn("allocation truncated", "requested", size, "max", limit)
		size = limit
	}
	if size == 0 {
		size = 1
	}

	addr, _ := c.State().Alloc(uint(size))
	return addr, nil
}

// Free models free. Releasing an allocation only drops it from the heap
// index, a dangling pointer load fails later with ErrNoAllocation. Symbolic
// and null pointers are ignored.
func Free(c *mimic.Call) (mimic.Expr, error) {
	if addr, ok := c.Arg(0).(*mimic.ConstantExpr); ok && addr.Value != 0 {
		c.State().Free(addr)
	}
	return nil, nil
}

// Exit models exit by terminating the state.
func Exit(c *mimic.Call) (mimic.Expr, error) {
	c.State().Exit(c.Arg(0))
	return nil, nil
}

// ClockGettime models clock_gettime. The stored seconds and nanoseconds are
// fresh symbolic values, time never constrains path exploration.
func ClockGettime(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()

	if isNullPtr(c, c.Arg(1)) {
		return minusOne32(), nil
	}
	tp, err := c.EvalAddr(c.Arg(1))
	if err != nil {
		return nil, err
	}

	ptrBytes := c.Arch().PointerBytes()
	if err := state.Store(tp, state.NewSymbolic(ptrWidth(c))); err != nil {
		return nil, err
	}
	if err := state.Store(tp.Add(ptrConst(c, ptrBytes)), state.NewSymbolic(ptrWidth(c))); err != nil {
		return nil, err
	}
	return mimic.NewConstantExpr(0, mimic.Width32), nil
}

// Getcwd models getcwd against the state's file system. A null buffer
// allocates one, mirroring the glibc extension. A directory that does
// not fit the caller's size returns null without writing.
func Getcwd(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()

	cwd, err := state.FS().Getwd()
	if err != nil {
		c.Logger().Error("getcwd failed", "err", err)
		return nullPtr(c), nil
	}

	size, err := c.Eval(c.Arg(1))
	if err != nil {
		return nil, err
	}
	b := append([]byte(cwd), 0)
	if size.Value > 0 && uint64(len(b)) > size.Value {
		return nullPtr(c), nil
	}

	var buf *mimic.ConstantExpr
	if isNullPtr(c, c.Arg(0)) {
		ret, err := c.Inline("malloc", ptrConst(c, uint64(len(b))))
		if err != nil {
			return nil, err
		}
		buf = ret.(*mimic.ConstantExpr)
	} else {
		if buf, err = c.EvalAddr(c.Arg(0)); err != nil {
			return nil, err
		}
	}

	if err := storeBytes(c, buf, constBytes(b)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Getline models getline against an assumed maximum line length. The caller
// buffer is replaced by a fresh allocation holding unconstrained bytes, the
// reported capacity and line length are symbolic values bounded by the
// assumption.
func Getline(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()
	maxLine := c.Machine().Limits.MaxLineBytes
	c.Logger().Warn("line length assumed bounded", "max", maxLine)

	lineptrPtr, err := c.EvalAddr(c.Arg(0))
	if err != nil {
		return nil, err
	}
	nPtr, err := c.EvalAddr(c.Arg(1))
	if err != nil {
		return nil, err
	}

	lineptr, err := loadPointer(c, lineptrPtr)
	if err != nil {
		return nil, err
	}
	if !isNullPtr(c, lineptr) {
		if _, err := c.Inline("free", lineptr); err != nil {
			return nil, err
		}
	}

	buf, err := freshBuffer(c, maxLine)
	if err != nil {
		return nil, err
	}
	if err := state.Store(lineptrPtr, buf); err != nil {
		return nil, err
	}

	n := state.NewSymbolic(mimic.Width32)
	state.AddConstraint(mimic.NewBinaryExpr(mimic.ULE, n, mimic.NewConstantExpr(maxLine, mimic.Width32)))
	if err := state.Store(nPtr, n); err != nil {
		return nil, err
	}

	ret := state.NewSymbolic(ptrWidth(c))
	state.AddConstraint(mimic.NewBinaryExpr(mimic.ULT, ret, ptrConst(c, maxLine)))
	return ret, nil
}

// Realpath models realpath. A concrete path is resolved against the file
// system's working directory with lexical cleaning only, symlinks are not
// followed. A symbolic path fills the output with unconstrained bytes.
func Realpath(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()
	maxPath := c.Machine().Limits.MaxPathBytes

	resolved, err := c.Eval(c.Arg(1))
	if err != nil {
		return nil, err
	}
	var buf *mimic.ConstantExpr
	if resolved.Value == 0 {
		ret, err := c.Inline("malloc", ptrConst(c, maxPath))
		if err != nil {
			return nil, err
		}
		buf = ret.(*mimic.ConstantExpr)
	} else {
		if buf, err = c.EvalAddr(c.Arg(1)); err != nil {
			return nil, err
		}
	}

	lr, err := strlenInline(c, c.Arg(0))
	if err != nil {
		return nil, err
	}
	var n uint64
	if lenConst, ok := lr.Len.(*mimic.ConstantExpr); ok {
		n = lenConst.Value
	} else {
		v, err := c.Eval(lr.Len)
		if err != nil {
			return nil, err
		}
		n = v.Value
	}
	exprs, err := readBytes(c, lr.Addr, n)
	if err != nil {
		return nil, err
	}

	if b, ok := concreteBytes(exprs); ok {
		cwd, err := state.FS().Getwd()
		if err != nil {
			c.Logger().Error("getwd failed", "err", err)
			cwd = "/"
		}

		norm := string(b)
		if path.IsAbs(norm) {
			norm = path.Clean(norm)
		} else {
			norm = path.Join(cwd, norm)
		}
		if uint64(len(norm)) > maxPath-1 {
			norm = norm[:maxPath-1]
		}
		if err := storeBytes(c, buf, constBytes(append([]byte(norm), 0))); err != nil {
			return nil, err
		}
	} else {
		c.Logger().Debug("symbolic path, symbolizing resolved path")
		_, arr := state.Alloc(uint(maxPath))
		if err := state.Copy(buf, arr); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Unlink models unlink against the state's file system.
func Unlink(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()

	lr, err := strlenInline(c, c.Arg(0))
	if err != nil {
		return nil, err
	}
	b, err := c.EvalBytes(lr.Addr, lr.MaxNullIndex)
	if err != nil {
		return nil, err
	}
	name := string(b)

	if !state.FS().Exists(name) {
		return minusOne32(), nil
	}
	if err := state.FS().Delete(name); err != nil {
		c.Logger().Error("unlink failed", "path", name, "err", err)
		return minusOne32(), nil
	}
	return mimic.NewConstantExpr(0, mimic.Width32), nil
}
